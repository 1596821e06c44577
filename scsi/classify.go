// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Classification of SG_IO command results.

package scsi

// Result is the top-level outcome of a single command.
type Result int

const (
	ResultOK Result = iota
	ResultRecovered
	ResultDeviceError
	ResultTransportError
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultRecovered:
		return "recovered"
	case ResultDeviceError:
		return "device error"
	case ResultTransportError:
		return "transport error"
	}

	return "unknown"
}

// Outcome is the classified result of a command.
type Outcome struct {
	Result   Result
	Category Category
	Resid    int   // Bytes requested but not transferred
	Sense    Sense // Zero value unless the device returned sense data
	Err      error // *TransportError or *DeviceError when the command failed
}

// OK reports whether the command completed well enough for its data to be used.
func (o Outcome) OK() bool {
	return o.Result == ResultOK || o.Result == ResultRecovered
}

// Short reports whether fewer bytes were transferred than requested.
func (o Outcome) Short() bool {
	return o.Resid > 0
}

// Transferred returns how many of the requested bytes were actually transferred. A negative
// residual, which only a misbehaving transport reports, is treated as zero.
func (o Outcome) Transferred(requested int) int {
	n := requested
	if o.Resid > 0 {
		n -= o.Resid
	}

	if n < 0 {
		return 0
	}

	return n
}

// Classify turns the status of a completed SG_IO call, and the error returned by the call
// itself, into an Outcome.
func Classify(st Status, err error) Outcome {
	o := Outcome{Resid: int(st.Resid)}

	if err != nil {
		o.Result = ResultTransportError
		o.Category = CategoryOther
		o.Err = &TransportError{Err: err}
		return o
	}

	driverStatus := st.DriverStatus & DRIVER_STATUS_MASK

	if st.HostStatus != DID_OK || (driverStatus != DRIVER_OK && driverStatus != DRIVER_SENSE) {
		o.Result = ResultTransportError
		o.Category = CategoryOther
		o.Err = &TransportError{HostStatus: st.HostStatus, DriverStatus: st.DriverStatus}
		return o
	}

	checkCondition := st.ScsiStatus == SAM_STAT_CHECK_CONDITION ||
		st.ScsiStatus == SAM_STAT_COMMAND_TERMINATED ||
		driverStatus == DRIVER_SENSE

	if !checkCondition {
		o.Category = statusCategory(st.ScsiStatus)

		// The sg driver flags a problem that none of the status fields explain
		if o.Category == CategoryClean && st.Info&SG_INFO_OK_MASK != SG_INFO_OK {
			o.Category = CategoryOther
		}

		if o.Category == CategoryClean {
			o.Result = ResultOK
			return o
		}

		o.Result = ResultDeviceError
		o.Err = &DeviceError{Category: o.Category, ScsiStatus: st.ScsiStatus}
		return o
	}

	sense, ok := ParseSense(st.Sense)
	if !ok {
		o.Result = ResultDeviceError
		o.Category = CategoryOther
		o.Err = &DeviceError{Category: o.Category, ScsiStatus: st.ScsiStatus}
		return o
	}

	o.Sense = sense
	o.Category = senseCategory(sense)

	switch o.Category {
	case CategoryNoSense, CategoryRecovered:
		o.Result = ResultRecovered
	default:
		o.Result = ResultDeviceError
		o.Err = &DeviceError{Category: o.Category, ScsiStatus: st.ScsiStatus, Sense: sense}
	}

	return o
}
