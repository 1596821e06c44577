// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package scsi

import (
	"syscall"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// fixedSense builds fixed format sense data with the given key and ASC / ASCQ.
func fixedSense(key, asc, ascq byte) []byte {
	b := make([]byte, 18)
	b[0] = 0x70
	b[2] = key
	b[7] = 10
	b[12] = asc
	b[13] = ascq
	return b
}

func TestParseSense(t *testing.T) {
	assert := assert.New(t)

	s, ok := ParseSense(fixedSense(SENSE_KEY_ILLEGAL_REQUEST, 0x24, 0x00))
	assert.True(ok)
	assert.Equal(Sense{ResponseCode: 0x70, Key: 5, ASC: 0x24}, s)
	assert.Equal("Illegal Request", s.KeyName())
	assert.Equal("invalid field in CDB", s.Description())

	// Descriptor format, with the VALID bit set on the response code
	s, ok = ParseSense([]byte{0xf2, 0x06, 0x29, 0x00, 0, 0, 0, 0})
	assert.True(ok)
	assert.Equal(Sense{ResponseCode: 0x72, Key: 6, ASC: 0x29}, s)

	// Short fixed format sense still yields a key
	s, ok = ParseSense([]byte{0x70, 0x00, 0x01})
	assert.True(ok)
	assert.EqualValues(SENSE_KEY_RECOVERED_ERROR, s.Key)

	_, ok = ParseSense(nil)
	assert.False(ok)

	_, ok = ParseSense([]byte{0x00, 0x00, 0x05})
	assert.False(ok)

	s = Sense{ResponseCode: 0x70, Key: 9, ASC: 0x80, ASCQ: 0x01}
	assert.Equal("vendor specific", s.Description())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		st       Status
		err      error
		result   Result
		category Category
	}{
		{"good", Status{}, nil, ResultOK, CategoryClean},
		{"condition met", Status{ScsiStatus: SAM_STAT_CONDITION_MET}, nil, ResultOK, CategoryClean},
		{"no sense", Status{ScsiStatus: SAM_STAT_CHECK_CONDITION, Sense: fixedSense(SENSE_KEY_NO_SENSE, 0, 0)},
			nil, ResultRecovered, CategoryNoSense},
		{"recovered", Status{ScsiStatus: SAM_STAT_CHECK_CONDITION, Sense: fixedSense(SENSE_KEY_RECOVERED_ERROR, 0x17, 0x01)},
			nil, ResultRecovered, CategoryRecovered},
		{"driver sense without check condition", Status{DriverStatus: DRIVER_SENSE, Sense: fixedSense(SENSE_KEY_RECOVERED_ERROR, 0, 0)},
			nil, ResultRecovered, CategoryRecovered},
		{"illegal request", Status{ScsiStatus: SAM_STAT_CHECK_CONDITION, Sense: fixedSense(SENSE_KEY_ILLEGAL_REQUEST, 0x24, 0)},
			nil, ResultDeviceError, CategoryIllegalReq},
		{"invalid opcode", Status{ScsiStatus: SAM_STAT_CHECK_CONDITION, Sense: fixedSense(SENSE_KEY_ILLEGAL_REQUEST, 0x20, 0)},
			nil, ResultDeviceError, CategoryInvalidOp},
		{"not ready", Status{ScsiStatus: SAM_STAT_CHECK_CONDITION, Sense: fixedSense(SENSE_KEY_NOT_READY, 0x04, 0x01)},
			nil, ResultDeviceError, CategoryNotReady},
		{"medium error", Status{ScsiStatus: SAM_STAT_CHECK_CONDITION, Sense: fixedSense(SENSE_KEY_MEDIUM_ERROR, 0x11, 0)},
			nil, ResultDeviceError, CategoryMediumHard},
		{"hardware error", Status{ScsiStatus: SAM_STAT_CHECK_CONDITION, Sense: fixedSense(SENSE_KEY_HARDWARE_ERROR, 0x44, 0)},
			nil, ResultDeviceError, CategoryMediumHard},
		{"unit attention", Status{ScsiStatus: SAM_STAT_CHECK_CONDITION, Sense: fixedSense(SENSE_KEY_UNIT_ATTENTION, 0x29, 0)},
			nil, ResultDeviceError, CategoryUnitAttention},
		{"protection", Status{ScsiStatus: SAM_STAT_CHECK_CONDITION, Sense: fixedSense(SENSE_KEY_ABORTED_COMMAND, 0x10, 0x01)},
			nil, ResultDeviceError, CategoryProtection},
		{"aborted command", Status{ScsiStatus: SAM_STAT_CHECK_CONDITION, Sense: fixedSense(SENSE_KEY_ABORTED_COMMAND, 0x47, 0)},
			nil, ResultDeviceError, CategoryAbortedCommand},
		{"check condition without sense", Status{ScsiStatus: SAM_STAT_CHECK_CONDITION},
			nil, ResultDeviceError, CategoryOther},
		{"sg info check without status", Status{Info: 0x1}, nil, ResultDeviceError, CategoryOther},
		{"sg info check with busy", Status{ScsiStatus: SAM_STAT_BUSY, Info: 0x1}, nil, ResultDeviceError, CategoryBusy},
		{"busy", Status{ScsiStatus: SAM_STAT_BUSY}, nil, ResultDeviceError, CategoryBusy},
		{"reservation conflict", Status{ScsiStatus: SAM_STAT_RESERVATION_CONFLICT}, nil, ResultDeviceError, CategoryResConflict},
		{"task aborted", Status{ScsiStatus: SAM_STAT_TASK_ABORTED}, nil, ResultDeviceError, CategoryTaskAborted},
		{"ioctl failed", Status{}, syscall.EIO, ResultTransportError, CategoryOther},
		{"host timeout", Status{HostStatus: DID_TIME_OUT}, nil, ResultTransportError, CategoryOther},
		{"driver timeout", Status{DriverStatus: DRIVER_TIMEOUT}, nil, ResultTransportError, CategoryOther},
		{"driver suggestion bits ignored", Status{DriverStatus: 0x10}, nil, ResultOK, CategoryClean},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Classify(tt.st, tt.err)

			assert.Equal(t, tt.result, o.Result)
			assert.Equal(t, tt.category, o.Category)
			assert.Equal(t, o.Result == ResultOK || o.Result == ResultRecovered, o.OK())

			switch o.Result {
			case ResultOK, ResultRecovered:
				assert.NoError(t, o.Err)
			case ResultDeviceError:
				var de *DeviceError
				assert.True(t, errors.As(o.Err, &de))
				assert.Equal(t, tt.category, de.Category)
			case ResultTransportError:
				var te *TransportError
				assert.True(t, errors.As(o.Err, &te))
			}
		})
	}
}

func TestClassifyResidual(t *testing.T) {
	assert := assert.New(t)

	o := Classify(Status{Resid: 100}, nil)
	assert.True(o.OK())
	assert.True(o.Short())
	assert.Equal(924, o.Transferred(1024))

	// Residual larger than the request
	o = Classify(Status{Resid: 2000}, nil)
	assert.Equal(0, o.Transferred(1024))

	// Negative residual from a misbehaving transport
	o = Classify(Status{Resid: -8}, nil)
	assert.False(o.Short())
	assert.Equal(1024, o.Transferred(1024))

	// Residual is reported for failures too
	o = Classify(Status{ScsiStatus: SAM_STAT_BUSY, Resid: 512}, nil)
	assert.False(o.OK())
	assert.Equal(512, o.Resid)
}

func TestTransportError(t *testing.T) {
	assert := assert.New(t)

	e := &TransportError{Err: errors.Wrap(syscall.ENODEV, "SG_IO ioctl")}
	assert.Equal(syscall.ENODEV, e.Errno())
	assert.True(errors.Is(e, syscall.ENODEV))
	assert.Contains(e.Error(), "SG_IO ioctl")

	e = &TransportError{HostStatus: DID_NO_CONNECT, DriverStatus: DRIVER_OK}
	assert.Equal(syscall.Errno(0), e.Errno())
	assert.Equal("transport error: host status: 0x01 (no connect), driver status: 0x00 (ok)", e.Error())
}

func TestDeviceErrorMessage(t *testing.T) {
	s, _ := ParseSense(fixedSense(SENSE_KEY_ILLEGAL_REQUEST, 0x24, 0x00))
	e := &DeviceError{Category: CategoryIllegalReq, ScsiStatus: SAM_STAT_CHECK_CONDITION, Sense: s}

	assert.Equal(t, "Illegal request: SCSI status: 0x02, sense key: Illegal Request, asc/ascq: 24/00 (invalid field in CDB)", e.Error())
	assert.Equal(t, "Category(123)", Category(123).String())
}
