// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// SCSI generic IO definitions and errors.

package scsi

import (
	"fmt"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

const (
	SG_DXFER_NONE        = -1
	SG_DXFER_TO_DEV      = -2
	SG_DXFER_FROM_DEV    = -3
	SG_DXFER_TO_FROM_DEV = -4

	SG_INFO_OK_MASK = 0x1
	SG_INFO_OK      = 0x0

	SG_GET_VERSION_NUM = 0x2282
	SG_IO              = 0x2285

	// Oldest sg driver that supports the SG_IO interface
	SG_MIN_VERSION = 30000

	// Maximum sense data we ask the kernel to return
	SENSE_BUF_LEN = 64

	// Default command timeout
	DEFAULT_TIMEOUT = 60 * time.Second
)

// SAM status codes, see http://www.t10.org/lists/2status.htm
const (
	SAM_STAT_GOOD                 = 0x00
	SAM_STAT_CHECK_CONDITION      = 0x02
	SAM_STAT_CONDITION_MET        = 0x04
	SAM_STAT_BUSY                 = 0x08
	SAM_STAT_RESERVATION_CONFLICT = 0x18
	SAM_STAT_COMMAND_TERMINATED   = 0x22
	SAM_STAT_TASK_SET_FULL        = 0x28
	SAM_STAT_ACA_ACTIVE           = 0x30
	SAM_STAT_TASK_ABORTED         = 0x40
)

// Linux sg host (adapter) status codes
const (
	DID_OK          = 0x00
	DID_NO_CONNECT  = 0x01
	DID_BUS_BUSY    = 0x02
	DID_TIME_OUT    = 0x03
	DID_BAD_TARGET  = 0x04
	DID_ABORT       = 0x05
	DID_PARITY      = 0x06
	DID_ERROR       = 0x07
	DID_RESET       = 0x08
	DID_BAD_INTR    = 0x09
	DID_PASSTHROUGH = 0x0a
	DID_SOFT_ERROR  = 0x0b
)

// Linux sg driver status codes. Only the low nibble carries the status; the high nibble holds
// suggestions which we ignore.
const (
	DRIVER_OK      = 0x00
	DRIVER_BUSY    = 0x01
	DRIVER_SOFT    = 0x02
	DRIVER_MEDIA   = 0x03
	DRIVER_ERROR   = 0x04
	DRIVER_INVALID = 0x05
	DRIVER_TIMEOUT = 0x06
	DRIVER_HARD    = 0x07
	DRIVER_SENSE   = 0x08

	DRIVER_STATUS_MASK = 0x0f
)

var hostStatusNames = map[uint16]string{
	DID_OK:          "ok",
	DID_NO_CONNECT:  "no connect",
	DID_BUS_BUSY:    "bus busy",
	DID_TIME_OUT:    "timed out",
	DID_BAD_TARGET:  "bad target",
	DID_ABORT:       "abort",
	DID_PARITY:      "parity error",
	DID_ERROR:       "internal error",
	DID_RESET:       "reset",
	DID_BAD_INTR:    "bad interrupt",
	DID_PASSTHROUGH: "passthrough",
	DID_SOFT_ERROR:  "soft error",
}

var driverStatusNames = map[uint16]string{
	DRIVER_OK:      "ok",
	DRIVER_BUSY:    "busy",
	DRIVER_SOFT:    "soft",
	DRIVER_MEDIA:   "media",
	DRIVER_ERROR:   "error",
	DRIVER_INVALID: "invalid",
	DRIVER_TIMEOUT: "timeout",
	DRIVER_HARD:    "hard",
	DRIVER_SENSE:   "sense",
}

// Status is what the transport reports back for a single command, in addition to any data.
type Status struct {
	ScsiStatus   uint8
	HostStatus   uint16
	DriverStatus uint16
	Info         uint32
	Resid        int32
	Duration     time.Duration
	Sense        []byte // Sense bytes actually written by the device
}

// TransportError is returned when a command could not be delivered to, or completed by, the
// device. Err is set when the OS call itself failed; otherwise the host or driver status explains
// the failure.
type TransportError struct {
	Err          error
	HostStatus   uint16
	DriverStatus uint16
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport error: %v", e.Err)
	}

	return fmt.Sprintf("transport error: host status: %#02x (%s), driver status: %#02x (%s)",
		e.HostStatus, statusName(hostStatusNames, e.HostStatus),
		e.DriverStatus, statusName(driverStatusNames, e.DriverStatus&DRIVER_STATUS_MASK))
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Errno returns the OS error number behind the failure, or zero if there is none.
func (e *TransportError) Errno() syscall.Errno {
	var errno syscall.Errno
	if errors.As(e.Err, &errno) {
		return errno
	}

	return 0
}

// DeviceError is returned when the device received the command but reported a failure.
type DeviceError struct {
	Category   Category
	ScsiStatus uint8
	Sense      Sense
}

func (e *DeviceError) Error() string {
	if e.Sense.Valid() {
		return fmt.Sprintf("%s: SCSI status: %#02x, %s", e.Category, e.ScsiStatus, e.Sense)
	}

	return fmt.Sprintf("%s: SCSI status: %#02x", e.Category, e.ScsiStatus)
}

func statusName(names map[uint16]string, v uint16) string {
	if s, ok := names[v]; ok {
		return s
	}

	return "unknown"
}
