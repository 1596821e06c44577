// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Sense data decoding and result categories.

package scsi

import (
	"fmt"
)

// Sense keys (SPC-5 table 51)
const (
	SENSE_KEY_NO_SENSE        = 0x0
	SENSE_KEY_RECOVERED_ERROR = 0x1
	SENSE_KEY_NOT_READY       = 0x2
	SENSE_KEY_MEDIUM_ERROR    = 0x3
	SENSE_KEY_HARDWARE_ERROR  = 0x4
	SENSE_KEY_ILLEGAL_REQUEST = 0x5
	SENSE_KEY_UNIT_ATTENTION  = 0x6
	SENSE_KEY_DATA_PROTECT    = 0x7
	SENSE_KEY_BLANK_CHECK     = 0x8
	SENSE_KEY_VENDOR_SPECIFIC = 0x9
	SENSE_KEY_COPY_ABORTED    = 0xa
	SENSE_KEY_ABORTED_COMMAND = 0xb
	SENSE_KEY_VOLUME_OVERFLOW = 0xd
	SENSE_KEY_MISCOMPARE      = 0xe
	SENSE_KEY_COMPLETED       = 0xf
)

var senseKeyNames = [16]string{
	"No Sense", "Recovered Error", "Not Ready", "Medium Error", "Hardware Error",
	"Illegal Request", "Unit Attention", "Data Protect", "Blank Check", "Vendor Specific",
	"Copy Aborted", "Aborted Command", "Equal", "Volume Overflow", "Miscompare", "Completed",
}

// Additional sense code / qualifier descriptions, keyed by ASC<<8 | ASCQ.
// See www.t10.org/lists/asc-num.txt for the full list.
var ascDescriptions = map[uint16]string{
	0x0000: "no additional sense information",
	0x0006: "I/O process terminated",
	0x0400: "logical unit not ready, cause not reportable",
	0x0401: "logical unit is in process of becoming ready",
	0x0402: "logical unit not ready, initializing command required",
	0x0403: "logical unit not ready, manual intervention required",
	0x0404: "logical unit not ready, format in progress",
	0x0500: "logical unit does not respond to selection",
	0x0800: "logical unit communication failure",
	0x0801: "logical unit communication time-out",
	0x1000: "ID CRC or ECC error",
	0x1100: "unrecovered read error",
	0x1700: "recovered data with no error correction applied",
	0x1701: "recovered data with retries",
	0x1800: "recovered data with error correction applied",
	0x1a00: "parameter list length error",
	0x2000: "invalid command operation code",
	0x2100: "logical block address out of range",
	0x2400: "invalid field in CDB",
	0x2500: "logical unit not supported",
	0x2600: "invalid field in parameter list",
	0x2700: "write protected",
	0x2800: "not ready to ready change, medium may have changed",
	0x2900: "power on, reset, or bus device reset occurred",
	0x2a00: "parameters changed",
	0x2c00: "command sequence error",
	0x2f00: "commands cleared by another initiator",
	0x3a00: "medium not present",
	0x3f00: "target operating conditions have changed",
	0x3f01: "microcode has been changed",
	0x4400: "internal target failure",
	0x4700: "SCSI parity error",
	0x4b00: "data phase error",
	0x4e00: "overlapped commands attempted",
	0x5500: "system resource failure",
}

// Sense holds the fields of interest from fixed or descriptor format sense data.
type Sense struct {
	ResponseCode uint8
	Key          uint8
	ASC          uint8
	ASCQ         uint8
}

// ParseSense decodes fixed (0x70/0x71) and descriptor (0x72/0x73) format sense data. The second
// return value is false if b does not hold recognisable sense data.
func ParseSense(b []byte) (Sense, bool) {
	var s Sense

	if len(b) < 1 {
		return s, false
	}

	s.ResponseCode = b[0] & 0x7f

	switch s.ResponseCode {
	case 0x70, 0x71:
		if len(b) < 3 {
			return s, false
		}
		s.Key = b[2] & 0x0f
		if len(b) >= 14 {
			s.ASC = b[12]
			s.ASCQ = b[13]
		}
	case 0x72, 0x73:
		if len(b) < 4 {
			return s, false
		}
		s.Key = b[1] & 0x0f
		s.ASC = b[2]
		s.ASCQ = b[3]
	default:
		return Sense{}, false
	}

	return s, true
}

// Valid reports whether the sense data was decoded from a recognised format.
func (s Sense) Valid() bool {
	return s.ResponseCode >= 0x70 && s.ResponseCode <= 0x73
}

// KeyName returns the textual name of the sense key.
func (s Sense) KeyName() string {
	return senseKeyNames[s.Key&0x0f]
}

// Description returns the ASC / ASCQ description, if known.
func (s Sense) Description() string {
	if d, ok := ascDescriptions[uint16(s.ASC)<<8|uint16(s.ASCQ)]; ok {
		return d
	}

	if s.ASC >= 0x80 || s.ASCQ >= 0x80 {
		return "vendor specific"
	}

	return "unknown"
}

func (s Sense) String() string {
	return fmt.Sprintf("sense key: %s, asc/ascq: %02x/%02x (%s)", s.KeyName(), s.ASC, s.ASCQ, s.Description())
}

// Category is the coarse classification of a command result. Non-zero values match the exit
// codes used by the sg3_utils family of tools.
type Category int

const (
	CategoryClean          Category = 0
	CategoryNotReady       Category = 2
	CategoryMediumHard     Category = 3
	CategoryIllegalReq     Category = 5
	CategoryUnitAttention  Category = 6
	CategoryDataProtect    Category = 7
	CategoryInvalidOp      Category = 9
	CategoryCopyAborted    Category = 10
	CategoryAbortedCommand Category = 11
	CategoryMiscompare     Category = 14
	CategoryNoSense        Category = 20
	CategoryRecovered      Category = 21
	CategoryResConflict    Category = 24
	CategoryBusy           Category = 26
	CategoryTaskSetFull    Category = 27
	CategoryACAActive      Category = 28
	CategoryTaskAborted    Category = 29
	CategoryProtection     Category = 40
	CategoryOther          Category = 99
)

var categoryNames = map[Category]string{
	CategoryClean:          "No errors",
	CategoryNotReady:       "Not ready",
	CategoryMediumHard:     "Medium or hardware error",
	CategoryIllegalReq:     "Illegal request",
	CategoryUnitAttention:  "Unit attention",
	CategoryDataProtect:    "Data protect",
	CategoryInvalidOp:      "Illegal request, invalid opcode",
	CategoryCopyAborted:    "Copy aborted",
	CategoryAbortedCommand: "Aborted command",
	CategoryMiscompare:     "Miscompare",
	CategoryNoSense:        "No sense",
	CategoryRecovered:      "Recovered error",
	CategoryResConflict:    "Reservation conflict",
	CategoryBusy:           "Busy",
	CategoryTaskSetFull:    "Task set full",
	CategoryACAActive:      "ACA active",
	CategoryTaskAborted:    "Task aborted",
	CategoryProtection:     "Protection error",
	CategoryOther:          "Some other error",
}

func (c Category) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}

	return fmt.Sprintf("Category(%d)", int(c))
}

// senseCategory maps decoded sense data onto a result category.
func senseCategory(s Sense) Category {
	switch s.Key {
	case SENSE_KEY_NO_SENSE:
		return CategoryNoSense
	case SENSE_KEY_RECOVERED_ERROR:
		return CategoryRecovered
	case SENSE_KEY_NOT_READY:
		return CategoryNotReady
	case SENSE_KEY_MEDIUM_ERROR, SENSE_KEY_HARDWARE_ERROR, SENSE_KEY_BLANK_CHECK:
		return CategoryMediumHard
	case SENSE_KEY_ILLEGAL_REQUEST:
		if s.ASC == 0x20 && s.ASCQ == 0x00 {
			return CategoryInvalidOp
		}
		return CategoryIllegalReq
	case SENSE_KEY_UNIT_ATTENTION:
		return CategoryUnitAttention
	case SENSE_KEY_DATA_PROTECT:
		return CategoryDataProtect
	case SENSE_KEY_COPY_ABORTED:
		return CategoryCopyAborted
	case SENSE_KEY_ABORTED_COMMAND:
		// Logical block guard / application / reference tag check failures
		if s.ASC == 0x10 {
			return CategoryProtection
		}
		return CategoryAbortedCommand
	case SENSE_KEY_MISCOMPARE:
		return CategoryMiscompare
	}

	return CategoryOther
}

// statusCategory maps a SCSI status byte without usable sense data onto a result category.
func statusCategory(status uint8) Category {
	switch status {
	case SAM_STAT_GOOD, SAM_STAT_CONDITION_MET:
		return CategoryClean
	case SAM_STAT_BUSY:
		return CategoryBusy
	case SAM_STAT_RESERVATION_CONFLICT:
		return CategoryResConflict
	case SAM_STAT_TASK_SET_FULL:
		return CategoryTaskSetFull
	case SAM_STAT_ACA_ACTIVE:
		return CategoryACAActive
	case SAM_STAT_TASK_ABORTED:
		return CategoryTaskAborted
	}

	return CategoryOther
}
