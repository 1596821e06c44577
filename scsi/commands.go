// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// SCSI command definitions.

package scsi

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	// SCSI commands used by this package
	SCSI_READ_BUFFER_10 = 0x3c
	SCSI_READ_BUFFER_16 = 0x9b

	// Largest value representable in a 3-byte CDB field
	MAX_24BIT = 0xffffff

	// Largest response we are prepared to receive in a single SG_IO call
	MAX_TRANSFER_LEN = 256 * 1024
)

// READ BUFFER mode field values (SPC-5)
const (
	RB_MODE_HEADER_DATA       = 0x00
	RB_MODE_VENDOR            = 0x01
	RB_MODE_DATA              = 0x02
	RB_MODE_DESCRIPTOR        = 0x03
	RB_MODE_ECHO_BUFFER       = 0x0a
	RB_MODE_ECHO_BDESC        = 0x0b
	RB_MODE_READ_MICROCODE_ST = 0x0f
	RB_MODE_EN_EX_ECHO        = 0x1a
	RB_MODE_ERR_HISTORY       = 0x1c
)

// SCSI CDB types
type CDB10 [10]byte
type CDB16 [16]byte

// ReadBufferMode describes one of the READ BUFFER mode field values.
type ReadBufferMode struct {
	Name    string
	Mode    uint8
	Comment string
}

// ReadBufferModes is the table of READ BUFFER modes known to this package, in mode order.
var ReadBufferModes = []ReadBufferMode{
	{"hd", RB_MODE_HEADER_DATA, "combined header and data"},
	{"vendor", RB_MODE_VENDOR, "vendor specific"},
	{"data", RB_MODE_DATA, "data"},
	{"desc", RB_MODE_DESCRIPTOR, "descriptor"},
	{"echo", RB_MODE_ECHO_BUFFER, "read data from echo buffer (spc-2)"},
	{"echo_desc", RB_MODE_ECHO_BDESC, "echo buffer descriptor (spc-2)"},
	{"rd_microc_st", RB_MODE_READ_MICROCODE_ST, "read microcode status (spc-5)"},
	{"en_ex", RB_MODE_EN_EX_ECHO, "enable expander communications protocol and echo buffer (spc-3)"},
	{"err_hist", RB_MODE_ERR_HISTORY, "error history (spc-4)"},
}

// LookupMode resolves a mode given either by its symbolic name or as a number (decimal, or hex
// with a 0x prefix) against the supplied table. Numeric modes need not appear in the table, but
// must fit the 5-bit mode field.
func LookupMode(table []ReadBufferMode, s string) (ReadBufferMode, error) {
	for _, m := range table {
		if strings.EqualFold(m.Name, s) {
			return m, nil
		}
	}

	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return ReadBufferMode{}, errors.Errorf("unknown READ BUFFER mode %q", s)
	}

	if n > 0x1f {
		return ReadBufferMode{}, errors.Wrapf(ErrEncodingConstraint, "mode %#x exceeds 5 bits", n)
	}

	for _, m := range table {
		if uint64(m.Mode) == n {
			return m, nil
		}
	}

	return ReadBufferMode{Mode: uint8(n)}, nil
}
