// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// READ BUFFER(10) and READ BUFFER(16) command encoding.

package scsi

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrEncodingConstraint is returned when a request field does not fit the CDB it is being
// encoded into. It indicates a programming error in the caller rather than a device fault.
var ErrEncodingConstraint = errors.New("value does not fit CDB field")

// ReadBufferRequest holds the parameters of a single READ BUFFER command.
type ReadBufferRequest struct {
	Mode         uint8 // 5 bits
	ModeSpecific uint8 // 3 bits
	BufferID     uint8
	Offset       uint64
	Length       uint32 // Allocation length, 24 bits
}

func (r ReadBufferRequest) validate() error {
	if r.Mode > 0x1f {
		return errors.Wrapf(ErrEncodingConstraint, "mode %#x exceeds 5 bits", r.Mode)
	}

	if r.ModeSpecific > 0x07 {
		return errors.Wrapf(ErrEncodingConstraint, "mode specific %#x exceeds 3 bits", r.ModeSpecific)
	}

	if r.Length > MAX_24BIT {
		return errors.Wrapf(ErrEncodingConstraint, "allocation length %d exceeds 24 bits", r.Length)
	}

	return nil
}

func (r ReadBufferRequest) modeByte() byte {
	return r.Mode&0x1f | (r.ModeSpecific&0x07)<<5
}

// CDB10 encodes the request as a READ BUFFER(10) command. The buffer offset is limited to 24 bits.
func (r ReadBufferRequest) CDB10() (CDB10, error) {
	var cdb CDB10

	if err := r.validate(); err != nil {
		return cdb, err
	}

	if r.Offset > MAX_24BIT {
		return cdb, errors.Wrapf(ErrEncodingConstraint, "buffer offset %#x exceeds 24 bits", r.Offset)
	}

	cdb[0] = SCSI_READ_BUFFER_10
	cdb[1] = r.modeByte()
	cdb[2] = r.BufferID
	putUint24(cdb[3:], uint32(r.Offset))
	putUint24(cdb[6:], r.Length)

	return cdb, nil
}

// CDB16 encodes the request as a READ BUFFER(16) command, which carries a 64-bit buffer offset.
func (r ReadBufferRequest) CDB16() (CDB16, error) {
	var cdb CDB16

	if err := r.validate(); err != nil {
		return cdb, err
	}

	cdb[0] = SCSI_READ_BUFFER_16
	cdb[1] = r.modeByte()
	binary.BigEndian.PutUint64(cdb[2:], r.Offset)
	putUint24(cdb[11:], r.Length)
	cdb[14] = r.BufferID

	return cdb, nil
}

// Encode returns the READ BUFFER(16) encoding if long is set, otherwise READ BUFFER(10).
func (r ReadBufferRequest) Encode(long bool) ([]byte, error) {
	if long {
		cdb, err := r.CDB16()
		return cdb[:], err
	}

	cdb, err := r.CDB10()
	return cdb[:], err
}

// DecodeReadBuffer10 extracts the request fields from a READ BUFFER(10) CDB.
func DecodeReadBuffer10(cdb CDB10) ReadBufferRequest {
	return ReadBufferRequest{
		Mode:         cdb[1] & 0x1f,
		ModeSpecific: cdb[1] >> 5,
		BufferID:     cdb[2],
		Offset:       uint64(uint24(cdb[3:])),
		Length:       uint24(cdb[6:]),
	}
}

// DecodeReadBuffer16 extracts the request fields from a READ BUFFER(16) CDB.
func DecodeReadBuffer16(cdb CDB16) ReadBufferRequest {
	return ReadBufferRequest{
		Mode:         cdb[1] & 0x1f,
		ModeSpecific: cdb[1] >> 5,
		BufferID:     cdb[14],
		Offset:       binary.BigEndian.Uint64(cdb[2:]),
		Length:       uint24(cdb[11:]),
	}
}

// DecodeReadBuffer decodes either CDB variant, selected by length and opcode.
func DecodeReadBuffer(cdb []byte) (ReadBufferRequest, error) {
	switch {
	case len(cdb) == len(CDB10{}) && cdb[0] == SCSI_READ_BUFFER_10:
		var c CDB10
		copy(c[:], cdb)
		return DecodeReadBuffer10(c), nil
	case len(cdb) == len(CDB16{}) && cdb[0] == SCSI_READ_BUFFER_16:
		var c CDB16
		copy(c[:], cdb)
		return DecodeReadBuffer16(c), nil
	}

	return ReadBufferRequest{}, errors.Errorf("not a READ BUFFER CDB (%d bytes)", len(cdb))
}

func putUint24(b []byte, v uint32) {
	_ = b[2] // bounds check hint
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func uint24(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}
