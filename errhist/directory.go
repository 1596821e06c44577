// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package errhist

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	// Size of the error history directory header
	DIR_HEADER_LEN = 32

	// Size of each directory entry
	DIR_ENTRY_LEN = 8

	// Buffer ids that may hold error history data
	BUFFER_ID_MIN = 0x10
	BUFFER_ID_MAX = 0xef

	// Largest buffer length a directory entry may advertise
	BUFFER_LEN_MAX = 0xffffff
)

// ErrShortDirectory is returned when the directory buffer is too small to hold a header.
var ErrShortDirectory = errors.New("error history directory shorter than header")

// DirectoryHeader is the fixed header at the start of the error history directory.
type DirectoryHeader struct {
	VendorID        [8]byte
	Version         uint8
	Reserved        [21]byte
	DirectoryLength uint16 // Length in bytes of the entries that follow
}

// DirectoryEntry describes one error history buffer.
type DirectoryEntry struct {
	BufferID           uint8
	Reserved           [3]byte
	MaxAvailableLength uint32
}

// Eligible reports whether the entry names a buffer that should be downloaded.
func (e DirectoryEntry) Eligible() bool {
	return e.BufferID >= BUFFER_ID_MIN && e.BufferID <= BUFFER_ID_MAX &&
		e.MaxAvailableLength > 0 && e.MaxAvailableLength <= BUFFER_LEN_MAX
}

// Directory is the parsed error history directory.
type Directory struct {
	Header  DirectoryHeader
	Entries []DirectoryEntry

	// Set if the buffer ended before DirectoryLength bytes of entries could be read
	Truncated bool
}

// EligibleEntries returns the entries that should be downloaded, in directory order.
func (d *Directory) EligibleEntries() []DirectoryEntry {
	var entries []DirectoryEntry

	for _, e := range d.Entries {
		if e.Eligible() {
			entries = append(entries, e)
		}
	}

	return entries
}

// ParseDirectory decodes the error history directory from the first buffer read from the device.
// A directory length that is not a multiple of the entry size has its remainder ignored.
func ParseDirectory(b []byte) (*Directory, error) {
	if len(b) < DIR_HEADER_LEN {
		return nil, errors.Wrapf(ErrShortDirectory, "got %d bytes", len(b))
	}

	d := &Directory{}
	copy(d.Header.VendorID[:], b[0:8])
	d.Header.Version = b[8]
	copy(d.Header.Reserved[:], b[9:30])
	d.Header.DirectoryLength = binary.BigEndian.Uint16(b[30:32])

	count := int(d.Header.DirectoryLength) / DIR_ENTRY_LEN
	avail := (len(b) - DIR_HEADER_LEN) / DIR_ENTRY_LEN

	if count > avail {
		count = avail
		d.Truncated = true
	}

	d.Entries = make([]DirectoryEntry, count)

	for i := range d.Entries {
		p := b[DIR_HEADER_LEN+i*DIR_ENTRY_LEN:]
		d.Entries[i].BufferID = p[0]
		copy(d.Entries[i].Reserved[:], p[1:4])
		d.Entries[i].MaxAvailableLength = binary.BigEndian.Uint32(p[4:8])
	}

	return d, nil
}
