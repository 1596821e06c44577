// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package errhist

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/dswarbrick/readbuf/scsi"
)

// buildDirectory returns a size byte directory buffer listing the given entries.
func buildDirectory(size int, entries ...DirectoryEntry) []byte {
	b := make([]byte, size)
	copy(b, "VENDOR01")
	b[8] = 1
	binary.BigEndian.PutUint16(b[30:], uint16(len(entries)*DIR_ENTRY_LEN))

	for i, e := range entries {
		p := b[DIR_HEADER_LEN+i*DIR_ENTRY_LEN:]
		p[0] = e.BufferID
		binary.BigEndian.PutUint32(p[4:], e.MaxAvailableLength)
	}

	return b
}

// pattern returns n bytes of recognisable data.
func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i*7)
	}
	return b
}

type memFile struct {
	bytes.Buffer
	closed  bool
	failAt  int // Fail writes once this many bytes have been written, if non-zero
	failErr error
}

func (f *memFile) Write(p []byte) (int, error) {
	if f.failAt > 0 && f.Len()+len(p) > f.failAt {
		return 0, f.failErr
	}
	return f.Buffer.Write(p)
}

func (f *memFile) Close() error {
	f.closed = true
	return nil
}

// memSinks is an in-memory SinkFactory.
type memSinks struct {
	files      map[string]*memFile
	failCreate map[string]bool
	failWrite  map[string]int
}

func newMemSinks() *memSinks {
	return &memSinks{
		files:      make(map[string]*memFile),
		failCreate: make(map[string]bool),
		failWrite:  make(map[string]int),
	}
}

func (s *memSinks) Create(name string) (io.WriteCloser, error) {
	if s.failCreate[name] {
		return nil, errors.Errorf("cannot create %s", name)
	}

	f := &memFile{failAt: s.failWrite[name], failErr: errors.New("disk full")}
	s.files[name] = f

	return f, nil
}

func (s *memSinks) names() []string {
	var names []string
	for n := range s.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// fakeDevice serves READ BUFFER commands from in-memory buffers.
type fakeDevice struct {
	buffers  map[uint8][]byte
	short    int // Bytes withheld from every transfer
	requests []scsi.ReadBufferRequest
	cdbLens  []int

	// If set, called before each command; returning ok overrides the normal response.
	override func(call int, req scsi.ReadBufferRequest) (st scsi.Status, ok bool, err error)
}

func (d *fakeDevice) Execute(cdb []byte, buf []byte, _ time.Duration) (scsi.Status, error) {
	req, err := scsi.DecodeReadBuffer(cdb)
	if err != nil {
		return scsi.Status{}, err
	}

	if int(req.Length) != len(buf) {
		return scsi.Status{}, errors.Errorf("allocation length %d does not match buffer %d", req.Length, len(buf))
	}

	d.requests = append(d.requests, req)
	d.cdbLens = append(d.cdbLens, len(cdb))

	if d.override != nil {
		if st, ok, err := d.override(len(d.requests)-1, req); ok {
			return st, err
		}
	}

	var n int
	data := d.buffers[req.BufferID]
	if req.Offset < uint64(len(data)) {
		n = copy(buf, data[req.Offset:])
	}

	if n > d.short {
		n -= d.short
	} else {
		n = 0
	}

	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}

	return scsi.Status{Resid: int32(len(buf) - n)}, nil
}

// checkCondition returns a CHECK CONDITION status with fixed format sense data.
func checkCondition(key, asc, ascq byte) scsi.Status {
	sense := make([]byte, 18)
	sense[0] = 0x70
	sense[2] = key
	sense[7] = 10
	sense[12] = asc
	sense[13] = ascq

	return scsi.Status{ScsiStatus: scsi.SAM_STAT_CHECK_CONDITION, DriverStatus: scsi.DRIVER_SENSE, Sense: sense}
}
