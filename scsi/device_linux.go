// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

//go:build linux

// SCSI generic IO functions.

package scsi

import (
	"runtime"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/dswarbrick/readbuf/ioctl"
)

// SCSI generic IO, see <scsi/sg.h>
type sgIoHdr struct {
	interface_id    int32
	dxfer_direction int32
	cmd_len         uint8
	mx_sb_len       uint8
	iovec_count     uint16
	dxfer_len       uint32
	dxferp          uintptr
	cmdp            uintptr // Command pointer
	sbp             uintptr // Sense buf pointer
	timeout         uint32  // Milliseconds
	flags           uint32
	pack_id         int32
	usr_ptr         uintptr
	status          uint8
	masked_status   uint8
	msg_status      uint8
	sb_len_wr       uint8
	host_status     uint16
	driver_status   uint16
	resid           int32
	duration        uint32
	info            uint32
}

// SCSIDevice is a SCSI generic (sg) or block device node accessed via the SG_IO ioctl.
type SCSIDevice struct {
	Name string
	fd   int
}

// NewSCSIDevice returns an unopened SCSIDevice for the named device node.
func NewSCSIDevice(name string) *SCSIDevice {
	return &SCSIDevice{Name: name, fd: -1}
}

// Open opens the device node and checks that it speaks the SG_IO (sg v3) interface.
func (d *SCSIDevice) Open() error {
	fd, err := unix.Open(d.Name, unix.O_RDWR|unix.O_NONBLOCK, 0600)
	if err != nil {
		return errors.Wrapf(err, "cannot open %s", d.Name)
	}

	var version int32
	if err := ioctl.Ioctl(uintptr(fd), SG_GET_VERSION_NUM, uintptr(unsafe.Pointer(&version))); err != nil || version < SG_MIN_VERSION {
		unix.Close(fd)
		return errors.Errorf("%s does not appear to be an sg device", d.Name)
	}

	d.fd = fd

	return nil
}

// Close closes the device node. It is safe to call on a device that is not open.
func (d *SCSIDevice) Close() error {
	if d.fd < 0 {
		return nil
	}

	err := unix.Close(d.fd)
	d.fd = -1

	return errors.Wrapf(err, "cannot close %s", d.Name)
}

// Execute issues a data-in command via SG_IO.
func (d *SCSIDevice) Execute(cdb []byte, buf []byte, timeout time.Duration) (Status, error) {
	var st Status

	if d.fd < 0 {
		return st, errors.Wrap(unix.EBADF, "device not open")
	}

	if len(cdb) == 0 || len(cdb) > len(CDB16{}) {
		return st, errors.Wrapf(ErrEncodingConstraint, "invalid CDB length %d", len(cdb))
	}

	if len(buf) > MAX_TRANSFER_LEN {
		return st, errors.Wrapf(ErrEncodingConstraint, "transfer length %d exceeds %d", len(buf), MAX_TRANSFER_LEN)
	}

	senseBuf := make([]byte, SENSE_BUF_LEN)

	hdr := sgIoHdr{
		interface_id:    'S',
		dxfer_direction: SG_DXFER_NONE,
		cmd_len:         uint8(len(cdb)),
		mx_sb_len:       uint8(len(senseBuf)),
		cmdp:            uintptr(unsafe.Pointer(&cdb[0])),
		sbp:             uintptr(unsafe.Pointer(&senseBuf[0])),
		timeout:         uint32(timeout / time.Millisecond),
	}

	if len(buf) > 0 {
		hdr.dxfer_direction = SG_DXFER_FROM_DEV
		hdr.dxfer_len = uint32(len(buf))
		hdr.dxferp = uintptr(unsafe.Pointer(&buf[0]))
	}

	err := ioctl.Ioctl(uintptr(d.fd), SG_IO, uintptr(unsafe.Pointer(&hdr)))

	// The kernel only sees the buffers via uintptrs in hdr
	runtime.KeepAlive(cdb)
	runtime.KeepAlive(buf)
	runtime.KeepAlive(senseBuf)

	if err != nil {
		return st, errors.Wrap(err, "SG_IO ioctl")
	}

	st = Status{
		ScsiStatus:   hdr.status,
		HostStatus:   hdr.host_status,
		DriverStatus: hdr.driver_status,
		Info:         hdr.info,
		Resid:        hdr.resid,
		Duration:     time.Duration(hdr.duration) * time.Millisecond,
		Sense:        senseBuf[:hdr.sb_len_wr],
	}

	return st, nil
}
