// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package errhist

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/dswarbrick/readbuf/scsi"
)

var (
	// ErrDirectoryUnreadable matches any failure to fetch or decode the directory.
	ErrDirectoryUnreadable = errors.New("error history directory unreadable")

	// ErrSinkFailed matches any failure to create or write an output stream.
	ErrSinkFailed = errors.New("cannot write output")
)

// Exit codes, as used by the sg3_utils family of tools
const (
	EXIT_SUCCESS      = 0
	EXIT_SYNTAX_ERROR = 1
	EXIT_FILE_ERROR   = 15
	EXIT_OS_BASE_ERR  = 50
	EXIT_OTHER        = 99
)

// DirectoryError reports why the directory could not be obtained. It is fatal to the run.
type DirectoryError struct {
	Err error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("%v: %v", ErrDirectoryUnreadable, e.Err)
}

func (e *DirectoryError) Unwrap() error { return e.Err }

func (e *DirectoryError) Is(target error) bool { return target == ErrDirectoryUnreadable }

// SinkError reports a failure to create or write a named output stream.
type SinkError struct {
	Name string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("%v %s: %v", ErrSinkFailed, e.Name, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

func (e *SinkError) Is(target error) bool { return target == ErrSinkFailed }

// EntryError records why the download of a single history buffer stopped early. It only affects
// that buffer; the run carries on with the next directory entry.
type EntryError struct {
	BufferID uint8
	Offset   uint32
	Err      error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("buffer id %d at offset %d: %v", e.BufferID, e.Offset, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// ExitCode maps a run error onto a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return EXIT_SUCCESS
	}

	var de *scsi.DeviceError
	if errors.As(err, &de) {
		return int(de.Category)
	}

	var te *scsi.TransportError
	if errors.As(err, &te) {
		if errno := te.Errno(); errno > 0 && errno < 47 {
			return EXIT_OS_BASE_ERR + int(errno)
		}
		return EXIT_OTHER
	}

	if errors.Is(err, ErrSinkFailed) {
		return EXIT_FILE_ERROR
	}

	return EXIT_OTHER
}
