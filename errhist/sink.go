// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package errhist

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// SinkFactory creates the named output streams that downloaded buffers are written to.
type SinkFactory interface {
	Create(name string) (io.WriteCloser, error)
}

// DirSinks writes each output stream to a file in Dir, replacing any previous contents.
type DirSinks struct {
	Dir string
}

func (s DirSinks) Create(name string) (io.WriteCloser, error) {
	f, err := os.OpenFile(filepath.Join(s.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}

	return f, nil
}

// HistoryFileName returns the output name for the given history buffer, e.g. "16_err_history.dat".
func HistoryFileName(suffix string, bufferID uint8) string {
	return fmt.Sprintf("%d_%s", bufferID, suffix)
}
