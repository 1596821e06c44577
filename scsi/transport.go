// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package scsi

import (
	"time"
)

// Transport executes a data-in SCSI command. len(buf) is the allocation length; the device writes
// at most that many bytes into buf. A non-nil error means the command could not be issued at all;
// device-level failures are reported in the returned Status and should be passed to Classify.
type Transport interface {
	Execute(cdb []byte, buf []byte, timeout time.Duration) (Status, error)
}

// Device is a Transport with an open / close lifecycle.
type Device interface {
	Transport
	Open() error
	Close() error
}
