// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package errhist retrieves the UFS / SPC-4 error history from a device using READ BUFFER mode
// 0x1c. The directory at buffer id 0 lists the available history buffers, each of which is then
// read in chunks and saved to its own output stream.
package errhist

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/status-im/keycard-go/hexutils"

	"github.com/dswarbrick/readbuf/scsi"
	"github.com/dswarbrick/readbuf/utils"
)

// Extractor drives an error history extraction over a Transport.
type Extractor struct {
	Transport scsi.Transport
	Sinks     SinkFactory
	Config    Config
	Log       logrus.FieldLogger
}

// EntryResult describes the download of one history buffer.
type EntryResult struct {
	BufferID     uint8
	Length       uint32 // Length advertised by the directory
	Requests     int    // READ BUFFER commands issued
	BytesWritten int64
	Err          error // *EntryError if the download stopped early
}

// Report summarises a completed run.
type Report struct {
	Directory      *Directory
	DirectoryBytes int // Bytes of directory data actually transferred
	Entries        []EntryResult
}

// Failed returns the number of history buffers whose download stopped early.
func (r *Report) Failed() int {
	var n int

	for _, e := range r.Entries {
		if e.Err != nil {
			n++
		}
	}

	return n
}

// NewExtractor returns an Extractor. A nil log uses the logrus standard logger.
func NewExtractor(t scsi.Transport, sinks SinkFactory, cfg Config, log logrus.FieldLogger) *Extractor {
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Extractor{Transport: t, Sinks: sinks, Config: cfg, Log: log}
}

// session holds the state of a single run.
type session struct {
	x     *Extractor
	log   logrus.FieldLogger
	dir   *Directory
	chunk []byte
}

// Run fetches the directory and then every eligible history buffer it lists. An error is only
// returned if the directory itself cannot be fetched, saved or decoded; failures of individual
// history buffers are logged and recorded in the Report.
func (x *Extractor) Run() (*Report, error) {
	if err := x.Config.Validate(); err != nil {
		return nil, err
	}

	log := x.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &session{x: x, log: log}

	n, err := s.fetchDirectory()
	if err != nil {
		return nil, err
	}

	report := &Report{Directory: s.dir, DirectoryBytes: n}

	s.log.WithFields(logrus.Fields{
		"vendor":  string(s.dir.Header.VendorID[:]),
		"version": s.dir.Header.Version,
		"entries": len(s.dir.Entries),
	}).Infof("Directory length : %d", s.dir.Header.DirectoryLength)

	s.chunk = make([]byte, x.Config.ChunkSize)

	for _, e := range s.dir.Entries {
		if !e.Eligible() {
			s.log.WithFields(logrus.Fields{
				"buffer_id": e.BufferID,
				"length":    e.MaxAvailableLength,
			}).Debug("Invalid buffer id or length, skipping")
		}
	}

	for _, e := range s.dir.EligibleEntries() {
		report.Entries = append(report.Entries, s.download(e))
	}

	if failed := report.Failed(); failed > 0 {
		s.log.Warnf("%d of %d error history buffers could not be read completely", failed, len(report.Entries))
	}

	return report, nil
}

// fetchDirectory reads, saves and decodes the directory, returning the number of bytes read.
func (s *session) fetchDirectory() (int, error) {
	cfg := s.x.Config
	buf := make([]byte, cfg.DirectoryLength)

	s.log.Info("Reading header for error history")

	n, err := s.readBuffer(0, 0, buf)
	if err != nil {
		s.log.WithError(err).Error("Read history directory failed")
		return 0, &DirectoryError{Err: err}
	}

	// Save the raw directory before decoding it, so that it is available even if decoding fails
	if err := s.save(cfg.DirectoryFile, buf[:n]); err != nil {
		s.log.WithError(err).Error("Cannot save error history directory")
		return n, err
	}

	s.log.Infof("Saved error history directory to %s", cfg.DirectoryFile)

	dir, err := ParseDirectory(buf[:n])
	if err != nil {
		return n, &DirectoryError{Err: err}
	}

	if dir.Truncated {
		s.log.Warnf("Directory declares %d bytes of entries but only %d bytes were read",
			dir.Header.DirectoryLength, n-DIR_HEADER_LEN)
	}

	s.dir = dir

	return n, nil
}

func (s *session) save(name string, b []byte) error {
	w, err := s.x.Sinks.Create(name)
	if err != nil {
		return &SinkError{Name: name, Err: err}
	}

	if _, err := w.Write(b); err != nil {
		w.Close()
		return &SinkError{Name: name, Err: err}
	}

	if err := w.Close(); err != nil {
		return &SinkError{Name: name, Err: err}
	}

	return nil
}

// download reads one history buffer in chunks, stopping at the first failed command.
func (s *session) download(e DirectoryEntry) (res EntryResult) {
	res = EntryResult{BufferID: e.BufferID, Length: e.MaxAvailableLength}

	log := s.log.WithField("buffer_id", e.BufferID)
	log.Infof("UFS ERROR_BUFFER_ID : %d, max_available_length(%d)", e.BufferID, e.MaxAvailableLength)

	name := HistoryFileName(s.x.Config.HistorySuffix, e.BufferID)

	w, err := s.x.Sinks.Create(name)
	if err != nil {
		res.Err = &EntryError{BufferID: e.BufferID, Err: &SinkError{Name: name, Err: err}}
		log.WithError(err).Errorf("Open %s failed", name)
		return res
	}

	defer func() {
		if err := w.Close(); err != nil {
			log.WithError(err).Errorf("Close %s failed", name)
			if res.Err == nil {
				res.Err = &EntryError{BufferID: e.BufferID, Offset: e.MaxAvailableLength, Err: &SinkError{Name: name, Err: err}}
			}
		}
	}()

	var cursor uint32

	for cursor < e.MaxAvailableLength {
		size := e.MaxAvailableLength - cursor
		if size > uint32(len(s.chunk)) {
			size = uint32(len(s.chunk))
		}

		buf := s.chunk[:size]
		res.Requests++

		n, err := s.readBuffer(e.BufferID, cursor, buf)
		if err != nil {
			res.Err = &EntryError{BufferID: e.BufferID, Offset: cursor, Err: err}
			log.WithError(err).Errorf("Read error history buffer failed : id(%d)", e.BufferID)
			break
		}

		written, err := w.Write(buf[:n])
		res.BytesWritten += int64(written)

		if err != nil {
			res.Err = &EntryError{BufferID: e.BufferID, Offset: cursor, Err: &SinkError{Name: name, Err: err}}
			log.WithError(err).Errorf("Write %s failed", name)
			break
		}

		cursor += size
	}

	log.Infof("Saved error history buffer for id(%d) to %s (%s)", e.BufferID, name,
		utils.FormatBytes(uint64(res.BytesWritten)))

	return res
}

// readBuffer issues a single error history READ BUFFER command into buf and returns the number of
// bytes transferred. Recovered errors are treated as success.
func (s *session) readBuffer(id uint8, offset uint32, buf []byte) (int, error) {
	req := scsi.ReadBufferRequest{
		Mode:     scsi.RB_MODE_ERR_HISTORY,
		BufferID: id,
		Offset:   uint64(offset),
		Length:   uint32(len(buf)),
	}

	cdb, err := req.Encode(s.x.Config.LongCDB)
	if err != nil {
		return 0, err
	}

	log := s.log.WithFields(logrus.Fields{
		"buffer_id": id,
		"offset":    offset,
		"length":    len(buf),
	})
	log.Debugf("Read buffer(%d) cdb: %s", len(cdb), hexutils.BytesToHex(cdb))

	for i := range buf {
		buf[i] = 0
	}

	st, err := s.x.Transport.Execute(cdb, buf, s.x.Config.Timeout)
	o := scsi.Classify(st, err)

	if !o.OK() {
		log.WithField("category", int(o.Category)).Errorf("Read buffer failed: %v", o.Err)
		return 0, o.Err
	}

	if o.Result == scsi.ResultRecovered {
		log.Debugf("Read buffer: %s", o.Sense)
	}

	if o.Resid < 0 {
		log.Warnf("Transport reported negative residual %d", o.Resid)
	}

	n := o.Transferred(len(buf))
	if o.Short() {
		log.Warnf("Short transfer: got %d of %d bytes", n, len(buf))
	}

	return n, nil
}

// IsDirectoryError reports whether a run failed because the directory could not be obtained.
func IsDirectoryError(err error) bool {
	return errors.Is(err, ErrDirectoryUnreadable)
}
