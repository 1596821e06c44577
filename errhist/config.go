// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package errhist

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/dswarbrick/readbuf/scsi"
)

const (
	// Size of the buffer used to fetch the error history directory
	DIR_BUFFER_LEN = 2088

	// Largest chunk read from a history buffer in a single command
	CHUNK_LEN = 256 * 1024

	DIR_FILENAME          = "err_directory.dat"
	HIST_FILENAME_POSTFIX = "err_history.dat"
)

// Config controls an extraction run. It may be loaded from a YAML file, with zero-valued fields
// falling back to DefaultConfig.
type Config struct {
	OutputDir       string        `yaml:"output_dir"`
	DirectoryFile   string        `yaml:"directory_file"`
	HistorySuffix   string        `yaml:"history_suffix"`
	DirectoryLength int           `yaml:"directory_length"`
	ChunkSize       int           `yaml:"chunk_size"`
	Timeout         time.Duration `yaml:"timeout"`
	LongCDB         bool          `yaml:"long_cdb"` // Use READ BUFFER(16) instead of READ BUFFER(10)
}

// DefaultConfig returns the settings used when nothing else is specified.
func DefaultConfig() Config {
	return Config{
		OutputDir:       ".",
		DirectoryFile:   DIR_FILENAME,
		HistorySuffix:   HIST_FILENAME_POSTFIX,
		DirectoryLength: DIR_BUFFER_LEN,
		ChunkSize:       CHUNK_LEN,
		Timeout:         scsi.DEFAULT_TIMEOUT,
	}
}

// LoadConfig opens a YAML-formatted config file and returns its settings on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrap(err, "cannot open config")
	}

	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.SetStrict(true)

	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "cannot parse config %s", path)
	}

	return cfg, cfg.Validate()
}

// Validate checks that the settings can be expressed in READ BUFFER commands.
func (c Config) Validate() error {
	if c.DirectoryLength < DIR_HEADER_LEN || c.DirectoryLength > scsi.MAX_TRANSFER_LEN {
		return errors.Errorf("directory_length must be between %d and %d", DIR_HEADER_LEN, scsi.MAX_TRANSFER_LEN)
	}

	if c.ChunkSize < 1 || c.ChunkSize > scsi.MAX_TRANSFER_LEN {
		return errors.Errorf("chunk_size must be between 1 and %d", scsi.MAX_TRANSFER_LEN)
	}

	// The sg driver takes whole milliseconds; a bare YAML integer decodes as nanoseconds
	if c.Timeout < time.Millisecond {
		return errors.Errorf("timeout %v is below 1ms, did you forget a unit?", c.Timeout)
	}

	if c.DirectoryFile == "" || c.HistorySuffix == "" {
		return errors.New("output file names must not be empty")
	}

	return nil
}
