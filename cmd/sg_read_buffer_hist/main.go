// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

//go:build linux

// Error history retrieval via SCSI READ BUFFER.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/dswarbrick/readbuf/errhist"
	"github.com/dswarbrick/readbuf/scsi"
)

// verbosity is a flag.Value that counts how many times -v was given.
type verbosity int

func (v *verbosity) String() string { return strconv.Itoa(int(*v)) }

func (v *verbosity) Set(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if b {
		*v++
	}
	return nil
}

func (v *verbosity) IsBoolFlag() bool { return true }

func (v verbosity) level() logrus.Level {
	switch {
	case v >= 2:
		return logrus.TraceLevel
	case v == 1:
		return logrus.DebugLevel
	}

	return logrus.InfoLevel
}

// checkCaps invokes the capget syscall to check for necessary capabilities. Note that this depends
// on the binary having the capabilities set (i.e., via the `setcap` utility), and on VFS support.
// Alternatively, if the binary is executed as root, it automatically has all capabilities set.
func checkCaps(log logrus.FieldLogger) {
	hdr := unix.CapUserHeader{Version: unix.LINUX_CAPABILITY_VERSION_3}
	var data [2]unix.CapUserData

	if err := unix.Capget(&hdr, &data[0]); err != nil {
		log.WithError(err).Warn("capget() failed")
		return
	}

	if data[0].Effective&(1<<unix.CAP_SYS_RAWIO) == 0 && data[0].Effective&(1<<unix.CAP_SYS_ADMIN) == 0 {
		log.Warn("Neither cap_sys_rawio nor cap_sys_admin are in effect. Device access will probably fail.")
	}
}

func listModes(w io.Writer, table []scsi.ReadBufferMode) {
	fmt.Fprintln(w, "The modes parameter argument can be numeric (hex or decimal)\nor symbolic:")
	for _, m := range table {
		fmt.Fprintf(w, " %2d (0x%02x)  %-16s%s\n", m.Mode, m.Mode, m.Name, m.Comment)
	}
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: %s [flags] DEVICE\n", fs.Name())
	fs.PrintDefaults()
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("sg_read_buffer_hist", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(fs) }

	var (
		verbose verbosity
		ufsErr  = true
	)

	fs.BoolVar(&ufsErr, "U", true, "Read the UFS error history (default)")
	fs.BoolVar(&ufsErr, "ufs_err", true, "Read the UFS error history (default)")
	long := fs.Bool("long", false, "Use READ BUFFER(16) instead of READ BUFFER(10)")
	outDir := fs.String("outdir", "", "Directory in which to save the error history files")
	timeout := fs.Duration("timeout", 0, "Command timeout")
	chunk := fs.Int("chunk", 0, "Largest number of bytes to read in one command")
	configFile := fs.String("config", "", "YAML config file")
	modes := fs.Bool("list-modes", false, "List READ BUFFER modes and exit")
	fs.Var(&verbose, "v", "Increase verbosity (may be repeated)")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return errhist.EXIT_SUCCESS
		}
		return errhist.EXIT_SYNTAX_ERROR
	}

	if *modes {
		listModes(stderr, scsi.ReadBufferModes)
		return errhist.EXIT_SUCCESS
	}

	log := logrus.New()
	log.SetOutput(stderr)
	log.SetLevel(verbose.level())
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	if fs.NArg() == 0 {
		log.Error("Missing device name!")
		usage(fs)
		return errhist.EXIT_SYNTAX_ERROR
	}

	if fs.NArg() > 1 {
		for _, a := range fs.Args()[1:] {
			log.Errorf("Unexpected extra argument: %s", a)
		}
		usage(fs)
		return errhist.EXIT_SYNTAX_ERROR
	}

	if !ufsErr {
		log.Info("Nothing to do")
		return errhist.EXIT_SUCCESS
	}

	log.Debugf("Built with %s on %s (%s)", runtime.Version(), runtime.GOOS, runtime.GOARCH)

	cfg := errhist.DefaultConfig()
	if *configFile != "" {
		var err error
		if cfg, err = errhist.LoadConfig(*configFile); err != nil {
			log.Error(err)
			return errhist.EXIT_SYNTAX_ERROR
		}
	}

	// Flags given on the command line override the config file
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "long":
			cfg.LongCDB = *long
		case "outdir":
			cfg.OutputDir = *outDir
		case "timeout":
			cfg.Timeout = *timeout
		case "chunk":
			cfg.ChunkSize = *chunk
		}
	})

	if err := cfg.Validate(); err != nil {
		log.Error(err)
		return errhist.EXIT_SYNTAX_ERROR
	}

	checkCaps(log)

	device := scsi.NewSCSIDevice(fs.Arg(0))
	if err := device.Open(); err != nil {
		log.Error(err)
		return errhist.ExitCode(&scsi.TransportError{Err: err})
	}

	ret := extract(device, cfg, log)

	if err := device.Close(); err != nil {
		log.Error(err)
		if ret == errhist.EXIT_SUCCESS {
			ret = errhist.ExitCode(&scsi.TransportError{Err: err})
		}
	}

	return ret
}

func extract(d scsi.Device, cfg errhist.Config, log *logrus.Logger) int {
	t0 := time.Now()

	x := errhist.NewExtractor(d, errhist.DirSinks{Dir: cfg.OutputDir}, cfg, log)

	report, err := x.Run()
	if err != nil {
		log.Error(err)
		return errhist.ExitCode(err)
	}

	log.WithFields(logrus.Fields{
		"buffers": len(report.Entries),
		"failed":  report.Failed(),
		"elapsed": time.Since(t0).Round(time.Millisecond),
	}).Info("Error history retrieval complete")

	return errhist.EXIT_SUCCESS
}
