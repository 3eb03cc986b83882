// Command apngdis splits an Animated PNG into standalone PNG frames.
//
// Usage:
//
//	apngdis [options] anim.png [prefix]
//
// Frames are written as <prefix><NN>.png next to the input (or in the -o
// directory), each with a <prefix><NN>.txt file holding its delay.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/mindfulpath/apngdis"
	"github.com/mindfulpath/apngdis/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `APNG Disassembler

Usage:
  apngdis [options] anim.png [prefix]

The prefix defaults to %q (or $APNGDIS_PREFIX).

Options:
`, apngdis.DefaultPrefix)
}

// run executes the command and returns the process exit code.
func run(args []string, stderr io.Writer) int {
	cfg := config.Load()

	fs := flag.NewFlagSet("apngdis", flag.ContinueOnError)
	fs.SetOutput(stderr)
	workers := fs.Int("workers", cfg.Workers, "compression workers (0=GOMAXPROCS, 1=single-threaded)")
	level := fs.Int("level", cfg.Level, "zlib compression level -1..9 (-1=default)")
	blockSize := fs.Int("block", cfg.BlockSize, "parallel compression block size in bytes")
	verbose := fs.Bool("v", false, "verbose (debug) logging")
	outDir := fs.String("o", "", "output directory (default: the input file's directory)")
	fs.Usage = func() {
		printUsage(stderr)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		return 1
	}
	input := fs.Arg(0)
	prefix := cfg.Prefix
	if fs.NArg() == 2 {
		prefix = fs.Arg(1)
	}

	log := logrus.New()
	log.SetOutput(stderr)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	log.SetLevel(cfg.LogLevel)
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	opts := &apngdis.Options{
		Prefix:    prefix,
		Level:     *level,
		Workers:   *workers,
		BlockSize: *blockSize,
		Logger:    log,
	}
	if *outDir != "" {
		s, err := apngdis.NewLocalStorage(*outDir)
		if err != nil {
			log.WithField("output", *outDir).Errorf("apngdis: %v", err)
			return 1
		}
		opts.Storage = s
	}

	log.WithFields(logrus.Fields{
		"input":   input,
		"prefix":  prefix,
		"workers": *workers,
		"level":   *level,
	}).Debug("starting")

	if _, err := apngdis.DisassembleFile(input, opts); err != nil {
		log.WithField("input", input).Errorf("apngdis: %v", err)
		return 1
	}
	return 0
}
