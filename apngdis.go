package apngdis

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/mindfulpath/apngdis/animation"
	"github.com/mindfulpath/apngdis/internal/compress"
	"github.com/mindfulpath/apngdis/internal/container"
	"github.com/mindfulpath/apngdis/internal/pool"
	"github.com/mindfulpath/apngdis/mux"
)

// DefaultPrefix is the output file name prefix used when none is given.
const DefaultPrefix = "apngframe"

// Disassembler errors. Failures from the decoder and the chunk layer are
// returned wrapped and match animation and mux sentinels.
var (
	ErrNoStorage      = errors.New("apngdis: no output storage")
	ErrInvalidOptions = errors.New("apngdis: invalid options")
)

// Options configures a disassembly.
type Options struct {
	// Prefix starts every output file name. Empty selects DefaultPrefix.
	Prefix string

	// Storage receives the output files. DisassembleFile defaults to the
	// input file's directory; Disassemble requires it.
	Storage Storage

	// Level is the zlib compression level of the outputs, -1 (default)
	// through 9. 0 stores the image data uncompressed.
	Level int

	// Workers sizes the shared compression pool. 0 selects GOMAXPROCS and
	// 1 compresses on the calling goroutine.
	Workers int

	// BlockSize is the input size of one parallel compression block. Zero
	// selects 128 KiB.
	BlockSize int

	// Logger receives progress messages. Nil discards them.
	Logger logrus.FieldLogger
}

// DefaultOptions returns options with the default prefix and compression
// level and no storage.
func DefaultOptions() *Options {
	return &Options{
		Prefix: DefaultPrefix,
		Level:  compress.DefaultCompression,
	}
}

func validateOptions(opts *Options) error {
	if opts.Level < compress.DefaultCompression || opts.Level > compress.BestCompression {
		return fmt.Errorf("%w: Level %d (must be -1 to 9)", ErrInvalidOptions, opts.Level)
	}
	if opts.Workers < 0 {
		return fmt.Errorf("%w: Workers %d (must be >= 0)", ErrInvalidOptions, opts.Workers)
	}
	if opts.BlockSize < 0 {
		return fmt.Errorf("%w: BlockSize %d (must be >= 0)", ErrInvalidOptions, opts.BlockSize)
	}
	return nil
}

// FrameResult describes one output frame.
type FrameResult struct {
	// Number is the 1-based output number used in the file names.
	Number int

	// Index is the frame index in the animation; animation.StillFrame for
	// the still image.
	Index int

	// PNG is the name of the image file.
	PNG string

	// Timing is the name of the delay side file, empty when the frame had
	// no frame control chunk.
	Timing string

	// Control is the frame control chunk, nil for the still image.
	Control *animation.FrameControl
}

// Result lists the frames written, in order.
type Result struct {
	Frames []FrameResult
}

// minDigits is the narrowest frame number in output names.
const minDigits = 2

// FrameName returns the base name of output n for an animation of total
// frames: prefix followed by n zero-padded to the number of decimal digits
// in total, and to at least two digits. n may exceed total by one when a
// still image precedes the animation.
func FrameName(prefix string, n, total int) string {
	digits := len(strconv.Itoa(total))
	if digits < minDigits {
		digits = minDigits
	}
	return fmt.Sprintf("%s%0*d", prefix, digits, n)
}

// DisassembleFile splits the APNG at path. Unless opts sets a Storage,
// outputs are written next to the input file.
func DisassembleFile(path string, opts *Options) (*Result, error) {
	o := DefaultOptions()
	if opts != nil {
		o = new(Options)
		*o = *opts
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", mux.ErrIO, err)
	}
	if o.Storage == nil {
		s, err := NewLocalStorage(filepath.Dir(path))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %w", mux.ErrIO, err)
		}
		o.Storage = s
	}
	// The decoder closes f.
	return Disassemble(f, o)
}

// Disassemble splits the APNG read from r into standalone PNG files and
// delay side files in opts.Storage. If r is an io.Closer it is closed.
//
// On failure the returned Result lists the frames completed before the
// error; their files are left in place.
func Disassemble(r io.Reader, opts *Options) (res *Result, err error) {
	o := DefaultOptions()
	if opts != nil {
		o = opts
	}
	if err := validateOptions(o); err != nil {
		return nil, err
	}
	if o.Storage == nil {
		return nil, ErrNoStorage
	}
	prefix := o.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	log := o.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	d, err := animation.Open(r)
	if err != nil {
		if c, ok := r.(io.Closer); ok {
			c.Close()
		}
		return nil, fmt.Errorf("loading animation: %w", err)
	}
	defer func() {
		if cerr := d.Close(); cerr != nil {
			err = multierror.Append(err, fmt.Errorf("%w: closing input: %w", mux.ErrIO, cerr))
		}
	}()

	var exec *pool.Executor
	if o.Workers != 1 {
		pool.SetSharedWorkers(o.Workers)
		exec = pool.Acquire()
		defer pool.Release()
	}
	fw := &frameWriter{
		dec:     d,
		storage: o.Storage,
		muxOpts: mux.MuxOptions{Level: o.Level, BlockSize: o.BlockSize, Executor: exec},
	}

	first := 0
	if d.HasStillImage() {
		first = animation.StillFrame
	}
	// Names are padded by the acTL frame count, which excludes the still
	// image.
	total := d.NumFrames() - first
	res = &Result{}
	for i := first; i < d.NumFrames(); i++ {
		n := i - first + 1
		fc, err := d.AdvanceToFrame(i)
		if err != nil {
			return res, fmt.Errorf("frame %d: %w", n, err)
		}
		info, _ := d.FrameInfo()
		log.WithFields(logrus.Fields{
			"frame":  n,
			"of":     total,
			"index":  i,
			"width":  info.Width,
			"height": info.Height,
		}).Info("extracting frame")

		fr := FrameResult{Number: n, Index: i, Control: fc}
		name := FrameName(prefix, n, d.NumFrames())
		fr.PNG = name + ".png"
		if err := fw.writeImage(fr.PNG, info); err != nil {
			return res, fmt.Errorf("frame %d: %w", n, err)
		}
		if fc != nil {
			fr.Timing = name + ".txt"
			if err := fw.writeTiming(fr.Timing, fc); err != nil {
				return res, fmt.Errorf("frame %d: %w", n, err)
			}
		}
		res.Frames = append(res.Frames, fr)
	}
	log.WithField("frames", len(res.Frames)).Info("all done")
	return res, nil
}

// frameWriter writes the outputs of the positioned frame.
type frameWriter struct {
	dec     *animation.Decoder
	storage Storage
	muxOpts mux.MuxOptions
	buf     bytes.Buffer
}

// writeImage encodes the frame into memory and stores it only once every
// row decoded, so a corrupt frame leaves no image file behind.
func (fw *frameWriter) writeImage(name string, info container.ImageInfo) error {
	fw.buf.Reset()
	m, err := mux.NewMuxer(&fw.buf, info, &fw.muxOpts)
	if err != nil {
		return err
	}
	if err := m.CopyChunks(fw.dec.Chunks(), mux.ShouldCopy); err != nil {
		return err
	}
	for y := 0; ; y++ {
		row, err := fw.dec.ReadRow()
		if err == io.EOF {
			break
		}
		if err == nil {
			err = m.WriteRow(row, y)
		}
		if err != nil {
			m.Close()
			return err
		}
	}
	if err := m.Close(); err != nil {
		return err
	}
	return fw.store(name, fw.buf.Bytes())
}

// writeTiming writes the delay side file.
func (fw *frameWriter) writeTiming(name string, fc *animation.FrameControl) error {
	return fw.store(name, []byte(fmt.Sprintf("delay=%d/%d", fc.DelayNum, fc.DelayDen)))
}

func (fw *frameWriter) store(name string, data []byte) error {
	w, err := fw.storage.Create(name)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %w", mux.ErrIO, name, err)
	}
	var result *multierror.Error
	if _, err := w.Write(data); err != nil {
		result = multierror.Append(result, fmt.Errorf("%w: writing %s: %w", mux.ErrIO, name, err))
	}
	if err := w.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("%w: closing %s: %w", mux.ErrIO, name, err))
	}
	return result.ErrorOrNil()
}
