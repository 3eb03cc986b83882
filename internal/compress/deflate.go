package compress

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/adler32"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"

	"github.com/mindfulpath/apngdis/internal/pool"
)

// Compression levels, matching zlib.
const (
	DefaultCompression = zlib.DefaultCompression
	NoCompression      = zlib.NoCompression
	BestSpeed          = zlib.BestSpeed
	BestCompression    = zlib.BestCompression
)

// DefaultBlockSize is the input size of one parallel compression block.
const DefaultBlockSize = pool.Size128K

// windowSize is the deflate history each block is primed with.
const windowSize = 1 << 15

// minBlockSize keeps blocks large enough that dictionary priming pays off.
const minBlockSize = windowSize

// Writer errors.
var (
	ErrWriterClosed = errors.New("compress: write to closed writer")
	ErrInvalidLevel = errors.New("compress: invalid compression level")
)

// Options configures a Writer.
type Options struct {
	// Level is the zlib compression level (-1 for the default).
	Level int

	// BlockSize is the input size per parallel block. Zero selects
	// DefaultBlockSize.
	BlockSize int

	// Executor runs block compression. With a nil Executor, or one with a
	// single worker, the stream is compressed sequentially.
	Executor *pool.Executor
}

// Writer produces a single zlib stream. In parallel mode the input is cut
// into blocks; each block is deflated independently with the preceding 32
// KiB of input as its dictionary and ends with a sync flush, so the
// concatenation is one valid deflate stream. Output order always matches
// input order.
type Writer struct {
	w     io.Writer
	level int
	block int
	exec  *pool.Executor

	seq *zlib.Writer // sequential mode

	buf     []byte
	window  []byte
	adler   hash.Hash32
	pending []*job
	header  bool
	closed  bool
	err     error
}

type job struct {
	done  chan struct{}
	out   bytes.Buffer
	input []byte
	dict  []byte
	err   error
}

// NewWriter returns a Writer emitting a zlib stream to w.
func NewWriter(w io.Writer, opts *Options) (*Writer, error) {
	o := Options{Level: DefaultCompression}
	if opts != nil {
		o = *opts
	}
	if o.Level < zlib.HuffmanOnly || o.Level > zlib.BestCompression {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLevel, o.Level)
	}
	if o.BlockSize <= 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.BlockSize < minBlockSize {
		o.BlockSize = minBlockSize
	}

	zw := &Writer{w: w, level: o.Level, block: o.BlockSize, exec: o.Executor}
	if zw.exec == nil || zw.exec.Workers() < 2 {
		seq, err := zlib.NewWriterLevel(w, o.Level)
		if err != nil {
			return nil, err
		}
		zw.seq = seq
		zw.exec = nil
		return zw, nil
	}
	zw.adler = adler32.New()
	return zw, nil
}

// Write compresses p.
func (zw *Writer) Write(p []byte) (int, error) {
	if zw.closed {
		return 0, ErrWriterClosed
	}
	if zw.err != nil {
		return 0, zw.err
	}
	if zw.seq != nil {
		n, err := zw.seq.Write(p)
		if err != nil {
			zw.err = err
		}
		return n, err
	}

	zw.adler.Write(p)
	n := len(p)
	for len(p) > 0 {
		room := zw.block - len(zw.buf)
		if room > len(p) {
			room = len(p)
		}
		zw.buf = append(zw.buf, p[:room]...)
		p = p[room:]
		if len(zw.buf) == zw.block {
			if err := zw.submit(false); err != nil {
				return n - len(p), err
			}
		}
	}
	return n, nil
}

// Close compresses any buffered input and writes the stream trailer. It
// does not close the underlying writer.
func (zw *Writer) Close() error {
	if zw.closed {
		return zw.err
	}
	zw.closed = true
	if zw.err != nil {
		zw.drain(true)
		return zw.err
	}
	if zw.seq != nil {
		zw.err = zw.seq.Close()
		return zw.err
	}

	if err := zw.submit(true); err != nil {
		return err
	}
	if err := zw.drain(true); err != nil {
		return err
	}
	var trailer [4]byte
	binary.BigEndian.PutUint32(trailer[:], zw.adler.Sum32())
	if _, err := zw.w.Write(trailer[:]); err != nil {
		zw.err = err
	}
	return zw.err
}

// submit hands the buffered input to the executor as one block.
func (zw *Writer) submit(last bool) error {
	j := &job{
		done:  make(chan struct{}),
		input: pool.Get(len(zw.buf)),
		dict:  pool.Get(len(zw.window)),
	}
	copy(j.input, zw.buf)
	copy(j.dict, zw.window)
	zw.slideWindow(zw.buf)
	zw.buf = zw.buf[:0]

	level := zw.level
	if err := zw.exec.Submit(func() {
		defer close(j.done)
		j.err = deflateBlock(&j.out, j.input, j.dict, level, last)
	}); err != nil {
		pool.Put(j.input)
		pool.Put(j.dict)
		zw.err = err
		return err
	}
	zw.pending = append(zw.pending, j)

	// Keep the number of blocks in flight bounded.
	return zw.drain(len(zw.pending) > 2*zw.exec.Workers())
}

// slideWindow keeps the last windowSize bytes of the input seen so far.
func (zw *Writer) slideWindow(p []byte) {
	if len(p) >= windowSize {
		zw.window = append(zw.window[:0], p[len(p)-windowSize:]...)
		return
	}
	zw.window = append(zw.window, p...)
	if extra := len(zw.window) - windowSize; extra > 0 {
		zw.window = append(zw.window[:0], zw.window[extra:]...)
	}
}

// drain writes finished blocks in order. With wait set, the head block is
// waited for; once wait is requested by Close, every block is waited for.
func (zw *Writer) drain(wait bool) error {
	for len(zw.pending) > 0 {
		j := zw.pending[0]
		if wait {
			<-j.done
		} else {
			select {
			case <-j.done:
			default:
				return zw.err
			}
		}
		zw.pending = zw.pending[1:]
		pool.Put(j.input)
		pool.Put(j.dict)
		if zw.err != nil {
			continue
		}
		if j.err != nil {
			zw.err = j.err
			continue
		}
		if err := zw.writeHeader(); err != nil {
			continue
		}
		if _, err := zw.w.Write(j.out.Bytes()); err != nil {
			zw.err = err
		}
		if !zw.closed {
			wait = false
		}
	}
	return zw.err
}

// writeHeader emits the 2-byte zlib header once.
func (zw *Writer) writeHeader() error {
	if zw.header {
		return nil
	}
	zw.header = true
	var levelBits byte
	switch zw.level {
	case zlib.HuffmanOnly, zlib.NoCompression, zlib.BestSpeed:
		levelBits = 0
	case 2, 3, 4, 5:
		levelBits = 1
	case zlib.DefaultCompression, 6:
		levelBits = 2
	default:
		levelBits = 3
	}
	hdr := [2]byte{0x78, levelBits << 6}
	hdr[1] += byte(31 - binary.BigEndian.Uint16(hdr[:])%31)
	if _, err := zw.w.Write(hdr[:]); err != nil {
		zw.err = err
		return err
	}
	return nil
}

var flatePools sync.Map // level -> *sync.Pool of *flate.Writer

// deflateBlock compresses data primed with dict. Non-final blocks end with
// a sync flush so the next block starts on a byte boundary.
func deflateBlock(dst *bytes.Buffer, data, dict []byte, level int, last bool) error {
	p, _ := flatePools.LoadOrStore(level, &sync.Pool{})
	fp := p.(*sync.Pool)

	var fw *flate.Writer
	if v := fp.Get(); v != nil {
		fw = v.(*flate.Writer)
		fw.ResetDict(dst, dict)
	} else {
		var err error
		fw, err = flate.NewWriterDict(dst, level, dict)
		if err != nil {
			return err
		}
	}
	defer fp.Put(fw)

	if _, err := fw.Write(data); err != nil {
		return err
	}
	if last {
		return fw.Close()
	}
	return fw.Flush()
}
