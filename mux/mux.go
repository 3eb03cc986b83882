package mux

import (
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"

	"github.com/mindfulpath/apngdis/internal/compress"
	"github.com/mindfulpath/apngdis/internal/container"
	"github.com/mindfulpath/apngdis/internal/dsp"
	"github.com/mindfulpath/apngdis/internal/pool"
)

// MuxOptions controls how a Muxer compresses image data.
type MuxOptions struct {
	// Level is the zlib compression level. -1 selects the default.
	Level int

	// BlockSize is the input size of one parallel compression block.
	// Zero selects the compress package default.
	BlockSize int

	// Executor runs parallel compression. Nil compresses on the calling
	// goroutine.
	Executor *pool.Executor
}

var (
	ErrRowOrder   = errors.New("mux: rows must be written top to bottom")
	ErrRowSize    = errors.New("mux: row length does not match image width")
	ErrIncomplete = errors.New("mux: image closed before all rows were written")
	ErrChunkOrder = errors.New("mux: chunks must be copied before image data")
	ErrClosed     = errors.New("mux: muxer closed")
)

// Muxer writes a standalone, non-interlaced PNG: signature, IHDR, the
// copied ancillary chunks, image data split into IDAT chunks, and IEND.
// Rows are filtered and compressed as they arrive.
type Muxer struct {
	cw   *Writer
	info container.ImageInfo
	opts MuxOptions

	filt *dsp.Filterer
	prev []byte
	zw   *compress.Writer
	idat *idatWriter

	header bool
	y      int
	closed bool
	err    error
}

// NewMuxer returns a Muxer writing an image described by info to w.
// Interlacing in info is ignored. opts may be nil.
func NewMuxer(w io.Writer, info container.ImageInfo, opts *MuxOptions) (*Muxer, error) {
	info.Interlace = container.InterlaceNone
	info.Channels = info.ColorType.Channels()
	if err := info.Validate(); err != nil {
		return nil, err
	}
	if err := info.CheckBufferSize(false); err != nil {
		return nil, err
	}
	o := MuxOptions{Level: compress.DefaultCompression}
	if opts != nil {
		o = *opts
	}
	return &Muxer{cw: NewWriter(w), info: info, opts: o}, nil
}

// Info returns the header the Muxer writes.
func (m *Muxer) Info() container.ImageInfo { return m.info }

func (m *Muxer) writeHeader() error {
	if m.header {
		return nil
	}
	m.header = true
	if err := m.cw.WriteSignature(); err != nil {
		return err
	}
	return m.cw.WriteChunk(Chunk{Type: TypeIHDR, Data: m.info.MarshalIHDR()})
}

// CopyChunks writes the chunks accepted by policy, in order. A nil policy
// selects ShouldCopy. Critical chunks other than PLTE are never copied.
// CopyChunks must be called before the first WriteRow.
func (m *Muxer) CopyChunks(chunks []Chunk, policy CopyPolicy) error {
	if m.closed {
		return ErrClosed
	}
	if m.err != nil {
		return m.err
	}
	if m.zw != nil {
		return ErrChunkOrder
	}
	if policy == nil {
		policy = ShouldCopy
	}
	if err := m.writeHeader(); err != nil {
		m.err = err
		return err
	}
	for _, c := range Filter(chunks, policy) {
		if c.Critical() && c.Type != TypePLTE {
			continue
		}
		if err := m.cw.WriteChunk(c); err != nil {
			m.err = err
			return err
		}
	}
	return nil
}

// WriteRow filters and compresses unfiltered scanline y. Rows must arrive
// in order starting at 0.
func (m *Muxer) WriteRow(row []byte, y int) error {
	if m.closed {
		return ErrClosed
	}
	if m.err != nil {
		return m.err
	}
	if y != m.y || y >= m.info.Height {
		return fmt.Errorf("%w: got row %d, want %d", ErrRowOrder, y, m.y)
	}
	stride := m.info.Stride()
	if len(row) != stride {
		return fmt.Errorf("%w: %d bytes, want %d", ErrRowSize, len(row), stride)
	}
	if m.zw == nil {
		if err := m.startData(); err != nil {
			m.err = err
			return err
		}
	}
	if _, err := m.zw.Write(m.filt.Filter(row, m.prev)); err != nil {
		m.err = err
		return err
	}
	copy(m.prev, row)
	m.y++
	return nil
}

func (m *Muxer) startData() error {
	if err := m.writeHeader(); err != nil {
		return err
	}
	stride := m.info.Stride()
	m.filt = dsp.NewFilterer(stride, m.info.BytesPerPixel(), dsp.AdaptiveFor(m.info))
	m.prev = pool.GetZeroed(stride)
	m.idat = &idatWriter{cw: m.cw, buf: pool.Get(container.MaxIDATSize)[:0]}
	zw, err := compress.NewWriter(m.idat, &compress.Options{
		Level:     m.opts.Level,
		BlockSize: m.opts.BlockSize,
		Executor:  m.opts.Executor,
	})
	if err != nil {
		return err
	}
	m.zw = zw
	return nil
}

// Close finishes the image data and writes IEND. It does not close the
// underlying writer and is safe to call more than once.
func (m *Muxer) Close() error {
	if m.closed {
		return m.err
	}
	m.closed = true
	defer m.release()

	if m.err != nil {
		return m.err
	}
	if m.y < m.info.Height {
		var result *multierror.Error
		result = multierror.Append(result, fmt.Errorf("%w: %d of %d rows", ErrIncomplete, m.y, m.info.Height))
		if m.zw != nil {
			if err := m.zw.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
		m.err = result.ErrorOrNil()
		return m.err
	}
	if err := m.zw.Close(); err != nil {
		m.err = err
		return err
	}
	if err := m.idat.flush(); err != nil {
		m.err = err
		return err
	}
	m.err = m.cw.WriteChunk(Chunk{Type: TypeIEND})
	return m.err
}

func (m *Muxer) release() {
	if m.prev != nil {
		pool.Put(m.prev)
		m.prev = nil
	}
	if m.idat != nil {
		pool.Put(m.idat.buf)
		m.idat.buf = nil
	}
}

// idatWriter packs the compressed stream into IDAT chunks of at most
// MaxIDATSize bytes.
type idatWriter struct {
	cw  *Writer
	buf []byte
}

func (w *idatWriter) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		room := container.MaxIDATSize - len(w.buf)
		if room > len(p) {
			room = len(p)
		}
		w.buf = append(w.buf, p[:room]...)
		p = p[room:]
		if len(w.buf) == container.MaxIDATSize {
			if err := w.flush(); err != nil {
				return n - len(p), err
			}
		}
	}
	return n, nil
}

func (w *idatWriter) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	err := w.cw.WriteChunk(Chunk{Type: TypeIDAT, Data: w.buf})
	w.buf = w.buf[:0]
	return err
}
