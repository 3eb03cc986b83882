package animation

import (
	"errors"
	"fmt"
	"io"

	"github.com/mindfulpath/apngdis/internal/compress"
	"github.com/mindfulpath/apngdis/internal/container"
	"github.com/mindfulpath/apngdis/internal/dsp"
	"github.com/mindfulpath/apngdis/internal/pool"
	"github.com/mindfulpath/apngdis/mux"
)

var (
	ErrNotAPNG  = errors.New("animation: not an APNG file (no acTL before image data)")
	ErrSequence = errors.New("animation: frames must be advanced one at a time in order")
	ErrDecode   = errors.New("animation: corrupt image data")
	ErrState    = errors.New("animation: decoder is not positioned on a frame")
)

// StillFrame is the frame index of a still image that is not part of the
// animation.
const StillFrame = -1

// Decoder reads an APNG stream forward, one frame at a time.
type Decoder struct {
	src io.Reader
	cr  *mux.Reader

	info    container.ImageInfo
	actl    AnimationControl
	firstFC *FrameControl
	chunks  []mux.Chunk

	// Lookahead: the chunk after the last one consumed.
	next    mux.Chunk
	hasNext bool
	seenEnd bool

	pos    int // last positioned frame index
	frame  *frameState
	closed bool
}

// frameState tracks row decoding for the positioned frame.
type frameState struct {
	fc   *FrameControl
	info container.ImageInfo
	data *dataReader
	zr   *compress.Reader

	y    int
	cur  []byte // filter byte + row
	prev []byte

	// De-interlaced rows for Adam7 sources.
	rows [][]byte
}

// Open reads the stream up to the first image data chunk. It fails with
// ErrNotAPNG when no acTL chunk precedes the image data. If r is an
// io.Closer, Close closes it.
func Open(r io.Reader) (*Decoder, error) {
	d := &Decoder{src: r, cr: mux.NewReader(r)}
	if err := d.cr.ReadSignature(); err != nil {
		return nil, err
	}
	c, err := d.readChunk()
	if err != nil {
		return nil, err
	}
	if c.Type != mux.TypeIHDR {
		return nil, fmt.Errorf("%w: first chunk is %s, want IHDR", container.ErrInvalidHeader, c.Type)
	}
	if d.info, err = container.ParseIHDR(c.Data); err != nil {
		return nil, err
	}
	if err := d.info.CheckBufferSize(false); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	var haveACTL bool
	for {
		c, err := d.readChunk()
		if err != nil {
			return nil, err
		}
		switch c.Type {
		case mux.TypeIDAT:
			if !haveACTL {
				return nil, ErrNotAPNG
			}
			d.unread(c)
			if d.firstFC == nil {
				d.pos = StillFrame - 1
			} else {
				d.pos = StillFrame
			}
			return d, nil
		case mux.TypeIEND, mux.TypefdAT:
			if !haveACTL {
				return nil, ErrNotAPNG
			}
			return nil, fmt.Errorf("%w: %s before IDAT", ErrDecode, c.Type)
		case mux.TypeacTL:
			if haveACTL {
				return nil, fmt.Errorf("%w: duplicate acTL", ErrDecode)
			}
			if d.actl, err = ParseAnimationControl(c.Data); err != nil {
				return nil, fmt.Errorf("%w: %w", mux.ErrMalformedChunk, err)
			}
			if d.actl.NumFrames < 1 {
				return nil, fmt.Errorf("%w: acTL declares %d frames", ErrNotAPNG, d.actl.NumFrames)
			}
			haveACTL = true
		case mux.TypefcTL:
			fc, err := d.parseFrameControl(c)
			if err != nil {
				return nil, err
			}
			if d.firstFC != nil {
				return nil, fmt.Errorf("%w: multiple fcTL before IDAT", ErrDecode)
			}
			d.firstFC = &fc
		}
		d.chunks = append(d.chunks, c)
	}
}

// readChunk returns the lookahead chunk or reads the next one. A stream
// ending without IEND is reported as truncated.
func (d *Decoder) readChunk() (mux.Chunk, error) {
	if d.hasNext {
		d.hasNext = false
		return d.next, nil
	}
	if d.seenEnd {
		return mux.Chunk{Type: mux.TypeIEND}, nil
	}
	c, err := d.cr.ReadChunk()
	if err == io.EOF {
		return mux.Chunk{}, fmt.Errorf("%w: %w: stream ends without IEND", mux.ErrMalformedChunk, mux.ErrTruncated)
	}
	if err != nil {
		return mux.Chunk{}, err
	}
	if c.Type == mux.TypeIEND {
		d.seenEnd = true
	}
	return c, nil
}

func (d *Decoder) unread(c mux.Chunk) {
	d.next = c
	d.hasNext = true
}

func (d *Decoder) parseFrameControl(c mux.Chunk) (FrameControl, error) {
	fc, err := ParseFrameControl(c.Data)
	if err != nil {
		return FrameControl{}, fmt.Errorf("%w: %w", mux.ErrMalformedChunk, err)
	}
	if !fc.fits(d.info.Width, d.info.Height) {
		return FrameControl{}, fmt.Errorf("%w: frame %dx%d at %d,%d exceeds %dx%d canvas",
			ErrDecode, fc.Width, fc.Height, fc.XOffset, fc.YOffset, d.info.Width, d.info.Height)
	}
	return fc, nil
}

// Info returns the image header of the stream.
func (d *Decoder) Info() container.ImageInfo { return d.info }

// AnimationControl returns the parsed acTL chunk.
func (d *Decoder) AnimationControl() AnimationControl { return d.actl }

// NumFrames returns the number of animation frames declared by acTL.
func (d *Decoder) NumFrames() int { return d.actl.NumFrames }

// LoopCount returns the number of plays; 0 means infinite.
func (d *Decoder) LoopCount() int { return d.actl.NumPlays }

// HasStillImage reports whether the IDAT image is a still image outside
// the animation, decoded as frame StillFrame.
func (d *Decoder) HasStillImage() bool { return d.firstFC == nil }

// Chunks returns the chunks other than IHDR, IDAT, fdAT and IEND read so
// far, in stream order.
func (d *Decoder) Chunks() []mux.Chunk {
	return d.chunks[:len(d.chunks):len(d.chunks)]
}

// FrameInfo returns the image header of the positioned frame: the base
// header with the frame's dimensions. It returns false when no frame is
// positioned.
func (d *Decoder) FrameInfo() (container.ImageInfo, bool) {
	if d.frame == nil {
		return container.ImageInfo{}, false
	}
	return d.frame.info, true
}

// AdvanceToFrame positions the decoder on frame i, which must be exactly
// one past the previous frame. The first frame is StillFrame when
// HasStillImage reports true and 0 otherwise. It returns the frame's
// control chunk, or nil for the still image. Unread rows of the previous
// frame are skipped.
func (d *Decoder) AdvanceToFrame(i int) (*FrameControl, error) {
	if d.closed {
		return nil, fmt.Errorf("%w: decoder closed", ErrState)
	}
	if i != d.pos+1 {
		return nil, fmt.Errorf("%w: requested frame %d after frame %d", ErrSequence, i, d.pos)
	}
	if i >= d.actl.NumFrames {
		return nil, fmt.Errorf("%w: frame %d of %d", ErrSequence, i, d.actl.NumFrames)
	}
	if err := d.finishFrame(); err != nil {
		return nil, err
	}

	var fc *FrameControl
	run := mux.TypeIDAT
	switch {
	case i == StillFrame:
	case i == 0 && d.firstFC != nil:
		fc = d.firstFC
	default:
		var err error
		if fc, err = d.seekFrameControl(i); err != nil {
			return nil, err
		}
		run = mux.TypefdAT
	}

	info := d.info
	if fc != nil {
		info = info.WithSize(fc.Width, fc.Height)
	}
	if err := info.CheckBufferSize(info.Interlace == container.InterlaceAdam7); err != nil {
		return nil, fmt.Errorf("%w: frame %d: %w", ErrDecode, i, err)
	}
	f := &frameState{fc: fc, info: info}
	f.data = &dataReader{d: d, run: run}
	zr, err := compress.NewReader(f.data)
	if err != nil {
		return nil, d.decodeError(f.data, err)
	}
	f.zr = zr
	d.frame = f
	d.pos = i

	if info.Interlace == container.InterlaceAdam7 {
		if err := d.deinterlace(f); err != nil {
			return nil, err
		}
	}
	return fc, nil
}

// seekFrameControl reads forward to the fcTL of frame i and checks that
// image data follows it.
func (d *Decoder) seekFrameControl(i int) (*FrameControl, error) {
	var fc *FrameControl
	for {
		c, err := d.readChunk()
		if err != nil {
			return nil, err
		}
		switch c.Type {
		case mux.TypeIEND:
			d.unread(c)
			return nil, fmt.Errorf("%w: stream ends before frame %d", ErrDecode, i)
		case mux.TypeIDAT:
			return nil, fmt.Errorf("%w: IDAT after animation frames", ErrDecode)
		case mux.TypefdAT:
			if fc == nil {
				return nil, fmt.Errorf("%w: fdAT without fcTL", ErrDecode)
			}
			d.unread(c)
			return fc, nil
		case mux.TypefcTL:
			if fc != nil {
				return nil, fmt.Errorf("%w: frame %d has no image data", ErrDecode, i)
			}
			parsed, err := d.parseFrameControl(c)
			if err != nil {
				return nil, err
			}
			fc = &parsed
		}
		d.chunks = append(d.chunks, c)
	}
}

// ReadRow returns the next unfiltered row of the positioned frame, or
// io.EOF after the last row. The slice is valid until the next call.
func (d *Decoder) ReadRow() ([]byte, error) {
	if d.closed {
		return nil, fmt.Errorf("%w: decoder closed", ErrState)
	}
	f := d.frame
	if f == nil {
		return nil, ErrState
	}
	if f.y >= f.info.Height {
		return nil, io.EOF
	}
	if f.rows != nil {
		row := f.rows[f.y]
		f.y++
		return row, nil
	}

	stride := f.info.Stride()
	if f.cur == nil {
		f.cur = pool.Get(stride + 1)
		f.prev = pool.GetZeroed(stride + 1)
	}
	if err := d.readFiltered(f, f.cur, f.prev, f.info.BytesPerPixel()); err != nil {
		return nil, err
	}
	f.cur, f.prev = f.prev, f.cur
	f.y++
	return f.prev[1:], nil
}

// readFiltered reads one filtered row into cur and reverses its filter.
// cur and prev include the leading filter type byte.
func (d *Decoder) readFiltered(f *frameState, cur, prev []byte, bpp int) error {
	if _, err := io.ReadFull(f.zr, cur); err != nil {
		return d.decodeError(f.data, err)
	}
	if err := dsp.Unfilter(cur[0], cur[1:], prev[1:], bpp); err != nil {
		return fmt.Errorf("%w: row %d: %w", ErrDecode, f.y, err)
	}
	return nil
}

// deinterlace decodes all seven Adam7 passes of f into full rows.
func (d *Decoder) deinterlace(f *frameState) error {
	info := f.info
	stride := info.Stride()
	buf := make([]byte, stride*info.Height)
	f.rows = make([][]byte, info.Height)
	for y := range f.rows {
		f.rows[y] = buf[y*stride : (y+1)*stride]
	}

	bpp := info.BytesPerPixel()
	bits := info.BitsPerPixel()
	for _, p := range dsp.Adam7 {
		pw, ph := p.Size(info.Width, info.Height)
		if pw == 0 || ph == 0 {
			continue
		}
		n := info.RowBytes(pw) + 1
		cur := make([]byte, n)
		prev := make([]byte, n)
		for py := 0; py < ph; py++ {
			if err := d.readFiltered(f, cur, prev, bpp); err != nil {
				return err
			}
			dsp.Scatter(f.rows[p.YStart+py*p.YStep], cur[1:], p, pw, bits)
			cur, prev = prev, cur
		}
	}
	return nil
}

// decodeError classifies an error surfacing from the decompressor. Chunk
// framing and I/O failures keep their identity; everything else is
// corrupt image data.
func (d *Decoder) decodeError(data *dataReader, err error) error {
	if data.err != nil {
		return data.err
	}
	if errors.Is(err, mux.ErrMalformedChunk) || errors.Is(err, mux.ErrIO) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDecode, err)
}

// finishFrame releases the positioned frame and skips its unread data.
func (d *Decoder) finishFrame() error {
	f := d.frame
	if f == nil {
		return nil
	}
	d.frame = nil
	f.release()
	return f.data.skip()
}

func (f *frameState) release() {
	if f.zr != nil {
		f.zr.Close()
		f.zr = nil
	}
	if f.cur != nil {
		pool.Put(f.cur)
		pool.Put(f.prev)
		f.cur, f.prev = nil, nil
	}
	f.rows = nil
}

// Close releases the decoder and closes the source if it is an io.Closer.
// It is safe to call more than once.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.frame != nil {
		d.frame.release()
		d.frame = nil
	}
	if c, ok := d.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// dataReader concatenates the payloads of one run of IDAT or fdAT chunks,
// stripping fdAT sequence numbers. It stops at the first chunk of another
// type, leaving it as the decoder's lookahead.
type dataReader struct {
	d    *Decoder
	run  mux.ChunkType
	buf  []byte
	done bool
	err  error
}

func (r *dataReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		if r.done {
			return 0, io.EOF
		}
		if err := r.nextChunk(); err != nil {
			r.err = err
			return 0, err
		}
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *dataReader) nextChunk() error {
	c, err := r.d.readChunk()
	if err != nil {
		return err
	}
	if c.Type != r.run {
		r.d.unread(c)
		r.done = true
		return nil
	}
	if c.Type == mux.TypefdAT {
		if len(c.Data) < container.SequenceSize {
			return fmt.Errorf("%w: fdAT has %d bytes", mux.ErrMalformedChunk, len(c.Data))
		}
		c.Data = c.Data[container.SequenceSize:]
	}
	r.buf = c.Data
	return nil
}

// skip consumes the rest of the run.
func (r *dataReader) skip() error {
	r.buf = nil
	for !r.done {
		if r.err != nil {
			return r.err
		}
		if err := r.nextChunk(); err != nil {
			r.err = err
		}
		r.buf = nil
	}
	return nil
}
