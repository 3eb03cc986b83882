// Package apngtest builds APNG streams from raw scanlines for tests.
package apngtest

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"math/rand"

	"github.com/mindfulpath/apngdis/animation"
	"github.com/mindfulpath/apngdis/internal/compress"
	"github.com/mindfulpath/apngdis/internal/container"
	"github.com/mindfulpath/apngdis/internal/dsp"
	"github.com/mindfulpath/apngdis/mux"
)

// Frame is one animation frame. Rows are unfiltered scanlines sized by
// the frame's control width and height.
type Frame struct {
	Rows    [][]byte
	Control animation.FrameControl
}

// Builder describes an APNG stream. Zero Control sizes default to the
// canvas size; sequence numbers are assigned on Build.
type Builder struct {
	Info      container.ImageInfo
	Still     [][]byte    // rows of a still image outside the animation
	Frames    []Frame
	Plays     int
	Chunks    []mux.Chunk // written after IHDR
	Trailer   []mux.Chunk // written before IEND
	Interlace bool        // encode image data with Adam7
	SplitData int         // maximum image bytes per IDAT/fdAT; 0 for one chunk
	NoACTL    bool        // omit acTL, producing a plain PNG
}

// Build returns the encoded stream.
func (b *Builder) Build() ([]byte, error) {
	info := b.Info
	info.Channels = info.ColorType.Channels()
	info.Interlace = container.InterlaceNone
	if b.Interlace {
		info.Interlace = container.InterlaceAdam7
	}
	if len(b.Frames) == 0 && b.Still == nil {
		return nil, fmt.Errorf("apngtest: no image data")
	}

	var buf bytes.Buffer
	w := mux.NewWriter(&buf)
	if err := w.WriteSignature(); err != nil {
		return nil, err
	}
	write := func(typ mux.ChunkType, data []byte) error {
		return w.WriteChunk(mux.Chunk{Type: typ, Data: data})
	}
	if err := write(mux.TypeIHDR, info.MarshalIHDR()); err != nil {
		return nil, err
	}
	for _, c := range b.Chunks {
		if err := w.WriteChunk(c); err != nil {
			return nil, err
		}
	}
	if !b.NoACTL {
		ac := animation.AnimationControl{NumFrames: len(b.Frames), NumPlays: b.Plays}
		if err := write(mux.TypeacTL, ac.Marshal()); err != nil {
			return nil, err
		}
	}

	var seq uint32
	frames := b.Frames
	if b.Still != nil {
		data, err := b.encode(info, b.Still)
		if err != nil {
			return nil, err
		}
		if err := b.writeData(w, mux.TypeIDAT, data, &seq); err != nil {
			return nil, err
		}
	}
	for i, f := range frames {
		fc := f.Control
		if fc.Width == 0 {
			fc.Width = info.Width
		}
		if fc.Height == 0 {
			fc.Height = info.Height
		}
		fc.SequenceNumber = seq
		seq++
		if err := write(mux.TypefcTL, fc.Marshal()); err != nil {
			return nil, err
		}
		data, err := b.encode(info.WithSize(fc.Width, fc.Height), f.Rows)
		if err != nil {
			return nil, fmt.Errorf("apngtest: frame %d: %w", i, err)
		}
		typ := mux.TypefdAT
		if i == 0 && b.Still == nil {
			typ = mux.TypeIDAT
		}
		if err := b.writeData(w, typ, data, &seq); err != nil {
			return nil, err
		}
	}
	for _, c := range b.Trailer {
		if err := w.WriteChunk(c); err != nil {
			return nil, err
		}
	}
	if err := write(mux.TypeIEND, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeData splits data into chunks of typ. fdAT chunks get a sequence
// number prefix.
func (b *Builder) writeData(w *mux.Writer, typ mux.ChunkType, data []byte, seq *uint32) error {
	for first := true; first || len(data) > 0; first = false {
		n := len(data)
		if b.SplitData > 0 && n > b.SplitData {
			n = b.SplitData
		}
		payload := data[:n]
		data = data[n:]
		if typ == mux.TypefdAT {
			p := make([]byte, container.SequenceSize+len(payload))
			container.PutBE32(p, *seq)
			copy(p[container.SequenceSize:], payload)
			payload = p
			*seq++
		}
		if err := w.WriteChunk(mux.Chunk{Type: typ, Data: payload}); err != nil {
			return err
		}
	}
	return nil
}

// encode returns the zlib stream for rows.
func (b *Builder) encode(info container.ImageInfo, rows [][]byte) ([]byte, error) {
	if len(rows) != info.Height {
		return nil, fmt.Errorf("apngtest: %d rows for height %d", len(rows), info.Height)
	}
	if info.Interlace == container.InterlaceAdam7 {
		return encodeAdam7(info, rows)
	}
	png, err := Plain(info, rows)
	if err != nil {
		return nil, err
	}
	return ImageData(png)
}

// Plain encodes rows as a standalone PNG.
func Plain(info container.ImageInfo, rows [][]byte) ([]byte, error) {
	var buf bytes.Buffer
	m, err := mux.NewMuxer(&buf, info, nil)
	if err != nil {
		return nil, err
	}
	for y, row := range rows {
		if err := m.WriteRow(row, y); err != nil {
			return nil, err
		}
	}
	if err := m.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ImageData concatenates the IDAT payloads of a PNG stream.
func ImageData(png []byte) ([]byte, error) {
	r := mux.NewReader(bytes.NewReader(png))
	if err := r.ReadSignature(); err != nil {
		return nil, err
	}
	var data []byte
	for {
		c, err := r.ReadChunk()
		if err == io.EOF {
			return data, nil
		}
		if err != nil {
			return nil, err
		}
		if c.Type == mux.TypeIDAT {
			data = append(data, c.Data...)
		}
	}
}

// encodeAdam7 writes the seven reduced images with filter None.
func encodeAdam7(info container.ImageInfo, rows [][]byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := compress.NewWriter(&buf, nil)
	if err != nil {
		return nil, err
	}
	bits := info.BitsPerPixel()
	for _, p := range dsp.Adam7 {
		pw, ph := p.Size(info.Width, info.Height)
		if pw == 0 || ph == 0 {
			continue
		}
		for py := 0; py < ph; py++ {
			src := rows[p.YStart+py*p.YStep]
			out := make([]byte, 1+info.RowBytes(pw))
			for i := 0; i < pw; i++ {
				copyBits(out[1:], i*bits, src, (p.XStart+i*p.XStep)*bits, bits)
			}
			if _, err := zw.Write(out); err != nil {
				return nil, err
			}
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// copyBits copies n bits, MSB first, from src at bit offset so to dst at
// bit offset do.
func copyBits(dst []byte, do int, src []byte, so int, n int) {
	for k := 0; k < n; k++ {
		s, d := so+k, do+k
		bit := src[s/8] >> uint(7-s%8) & 1
		dst[d/8] |= bit << uint(7-d%8)
	}
}

// emptyZlib is a complete zlib stream with no data.
var emptyZlib = []byte{0x78, 0x9c, 0x03, 0x00, 0x00, 0x00, 0x00, 0x01}

// Declared returns a one-frame APNG whose IHDR and fcTL declare info,
// without encoding any pixels. The image data is an empty zlib stream, so
// the stream stays tiny whatever size it claims.
func Declared(info container.ImageInfo) []byte {
	var buf bytes.Buffer
	w := mux.NewWriter(&buf)
	w.WriteSignature() //nolint:errcheck
	fc := animation.FrameControl{Width: info.Width, Height: info.Height, DelayDen: 100}
	for _, c := range []mux.Chunk{
		{Type: mux.TypeIHDR, Data: info.MarshalIHDR()},
		{Type: mux.TypeacTL, Data: animation.AnimationControl{NumFrames: 1}.Marshal()},
		{Type: mux.TypefcTL, Data: fc.Marshal()},
		{Type: mux.TypeIDAT, Data: emptyZlib},
		{Type: mux.TypeIEND},
	} {
		w.WriteChunk(c) //nolint:errcheck
	}
	return buf.Bytes()
}

// Rows returns deterministic pseudo-random scanlines for info. Padding
// bits past the last pixel are zero.
func Rows(info container.ImageInfo, seed int64) [][]byte {
	info.Channels = info.ColorType.Channels()
	rng := rand.New(rand.NewSource(seed))
	stride := info.Stride()
	pad := stride*8 - info.Width*info.BitsPerPixel()
	rows := make([][]byte, info.Height)
	for y := range rows {
		rows[y] = make([]byte, stride)
		rng.Read(rows[y])
		if pad > 0 {
			rows[y][stride-1] &^= byte(1<<uint(pad) - 1)
		}
	}
	return rows
}

// NRGBARows returns the scanlines of an 8-bit RGBA image.
func NRGBARows(img *image.NRGBA) [][]byte {
	b := img.Bounds()
	rows := make([][]byte, b.Dy())
	for y := range rows {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		rows[y] = append([]byte(nil), img.Pix[off:off+4*b.Dx()]...)
	}
	return rows
}
