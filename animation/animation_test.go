package animation_test

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mindfulpath/apngdis/animation"
	"github.com/mindfulpath/apngdis/internal/apngtest"
	"github.com/mindfulpath/apngdis/internal/container"
	"github.com/mindfulpath/apngdis/mux"
)

func rgba(w, h int) container.ImageInfo {
	return container.ImageInfo{Width: w, Height: h, BitDepth: 8, ColorType: container.ColorTrueColorAlpha, Channels: 4}
}

// threeFrames returns a builder for a 3-frame animation with delays
// 10/100, 20/100 and 10/100.
func threeFrames(info container.ImageInfo) *apngtest.Builder {
	b := &apngtest.Builder{Info: info, Plays: 2}
	for i, num := range []uint16{10, 20, 10} {
		b.Frames = append(b.Frames, apngtest.Frame{
			Rows:    apngtest.Rows(info, int64(i+1)),
			Control: animation.FrameControl{DelayNum: num, DelayDen: 100},
		})
	}
	return b
}

func build(t *testing.T, b *apngtest.Builder) []byte {
	t.Helper()
	data, err := b.Build()
	require.NoError(t, err)
	return data
}

func readAll(t *testing.T, d *animation.Decoder) [][]byte {
	t.Helper()
	var rows [][]byte
	for {
		row, err := d.ReadRow()
		if err == io.EOF {
			return rows
		}
		require.NoError(t, err)
		rows = append(rows, append([]byte(nil), row...))
	}
}

type closeTracker struct {
	io.Reader
	closed int
}

func (c *closeTracker) Close() error {
	c.closed++
	return nil
}

func TestDecoder_ThreeFrames(t *testing.T) {
	info := rgba(13, 9)
	b := threeFrames(info)
	src := &closeTracker{Reader: bytes.NewReader(build(t, b))}

	d, err := animation.Open(src)
	require.NoError(t, err)
	require.False(t, d.HasStillImage())
	require.Equal(t, 3, d.NumFrames())
	require.Equal(t, 2, d.LoopCount())
	require.Equal(t, info, d.Info())

	for i, want := range b.Frames {
		fc, err := d.AdvanceToFrame(i)
		require.NoError(t, err)
		require.NotNil(t, fc)
		require.Equal(t, []uint32{0, 1, 3}[i], fc.SequenceNumber)
		require.Equal(t, want.Control.DelayNum, fc.DelayNum)
		require.Equal(t, uint16(100), fc.DelayDen)

		fi, ok := d.FrameInfo()
		require.True(t, ok)
		require.Equal(t, info.Width, fi.Width)
		require.Equal(t, want.Rows, readAll(t, d), "frame %d", i)
	}

	_, err = d.AdvanceToFrame(3)
	require.ErrorIs(t, err, animation.ErrSequence)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	require.Equal(t, 1, src.closed)
}

func TestDecoder_StillImage(t *testing.T) {
	info := rgba(6, 4)
	b := threeFrames(info)
	b.Still = apngtest.Rows(info, 99)

	d, err := animation.Open(bytes.NewReader(build(t, b)))
	require.NoError(t, err)
	defer d.Close()
	require.True(t, d.HasStillImage())
	require.Equal(t, 3, d.NumFrames())

	_, err = d.AdvanceToFrame(0)
	require.ErrorIs(t, err, animation.ErrSequence, "still image must come first")

	fc, err := d.AdvanceToFrame(animation.StillFrame)
	require.NoError(t, err)
	require.Nil(t, fc)
	require.Equal(t, b.Still, readAll(t, d))

	for i, want := range b.Frames {
		fc, err := d.AdvanceToFrame(i)
		require.NoError(t, err)
		require.NotNil(t, fc)
		require.Equal(t, want.Rows, readAll(t, d))
	}
}

func TestDecoder_SubFrames(t *testing.T) {
	info := rgba(20, 16)
	b := &apngtest.Builder{Info: info, SplitData: 37}
	b.Frames = append(b.Frames, apngtest.Frame{Rows: apngtest.Rows(info, 1)})
	sub := info.WithSize(5, 3)
	b.Frames = append(b.Frames, apngtest.Frame{
		Rows: apngtest.Rows(sub, 2),
		Control: animation.FrameControl{
			Width: 5, Height: 3, XOffset: 15, YOffset: 13,
			DisposeOp: animation.DisposeOpPrevious, BlendOp: animation.BlendOpOver,
		},
	})

	d, err := animation.Open(bytes.NewReader(build(t, b)))
	require.NoError(t, err)
	defer d.Close()

	_, err = d.AdvanceToFrame(0)
	require.NoError(t, err)
	fc, err := d.AdvanceToFrame(1)
	require.NoError(t, err, "unread rows of the previous frame are skipped")
	require.Equal(t, 15, fc.XOffset)
	require.Equal(t, animation.DisposeOpPrevious, fc.DisposeOp)
	require.Equal(t, animation.BlendOpOver, fc.BlendOp)

	fi, _ := d.FrameInfo()
	require.Equal(t, 5, fi.Width)
	require.Equal(t, 3, fi.Height)
	require.Equal(t, b.Frames[1].Rows, readAll(t, d))
}

func TestDecoder_Formats(t *testing.T) {
	tests := []struct {
		name  string
		depth int
		ct    container.ColorType
	}{
		{"gray1", 1, container.ColorGrayscale},
		{"gray16", 16, container.ColorGrayscale},
		{"pal4", 4, container.ColorPaletted},
		{"rgb8", 8, container.ColorTrueColor},
		{"rgba16", 16, container.ColorTrueColorAlpha},
		{"graya8", 8, container.ColorGrayscaleAlpha},
	}
	for _, tt := range tests {
		for _, interlace := range []bool{false, true} {
			name := tt.name
			if interlace {
				name += "/adam7"
			}
			t.Run(name, func(t *testing.T) {
				info := container.ImageInfo{Width: 11, Height: 10, BitDepth: tt.depth, ColorType: tt.ct, Channels: tt.ct.Channels()}
				b := &apngtest.Builder{Info: info, Interlace: interlace}
				b.Frames = []apngtest.Frame{
					{Rows: apngtest.Rows(info, 5)},
					{Rows: apngtest.Rows(info.WithSize(3, 7), 6), Control: animation.FrameControl{Width: 3, Height: 7}},
				}
				d, err := animation.Open(bytes.NewReader(build(t, b)))
				require.NoError(t, err)
				defer d.Close()
				for i, f := range b.Frames {
					_, err := d.AdvanceToFrame(i)
					require.NoError(t, err)
					require.Equal(t, f.Rows, readAll(t, d), "frame %d", i)
				}
			})
		}
	}
}

func TestDecoder_Chunks(t *testing.T) {
	info := rgba(4, 4)
	b := threeFrames(info)
	b.Chunks = []mux.Chunk{
		{Type: container.TypegAMA, Data: []byte{0, 0, 0xB1, 0x8F}},
		{Type: container.TypetEXt, Data: []byte("Title\x00x")},
	}
	b.Trailer = []mux.Chunk{{Type: container.TypetIME, Data: make([]byte, 7)}}

	d, err := animation.Open(bytes.NewReader(build(t, b)))
	require.NoError(t, err)
	defer d.Close()

	types := func() []mux.ChunkType {
		var out []mux.ChunkType
		for _, c := range d.Chunks() {
			out = append(out, c.Type)
		}
		return out
	}
	require.Equal(t, []mux.ChunkType{container.TypegAMA, container.TypetEXt, container.TypeacTL, container.TypefcTL}, types())

	for i := 0; i < 3; i++ {
		_, err := d.AdvanceToFrame(i)
		require.NoError(t, err)
	}
	require.Len(t, d.Chunks(), 6, "later fcTL chunks are recorded")
	require.Equal(t, []mux.ChunkType{container.TypegAMA, container.TypetEXt},
		func() []mux.ChunkType {
			var out []mux.ChunkType
			for _, c := range mux.Filter(d.Chunks(), mux.ShouldCopy) {
				out = append(out, c.Type)
			}
			return out
		}())
}

func TestOpen_NotAPNG(t *testing.T) {
	info := rgba(3, 3)
	plain, err := apngtest.Plain(info, apngtest.Rows(info, 1))
	require.NoError(t, err)

	_, err = animation.Open(bytes.NewReader(plain))
	require.ErrorIs(t, err, animation.ErrNotAPNG)

	b := &apngtest.Builder{Info: info, Still: apngtest.Rows(info, 1), NoACTL: true}
	_, err = animation.Open(bytes.NewReader(build(t, b)))
	require.ErrorIs(t, err, animation.ErrNotAPNG)
}

func TestOpen_Errors(t *testing.T) {
	info := rgba(3, 3)
	good := build(t, threeFrames(info))

	t.Run("not png", func(t *testing.T) {
		_, err := animation.Open(bytes.NewReader([]byte("GIF89a......")))
		require.ErrorIs(t, err, mux.ErrSignature)
	})
	t.Run("bad ihdr crc", func(t *testing.T) {
		data := append([]byte(nil), good...)
		data[container.SignatureSize+container.ChunkHeaderSize] ^= 0xFF
		_, err := animation.Open(bytes.NewReader(data))
		require.ErrorIs(t, err, mux.ErrMalformedChunk)
		require.ErrorIs(t, err, mux.ErrChecksum)
	})
	t.Run("truncated", func(t *testing.T) {
		_, err := animation.Open(bytes.NewReader(good[:40]))
		require.ErrorIs(t, err, mux.ErrMalformedChunk)
	})
	t.Run("zero frames", func(t *testing.T) {
		b := &apngtest.Builder{Info: info, Still: apngtest.Rows(info, 1)}
		_, err := animation.Open(bytes.NewReader(build(t, b)))
		require.ErrorIs(t, err, animation.ErrNotAPNG)
	})
	t.Run("frame outside canvas", func(t *testing.T) {
		b := threeFrames(info)
		b.Frames[0].Control.XOffset = 1
		_, err := animation.Open(bytes.NewReader(build(t, b)))
		require.ErrorIs(t, err, animation.ErrDecode)
	})
	t.Run("oversized header", func(t *testing.T) {
		huge := container.ImageInfo{
			Width: container.MaxDimension, Height: container.MaxDimension,
			BitDepth: 16, ColorType: container.ColorTrueColorAlpha, Interlace: container.InterlaceAdam7,
		}
		_, err := animation.Open(bytes.NewReader(apngtest.Declared(huge)))
		require.ErrorIs(t, err, animation.ErrDecode)
		require.ErrorIs(t, err, container.ErrImageTooLarge)
	})
}

func TestDecoder_FrameBufferLimit(t *testing.T) {
	// Rows fit the limit, but 2 GiB of de-interlaced pixels do not.
	info := container.ImageInfo{Width: 1 << 16, Height: 1 << 12, BitDepth: 16, ColorType: container.ColorTrueColorAlpha}

	t.Run("adam7", func(t *testing.T) {
		info := info
		info.Interlace = container.InterlaceAdam7
		d, err := animation.Open(bytes.NewReader(apngtest.Declared(info)))
		require.NoError(t, err)
		defer d.Close()

		_, err = d.AdvanceToFrame(0)
		require.ErrorIs(t, err, animation.ErrDecode)
		require.ErrorIs(t, err, container.ErrImageTooLarge)
	})
	t.Run("streamed", func(t *testing.T) {
		d, err := animation.Open(bytes.NewReader(apngtest.Declared(info)))
		require.NoError(t, err)
		defer d.Close()

		_, err = d.AdvanceToFrame(0)
		require.NoError(t, err)
		_, err = d.ReadRow()
		require.ErrorIs(t, err, animation.ErrDecode)
		require.NotErrorIs(t, err, container.ErrImageTooLarge)
	})
}

func TestDecoder_StateErrors(t *testing.T) {
	d, err := animation.Open(bytes.NewReader(build(t, threeFrames(rgba(2, 2)))))
	require.NoError(t, err)

	_, err = d.ReadRow()
	require.ErrorIs(t, err, animation.ErrState)

	_, err = d.AdvanceToFrame(1)
	require.ErrorIs(t, err, animation.ErrSequence)

	_, err = d.AdvanceToFrame(0)
	require.NoError(t, err)
	_, err = d.AdvanceToFrame(0)
	require.ErrorIs(t, err, animation.ErrSequence, "no rewinding")

	require.NoError(t, d.Close())
	_, err = d.ReadRow()
	require.ErrorIs(t, err, animation.ErrState)
	_, err = d.AdvanceToFrame(1)
	require.ErrorIs(t, err, animation.ErrState)
}

// rewriteChunk applies edit to the payload of the n-th chunk of typ and
// re-frames the stream with valid checksums.
func rewriteChunk(t *testing.T, data []byte, typ mux.ChunkType, n int, edit func([]byte) []byte) []byte {
	t.Helper()
	r := mux.NewReader(bytes.NewReader(data))
	require.NoError(t, r.ReadSignature())
	var out bytes.Buffer
	w := mux.NewWriter(&out)
	require.NoError(t, w.WriteSignature())
	seen := 0
	for {
		c, err := r.ReadChunk()
		if err == io.EOF {
			return out.Bytes()
		}
		require.NoError(t, err)
		if c.Type == typ {
			if seen == n {
				c.Data = edit(append([]byte(nil), c.Data...))
			}
			seen++
		}
		require.NoError(t, w.WriteChunk(c))
	}
}

func TestDecoder_CorruptData(t *testing.T) {
	info := rgba(8, 8)
	good := build(t, threeFrames(info))

	t.Run("bad zlib header", func(t *testing.T) {
		data := rewriteChunk(t, good, container.TypefdAT, 0, func(b []byte) []byte {
			b[4], b[5] = 0xFF, 0xFF
			return b
		})
		d, err := animation.Open(bytes.NewReader(data))
		require.NoError(t, err)
		defer d.Close()
		_, err = d.AdvanceToFrame(0)
		require.NoError(t, err)
		_, err = d.AdvanceToFrame(1)
		require.ErrorIs(t, err, animation.ErrDecode)
	})
	t.Run("short data", func(t *testing.T) {
		data := rewriteChunk(t, good, container.TypeIDAT, 0, func(b []byte) []byte { return b[:len(b)/3] })
		d, err := animation.Open(bytes.NewReader(data))
		require.NoError(t, err)
		defer d.Close()
		_, err = d.AdvanceToFrame(0)
		require.NoError(t, err)
		var rerr error
		for rerr == nil {
			_, rerr = d.ReadRow()
		}
		require.ErrorIs(t, rerr, animation.ErrDecode)
	})
	t.Run("short fdAT", func(t *testing.T) {
		data := rewriteChunk(t, good, container.TypefdAT, 0, func(b []byte) []byte { return b[:2] })
		d, err := animation.Open(bytes.NewReader(data))
		require.NoError(t, err)
		defer d.Close()
		_, err = d.AdvanceToFrame(0)
		require.NoError(t, err)
		_, err = d.AdvanceToFrame(1)
		require.ErrorIs(t, err, mux.ErrMalformedChunk)
	})
	t.Run("bad crc in frame data", func(t *testing.T) {
		data := append([]byte(nil), good...)
		idx := bytes.Index(data, []byte("fdAT"))
		require.Positive(t, idx)
		data[idx+6] ^= 0x01
		d, err := animation.Open(bytes.NewReader(data))
		require.NoError(t, err)
		defer d.Close()
		_, err = d.AdvanceToFrame(0)
		require.NoError(t, err)
		readAll(t, d)
		_, err = d.AdvanceToFrame(1)
		if err == nil {
			_, err = d.ReadRow()
		}
		require.True(t, errors.Is(err, mux.ErrChecksum), "err = %v", err)
	})
}

func TestFrameControl(t *testing.T) {
	fc := animation.FrameControl{
		SequenceNumber: 7, Width: 10, Height: 20, XOffset: 1, YOffset: 2,
		DelayNum: 1, DelayDen: 4, DisposeOp: animation.DisposeOpBackground, BlendOp: animation.BlendOpOver,
	}
	got, err := animation.ParseFrameControl(fc.Marshal())
	require.NoError(t, err)
	require.Equal(t, fc, got)
	require.Equal(t, 250*time.Millisecond, fc.Delay())

	fc.DelayDen = 0
	fc.DelayNum = 5
	require.Equal(t, 50*time.Millisecond, fc.Delay(), "zero denominator means hundredths")
	require.Contains(t, fc.String(), "dispose=background blend=over")

	bad := fc.Marshal()
	bad[24] = 3
	_, err = animation.ParseFrameControl(bad)
	require.Error(t, err)
	_, err = animation.ParseFrameControl(bad[:20])
	require.Error(t, err)
}

func TestAnimationControl(t *testing.T) {
	ac := animation.AnimationControl{NumFrames: 12, NumPlays: 3}
	got, err := animation.ParseAnimationControl(ac.Marshal())
	require.NoError(t, err)
	require.Equal(t, ac, got)
	_, err = animation.ParseAnimationControl([]byte{1, 2, 3})
	require.Error(t, err)
}
