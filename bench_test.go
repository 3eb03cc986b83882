package apngdis

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/mindfulpath/apngdis/animation"
	"github.com/mindfulpath/apngdis/internal/apngtest"
	"github.com/mindfulpath/apngdis/internal/container"
)

func loadTestAnimation(b *testing.B, frames int) []byte {
	b.Helper()
	info := container.ImageInfo{Width: 640, Height: 480, BitDepth: 8, ColorType: container.ColorTrueColorAlpha}
	ab := &apngtest.Builder{Info: info}
	for i := 0; i < frames; i++ {
		ab.Frames = append(ab.Frames, apngtest.Frame{
			Rows:    apngtest.Rows(info, int64(i)),
			Control: animation.FrameControl{DelayNum: 1, DelayDen: 25},
		})
	}
	data, err := ab.Build()
	if err != nil {
		b.Fatal(err)
	}
	return data
}

func BenchmarkDisassemble(b *testing.B) {
	data := loadTestAnimation(b, 4)
	for _, workers := range []int{1, 0} {
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			b.SetBytes(int64(len(data)))
			for i := 0; i < b.N; i++ {
				opts := DefaultOptions()
				opts.Storage = NewMemoryStorage()
				opts.Workers = workers
				if _, err := Disassemble(bytes.NewReader(data), opts); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkDecodeRows(b *testing.B) {
	data := loadTestAnimation(b, 4)
	b.SetBytes(int64(len(data)))
	for i := 0; i < b.N; i++ {
		d, err := animation.Open(bytes.NewReader(data))
		if err != nil {
			b.Fatal(err)
		}
		for f := 0; f < d.NumFrames(); f++ {
			if _, err := d.AdvanceToFrame(f); err != nil {
				b.Fatal(err)
			}
			for {
				if _, err := d.ReadRow(); err != nil {
					break
				}
			}
		}
		d.Close()
	}
}
