// Package animation interprets a PNG chunk stream as an APNG animation.
//
// A Decoder validates the stream on Open, then walks it strictly forward:
// each AdvanceToFrame positions the decoder on the image data of the next
// frame and ReadRow returns that frame's unfiltered scanlines one at a
// time. Frames are not composited; the rows are the frame's own encoded
// bitmap, sized by its frame control chunk.
package animation

import (
	"fmt"
	"time"

	"github.com/mindfulpath/apngdis/internal/container"
)

// DisposeOp specifies how the frame region is treated before the next
// frame is rendered.
type DisposeOp uint8

const (
	// DisposeOpNone leaves the output buffer as-is.
	DisposeOpNone DisposeOp = 0
	// DisposeOpBackground clears the frame region to fully transparent black.
	DisposeOpBackground DisposeOp = 1
	// DisposeOpPrevious reverts the frame region to its previous contents.
	DisposeOpPrevious DisposeOp = 2
)

func (op DisposeOp) String() string {
	switch op {
	case DisposeOpNone:
		return "none"
	case DisposeOpBackground:
		return "background"
	case DisposeOpPrevious:
		return "previous"
	default:
		return fmt.Sprintf("dispose(%d)", uint8(op))
	}
}

// BlendOp specifies how the frame is composited onto the output buffer.
type BlendOp uint8

const (
	// BlendOpSource overwrites the frame region.
	BlendOpSource BlendOp = 0
	// BlendOpOver alpha-composites the frame over the region.
	BlendOpOver BlendOp = 1
)

func (op BlendOp) String() string {
	switch op {
	case BlendOpSource:
		return "source"
	case BlendOpOver:
		return "over"
	default:
		return fmt.Sprintf("blend(%d)", uint8(op))
	}
}

// AnimationControl is the payload of the acTL chunk.
type AnimationControl struct {
	// NumFrames is the number of animation frames, excluding a still
	// image that is not part of the animation.
	NumFrames int

	// NumPlays is the number of times to loop. 0 means infinite.
	NumPlays int
}

// ParseAnimationControl decodes an 8-byte acTL payload.
func ParseAnimationControl(b []byte) (AnimationControl, error) {
	if len(b) != container.ACTLChunkSize {
		return AnimationControl{}, fmt.Errorf("animation: acTL has %d bytes, want %d", len(b), container.ACTLChunkSize)
	}
	return AnimationControl{
		NumFrames: int(container.ReadBE32(b[0:4])),
		NumPlays:  int(container.ReadBE32(b[4:8])),
	}, nil
}

// Marshal encodes ac as an acTL payload.
func (ac AnimationControl) Marshal() []byte {
	b := make([]byte, container.ACTLChunkSize)
	container.PutBE32(b[0:4], uint32(ac.NumFrames))
	container.PutBE32(b[4:8], uint32(ac.NumPlays))
	return b
}

// FrameControl is the payload of an fcTL chunk.
type FrameControl struct {
	SequenceNumber uint32
	Width          int
	Height         int
	XOffset        int
	YOffset        int
	DelayNum       uint16
	DelayDen       uint16
	DisposeOp      DisposeOp
	BlendOp        BlendOp
}

// ParseFrameControl decodes a 26-byte fcTL payload. It checks the field
// ranges but not the frame's placement on the canvas.
func ParseFrameControl(b []byte) (FrameControl, error) {
	if len(b) != container.FCTLChunkSize {
		return FrameControl{}, fmt.Errorf("animation: fcTL has %d bytes, want %d", len(b), container.FCTLChunkSize)
	}
	fc := FrameControl{
		SequenceNumber: container.ReadBE32(b[0:4]),
		Width:          int(container.ReadBE32(b[4:8])),
		Height:         int(container.ReadBE32(b[8:12])),
		XOffset:        int(container.ReadBE32(b[12:16])),
		YOffset:        int(container.ReadBE32(b[16:20])),
		DelayNum:       container.ReadBE16(b[20:22]),
		DelayDen:       container.ReadBE16(b[22:24]),
		DisposeOp:      DisposeOp(b[24]),
		BlendOp:        BlendOp(b[25]),
	}
	if fc.Width <= 0 || fc.Height <= 0 || fc.Width > container.MaxDimension || fc.Height > container.MaxDimension {
		return FrameControl{}, fmt.Errorf("animation: fcTL %d: invalid size %dx%d", fc.SequenceNumber, fc.Width, fc.Height)
	}
	if fc.DisposeOp > DisposeOpPrevious {
		return FrameControl{}, fmt.Errorf("animation: fcTL %d: invalid dispose op %d", fc.SequenceNumber, fc.DisposeOp)
	}
	if fc.BlendOp > BlendOpOver {
		return FrameControl{}, fmt.Errorf("animation: fcTL %d: invalid blend op %d", fc.SequenceNumber, fc.BlendOp)
	}
	return fc, nil
}

// Marshal encodes fc as an fcTL payload.
func (fc FrameControl) Marshal() []byte {
	b := make([]byte, container.FCTLChunkSize)
	container.PutBE32(b[0:4], fc.SequenceNumber)
	container.PutBE32(b[4:8], uint32(fc.Width))
	container.PutBE32(b[8:12], uint32(fc.Height))
	container.PutBE32(b[12:16], uint32(fc.XOffset))
	container.PutBE32(b[16:20], uint32(fc.YOffset))
	container.PutBE16(b[20:22], fc.DelayNum)
	container.PutBE16(b[22:24], fc.DelayDen)
	b[24] = byte(fc.DisposeOp)
	b[25] = byte(fc.BlendOp)
	return b
}

// Delay returns the frame delay. A zero denominator means 1/100 s units.
func (fc FrameControl) Delay() time.Duration {
	den := fc.DelayDen
	if den == 0 {
		den = 100
	}
	return time.Duration(fc.DelayNum) * time.Second / time.Duration(den)
}

// fits reports whether the frame region lies inside a canvas of the given
// size.
func (fc FrameControl) fits(width, height int) bool {
	return fc.XOffset >= 0 && fc.YOffset >= 0 &&
		fc.Width <= width-fc.XOffset && fc.Height <= height-fc.YOffset
}

func (fc FrameControl) String() string {
	return fmt.Sprintf("fcTL seq=%d %dx%d+%d+%d delay=%d/%d dispose=%s blend=%s",
		fc.SequenceNumber, fc.Width, fc.Height, fc.XOffset, fc.YOffset,
		fc.DelayNum, fc.DelayDen, fc.DisposeOp, fc.BlendOp)
}
