package container

import (
	"errors"
	"fmt"
)

// ColorType is the IHDR color type.
type ColorType uint8

const (
	ColorGrayscale      ColorType = 0
	ColorTrueColor      ColorType = 2
	ColorPaletted       ColorType = 3
	ColorGrayscaleAlpha ColorType = 4
	ColorTrueColorAlpha ColorType = 6
)

// String returns a human-readable color type name.
func (c ColorType) String() string {
	switch c {
	case ColorGrayscale:
		return "grayscale"
	case ColorTrueColor:
		return "truecolor"
	case ColorPaletted:
		return "paletted"
	case ColorGrayscaleAlpha:
		return "grayscale+alpha"
	case ColorTrueColorAlpha:
		return "truecolor+alpha"
	default:
		return fmt.Sprintf("colortype(%d)", uint8(c))
	}
}

// Channels returns the number of samples per pixel, or 0 for an unknown
// color type.
func (c ColorType) Channels() int {
	switch c {
	case ColorGrayscale, ColorPaletted:
		return 1
	case ColorGrayscaleAlpha:
		return 2
	case ColorTrueColor:
		return 3
	case ColorTrueColorAlpha:
		return 4
	default:
		return 0
	}
}

// Interlace methods.
const (
	InterlaceNone  = 0
	InterlaceAdam7 = 1
)

// Common errors.
var (
	ErrInvalidHeader = errors.New("png: invalid IHDR chunk")
	ErrInvalidImage  = errors.New("png: invalid image dimensions")
	ErrUnsupported   = errors.New("png: unsupported format")
	ErrImageTooLarge = errors.New("png: image exceeds buffer limits")
)

// ImageInfo describes the raster layout declared by an IHDR chunk (or
// overridden per frame by an fcTL chunk).
type ImageInfo struct {
	Width     int
	Height    int
	BitDepth  int
	ColorType ColorType
	Interlace int
	Channels  int
}

// validDepths lists the allowed bit depths per color type.
var validDepths = map[ColorType][]int{
	ColorGrayscale:      {1, 2, 4, 8, 16},
	ColorTrueColor:      {8, 16},
	ColorPaletted:       {1, 2, 4, 8},
	ColorGrayscaleAlpha: {8, 16},
	ColorTrueColorAlpha: {8, 16},
}

// ParseIHDR decodes a 13-byte IHDR payload.
func ParseIHDR(payload []byte) (ImageInfo, error) {
	if len(payload) != IHDRChunkSize {
		return ImageInfo{}, fmt.Errorf("%w: length %d", ErrInvalidHeader, len(payload))
	}
	w := ReadBE32(payload[0:4])
	h := ReadBE32(payload[4:8])
	info := ImageInfo{
		Width:     int(w),
		Height:    int(h),
		BitDepth:  int(payload[8]),
		ColorType: ColorType(payload[9]),
		Interlace: int(payload[12]),
	}
	if payload[10] != 0 {
		return ImageInfo{}, fmt.Errorf("%w: compression method %d", ErrUnsupported, payload[10])
	}
	if payload[11] != 0 {
		return ImageInfo{}, fmt.Errorf("%w: filter method %d", ErrUnsupported, payload[11])
	}
	if info.Interlace != InterlaceNone && info.Interlace != InterlaceAdam7 {
		return ImageInfo{}, fmt.Errorf("%w: interlace method %d", ErrUnsupported, info.Interlace)
	}
	info.Channels = info.ColorType.Channels()
	if err := info.Validate(); err != nil {
		return ImageInfo{}, err
	}
	return info, nil
}

// Validate checks the dimensions and the color type / bit depth pairing.
func (info ImageInfo) Validate() error {
	if info.Width <= 0 || info.Height <= 0 || info.Width > MaxDimension || info.Height > MaxDimension {
		return fmt.Errorf("%w: %dx%d", ErrInvalidImage, info.Width, info.Height)
	}
	depths, ok := validDepths[info.ColorType]
	if !ok {
		return fmt.Errorf("%w: color type %d", ErrInvalidHeader, uint8(info.ColorType))
	}
	for _, d := range depths {
		if d == info.BitDepth {
			return nil
		}
	}
	return fmt.Errorf("%w: bit depth %d for %s", ErrInvalidHeader, info.BitDepth, info.ColorType)
}

// WithSize returns a copy of info with different dimensions.
func (info ImageInfo) WithSize(width, height int) ImageInfo {
	info.Width = width
	info.Height = height
	return info
}

// BitsPerPixel returns the number of bits used by one pixel.
func (info ImageInfo) BitsPerPixel() int {
	return info.BitDepth * info.Channels
}

// BytesPerPixel returns the filter unit: bytes per complete pixel,
// rounded up to 1 for sub-byte depths.
func (info ImageInfo) BytesPerPixel() int {
	return (info.BitsPerPixel() + 7) / 8
}

// RowBytes returns the number of bytes in an unfiltered scanline of the
// given pixel width, excluding the filter type byte.
func (info ImageInfo) RowBytes(width int) int {
	return (info.BitsPerPixel()*width + 7) / 8
}

// Stride returns the byte length of one full-width scanline.
func (info ImageInfo) Stride() int {
	return info.RowBytes(info.Width)
}

// CheckBufferSize reports ErrImageTooLarge when a scanline of info, plus its
// filter byte, exceeds MaxRowBytes, or when buffered is set and the whole
// unfiltered image exceeds MaxFrameBytes. Sizes are computed in 64 bits.
func (info ImageInfo) CheckBufferSize(buffered bool) error {
	if info.Width <= 0 || info.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidImage, info.Width, info.Height)
	}
	bits := uint64(info.BitsPerPixel()) * uint64(info.Width)
	row := (bits + 7) / 8
	if row+1 > MaxRowBytes {
		return fmt.Errorf("%w: %d bytes per row for width %d", ErrImageTooLarge, row+1, info.Width)
	}
	if buffered && row*uint64(info.Height) > MaxFrameBytes {
		return fmt.Errorf("%w: %dx%d needs %d bytes", ErrImageTooLarge, info.Width, info.Height, row*uint64(info.Height))
	}
	return nil
}

// MarshalIHDR encodes info as an IHDR payload. Compression and filter
// methods are always 0.
func (info ImageInfo) MarshalIHDR() []byte {
	buf := make([]byte, IHDRChunkSize)
	PutBE32(buf[0:4], uint32(info.Width))
	PutBE32(buf[4:8], uint32(info.Height))
	buf[8] = byte(info.BitDepth)
	buf[9] = byte(info.ColorType)
	buf[12] = byte(info.Interlace)
	return buf
}
