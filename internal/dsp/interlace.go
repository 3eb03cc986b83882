package dsp

// Pass describes one Adam7 reduced image: the pixel grid starting at
// (XStart, YStart) with the given steps.
type Pass struct {
	XStart, YStart int
	XStep, YStep   int
}

// Adam7 lists the seven interlace passes in stream order.
var Adam7 = [7]Pass{
	{0, 0, 8, 8},
	{4, 0, 8, 8},
	{0, 4, 4, 8},
	{2, 0, 4, 4},
	{0, 2, 2, 4},
	{1, 0, 2, 2},
	{0, 1, 1, 2},
}

// Size returns the dimensions of the pass for a width x height image.
// Either may be zero, in which case the pass is absent from the stream.
func (p Pass) Size(width, height int) (int, int) {
	w := (width - p.XStart + p.XStep - 1) / p.XStep
	h := (height - p.YStart + p.YStep - 1) / p.YStep
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return w, h
}

// Scatter copies the pixels of reduced row py of pass p into the full
// image row dst. bitsPerPixel is the pixel size; sub-byte pixels are
// packed most significant bits first.
func Scatter(dst, src []byte, p Pass, passWidth, bitsPerPixel int) {
	if bitsPerPixel >= 8 {
		bytesPP := bitsPerPixel / 8
		for i := 0; i < passWidth; i++ {
			x := p.XStart + i*p.XStep
			copy(dst[x*bytesPP:(x+1)*bytesPP], src[i*bytesPP:(i+1)*bytesPP])
		}
		return
	}
	mask := byte(1<<uint(bitsPerPixel) - 1)
	for i := 0; i < passWidth; i++ {
		sbit := i * bitsPerPixel
		v := (src[sbit/8] >> uint(8-bitsPerPixel-sbit%8)) & mask

		x := p.XStart + i*p.XStep
		dbit := x * bitsPerPixel
		shift := uint(8 - bitsPerPixel - dbit%8)
		dst[dbit/8] = dst[dbit/8]&^(mask<<shift) | v<<shift
	}
}
