package mux

// CopyPolicy decides whether an ancillary chunk from a source image is
// carried into a derived image.
type CopyPolicy func(Chunk) bool

// ShouldCopy is the conservative policy used for per-frame outputs: chunks
// with the safe-to-copy bit set, plus the colour, palette and physical
// description chunks that stay valid for any frame of the same image.
// Animation chunks (acTL, fcTL, fdAT) and other unsafe chunks are never
// copied.
func ShouldCopy(c Chunk) bool {
	if c.Safe() {
		return true // eXIf, tEXt, pHYs, ...
	}
	switch c.Type {
	case TypePLTE, // palette for indexed color
		TypetRNS, // transparent pixels
		TypebKGD, // background color
		TypegAMA, // gamma
		TypeiCCP, // ICC color profile
		TypecHRM, // chromaticity coordinates
		TypesBIT, // significant bits
		TypesPLT, // suggested palette
		TypesRGB, // rendering intent
		TypesTER, // stereo image
		TypesCAL, // physical scale
		TypepCAL: // physical calibration
		return true
	default:
		return false
	}
}

// Filter returns the chunks accepted by policy, in their original order.
func Filter(chunks []Chunk, policy CopyPolicy) []Chunk {
	var out []Chunk
	for _, c := range chunks {
		if policy(c) {
			out = append(out, c)
		}
	}
	return out
}
