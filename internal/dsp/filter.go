// Package dsp implements the per-scanline pixel operations of PNG: filter
// reconstruction and selection, and Adam7 interlace geometry.
package dsp

import (
	"fmt"

	"github.com/mindfulpath/apngdis/internal/container"
)

// Paeth returns whichever of left (a), above (b) or upper-left (c) is
// closest to a+b-c, preferring a then b on ties.
func Paeth(a, b, c uint8) uint8 {
	pc := int(c)
	pa := int(b) - pc
	pb := int(a) - pc
	pc = abs(pa + pb)
	pa = abs(pa)
	pb = abs(pb)
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Unfilter reverses the scanline filter ft in place. cur holds the filtered
// bytes of the row (without the filter type byte), prev the previous
// reconstructed row, all zero for the first row of an image or pass.
// bpp is the filter unit in bytes.
func Unfilter(ft byte, cur, prev []byte, bpp int) error {
	switch ft {
	case container.FilterNone:
		// No-op.
	case container.FilterSub:
		for i := bpp; i < len(cur); i++ {
			cur[i] += cur[i-bpp]
		}
	case container.FilterUp:
		for i, p := range prev[:len(cur)] {
			cur[i] += p
		}
	case container.FilterAverage:
		for i := 0; i < bpp && i < len(cur); i++ {
			cur[i] += prev[i] / 2
		}
		for i := bpp; i < len(cur); i++ {
			cur[i] += uint8((int(cur[i-bpp]) + int(prev[i])) / 2)
		}
	case container.FilterPaeth:
		for i := 0; i < bpp && i < len(cur); i++ {
			cur[i] += Paeth(0, prev[i], 0)
		}
		for i := bpp; i < len(cur); i++ {
			cur[i] += Paeth(cur[i-bpp], prev[i], prev[i-bpp])
		}
	default:
		return fmt.Errorf("dsp: bad filter type %d", ft)
	}
	return nil
}

// Filterer applies PNG scanline filters for encoding. With adaptive
// selection it tries all five filters and keeps the one minimizing the sum
// of absolute differences, the heuristic libpng uses; otherwise every row
// uses FilterNone.
type Filterer struct {
	bpp      int
	adaptive bool
	rows     [container.NumFilters][]byte
}

// NewFilterer creates a Filterer for rows of rowBytes bytes.
func NewFilterer(rowBytes, bpp int, adaptive bool) *Filterer {
	f := &Filterer{bpp: bpp, adaptive: adaptive}
	for i := range f.rows {
		f.rows[i] = make([]byte, 1+rowBytes)
		f.rows[i][0] = byte(i)
	}
	return f
}

// AdaptiveFor reports whether adaptive filtering suits info. Paletted and
// sub-byte images compress better unfiltered.
func AdaptiveFor(info container.ImageInfo) bool {
	return info.ColorType != container.ColorPaletted && info.BitDepth >= 8
}

// Filter returns the filtered form of cur, prefixed with its filter type
// byte. prev is the previous unfiltered row (all zero for the first row).
// The returned slice is owned by the Filterer and valid until the next call.
func (f *Filterer) Filter(cur, prev []byte) []byte {
	none := f.rows[container.FilterNone]
	copy(none[1:], cur)
	if !f.adaptive {
		return none
	}

	bpp := f.bpp
	n := len(cur)
	best := -1
	bestFilter := container.FilterNone

	// Try each filter, stopping early once the running sum cannot win.
	score := func(row []byte) int {
		sum := 0
		for _, v := range row[1:] {
			sum += abs8(v)
			if best >= 0 && sum >= best {
				return sum
			}
		}
		return sum
	}

	up := f.rows[container.FilterUp][1:]
	for i := 0; i < n; i++ {
		up[i] = cur[i] - prev[i]
	}
	if s := score(f.rows[container.FilterUp]); best < 0 || s < best {
		best, bestFilter = s, container.FilterUp
	}

	paeth := f.rows[container.FilterPaeth][1:]
	for i := 0; i < bpp && i < n; i++ {
		paeth[i] = cur[i] - prev[i]
	}
	for i := bpp; i < n; i++ {
		paeth[i] = cur[i] - Paeth(cur[i-bpp], prev[i], prev[i-bpp])
	}
	if s := score(f.rows[container.FilterPaeth]); s < best {
		best, bestFilter = s, container.FilterPaeth
	}

	if s := score(none); s < best {
		best, bestFilter = s, container.FilterNone
	}

	sub := f.rows[container.FilterSub][1:]
	for i := 0; i < bpp && i < n; i++ {
		sub[i] = cur[i]
	}
	for i := bpp; i < n; i++ {
		sub[i] = cur[i] - cur[i-bpp]
	}
	if s := score(f.rows[container.FilterSub]); s < best {
		best, bestFilter = s, container.FilterSub
	}

	avg := f.rows[container.FilterAverage][1:]
	for i := 0; i < bpp && i < n; i++ {
		avg[i] = cur[i] - prev[i]/2
	}
	for i := bpp; i < n; i++ {
		avg[i] = cur[i] - uint8((int(cur[i-bpp])+int(prev[i]))/2)
	}
	if s := score(f.rows[container.FilterAverage]); s < best {
		bestFilter = container.FilterAverage
	}

	return f.rows[bestFilter]
}

// abs8 returns the absolute value of a byte interpreted as a signed int8.
func abs8(d uint8) int {
	if d < 128 {
		return int(d)
	}
	return 256 - int(d)
}
