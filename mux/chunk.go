// Package mux provides chunk-level reading and writing for the PNG/APNG
// container format.
//
// The Reader frames a byte stream into length-prefixed, CRC-checked chunks
// and the Writer emits them. Neither interprets chunk payloads. The Muxer
// builds a standalone PNG from an image header, copied ancillary chunks and
// raw scanlines.
package mux

import (
	"errors"

	"github.com/mindfulpath/apngdis/internal/container"
)

// ChunkType is a 4-byte PNG chunk type code.
type ChunkType = container.ChunkType

// Chunk type codes re-exported from the container package.
var (
	TypeIHDR = container.TypeIHDR
	TypePLTE = container.TypePLTE
	TypeIDAT = container.TypeIDAT
	TypeIEND = container.TypeIEND
	TypetRNS = container.TypetRNS
	TypebKGD = container.TypebKGD
	TypegAMA = container.TypegAMA
	TypeiCCP = container.TypeiCCP
	TypecHRM = container.TypecHRM
	TypesBIT = container.TypesBIT
	TypesPLT = container.TypesPLT
	TypesRGB = container.TypesRGB
	TypesTER = container.TypesTER
	TypesCAL = container.TypesCAL
	TypepCAL = container.TypepCAL
	TypeacTL = container.TypeacTL
	TypefcTL = container.TypefcTL
	TypefdAT = container.TypefdAT
)

// Chunk represents a single chunk in a PNG datastream.
type Chunk struct {
	Type ChunkType
	Data []byte
}

// Safe reports whether the chunk's safe-to-copy bit is set.
func (c Chunk) Safe() bool { return c.Type.SafeToCopy() }

// Ancillary reports whether the chunk is ancillary (not needed to decode
// the image).
func (c Chunk) Ancillary() bool { return c.Type.Ancillary() }

// Critical reports whether the chunk is critical.
func (c Chunk) Critical() bool { return !c.Type.Ancillary() }

func (c Chunk) String() string { return c.Type.String() }

var (
	// ErrMalformedChunk is the root of every framing failure: truncated
	// chunks, oversized lengths and checksum mismatches all match it.
	ErrMalformedChunk = errors.New("mux: malformed chunk")
	ErrSignature      = errors.New("mux: not a PNG file (bad signature)")
	ErrTruncated      = errors.New("mux: chunk truncated")
	ErrChecksum       = errors.New("mux: chunk checksum mismatch")
	ErrChunkTooLarge  = errors.New("mux: chunk length exceeds 2^31-1")
	ErrInvalidType    = errors.New("mux: invalid chunk type")

	// ErrIO wraps errors returned by the underlying source or sink.
	ErrIO = errors.New("mux: i/o failure")
)

// malformed tags err as a framing failure so errors.Is(err,
// ErrMalformedChunk) holds alongside the specific cause.
func malformed(err error) error {
	return &malformedError{err}
}

type malformedError struct{ err error }

func (e *malformedError) Error() string { return e.err.Error() }

func (e *malformedError) Unwrap() []error { return []error{ErrMalformedChunk, e.err} }
