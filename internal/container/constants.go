// Package container defines constants for the PNG/APNG chunk format,
// including the file signature, chunk type codes, fixed chunk layouts and
// the image header description shared by readers and writers.
package container

import "encoding/binary"

// Signature is the 8-byte magic that starts every PNG datastream.
const Signature = "\x89PNG\r\n\x1a\n"

// ChunkType is a 4-byte chunk type code, stored big-endian so that the
// first letter of the code is the most significant byte.
type ChunkType uint32

// FourCC creates a ChunkType from four bytes.
func FourCC(a, b, c, d byte) ChunkType {
	return ChunkType(uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d))
}

// Critical chunk types.
var (
	TypeIHDR = FourCC('I', 'H', 'D', 'R')
	TypePLTE = FourCC('P', 'L', 'T', 'E')
	TypeIDAT = FourCC('I', 'D', 'A', 'T')
	TypeIEND = FourCC('I', 'E', 'N', 'D')
)

// Ancillary chunk types.
var (
	TypetRNS = FourCC('t', 'R', 'N', 'S')
	TypebKGD = FourCC('b', 'K', 'G', 'D')
	TypegAMA = FourCC('g', 'A', 'M', 'A')
	TypeiCCP = FourCC('i', 'C', 'C', 'P')
	TypecHRM = FourCC('c', 'H', 'R', 'M')
	TypesBIT = FourCC('s', 'B', 'I', 'T')
	TypesPLT = FourCC('s', 'P', 'L', 'T')
	TypesRGB = FourCC('s', 'R', 'G', 'B')
	TypesTER = FourCC('s', 'T', 'E', 'R')
	TypesCAL = FourCC('s', 'C', 'A', 'L')
	TypepCAL = FourCC('p', 'C', 'A', 'L')
	TypepHYs = FourCC('p', 'H', 'Y', 's')
	TypetEXt = FourCC('t', 'E', 'X', 't')
	TypeeXIf = FourCC('e', 'X', 'I', 'f')
	TypetIME = FourCC('t', 'I', 'M', 'E')
)

// APNG chunk types.
var (
	TypeacTL = FourCC('a', 'c', 'T', 'L')
	TypefcTL = FourCC('f', 'c', 'T', 'L')
	TypefdAT = FourCC('f', 'd', 'A', 'T')
)

// propertyBit is bit 5 of a type byte: set for lowercase letters.
const propertyBit = 0x20

// String returns the four-letter type code.
func (t ChunkType) String() string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(t))
	return string(b[:])
}

// Ancillary reports whether the first letter is lowercase.
func (t ChunkType) Ancillary() bool { return byte(t>>24)&propertyBit != 0 }

// Private reports whether the second letter is lowercase.
func (t ChunkType) Private() bool { return byte(t>>16)&propertyBit != 0 }

// SafeToCopy reports whether the fourth letter is lowercase, meaning an
// editor that does not recognize the chunk may still copy it after
// modifying critical chunks.
func (t ChunkType) SafeToCopy() bool { return byte(t)&propertyBit != 0 }

// Valid reports whether every byte of the code is an ASCII letter.
func (t ChunkType) Valid() bool {
	for shift := 24; shift >= 0; shift -= 8 {
		c := byte(t >> uint(shift))
		if !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z') {
			return false
		}
	}
	return true
}

// Container structure sizes.
const (
	SignatureSize   = 8  // Size of the PNG signature
	LengthSize      = 4  // Size of a chunk's length field
	TypeSize        = 4  // Size of a chunk type code
	CRCSize         = 4  // Size of a chunk's CRC32 trailer
	ChunkHeaderSize = 8  // Length + type
	ChunkOverhead   = 12 // Length + type + CRC
	IHDRChunkSize   = 13 // Size of an IHDR payload
	ACTLChunkSize   = 8  // Size of an acTL payload
	FCTLChunkSize   = 26 // Size of an fcTL payload
	SequenceSize    = 4  // Size of the sequence number prefixing fdAT data
)

// Limits.
const (
	MaxChunkPayload = 1<<31 - 1 // PNG lengths are limited to 2^31-1
	MaxIDATSize     = 1 << 16   // largest IDAT payload produced by writers
	MaxDimension    = 1<<31 - 1

	// MaxRowBytes bounds one filtered scanline, including its filter byte,
	// to prevent memory exhaustion from malicious headers.
	MaxRowBytes = 64 << 20

	// MaxFrameBytes bounds the unfiltered size of a frame that must be held
	// in memory at once (Adam7 frames).
	MaxFrameBytes = 1 << 30
)

// PNG scanline filter types.
const (
	FilterNone    = 0
	FilterSub     = 1
	FilterUp      = 2
	FilterAverage = 3
	FilterPaeth   = 4
	NumFilters    = 5
)

// ReadBE16 reads a big-endian uint16 from data.
func ReadBE16(data []byte) uint16 {
	return binary.BigEndian.Uint16(data)
}

// ReadBE32 reads a big-endian uint32 from data.
func ReadBE32(data []byte) uint32 {
	return binary.BigEndian.Uint32(data)
}

// PutBE16 writes a big-endian uint16 to data.
func PutBE16(data []byte, v uint16) {
	binary.BigEndian.PutUint16(data, v)
}

// PutBE32 writes a big-endian uint32 to data.
func PutBE32(data []byte, v uint32) {
	binary.BigEndian.PutUint32(data, v)
}
