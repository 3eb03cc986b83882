package mux

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/mindfulpath/apngdis/internal/container"
)

// directReadLimit is the largest payload allocated up front from the
// declared length. Larger payloads are read incrementally so a corrupt
// length cannot force a huge allocation.
const directReadLimit = 1 << 20

// Reader reads a PNG datastream chunk by chunk. It performs no semantic
// interpretation beyond framing and checksum verification.
type Reader struct {
	r   io.Reader
	hdr [container.ChunkHeaderSize]byte
	n   int64 // bytes consumed
}

// NewReader returns a Reader over r. The caller is expected to call
// ReadSignature before the first ReadChunk.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int64 { return r.n }

// ReadSignature reads and validates the 8-byte PNG signature.
func (r *Reader) ReadSignature() error {
	var sig [container.SignatureSize]byte
	n, err := io.ReadFull(r.r, sig[:])
	r.n += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return malformed(ErrSignature)
		}
		return fmt.Errorf("%w: reading signature: %w", ErrIO, err)
	}
	if string(sig[:]) != container.Signature {
		return malformed(ErrSignature)
	}
	return nil
}

// ReadChunk reads the next chunk. It returns io.EOF when the stream ends
// cleanly on a chunk boundary. Truncation, oversized lengths and CRC
// mismatches are reported as errors matching ErrMalformedChunk.
func (r *Reader) ReadChunk() (Chunk, error) {
	n, err := io.ReadFull(r.r, r.hdr[:])
	r.n += int64(n)
	if err != nil {
		if err == io.EOF {
			return Chunk{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Chunk{}, malformed(fmt.Errorf("%w: header at offset %d", ErrTruncated, r.n-int64(n)))
		}
		return Chunk{}, fmt.Errorf("%w: reading chunk header: %w", ErrIO, err)
	}

	length := container.ReadBE32(r.hdr[0:4])
	typ := ChunkType(container.ReadBE32(r.hdr[4:8]))
	if length > container.MaxChunkPayload {
		return Chunk{}, malformed(fmt.Errorf("%w: %s declares %d bytes", ErrChunkTooLarge, typ, length))
	}
	if !typ.Valid() {
		return Chunk{}, malformed(fmt.Errorf("%w: 0x%08x", ErrInvalidType, uint32(typ)))
	}

	// Payload plus the trailing CRC.
	data, err := r.readPayload(int64(length) + container.CRCSize)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Chunk{}, malformed(fmt.Errorf("%w: %s payload needs %d bytes", ErrTruncated, typ, length))
		}
		return Chunk{}, fmt.Errorf("%w: reading %s payload: %w", ErrIO, typ, err)
	}
	payload := data[:length]
	want := container.ReadBE32(data[length:])

	crc := crc32.NewIEEE()
	crc.Write(r.hdr[4:8])
	crc.Write(payload)
	if got := crc.Sum32(); got != want {
		return Chunk{}, malformed(fmt.Errorf("%w: %s has 0x%08x, computed 0x%08x", ErrChecksum, typ, want, got))
	}
	return Chunk{Type: typ, Data: payload}, nil
}

// readPayload reads exactly size bytes.
func (r *Reader) readPayload(size int64) ([]byte, error) {
	if size <= directReadLimit {
		buf := make([]byte, size)
		n, err := io.ReadFull(r.r, buf)
		r.n += int64(n)
		return buf, err
	}
	var buf bytes.Buffer
	n, err := io.CopyN(&buf, r.r, size)
	r.n += n
	if err == nil && n != size {
		err = io.ErrUnexpectedEOF
	}
	return buf.Bytes(), err
}
