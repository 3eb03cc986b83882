package mux

import (
	"fmt"
	"hash/crc32"
	"io"

	"github.com/mindfulpath/apngdis/internal/container"
)

// flusher is implemented by buffered sinks such as *bufio.Writer.
type flusher interface {
	Flush() error
}

// Writer writes a PNG datastream chunk by chunk. Each chunk reaches the
// sink in a single Write call and buffered sinks are flushed after every
// chunk, so an interrupted stream ends on a chunk boundary.
type Writer struct {
	w   io.Writer
	buf []byte
	n   int64
}

// NewWriter returns a Writer emitting to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Written returns the number of bytes emitted so far.
func (w *Writer) Written() int64 { return w.n }

// WriteSignature writes the 8-byte PNG signature.
func (w *Writer) WriteSignature() error {
	return w.emit([]byte(container.Signature), "signature")
}

// WriteChunk writes length, type, payload and CRC, in that order.
func (w *Writer) WriteChunk(c Chunk) error {
	if len(c.Data) > container.MaxChunkPayload {
		return fmt.Errorf("%w: %s has %d bytes", ErrChunkTooLarge, c.Type, len(c.Data))
	}
	size := container.ChunkOverhead + len(c.Data)
	if cap(w.buf) < size {
		w.buf = make([]byte, size)
	}
	buf := w.buf[:size]
	container.PutBE32(buf[0:4], uint32(len(c.Data)))
	container.PutBE32(buf[4:8], uint32(c.Type))
	copy(buf[container.ChunkHeaderSize:], c.Data)
	crc := crc32.ChecksumIEEE(buf[4 : container.ChunkHeaderSize+len(c.Data)])
	container.PutBE32(buf[size-container.CRCSize:], crc)
	return w.emit(buf, c.Type.String())
}

func (w *Writer) emit(b []byte, what string) error {
	n, err := w.w.Write(b)
	w.n += int64(n)
	if err == nil && n != len(b) {
		err = io.ErrShortWrite
	}
	if err == nil {
		if f, ok := w.w.(flusher); ok {
			err = f.Flush()
		}
	}
	if err != nil {
		return fmt.Errorf("%w: writing %s: %w", ErrIO, what, err)
	}
	return nil
}
