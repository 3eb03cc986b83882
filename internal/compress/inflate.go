// Package compress implements the zlib stages of the PNG image-data
// pipeline: a pooled inflater for reading IDAT/fdAT streams and a deflater
// that can split its input into blocks compressed in parallel on a shared
// pool.Executor.
package compress

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
)

var readerPool sync.Pool

// Reader decompresses a zlib stream. Close returns the underlying
// decompressor to a pool for reuse across frames; it does not close the
// source.
type Reader struct {
	zr io.ReadCloser
}

// NewReader starts decompressing r. It reads the zlib header immediately.
func NewReader(r io.Reader) (*Reader, error) {
	if v := readerPool.Get(); v != nil {
		zr := v.(io.ReadCloser)
		if err := zr.(zlib.Resetter).Reset(r, nil); err != nil {
			readerPool.Put(zr)
			return nil, err
		}
		return &Reader{zr: zr}, nil
	}
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &Reader{zr: zr}, nil
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.zr == nil {
		return 0, io.ErrClosedPipe
	}
	return r.zr.Read(p)
}

// Close releases the decompressor. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.zr == nil {
		return nil
	}
	err := r.zr.Close()
	readerPool.Put(r.zr)
	r.zr = nil
	return err
}
