// Package pool provides the process-wide resources shared across frames and
// files: bucketed byte-buffer pools for scanlines and compression blocks,
// and the worker Executor that runs parallel compression.
package pool

import "sync"

// Size classes for bucketed pools.
const (
	Size4K   = 4096    // scanlines of small images
	Size32K  = 32768   // deflate window
	Size128K = 131072  // default compression block
	Size1M   = 1048576 // large scanlines and blocks
)

// bucketIndex returns the pool index for a given size.
func bucketIndex(size int) int {
	switch {
	case size <= Size4K:
		return 0
	case size <= Size32K:
		return 1
	case size <= Size128K:
		return 2
	default:
		return 3
	}
}

var sizes = [4]int{Size4K, Size32K, Size128K, Size1M}

var pools [4]sync.Pool

func init() {
	for i := range pools {
		sz := sizes[i]
		pools[i] = sync.Pool{
			New: func() any {
				b := make([]byte, sz)
				return &b
			},
		}
	}
}

// Get returns a byte slice of length size from the pool. Contents are
// not zeroed. The caller should call Put when done.
func Get(size int) []byte {
	bp := pools[bucketIndex(size)].Get().(*[]byte)
	b := *bp
	if cap(b) < size {
		b = make([]byte, size)
		*bp = b
		return b
	}
	return b[:size]
}

// GetZeroed is Get with the returned bytes cleared.
func GetZeroed(size int) []byte {
	b := Get(size)
	clear(b)
	return b
}

// Put returns a byte slice obtained from Get to the pool. Slices smaller
// than the smallest class are dropped.
func Put(b []byte) {
	c := cap(b)
	if c < Size4K {
		return
	}
	b = b[:c]
	pools[bucketIndex(c)].Put(&b)
}
