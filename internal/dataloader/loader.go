// Package dataloader abstracts access to the bytes of a serialized program.
//
// A program container can live in a regular file, a memory-mapped region,
// or an in-memory buffer. All loaders expose the same narrow surface:
// random-access byte-range reads plus the total size. Mmap-backed loaders
// return zero-copy slices; the slices stay valid until Close.
package dataloader

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is returned when a requested byte range extends beyond
// the underlying data.
var ErrOutOfRange = errors.New("read range out of bounds")

// DataLoader provides random access to a serialized program's bytes.
type DataLoader interface {
	// Read returns size bytes starting at offset. Implementations backed
	// by a memory map may return a slice into the mapped region; callers
	// must not write to the result.
	Read(offset, size int64) ([]byte, error)

	// Size returns the total number of bytes available.
	Size() int64

	// Close releases the underlying resource. Slices previously returned
	// by zero-copy loaders become invalid after Close.
	Close() error
}

// BufferLoader serves reads from an in-memory byte slice.
type BufferLoader struct {
	data []byte
}

// NewBufferLoader wraps data in a DataLoader. The loader does not copy;
// the caller must not mutate data while the loader is in use.
func NewBufferLoader(data []byte) *BufferLoader {
	return &BufferLoader{data: data}
}

// Read returns a zero-copy slice of the buffer.
func (b *BufferLoader) Read(offset, size int64) ([]byte, error) {
	if err := checkRange(offset, size, int64(len(b.data))); err != nil {
		return nil, err
	}
	return b.data[offset : offset+size], nil
}

// Size returns the buffer length.
func (b *BufferLoader) Size() int64 {
	return int64(len(b.data))
}

// Close is a no-op for buffer-backed loaders.
func (b *BufferLoader) Close() error {
	return nil
}

func checkRange(offset, size, total int64) error {
	if offset < 0 || size < 0 {
		return fmt.Errorf("%w: offset=%d size=%d", ErrOutOfRange, offset, size)
	}
	if offset+size > total {
		return fmt.Errorf("%w: offset %d + size %d > total %d", ErrOutOfRange, offset, size, total)
	}
	return nil
}
