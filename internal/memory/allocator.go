// Package memory provides the allocators used by method loading and
// execution: a plain arena allocator for runtime bookkeeping, a
// hierarchical allocator serving ahead-of-time planned tensor offsets,
// and the manager that bundles them for a method.
//
// None of the allocators support freeing individual allocations. All
// tensor storage for a method is reserved before execution starts, so
// the execute path performs no heap allocation.
package memory

import (
	"errors"
	"fmt"
)

// ErrOutOfMemory is returned when an allocation exceeds the remaining
// budget of a fixed-size allocator.
var ErrOutOfMemory = errors.New("allocator budget exhausted")

// defaultAlignment applies to every arena allocation.
const defaultAlignment = 8

// Allocator hands out byte buffers that stay valid until the allocator
// itself is discarded. There is no per-allocation free.
type Allocator interface {
	// Allocate returns a zeroed buffer of exactly size bytes.
	Allocate(size int) ([]byte, error)
}

// ArenaAllocator is a bump allocator over a single fixed buffer.
// Allocation is a pointer bump, capacity errors surface as
// ErrOutOfMemory, and Reset reclaims everything at once. Used for
// per-invocation kernel scratch.
type ArenaAllocator struct {
	buffer []byte
	offset int
}

// NewArenaAllocator creates an arena with a budget of size bytes.
func NewArenaAllocator(size int) *ArenaAllocator {
	return &ArenaAllocator{buffer: make([]byte, size)}
}

// Allocate reserves size bytes from the arena, 8-byte aligned.
func (a *ArenaAllocator) Allocate(size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("invalid allocation size %d", size)
	}

	aligned := (a.offset + defaultAlignment - 1) &^ (defaultAlignment - 1)
	if aligned+size > len(a.buffer) {
		return nil, fmt.Errorf("%w: requested %d, remaining %d of %d",
			ErrOutOfMemory, size, len(a.buffer)-aligned, len(a.buffer))
	}

	out := a.buffer[aligned : aligned+size : aligned+size]
	a.offset = aligned + size
	clear(out)
	return out, nil
}

// Reset reclaims the whole arena. Buffers handed out earlier must not be
// used afterwards.
func (a *ArenaAllocator) Reset() {
	a.offset = 0
}

// Used returns the number of bytes currently committed.
func (a *ArenaAllocator) Used() int {
	return a.offset
}

// Budget returns the total arena capacity.
func (a *ArenaAllocator) Budget() int {
	return len(a.buffer)
}

// MallocAllocator allocates from the Go heap without a budget. It is the
// default when the host application supplies no allocator.
type MallocAllocator struct {
	total int64
}

// NewMallocAllocator creates an unbounded allocator.
func NewMallocAllocator() *MallocAllocator {
	return &MallocAllocator{}
}

// Allocate returns a fresh zeroed buffer.
func (m *MallocAllocator) Allocate(size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("invalid allocation size %d", size)
	}
	m.total += int64(size)
	return make([]byte, size), nil
}

// Reset only clears the accounting; the Go runtime reclaims the buffers.
func (m *MallocAllocator) Reset() {
	m.total = 0
}

// TotalAllocated returns the cumulative bytes handed out since the last
// Reset.
func (m *MallocAllocator) TotalAllocated() int64 {
	return m.total
}
