package memory

import "fmt"

// Span is a {pointer, size} view over one pre-sized planned buffer.
type Span struct {
	Data []byte
}

// NewSpan wraps buf. The buffer must not be reallocated or moved after
// the span is constructed; spans reference the memory directly.
func NewSpan(buf []byte) Span {
	return Span{Data: buf}
}

// Size returns the span length in bytes.
func (s Span) Size() int64 {
	return int64(len(s.Data))
}

// HierarchicalAllocator serves the exact offsets the ahead-of-time
// memory planner computed at export time. It owns no memory itself: it
// is a view over one span per planning space, and OffsetView never
// allocates. Every intermediate tensor of a method resolves to a
// pre-reserved sub-range of a planned buffer.
type HierarchicalAllocator struct {
	spans []Span
}

// NewHierarchicalAllocator builds the allocator over spans. Index i
// corresponds to planning space i of the serialized plan.
func NewHierarchicalAllocator(spans []Span) *HierarchicalAllocator {
	return &HierarchicalAllocator{spans: spans}
}

// NumBuffers returns the number of planning spaces.
func (h *HierarchicalAllocator) NumBuffers() int {
	return len(h.spans)
}

// BufferSize returns the capacity of planning space buffer.
func (h *HierarchicalAllocator) BufferSize(buffer uint32) (int64, error) {
	if int(buffer) >= len(h.spans) {
		return 0, fmt.Errorf("planned buffer %d out of range (have %d)", buffer, len(h.spans))
	}
	return h.spans[buffer].Size(), nil
}

// OffsetView returns the size bytes at the planned offset within the
// given planning space. The returned slice aliases the span's memory.
func (h *HierarchicalAllocator) OffsetView(buffer uint32, offset, size int64) ([]byte, error) {
	if int(buffer) >= len(h.spans) {
		return nil, fmt.Errorf("planned buffer %d out of range (have %d)", buffer, len(h.spans))
	}
	span := h.spans[buffer]
	if offset < 0 || size < 0 || offset+size > span.Size() {
		return nil, fmt.Errorf("%w: planned buffer %d: offset %d + size %d > capacity %d",
			ErrOutOfMemory, buffer, offset, size, span.Size())
	}
	return span.Data[offset : offset+size : offset+size], nil
}
