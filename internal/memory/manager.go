package memory

// Manager bundles the three allocators a loaded method needs: the
// method allocator that backed the method's planned buffers, the
// hierarchical allocator viewing those buffers, and the temp allocator
// for kernel scratch that is reclaimed between invocations.
//
// The manager borrows the allocators; ownership stays with the caller
// (typically the module hosting the method).
type Manager struct {
	method  Allocator
	planned *HierarchicalAllocator
	temp    Allocator
}

// NewManager creates a manager from the three allocator slots. planned
// may be nil for methods without memory-planned buffers; temp may be nil
// when kernels need no scratch.
func NewManager(method Allocator, planned *HierarchicalAllocator, temp Allocator) *Manager {
	return &Manager{method: method, planned: planned, temp: temp}
}

// MethodAllocator returns the allocator method-lifetime memory is
// drawn from. The module carves planned buffer backing out of it before
// constructing the hierarchical allocator; the remaining per-method
// bookkeeping is ordinary garbage-collected Go values.
func (m *Manager) MethodAllocator() Allocator {
	return m.method
}

// PlannedMemory returns the hierarchical allocator over the planned
// buffers, or nil if the method has none.
func (m *Manager) PlannedMemory() *HierarchicalAllocator {
	return m.planned
}

// TempAllocator returns the scratch allocator shared with kernels.
func (m *Manager) TempAllocator() Allocator {
	return m.temp
}
