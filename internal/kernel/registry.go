// Package kernel dispatches operator names to compute implementations.
//
// A kernel receives an execution context plus its argument values and
// mutates the output-tensor argument in place. Kernels must not allocate
// tensor memory: any transient workspace comes from the context's temp
// allocator, which the method resets between invocations.
package kernel

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/slate-ml/slate/internal/evalue"
	"github.com/slate-ml/slate/internal/memory"
	"github.com/slate-ml/slate/internal/parallel"
)

// ErrOperatorMissing is returned when an op name has no registered
// kernel. Method loading surfaces this before execution can start.
var ErrOperatorMissing = errors.New("no kernel registered for operator")

// Context carries the per-invocation resources a kernel may use.
type Context struct {
	// Temp hands out scratch buffers valid until the invocation ends.
	Temp memory.Allocator
	// Parallel configures the fan-out of elementwise loops.
	Parallel parallel.Config
}

// Kernel computes one operator. The output tensor is the last tensor
// argument by convention; the kernel writes it in place.
type Kernel func(ctx *Context, args []*evalue.EValue) error

// Registry maps operator names to kernels.
type Registry struct {
	mu      sync.RWMutex
	kernels map[string]Kernel
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{kernels: make(map[string]Kernel)}
}

// Register adds or replaces the kernel for op.
func (r *Registry) Register(op string, k Kernel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kernels[op] = k
}

// Lookup resolves op to its kernel.
func (r *Registry) Lookup(op string) (Kernel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kernels[op]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrOperatorMissing, op)
	}
	return k, nil
}

// Ops returns the registered operator names, sorted.
func (r *Registry) Ops() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ops := make([]string, 0, len(r.kernels))
	for op := range r.kernels {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// defaultRegistry holds the process-wide kernel table. Portable kernels
// register themselves here from their package init.
var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a kernel to the process-wide registry.
func Register(op string, k Kernel) {
	defaultRegistry.Register(op, k)
}

// Lookup resolves op in the process-wide registry.
func Lookup(op string) (Kernel, error) {
	return defaultRegistry.Lookup(op)
}
