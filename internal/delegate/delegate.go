// Package delegate defines the backend-delegate interface and the
// process-wide registry instruction resolution consults. A delegate
// claims whole instructions by name and executes them on hardware the
// portable kernels do not reach.
package delegate

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/slate-ml/slate/internal/evalue"
)

// ErrDelegateMissing is returned when an instruction names a delegate
// that no backend has registered.
var ErrDelegateMissing = errors.New("delegate not registered")

// Delegate executes instructions on behalf of a backend. Implementations
// own their device state and release it in Close.
type Delegate interface {
	// Name returns the identifier instructions reference.
	Name() string
	// Execute runs one delegated instruction.
	Execute(op string, args []*evalue.EValue) error
	// Close releases backend resources.
	Close() error
}

// Registry maps delegate names to implementations.
type Registry struct {
	mu        sync.RWMutex
	delegates map[string]Delegate
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{delegates: make(map[string]Delegate)}
}

// Register adds d under its own name, replacing any previous entry.
func (r *Registry) Register(d Delegate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delegates[d.Name()] = d
}

// Lookup resolves a delegate by name.
func (r *Registry) Lookup(name string) (Delegate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.delegates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDelegateMissing, name)
	}
	return d, nil
}

// Names returns the registered delegate names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.delegates))
	for name := range r.delegates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Register adds d to the process-wide registry.
func Register(d Delegate) {
	defaultRegistry.Register(d)
}

// Lookup resolves a delegate from the process-wide registry.
func Lookup(name string) (Delegate, error) {
	return defaultRegistry.Lookup(name)
}
