// Package module is the high-level facade over the execution pipeline:
// open a .slate file, load methods lazily, bind inputs and run. It is
// the surface host applications program against; the lower layers stay
// internal.
package module

import (
	"errors"
	"fmt"

	"github.com/slate-ml/slate/internal/dataloader"
	"github.com/slate-ml/slate/internal/evalue"
	"github.com/slate-ml/slate/internal/memory"
	"github.com/slate-ml/slate/internal/program"
	"github.com/slate-ml/slate/internal/tensor"
	"github.com/slate-ml/slate/internal/tracer"
)

// LoadMode selects how a path-constructed module reads the file.
type LoadMode int

const (
	// LoadModeFile reads through regular file I/O, copying bytes.
	LoadModeFile LoadMode = iota
	// LoadModeMmap memory-maps the file for zero-copy constants.
	LoadModeMmap
	// LoadModeMmapUseMlock additionally locks the mapped pages and
	// fails the load if locking is denied.
	LoadModeMmapUseMlock
	// LoadModeMmapUseMlockIgnoreErrors locks the mapped pages on a
	// best-effort basis.
	LoadModeMmapUseMlockIgnoreErrors
)

// String returns the load mode's name.
func (m LoadMode) String() string {
	switch m {
	case LoadModeFile:
		return "file"
	case LoadModeMmap:
		return "mmap"
	case LoadModeMmapUseMlock:
		return "mmap_use_mlock"
	case LoadModeMmapUseMlockIgnoreErrors:
		return "mmap_use_mlock_ignore_errors"
	default:
		return "unknown"
	}
}

// ForwardMethod is the method Forward and SetOutputDataPtr target.
const ForwardMethod = "forward"

// ErrClosed is returned by any operation on a closed module.
var ErrClosed = errors.New("module is closed")

// Option configures a Module at construction time.
type Option func(*Module)

// WithTracer installs an event tracer. Default is the no-op tracer.
func WithTracer(tr tracer.EventTracer) Option {
	return func(m *Module) { m.tr = tr }
}

// WithPlannedAllocator sets the allocator planned buffers are carved
// from. Pass a budgeted arena to cap the module's tensor memory; the
// default allocates from the Go heap.
func WithPlannedAllocator(a memory.Allocator) Option {
	return func(m *Module) { m.alloc = a }
}

// WithTempAllocator sets the kernel scratch allocator shared by all
// methods of this module.
func WithTempAllocator(a memory.Allocator) Option {
	return func(m *Module) { m.temp = a }
}

// methodHolder keeps a loaded method together with the memory backing
// it. The spans pin the planned buffers for the method's lifetime.
type methodHolder struct {
	spans  []memory.Span
	mgr    *memory.Manager
	method *program.Method
}

// Module owns one program and the methods loaded from it. Loading is
// lazy at both levels: the program is parsed on first use and each
// method is instantiated on first access. A Module is not safe for
// concurrent use; run one instance per goroutine.
type Module struct {
	path string
	mode LoadMode

	loader      dataloader.DataLoader
	prog        *program.Program
	ownsProgram bool

	tr    tracer.EventTracer
	alloc memory.Allocator
	temp  memory.Allocator

	methods map[string]*methodHolder
	closed  bool
}

// New creates a module that will read path according to mode on the
// first Load.
func New(path string, mode LoadMode, opts ...Option) *Module {
	m := &Module{path: path, mode: mode, ownsProgram: true}
	m.init(opts)
	return m
}

// NewFromLoader creates a module over an existing loader. The module
// takes ownership; Close releases the loader.
func NewFromLoader(loader dataloader.DataLoader, opts ...Option) *Module {
	m := &Module{loader: loader, ownsProgram: true}
	m.init(opts)
	return m
}

// NewFromProgram creates a module over an already loaded program. The
// program's lifetime stays with the caller; several modules may share
// one program, and Close does not release it.
func NewFromProgram(p *program.Program, opts ...Option) *Module {
	m := &Module{prog: p, ownsProgram: false}
	m.init(opts)
	return m
}

func (m *Module) init(opts []Option) {
	m.tr = tracer.NopTracer{}
	m.alloc = memory.NewMallocAllocator()
	m.temp = memory.NewArenaAllocator(1 << 20)
	m.methods = make(map[string]*methodHolder)
	for _, opt := range opts {
		opt(m)
	}
}

// Load parses the program at the given verification level. Calling it
// again is a no-op; the first successful load wins, including its
// verification level.
func (m *Module) Load(verification program.Verification) error {
	if m.closed {
		return ErrClosed
	}
	if m.prog != nil {
		return nil
	}

	if m.loader == nil {
		loader, err := m.openLoader()
		if err != nil {
			return err
		}
		m.loader = loader
	}

	prog, err := program.Load(m.loader, verification)
	if err != nil {
		return err
	}
	m.prog = prog
	return nil
}

func (m *Module) openLoader() (dataloader.DataLoader, error) {
	switch m.mode {
	case LoadModeFile:
		return dataloader.NewFileLoader(m.path)
	case LoadModeMmap:
		return dataloader.NewMmapLoader(m.path, dataloader.NoMlock)
	case LoadModeMmapUseMlock:
		return dataloader.NewMmapLoader(m.path, dataloader.UseMlock)
	case LoadModeMmapUseMlockIgnoreErrors:
		return dataloader.NewMmapLoader(m.path, dataloader.UseMlockIgnoreErrors)
	default:
		return nil, fmt.Errorf("unknown load mode: %d", m.mode)
	}
}

// IsLoaded reports whether the program has been parsed.
func (m *Module) IsLoaded() bool {
	return m.prog != nil
}

// ensureLoaded parses the program with minimal verification if the
// caller skipped Load.
func (m *Module) ensureLoaded() error {
	if m.closed {
		return ErrClosed
	}
	if m.prog != nil {
		return nil
	}
	return m.Load(program.VerifyMinimal)
}

// MethodNames returns the set of method names in the program.
func (m *Module) MethodNames() (map[string]struct{}, error) {
	if err := m.ensureLoaded(); err != nil {
		return nil, err
	}
	names := make(map[string]struct{}, m.prog.NumMethods())
	for i := 0; i < m.prog.NumMethods(); i++ {
		name, err := m.prog.MethodName(i)
		if err != nil {
			return nil, err
		}
		names[name] = struct{}{}
	}
	return names, nil
}

// MethodMeta loads the named method and returns its metadata. The load
// is forced so metadata is only reported for methods that can actually
// run; a method whose load fails surfaces that error here.
func (m *Module) MethodMeta(name string) (*program.MethodMeta, error) {
	if err := m.LoadMethod(name); err != nil {
		return nil, err
	}
	return m.methods[name].method.Meta(), nil
}

// LoadMethod instantiates the named method: planned buffers are
// allocated to the exact sizes the memory plan dictates, then every
// value and instruction is resolved. The method is inserted only after
// the whole load succeeds, so a failed load leaves the module
// unchanged.
func (m *Module) LoadMethod(name string) error {
	if err := m.ensureLoaded(); err != nil {
		return err
	}
	if _, ok := m.methods[name]; ok {
		return nil
	}

	meta, err := m.prog.MethodMeta(name)
	if err != nil {
		return err
	}

	spans := make([]memory.Span, meta.NumPlannedBuffers())
	for i := range spans {
		size, err := meta.PlannedBufferSize(i)
		if err != nil {
			return err
		}
		buf, err := m.alloc.Allocate(int(size))
		if err != nil {
			return fmt.Errorf("method %q planned buffer %d: %w", name, i, err)
		}
		spans[i] = memory.NewSpan(buf)
	}

	mgr := memory.NewManager(m.alloc, memory.NewHierarchicalAllocator(spans), m.temp)
	method, err := m.prog.LoadMethod(name, mgr, m.tr)
	if err != nil {
		return err
	}

	m.methods[name] = &methodHolder{spans: spans, mgr: mgr, method: method}
	return nil
}

// IsMethodLoaded reports whether the named method is instantiated.
func (m *Module) IsMethodLoaded(name string) bool {
	_, ok := m.methods[name]
	return ok
}

// Method returns the named loaded method, instantiating it on first
// access.
func (m *Module) Method(name string) (*program.Method, error) {
	if err := m.LoadMethod(name); err != nil {
		return nil, err
	}
	return m.methods[name].method, nil
}

// Execute binds inputs positionally, runs the named method once and
// returns fresh copies of its outputs.
func (m *Module) Execute(name string, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	method, err := m.Method(name)
	if err != nil {
		return nil, err
	}
	if len(inputs) != method.InputsSize() {
		return nil, fmt.Errorf("%w: method %q takes %d inputs, got %d",
			program.ErrBinding, name, method.InputsSize(), len(inputs))
	}
	for i, in := range inputs {
		if err := method.SetInput(evalue.FromTensor(in), i); err != nil {
			return nil, err
		}
	}
	if err := method.Execute(); err != nil {
		return nil, err
	}
	return method.GetOutputs()
}

// Forward executes the "forward" method.
func (m *Module) Forward(inputs ...*tensor.Tensor) ([]*tensor.Tensor, error) {
	return m.Execute(ForwardMethod, inputs)
}

// SetOutputDataPtr redirects output index of the "forward" method into
// caller-owned storage, eliminating the output copy on later runs.
func (m *Module) SetOutputDataPtr(data []byte, index int) error {
	method, err := m.Method(ForwardMethod)
	if err != nil {
		return err
	}
	return method.SetOutputDataPtr(data, index)
}

// Close releases the program and its loader. Programs supplied via
// NewFromProgram stay open; their owner closes them.
func (m *Module) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.methods = nil

	if m.prog != nil && m.ownsProgram {
		return m.prog.Close()
	}
	if m.prog == nil && m.loader != nil {
		return m.loader.Close()
	}
	return nil
}
