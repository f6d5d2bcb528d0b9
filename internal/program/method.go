package program

import (
	"fmt"
	"time"

	"github.com/slate-ml/slate/internal/delegate"
	"github.com/slate-ml/slate/internal/evalue"
	"github.com/slate-ml/slate/internal/kernel"
	"github.com/slate-ml/slate/internal/memory"
	"github.com/slate-ml/slate/internal/parallel"
	"github.com/slate-ml/slate/internal/tensor"
	"github.com/slate-ml/slate/internal/tracer"
)

// step is one fully resolved instruction: the kernel or delegate it
// dispatches to and pointers into the method's value table.
type step struct {
	op   string
	run  func(ctx *kernel.Context, args []*evalue.EValue) error
	args []*evalue.EValue
}

// Method is one loaded, executable entry point of a Program. Loading
// resolves every value to concrete storage and every instruction to a
// registered kernel or delegate, so Execute performs no lookups and no
// tensor allocation. A Method is not safe for concurrent use.
type Method struct {
	name     string
	meta     *MethodMeta
	mgr      *memory.Manager
	tr       tracer.EventTracer
	parallel parallel.Config

	values  []evalue.EValue
	inputs  []int // indices into values
	outputs []int
	steps   []step
}

func newMethod(p *Program, def *MethodDef, mgr *memory.Manager, tr tracer.EventTracer) (*Method, error) {
	meta, err := newMethodMeta(def)
	if err != nil {
		return nil, err
	}

	m := &Method{
		name:     def.Name,
		meta:     meta,
		mgr:      mgr,
		tr:       tr,
		parallel: parallel.DefaultConfig(),
		inputs:   def.Inputs,
		outputs:  def.Outputs,
	}

	m.values = make([]evalue.EValue, len(def.Values))
	for i := range def.Values {
		v, err := resolveValue(p, def, i, mgr)
		if err != nil {
			return nil, fmt.Errorf("method %q: %w", def.Name, err)
		}
		m.values[i] = v
	}

	m.steps = make([]step, len(def.Instructions))
	for i, inst := range def.Instructions {
		s, err := m.resolveInstruction(inst)
		if err != nil {
			return nil, fmt.Errorf("method %q instruction %d: %w", def.Name, i, err)
		}
		m.steps[i] = s
	}

	var plannedBytes int64
	for _, size := range def.PlannedBuffers {
		plannedBytes += size
	}
	tr.MethodLoaded(def.Name, plannedBytes)
	return m, nil
}

// resolveValue turns a ValueDef into a live EValue. Constant tensors
// alias the program's data segment; planned tensors alias their
// pre-reserved span.
func resolveValue(p *Program, def *MethodDef, ix int, mgr *memory.Manager) (evalue.EValue, error) {
	v := &def.Values[ix]
	switch v.Kind {
	case KindNone:
		return evalue.None(), nil
	case KindInt:
		return evalue.FromInt(v.Int), nil
	case KindFloat:
		return evalue.FromFloat(v.Float), nil
	case KindBool:
		return evalue.FromBool(v.Bool), nil
	case KindIntList:
		return evalue.FromIntList(v.IntList), nil
	case KindTensor:
	default:
		return evalue.EValue{}, fmt.Errorf("value %d: unknown kind %q", ix, v.Kind)
	}

	dtype, ok := tensor.ParseDataType(v.DType)
	if !ok {
		return evalue.EValue{}, fmt.Errorf("value %d: unknown dtype %q", ix, v.DType)
	}
	shape := tensor.Shape(v.Shape)
	byteSize := int64(shape.NumElements() * dtype.Size())

	var data []byte
	var err error
	switch v.Storage {
	case StorageConstant:
		data, err = p.constantSlice(v.Offset, v.Size)
	case StoragePlanned:
		if mgr.PlannedMemory() == nil {
			return evalue.EValue{}, fmt.Errorf("value %d: planned storage requested but no planned memory provided", ix)
		}
		data, err = mgr.PlannedMemory().OffsetView(v.Buffer, v.Offset, byteSize)
	default:
		return evalue.EValue{}, fmt.Errorf("value %d: unknown storage %q", ix, v.Storage)
	}
	if err != nil {
		return evalue.EValue{}, fmt.Errorf("value %d: %w", ix, err)
	}

	t, err := tensor.NewView(data, shape, dtype)
	if err != nil {
		return evalue.EValue{}, fmt.Errorf("value %d: %w", ix, err)
	}
	return evalue.FromTensor(t), nil
}

func (m *Method) resolveInstruction(inst Instruction) (step, error) {
	args := make([]*evalue.EValue, len(inst.Args))
	for i, ix := range inst.Args {
		if ix < 0 || ix >= len(m.values) {
			return step{}, fmt.Errorf("arg %d out of range (have %d values)", ix, len(m.values))
		}
		args[i] = &m.values[ix]
	}

	if inst.Delegate != "" {
		d, err := delegate.Lookup(inst.Delegate)
		if err != nil {
			return step{}, err
		}
		op := inst.Op
		return step{
			op: inst.Delegate + "::" + op,
			run: func(_ *kernel.Context, args []*evalue.EValue) error {
				return d.Execute(op, args)
			},
			args: args,
		}, nil
	}

	k, err := kernel.Lookup(inst.Op)
	if err != nil {
		return step{}, err
	}
	return step{op: inst.Op, run: k, args: args}, nil
}

// Name returns the method's name.
func (m *Method) Name() string {
	return m.name
}

// Meta returns the method's metadata.
func (m *Method) Meta() *MethodMeta {
	return m.meta
}

// InputsSize returns the input arity.
func (m *Method) InputsSize() int {
	return len(m.inputs)
}

// OutputsSize returns the output arity.
func (m *Method) OutputsSize() int {
	return len(m.outputs)
}

// SetInput binds value to input slot index by copying tensor bytes into
// the input's planned storage. The value's kind, dtype and shape must
// match the method signature exactly.
func (m *Method) SetInput(value evalue.EValue, index int) error {
	if index < 0 || index >= len(m.inputs) {
		return fmt.Errorf("%w: input %d out of range (method %q has %d inputs)",
			ErrBinding, index, m.name, len(m.inputs))
	}
	dst := &m.values[m.inputs[index]]

	dstTensor, err := dst.Tensor()
	if err != nil {
		return fmt.Errorf("%w: input %d: %v", ErrBinding, index, err)
	}
	srcTensor, err := value.Tensor()
	if err != nil {
		return fmt.Errorf("%w: input %d expects a tensor, got %s", ErrBinding, index, value.Kind())
	}
	if err := dstTensor.CopyFrom(srcTensor); err != nil {
		return fmt.Errorf("%w: input %d: %v", ErrBinding, index, err)
	}
	return nil
}

// Execute runs the instruction list once. The temp arena is reset
// before the first instruction; planned storage carries no state
// between calls beyond what instructions wrote. The first instruction
// error aborts execution and is returned as is.
func (m *Method) Execute() error {
	if r, ok := m.mgr.TempAllocator().(interface{ Reset() }); ok {
		r.Reset()
	}
	ctx := &kernel.Context{
		Temp:     m.mgr.TempAllocator(),
		Parallel: m.parallel,
	}

	m.tr.ExecuteBegin(m.name)
	start := time.Now()
	for i, s := range m.steps {
		m.tr.OperatorBegin(m.name, s.op, i)
		err := s.run(ctx, s.args)
		m.tr.OperatorEnd(m.name, s.op, i, err)
		if err != nil {
			m.tr.ExecuteEnd(m.name, time.Since(start), err)
			return err
		}
	}
	m.tr.ExecuteEnd(m.name, time.Since(start), nil)
	return nil
}

// GetOutput returns a copy of output i. The copy owns fresh storage;
// later executions do not mutate it.
func (m *Method) GetOutput(i int) (*tensor.Tensor, error) {
	if i < 0 || i >= len(m.outputs) {
		return nil, fmt.Errorf("output %d out of range (method %q has %d outputs)", i, m.name, len(m.outputs))
	}
	t, err := m.values[m.outputs[i]].Tensor()
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// GetOutputs returns copies of all outputs in signature order.
func (m *Method) GetOutputs() ([]*tensor.Tensor, error) {
	outs := make([]*tensor.Tensor, len(m.outputs))
	for i := range m.outputs {
		t, err := m.GetOutput(i)
		if err != nil {
			return nil, err
		}
		outs[i] = t
	}
	return outs, nil
}

// SetOutputDataPtr rebinds output slot index to caller-owned storage.
// Subsequent executions write the output directly into data, skipping
// the GetOutputs copy.
func (m *Method) SetOutputDataPtr(data []byte, index int) error {
	if index < 0 || index >= len(m.outputs) {
		return fmt.Errorf("%w: output %d out of range (method %q has %d outputs)",
			ErrBinding, index, m.name, len(m.outputs))
	}
	t, err := m.values[m.outputs[index]].Tensor()
	if err != nil {
		return fmt.Errorf("%w: output %d: %v", ErrBinding, index, err)
	}
	if err := t.SetData(data); err != nil {
		return fmt.Errorf("%w: output %d: %v", ErrBinding, index, err)
	}
	return nil
}
