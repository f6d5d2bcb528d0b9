package program

import (
	"fmt"

	"github.com/slate-ml/slate/internal/tensor"
)

// TensorInfo is the dtype and shape of one method argument.
type TensorInfo struct {
	dtype tensor.DataType
	shape tensor.Shape
}

// DType returns the argument's element type.
func (ti TensorInfo) DType() tensor.DataType {
	return ti.dtype
}

// Shape returns the argument's shape.
func (ti TensorInfo) Shape() tensor.Shape {
	return ti.shape
}

// ByteSize returns the argument's storage size in bytes.
func (ti TensorInfo) ByteSize() int64 {
	return int64(ti.shape.NumElements() * ti.dtype.Size())
}

// MethodMeta describes a method's signature and memory plan without
// instantiating it: input/output arity and types, and the exact size
// of every planned buffer the caller must provide.
type MethodMeta struct {
	name         string
	inputs       []TensorInfo
	outputs      []TensorInfo
	plannedSizes []int64
}

func newMethodMeta(def *MethodDef) (*MethodMeta, error) {
	meta := &MethodMeta{
		name:         def.Name,
		plannedSizes: def.PlannedBuffers,
	}

	infoOf := func(ix int) (TensorInfo, error) {
		if ix < 0 || ix >= len(def.Values) {
			return TensorInfo{}, fmt.Errorf("value index %d out of range (have %d)", ix, len(def.Values))
		}
		v := &def.Values[ix]
		dtype, ok := tensor.ParseDataType(v.DType)
		if !ok {
			return TensorInfo{}, fmt.Errorf("value %d has unknown dtype %q", ix, v.DType)
		}
		return TensorInfo{dtype: dtype, shape: tensor.Shape(v.Shape).Clone()}, nil
	}

	for _, ix := range def.Inputs {
		info, err := infoOf(ix)
		if err != nil {
			return nil, err
		}
		meta.inputs = append(meta.inputs, info)
	}
	for _, ix := range def.Outputs {
		info, err := infoOf(ix)
		if err != nil {
			return nil, err
		}
		meta.outputs = append(meta.outputs, info)
	}
	return meta, nil
}

// Name returns the method's name.
func (m *MethodMeta) Name() string {
	return m.name
}

// NumInputs returns the input arity.
func (m *MethodMeta) NumInputs() int {
	return len(m.inputs)
}

// InputInfo returns the dtype and shape of input i.
func (m *MethodMeta) InputInfo(i int) (TensorInfo, error) {
	if i < 0 || i >= len(m.inputs) {
		return TensorInfo{}, fmt.Errorf("input %d out of range (method %q has %d inputs)", i, m.name, len(m.inputs))
	}
	return m.inputs[i], nil
}

// NumOutputs returns the output arity.
func (m *MethodMeta) NumOutputs() int {
	return len(m.outputs)
}

// OutputInfo returns the dtype and shape of output i.
func (m *MethodMeta) OutputInfo(i int) (TensorInfo, error) {
	if i < 0 || i >= len(m.outputs) {
		return TensorInfo{}, fmt.Errorf("output %d out of range (method %q has %d outputs)", i, m.name, len(m.outputs))
	}
	return m.outputs[i], nil
}

// NumPlannedBuffers returns the number of planning spaces the method
// needs.
func (m *MethodMeta) NumPlannedBuffers() int {
	return len(m.plannedSizes)
}

// PlannedBufferSize returns the exact byte size of planning space i.
func (m *MethodMeta) PlannedBufferSize(i int) (int64, error) {
	if i < 0 || i >= len(m.plannedSizes) {
		return 0, fmt.Errorf("planned buffer %d out of range (method %q has %d)", i, m.name, len(m.plannedSizes))
	}
	return m.plannedSizes[i], nil
}
