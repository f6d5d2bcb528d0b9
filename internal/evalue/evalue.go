// Package evalue defines the tagged value type used to pass typed
// inputs and outputs across the execution boundary.
package evalue

import (
	"errors"
	"fmt"

	"github.com/slate-ml/slate/internal/tensor"
)

// ErrTagMismatch is returned when a value is accessed as the wrong kind.
var ErrTagMismatch = errors.New("evalue tag mismatch")

// Kind tags the payload of an EValue.
type Kind int

// Supported value kinds.
const (
	KindNone Kind = iota
	KindTensor
	KindInt
	KindFloat
	KindBool
	KindIntList
)

// String returns the kind's serialized name.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTensor:
		return "tensor"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindIntList:
		return "int_list"
	default:
		return "unknown"
	}
}

// EValue is the tagged union crossing the Method boundary. Scalars are
// stored inline; tensors hold a storage view.
type EValue struct {
	kind    Kind
	tensor  *tensor.Tensor
	i       int64
	f       float64
	b       bool
	intList []int64
}

// None returns the empty value.
func None() EValue {
	return EValue{kind: KindNone}
}

// FromTensor wraps a tensor view.
func FromTensor(t *tensor.Tensor) EValue {
	return EValue{kind: KindTensor, tensor: t}
}

// FromInt wraps an integer scalar.
func FromInt(v int64) EValue {
	return EValue{kind: KindInt, i: v}
}

// FromFloat wraps a floating-point scalar.
func FromFloat(v float64) EValue {
	return EValue{kind: KindFloat, f: v}
}

// FromBool wraps a boolean scalar.
func FromBool(v bool) EValue {
	return EValue{kind: KindBool, b: v}
}

// FromIntList wraps an integer list (used for dim lists).
func FromIntList(v []int64) EValue {
	return EValue{kind: KindIntList, intList: v}
}

// Kind returns the value's tag.
func (v *EValue) Kind() Kind {
	return v.kind
}

// IsNone reports whether the value is empty.
func (v *EValue) IsNone() bool {
	return v.kind == KindNone
}

// Tensor returns the tensor payload or a tag-mismatch error.
func (v *EValue) Tensor() (*tensor.Tensor, error) {
	if v.kind != KindTensor {
		return nil, fmt.Errorf("%w: have %s, want tensor", ErrTagMismatch, v.kind)
	}
	return v.tensor, nil
}

// MustTensor returns the tensor payload, panicking on mismatch. For use
// after load-time validation has pinned the tag.
func (v *EValue) MustTensor() *tensor.Tensor {
	t, err := v.Tensor()
	if err != nil {
		panic(err)
	}
	return t
}

// Int returns the integer payload or a tag-mismatch error.
func (v *EValue) Int() (int64, error) {
	if v.kind != KindInt {
		return 0, fmt.Errorf("%w: have %s, want int", ErrTagMismatch, v.kind)
	}
	return v.i, nil
}

// Float returns the float payload or a tag-mismatch error.
func (v *EValue) Float() (float64, error) {
	if v.kind != KindFloat {
		return 0, fmt.Errorf("%w: have %s, want float", ErrTagMismatch, v.kind)
	}
	return v.f, nil
}

// Bool returns the boolean payload or a tag-mismatch error.
func (v *EValue) Bool() (bool, error) {
	if v.kind != KindBool {
		return false, fmt.Errorf("%w: have %s, want bool", ErrTagMismatch, v.kind)
	}
	return v.b, nil
}

// IntList returns the integer-list payload or a tag-mismatch error.
func (v *EValue) IntList() ([]int64, error) {
	if v.kind != KindIntList {
		return nil, fmt.Errorf("%w: have %s, want int_list", ErrTagMismatch, v.kind)
	}
	return v.intList, nil
}
