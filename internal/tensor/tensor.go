package tensor

import (
	"fmt"
	"unsafe"
)

// Tensor is a dtype+shape view over externally owned storage. It never
// allocates, frees or moves the bytes it addresses: storage comes from a
// memory-planned buffer, the program's constant segment, or memory the
// caller rebinds via SetData. This is what keeps method execution
// allocation-free.
type Tensor struct {
	data  []byte
	shape Shape
	dtype DataType
}

// NewView wraps data as a tensor of the given shape and dtype. The
// storage length must match the shape exactly.
func NewView(data []byte, shape Shape, dtype DataType) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	want := shape.NumElements() * dtype.Size()
	if len(data) != want {
		return nil, fmt.Errorf("storage size %d does not match shape %v of %s (%d bytes)",
			len(data), shape, dtype, want)
	}
	return &Tensor{data: data, shape: shape.Clone(), dtype: dtype}, nil
}

// New allocates fresh storage for a tensor. Used only outside the
// execute path (program building, output retrieval).
func New(shape Shape, dtype DataType) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &Tensor{
		data:  make([]byte, shape.NumElements()*dtype.Size()),
		shape: shape.Clone(),
		dtype: dtype,
	}, nil
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// DType returns the element type.
func (t *Tensor) DType() DataType {
	return t.dtype
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return t.shape.NumElements()
}

// ByteSize returns the storage size in bytes.
func (t *Tensor) ByteSize() int {
	return len(t.data)
}

// Data returns the raw storage. Writing through the result mutates the
// underlying planned buffer or caller memory.
func (t *Tensor) Data() []byte {
	return t.data
}

// SetData rebinds the tensor to caller-owned storage of identical size.
// Subsequent kernel writes land directly in the new storage.
func (t *Tensor) SetData(data []byte) error {
	if len(data) != len(t.data) {
		return fmt.Errorf("replacement storage is %d bytes, tensor needs %d", len(data), len(t.data))
	}
	t.data = data
	return nil
}

// CopyFrom copies src's bytes into this tensor's storage. Shape and
// dtype must match exactly; this is the input-binding path.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if src.dtype != t.dtype {
		return fmt.Errorf("dtype mismatch: have %s, got %s", t.dtype, src.dtype)
	}
	if !src.shape.Equal(t.shape) {
		return fmt.Errorf("shape mismatch: have %v, got %v", t.shape, src.shape)
	}
	copy(t.data, src.data)
	return nil
}

// Clone returns a tensor with freshly allocated storage holding a copy
// of the data. Used to hand outputs to the caller without aliasing
// planned memory.
func (t *Tensor) Clone() *Tensor {
	data := make([]byte, len(t.data))
	copy(data, t.data)
	return &Tensor{data: data, shape: t.shape.Clone(), dtype: t.dtype}
}

// Float32s interprets the storage as []float32. Panics on dtype
// mismatch; kernels dispatch on dtype before calling.
func (t *Tensor) Float32s() []float32 {
	t.check(Float32)
	return unsafe.Slice((*float32)(unsafe.Pointer(&t.data[0])), t.NumElements())
}

// Float64s interprets the storage as []float64.
func (t *Tensor) Float64s() []float64 {
	t.check(Float64)
	return unsafe.Slice((*float64)(unsafe.Pointer(&t.data[0])), t.NumElements())
}

// Float16s interprets the storage as raw half-precision bits. Convert
// with Half16ToFloat32.
func (t *Tensor) Float16s() []uint16 {
	t.check(Float16Bits)
	return unsafe.Slice((*uint16)(unsafe.Pointer(&t.data[0])), t.NumElements())
}

// Int32s interprets the storage as []int32.
func (t *Tensor) Int32s() []int32 {
	t.check(Int32)
	return unsafe.Slice((*int32)(unsafe.Pointer(&t.data[0])), t.NumElements())
}

// Int64s interprets the storage as []int64.
func (t *Tensor) Int64s() []int64 {
	t.check(Int64)
	return unsafe.Slice((*int64)(unsafe.Pointer(&t.data[0])), t.NumElements())
}

// Uint8s interprets the storage as []uint8.
func (t *Tensor) Uint8s() []uint8 {
	t.check(Uint8)
	return t.data
}

// Bools interprets the storage as []bool.
func (t *Tensor) Bools() []bool {
	t.check(Bool)
	return unsafe.Slice((*bool)(unsafe.Pointer(&t.data[0])), t.NumElements())
}

func (t *Tensor) check(want DataType) {
	if t.dtype != want {
		panic(fmt.Sprintf("tensor dtype is %s, not %s", t.dtype, want))
	}
	if len(t.data) == 0 {
		panic("tensor has empty storage")
	}
}

// FromFloat32 builds a freshly stored float32 tensor from values. Test
// and host-application convenience.
func FromFloat32(shape Shape, values []float32) (*Tensor, error) {
	t, err := New(shape, Float32)
	if err != nil {
		return nil, err
	}
	if len(values) != t.NumElements() {
		return nil, fmt.Errorf("got %d values for shape %v (%d elements)", len(values), shape, t.NumElements())
	}
	copy(t.Float32s(), values)
	return t, nil
}
