// Package tensor exports the public tensor API: dtypes, shapes and the
// storage-view tensor type host applications pass into and out of
// module execution.
//
// Example usage:
//
//	import "github.com/slate-ml/slate/tensor"
//
//	in, err := tensor.FromFloat32(tensor.Shape{1, 4}, []float32{1, -2, 3, 0})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(in.Shape(), in.DType())
package tensor

import (
	"github.com/slate-ml/slate/internal/tensor"
)

// DataType is runtime type information for tensor elements.
type DataType = tensor.DataType

// Supported element types.
const (
	Float32     DataType = tensor.Float32
	Float64     DataType = tensor.Float64
	Float16Bits DataType = tensor.Float16Bits
	Int32       DataType = tensor.Int32
	Int64       DataType = tensor.Int64
	Uint8       DataType = tensor.Uint8
	Bool        DataType = tensor.Bool
)

// Shape describes tensor dimensions in row-major order.
type Shape = tensor.Shape

// Tensor is a dtype+shape view over externally owned storage.
type Tensor = tensor.Tensor

// New allocates fresh storage for a tensor.
func New(shape Shape, dtype DataType) (*Tensor, error) {
	return tensor.New(shape, dtype)
}

// NewView wraps existing storage as a tensor. The storage length must
// match the shape exactly.
func NewView(data []byte, shape Shape, dtype DataType) (*Tensor, error) {
	return tensor.NewView(data, shape, dtype)
}

// FromFloat32 builds a float32 tensor from values.
func FromFloat32(shape Shape, values []float32) (*Tensor, error) {
	return tensor.FromFloat32(shape, values)
}

// ParseDataType converts a serialized dtype name back to a DataType.
func ParseDataType(s string) (DataType, bool) {
	return tensor.ParseDataType(s)
}

// Half16 converts a float32 to IEEE 754 half-precision bits.
func Half16(f float32) uint16 {
	return tensor.Half16(f)
}

// Half16ToFloat32 converts half-precision bits back to float32.
func Half16ToFloat32(bits uint16) float32 {
	return tensor.Half16ToFloat32(bits)
}
