// Package tensor provides the dtype, shape and storage-view types the
// Slate runtime passes across the execution boundary.
package tensor

import "github.com/x448/float16"

// DType is a constraint over the Go element types kernels can be
// instantiated for. Float16 values travel as raw uint16 bits.
type DType interface {
	~float32 | ~float64 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~bool
}

// DataType is runtime type information for tensor elements.
type DataType int

// Supported element types.
const (
	Float32 DataType = iota
	Float64
	Float16Bits
	Int32
	Int64
	Uint8
	Bool
)

// Size returns the byte size of one element.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Float16Bits:
		return 2
	case Uint8, Bool:
		return 1
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Float16Bits:
		return "float16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// ParseDataType converts the serialized dtype name back to a DataType.
func ParseDataType(s string) (DataType, bool) {
	switch s {
	case "float32":
		return Float32, true
	case "float64":
		return Float64, true
	case "float16":
		return Float16Bits, true
	case "int32":
		return Int32, true
	case "int64":
		return Int64, true
	case "uint8":
		return Uint8, true
	case "bool":
		return Bool, true
	default:
		return 0, false
	}
}

// Half16 converts a float32 to IEEE 754 half-precision bits.
func Half16(f float32) uint16 {
	return float16.Fromfloat32(f).Bits()
}

// Half16ToFloat32 converts half-precision bits back to float32.
func Half16ToFloat32(bits uint16) float32 {
	return float16.Frombits(bits).Float32()
}
