package portable

import (
	"fmt"
	"math"

	"github.com/slate-ml/slate/internal/evalue"
	"github.com/slate-ml/slate/internal/kernel"
	"github.com/slate-ml/slate/internal/parallel"
	"github.com/slate-ml/slate/internal/tensor"
)

// unaryFn applies one elementwise op over a [start, end) chunk.
type unaryFn func(in, out *tensor.Tensor, start, end int)

// binaryFn applies one elementwise op over a [start, end) chunk.
type binaryFn func(a, b, out *tensor.Tensor, start, end int)

// unaryChunk instantiates a chunk worker for element type T.
func unaryChunk[T tensor.DType](f func(T) T) unaryFn {
	return func(in, out *tensor.Tensor, start, end int) {
		src := elems[T](in)
		dst := elems[T](out)
		for i := start; i < end; i++ {
			dst[i] = f(src[i])
		}
	}
}

// unaryChunkF16 lifts a float32 op to half-precision storage.
func unaryChunkF16(f func(float32) float32) unaryFn {
	return func(in, out *tensor.Tensor, start, end int) {
		src := elems[uint16](in)
		dst := elems[uint16](out)
		for i := start; i < end; i++ {
			dst[i] = tensor.Half16(f(tensor.Half16ToFloat32(src[i])))
		}
	}
}

// binaryChunk instantiates a chunk worker for element type T.
func binaryChunk[T tensor.DType](f func(T, T) T) binaryFn {
	return func(a, b, out *tensor.Tensor, start, end int) {
		av := elems[T](a)
		bv := elems[T](b)
		dst := elems[T](out)
		for i := start; i < end; i++ {
			dst[i] = f(av[i], bv[i])
		}
	}
}

// binaryChunkF16 lifts a float32 op to half-precision storage.
func binaryChunkF16(f func(float32, float32) float32) binaryFn {
	return func(a, b, out *tensor.Tensor, start, end int) {
		av := elems[uint16](a)
		bv := elems[uint16](b)
		dst := elems[uint16](out)
		for i := start; i < end; i++ {
			dst[i] = tensor.Half16(f(tensor.Half16ToFloat32(av[i]), tensor.Half16ToFloat32(bv[i])))
		}
	}
}

// Dispatch tables. One instantiation per supported element type,
// selected by the runtime dtype tag.
var (
	negTable = map[tensor.DataType]unaryFn{
		tensor.Float32:     unaryChunk(func(v float32) float32 { return -v }),
		tensor.Float64:     unaryChunk(func(v float64) float64 { return -v }),
		tensor.Float16Bits: unaryChunkF16(func(v float32) float32 { return -v }),
		tensor.Int32:       unaryChunk(func(v int32) int32 { return -v }),
		tensor.Int64:       unaryChunk(func(v int64) int64 { return -v }),
	}

	reluTable = map[tensor.DataType]unaryFn{
		tensor.Float32:     unaryChunk(func(v float32) float32 { return max(v, 0) }),
		tensor.Float64:     unaryChunk(func(v float64) float64 { return max(v, 0) }),
		tensor.Float16Bits: unaryChunkF16(func(v float32) float32 { return max(v, 0) }),
	}

	expTable = map[tensor.DataType]unaryFn{
		tensor.Float32:     unaryChunk(func(v float32) float32 { return float32(math.Exp(float64(v))) }),
		tensor.Float64:     unaryChunk(math.Exp),
		tensor.Float16Bits: unaryChunkF16(func(v float32) float32 { return float32(math.Exp(float64(v))) }),
	}

	addTable = binaryTable(
		func(a, b float32) float32 { return a + b },
		func(a, b float64) float64 { return a + b },
		func(a, b int32) int32 { return a + b },
		func(a, b int64) int64 { return a + b },
	)
	subTable = binaryTable(
		func(a, b float32) float32 { return a - b },
		func(a, b float64) float64 { return a - b },
		func(a, b int32) int32 { return a - b },
		func(a, b int64) int64 { return a - b },
	)
	mulTable = binaryTable(
		func(a, b float32) float32 { return a * b },
		func(a, b float64) float64 { return a * b },
		func(a, b int32) int32 { return a * b },
		func(a, b int64) int64 { return a * b },
	)
	divTable = binaryTable(
		func(a, b float32) float32 { return a / b },
		func(a, b float64) float64 { return a / b },
		func(a, b int32) int32 { return a / b },
		func(a, b int64) int64 { return a / b },
	)
)

// binaryTable builds the dtype table for one binary op. The float32
// variant also serves half precision through conversion.
func binaryTable(
	f32 func(float32, float32) float32,
	f64 func(float64, float64) float64,
	i32 func(int32, int32) int32,
	i64 func(int64, int64) int64,
) map[tensor.DataType]binaryFn {
	return map[tensor.DataType]binaryFn{
		tensor.Float32:     binaryChunk(f32),
		tensor.Float64:     binaryChunk(f64),
		tensor.Float16Bits: binaryChunkF16(f32),
		tensor.Int32:       binaryChunk(i32),
		tensor.Int64:       binaryChunk(i64),
	}
}

// runUnary validates the (in, out) pair and runs the table entry for
// the input dtype across parallel chunks.
func runUnary(op string, table map[tensor.DataType]unaryFn, ctx *kernel.Context, args []*evalue.EValue) error {
	in, err := tensorArg(args, 0)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	out, err := tensorArg(args, 1)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if in.DType() != out.DType() {
		return fmt.Errorf("%s: dtype mismatch: in %s, out %s", op, in.DType(), out.DType())
	}
	if !in.Shape().Equal(out.Shape()) {
		return fmt.Errorf("%s: shape mismatch: in %v, out %v", op, in.Shape(), out.Shape())
	}

	f, ok := table[in.DType()]
	if !ok {
		return fmt.Errorf("%s: unsupported dtype %s", op, in.DType())
	}

	parallel.For(in.NumElements(), ctx.Parallel, func(start, end int) {
		f(in, out, start, end)
	})
	return nil
}

// runBinary validates the (a, b, out) triple and runs the table entry.
func runBinary(op string, table map[tensor.DataType]binaryFn, ctx *kernel.Context, args []*evalue.EValue) error {
	a, err := tensorArg(args, 0)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	b, err := tensorArg(args, 1)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	out, err := tensorArg(args, 2)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if a.DType() != b.DType() || a.DType() != out.DType() {
		return fmt.Errorf("%s: dtype mismatch: %s, %s, %s", op, a.DType(), b.DType(), out.DType())
	}
	if !a.Shape().Equal(b.Shape()) || !a.Shape().Equal(out.Shape()) {
		return fmt.Errorf("%s: shape mismatch: %v, %v, %v", op, a.Shape(), b.Shape(), out.Shape())
	}

	f, ok := table[a.DType()]
	if !ok {
		return fmt.Errorf("%s: unsupported dtype %s", op, a.DType())
	}

	parallel.For(a.NumElements(), ctx.Parallel, func(start, end int) {
		f(a, b, out, start, end)
	})
	return nil
}

// Neg computes out = -in elementwise.
func Neg(ctx *kernel.Context, args []*evalue.EValue) error {
	return runUnary("neg", negTable, ctx, args)
}

// Relu computes out = max(in, 0) elementwise.
func Relu(ctx *kernel.Context, args []*evalue.EValue) error {
	return runUnary("relu", reluTable, ctx, args)
}

// Exp computes out = e^in elementwise.
func Exp(ctx *kernel.Context, args []*evalue.EValue) error {
	return runUnary("exp", expTable, ctx, args)
}

// Add computes out = a + b elementwise.
func Add(ctx *kernel.Context, args []*evalue.EValue) error {
	return runBinary("add", addTable, ctx, args)
}

// Sub computes out = a - b elementwise.
func Sub(ctx *kernel.Context, args []*evalue.EValue) error {
	return runBinary("sub", subTable, ctx, args)
}

// Mul computes out = a * b elementwise.
func Mul(ctx *kernel.Context, args []*evalue.EValue) error {
	return runBinary("mul", mulTable, ctx, args)
}

// Div computes out = a / b elementwise. Integer divisors are checked
// for zeros before the loop runs; a division cannot panic mid-dispatch.
func Div(ctx *kernel.Context, args []*evalue.EValue) error {
	if err := checkIntDivisor(args); err != nil {
		return err
	}
	return runBinary("div", divTable, ctx, args)
}

func checkIntDivisor(args []*evalue.EValue) error {
	b, err := tensorArg(args, 1)
	if err != nil {
		return fmt.Errorf("div: %w", err)
	}
	switch b.DType() {
	case tensor.Int32:
		for _, v := range elems[int32](b) {
			if v == 0 {
				return fmt.Errorf("div: integer division by zero")
			}
		}
	case tensor.Int64:
		for _, v := range elems[int64](b) {
			if v == 0 {
				return fmt.Errorf("div: integer division by zero")
			}
		}
	}
	return nil
}
