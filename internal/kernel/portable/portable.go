// Package portable implements the reference CPU kernels. Every kernel
// mutates its output-tensor argument in place and allocates no tensor
// memory; dtype dispatch happens once per call through a tag lookup
// table, never inside the hot loop.
package portable

import (
	"fmt"
	"unsafe"

	"github.com/slate-ml/slate/internal/evalue"
	"github.com/slate-ml/slate/internal/kernel"
	"github.com/slate-ml/slate/internal/tensor"
)

func init() {
	kernel.Register("slate::neg", Neg)
	kernel.Register("slate::relu", Relu)
	kernel.Register("slate::exp", Exp)
	kernel.Register("slate::add", Add)
	kernel.Register("slate::sub", Sub)
	kernel.Register("slate::mul", Mul)
	kernel.Register("slate::div", Div)
	kernel.Register("slate::sum", Sum)
	kernel.Register("slate::mean", Mean)
	kernel.Register("slate::var", Var)
}

// elems reinterprets a tensor's storage as a typed slice. Kernels call
// it only after the dispatch table has pinned the element type.
func elems[T tensor.DType](t *tensor.Tensor) []T {
	data := t.Data()
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), t.NumElements())
}

// tempSlice carves a typed scratch slice from the invocation's temp
// allocator, reclaimed wholesale when the method runs again. Contexts
// without a temp allocator fall back to the Go heap.
func tempSlice[T any](ctx *kernel.Context, n int) ([]T, error) {
	if n == 0 {
		return nil, nil
	}
	if ctx == nil || ctx.Temp == nil {
		return make([]T, n), nil
	}
	var zero T
	buf, err := ctx.Temp.Allocate(n * int(unsafe.Sizeof(zero)))
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&buf[0])), n), nil
}

// tensorArg fetches args[i] as a tensor.
func tensorArg(args []*evalue.EValue, i int) (*tensor.Tensor, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("missing argument %d (have %d)", i, len(args))
	}
	t, err := args[i].Tensor()
	if err != nil {
		return nil, fmt.Errorf("argument %d: %w", i, err)
	}
	return t, nil
}

// boolArg fetches args[i] as a bool scalar.
func boolArg(args []*evalue.EValue, i int) (bool, error) {
	if i >= len(args) {
		return false, fmt.Errorf("missing argument %d (have %d)", i, len(args))
	}
	b, err := args[i].Bool()
	if err != nil {
		return false, fmt.Errorf("argument %d: %w", i, err)
	}
	return b, nil
}

// dimListArg fetches args[i] as a dim list; None means "all dims".
func dimListArg(args []*evalue.EValue, i int) ([]int64, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("missing argument %d (have %d)", i, len(args))
	}
	if args[i].IsNone() {
		return nil, nil
	}
	dims, err := args[i].IntList()
	if err != nil {
		return nil, fmt.Errorf("argument %d: %w", i, err)
	}
	return dims, nil
}
