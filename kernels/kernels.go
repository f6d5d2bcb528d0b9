// Package kernels registers the portable CPU kernels. Host
// applications blank-import it so program loading can resolve the
// built-in operators:
//
//	import _ "github.com/slate-ml/slate/kernels"
package kernels

import (
	"github.com/slate-ml/slate/internal/evalue"
	"github.com/slate-ml/slate/internal/kernel"

	_ "github.com/slate-ml/slate/internal/kernel/portable"
)

// Kernel is the operator implementation signature.
type Kernel = kernel.Kernel

// Context carries per-invocation state into kernels.
type Context = kernel.Context

// EValue is the tagged argument type kernels receive. Custom kernels
// name it in their signatures:
//
//	kernels.Register("myapp::scale", func(ctx *kernels.Context, args []*kernels.EValue) error { ... })
type EValue = evalue.EValue

// Register adds a custom operator to the process-wide registry.
var Register = kernel.Register

// Ops returns the registered operator names in sorted order.
func Ops() []string {
	return kernel.Default().Ops()
}
