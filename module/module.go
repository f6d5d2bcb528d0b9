// Package module exports the public runtime API for loading and
// executing .slate programs.
//
// Example usage:
//
//	import (
//	    "github.com/slate-ml/slate/module"
//	    "github.com/slate-ml/slate/tensor"
//
//	    _ "github.com/slate-ml/slate/kernels" // portable CPU kernels
//	)
//
//	m := module.New("model.slate", module.LoadModeMmap)
//	defer m.Close()
//
//	in, _ := tensor.FromFloat32(tensor.Shape{1, 4}, []float32{1, -2, 3, 0})
//	outs, err := m.Forward(in)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(outs[0].Float32s()) // [-1 2 -3 0]
package module

import (
	"github.com/slate-ml/slate/internal/dataloader"
	"github.com/slate-ml/slate/internal/module"
	"github.com/slate-ml/slate/internal/program"
)

// Module owns one program and the methods loaded from it.
type Module = module.Module

// Option configures a Module at construction time.
type Option = module.Option

// LoadMode selects how a path-constructed module reads the file.
type LoadMode = module.LoadMode

// Supported load modes.
const (
	LoadModeFile                     LoadMode = module.LoadModeFile
	LoadModeMmap                     LoadMode = module.LoadModeMmap
	LoadModeMmapUseMlock             LoadMode = module.LoadModeMmapUseMlock
	LoadModeMmapUseMlockIgnoreErrors LoadMode = module.LoadModeMmapUseMlockIgnoreErrors
)

// Verification controls how much of a program is checked at load time.
type Verification = program.Verification

// Supported verification levels.
const (
	VerifyMinimal             Verification = program.VerifyMinimal
	VerifyInternalConsistency Verification = program.VerifyInternalConsistency
)

// DataLoader provides random access to a serialized program's bytes.
type DataLoader = dataloader.DataLoader

// Re-exported construction options.
var (
	WithTracer           = module.WithTracer
	WithPlannedAllocator = module.WithPlannedAllocator
	WithTempAllocator    = module.WithTempAllocator
)

// New creates a module that reads path according to mode on first load.
func New(path string, mode LoadMode, opts ...Option) *Module {
	return module.New(path, mode, opts...)
}

// NewFromLoader creates a module over an existing loader.
func NewFromLoader(loader DataLoader, opts ...Option) *Module {
	return module.NewFromLoader(loader, opts...)
}

// NewBufferLoader wraps an in-memory program image in a DataLoader.
func NewBufferLoader(data []byte) DataLoader {
	return dataloader.NewBufferLoader(data)
}
