// Package main provides the Slate runtime CLI.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"

	"github.com/slate-ml/slate/internal/delegate/webgpu"
	"github.com/slate-ml/slate/internal/tracer"
	"github.com/slate-ml/slate/module"
	"github.com/slate-ml/slate/tensor"

	_ "github.com/slate-ml/slate/kernels"
)

const version = "v0.1.0-dev"

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return
	}

	var err error
	switch args[0] {
	case "version":
		fmt.Printf("Slate Runtime %s\n", version)
	case "info":
		err = runInfo(args[1:])
	case "run":
		err = runExecute(args[1:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "slate: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Slate - On-Device Inference Runtime for Go")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version                Show version")
	fmt.Println("  info <model.slate>     Show program metadata and method signatures")
	fmt.Println("  run <model.slate>      Execute a method with zero-filled inputs")
	fmt.Println("                         [-method name] [-mode file|mmap] [-verify minimal|strict]")
}

func parseMode(s string) (module.LoadMode, error) {
	switch s {
	case "file":
		return module.LoadModeFile, nil
	case "mmap":
		return module.LoadModeMmap, nil
	case "mmap-mlock":
		return module.LoadModeMmapUseMlock, nil
	default:
		return 0, fmt.Errorf("unknown load mode %q", s)
	}
}

func parseVerify(s string) (module.Verification, error) {
	switch s {
	case "minimal":
		return module.VerifyMinimal, nil
	case "strict":
		return module.VerifyInternalConsistency, nil
	default:
		return 0, fmt.Errorf("unknown verification level %q", s)
	}
}

func runInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	modeFlag := fs.String("mode", "mmap", "load mode: file, mmap, mmap-mlock")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: slate info <model.slate>")
	}
	path := fs.Arg(0)

	mode, err := parseMode(*modeFlag)
	if err != nil {
		return err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return err
	}

	// MethodMeta loads each method, so delegate-dispatched programs
	// need their delegates registered up front.
	if err := webgpu.RegisterIfAvailable(); err != nil {
		klog.V(1).InfoS("webgpu delegate unavailable", "err", err)
	}

	m := module.New(path, mode)
	defer m.Close()
	if err := m.Load(module.VerifyInternalConsistency); err != nil {
		return err
	}

	names, err := m.MethodNames()
	if err != nil {
		return err
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	fmt.Printf("File:    %s (%s)\n", path, humanize.Bytes(uint64(stat.Size())))
	fmt.Printf("Methods: %d\n\n", len(sorted))

	for _, name := range sorted {
		meta, err := m.MethodMeta(name)
		if err != nil {
			return err
		}
		fmt.Printf("method %q\n", name)
		for i := 0; i < meta.NumInputs(); i++ {
			info, _ := meta.InputInfo(i)
			fmt.Printf("  input  %d: %s %v\n", i, info.DType(), info.Shape())
		}
		for i := 0; i < meta.NumOutputs(); i++ {
			info, _ := meta.OutputInfo(i)
			fmt.Printf("  output %d: %s %v\n", i, info.DType(), info.Shape())
		}
		var planned int64
		for i := 0; i < meta.NumPlannedBuffers(); i++ {
			size, _ := meta.PlannedBufferSize(i)
			planned += size
		}
		fmt.Printf("  planned memory: %s in %d buffer(s)\n\n",
			humanize.Bytes(uint64(planned)), meta.NumPlannedBuffers())
	}
	return nil
}

func runExecute(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	methodFlag := fs.String("method", "forward", "method to execute")
	modeFlag := fs.String("mode", "mmap", "load mode: file, mmap, mmap-mlock")
	verifyFlag := fs.String("verify", "strict", "verification level: minimal, strict")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: slate run <model.slate>")
	}
	path := fs.Arg(0)

	mode, err := parseMode(*modeFlag)
	if err != nil {
		return err
	}
	verify, err := parseVerify(*verifyFlag)
	if err != nil {
		return err
	}

	if err := webgpu.RegisterIfAvailable(); err != nil {
		klog.V(1).InfoS("webgpu delegate unavailable", "err", err)
	}

	m := module.New(path, mode, module.WithTracer(tracer.NewLogTracer()))
	defer m.Close()
	if err := m.Load(verify); err != nil {
		return err
	}

	meta, err := m.MethodMeta(*methodFlag)
	if err != nil {
		return err
	}
	inputs := make([]*tensor.Tensor, meta.NumInputs())
	for i := range inputs {
		info, err := meta.InputInfo(i)
		if err != nil {
			return err
		}
		inputs[i], err = tensor.New(info.Shape(), info.DType())
		if err != nil {
			return err
		}
	}

	start := time.Now()
	outs, err := m.Execute(*methodFlag, inputs)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("method %q executed in %s\n", *methodFlag, elapsed)
	for i, out := range outs {
		fmt.Printf("  output %d: %s %v (%s)\n", i, out.DType(), out.Shape(),
			humanize.Bytes(uint64(out.ByteSize())))
	}
	return nil
}
