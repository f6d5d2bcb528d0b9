// Package webgpu implements a backend delegate that runs delegated
// instructions as WebGPU compute shaders. Uses go-webgpu
// (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
package webgpu

import (
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/slate-ml/slate/internal/delegate"
	"github.com/slate-ml/slate/internal/evalue"
	"github.com/slate-ml/slate/internal/tensor"
)

// DelegateName is the identifier instructions use to target this
// backend.
const DelegateName = "webgpu"

// Delegate executes delegated instructions on the GPU. Inputs are
// uploaded per call, results are read back through a staging buffer
// and copied into the instruction's output tensor, so planned-memory
// semantics are preserved.
type Delegate struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	// Shader and pipeline cache
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	adapterInfo *wgpu.AdapterInfoGo
	closed      bool
}

// New creates the WebGPU delegate.
// Returns an error if WebGPU is not available or initialization fails.
func New() (d *Delegate, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			d = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return nil, fmt.Errorf("webgpu: failed to create instance: %w", instanceErr)
	}
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", adapterErr)
	}

	adapterInfo, _ := adapter.GetInfo()

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", deviceErr)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	return &Delegate{
		instance:    instance,
		adapter:     adapter,
		device:      device,
		queue:       queue,
		shaders:     make(map[string]*wgpu.ShaderModule),
		pipelines:   make(map[string]*wgpu.ComputePipeline),
		adapterInfo: adapterInfo,
	}, nil
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return false
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()
	return true
}

// RegisterIfAvailable creates the delegate and registers it in the
// process-wide registry. Hosts without a GPU get a clean error and no
// registration.
func RegisterIfAvailable() error {
	d, err := New()
	if err != nil {
		return err
	}
	delegate.Register(d)
	return nil
}

// Name implements delegate.Delegate.
func (d *Delegate) Name() string {
	return DelegateName
}

// AdapterName returns a human-readable adapter description.
func (d *Delegate) AdapterName() string {
	if d.adapterInfo != nil {
		return fmt.Sprintf("%s %s", d.adapterInfo.Device, d.adapterInfo.Vendor)
	}
	return "unknown"
}

// Execute implements delegate.Delegate.
func (d *Delegate) Execute(op string, args []*evalue.EValue) error {
	if d.closed {
		return fmt.Errorf("webgpu: delegate is closed")
	}
	switch op {
	case "neg":
		in, out, err := unaryTensors(args)
		if err != nil {
			return fmt.Errorf("webgpu: %s: %w", op, err)
		}
		return d.runUnaryOp(in, out, "neg", negShader)
	case "add":
		a, b, out, err := binaryTensors(args)
		if err != nil {
			return fmt.Errorf("webgpu: %s: %w", op, err)
		}
		return d.runBinaryOp(a, b, out, "add", addShader)
	case "mul":
		a, b, out, err := binaryTensors(args)
		if err != nil {
			return fmt.Errorf("webgpu: %s: %w", op, err)
		}
		return d.runBinaryOp(a, b, out, "mul", mulShader)
	default:
		return fmt.Errorf("webgpu: unsupported op %q", op)
	}
}

func unaryTensors(args []*evalue.EValue) (in, out *tensor.Tensor, err error) {
	if len(args) != 2 {
		return nil, nil, fmt.Errorf("expected 2 args, got %d", len(args))
	}
	if in, err = args[0].Tensor(); err != nil {
		return nil, nil, err
	}
	if out, err = args[1].Tensor(); err != nil {
		return nil, nil, err
	}
	if err = checkFloat32(in, out); err != nil {
		return nil, nil, err
	}
	return in, out, nil
}

func binaryTensors(args []*evalue.EValue) (a, b, out *tensor.Tensor, err error) {
	if len(args) != 3 {
		return nil, nil, nil, fmt.Errorf("expected 3 args, got %d", len(args))
	}
	if a, err = args[0].Tensor(); err != nil {
		return nil, nil, nil, err
	}
	if b, err = args[1].Tensor(); err != nil {
		return nil, nil, nil, err
	}
	if out, err = args[2].Tensor(); err != nil {
		return nil, nil, nil, err
	}
	if err = checkFloat32(a, b, out); err != nil {
		return nil, nil, nil, err
	}
	return a, b, out, nil
}

func checkFloat32(tensors ...*tensor.Tensor) error {
	first := tensors[0]
	for _, t := range tensors {
		if t.DType() != tensor.Float32 {
			return fmt.Errorf("only float32 is supported, got %s", t.DType())
		}
		if !t.Shape().Equal(first.Shape()) {
			return fmt.Errorf("shape mismatch: %v vs %v", first.Shape(), t.Shape())
		}
	}
	return nil
}

// Close implements delegate.Delegate. It releases all WebGPU
// resources; the delegate must not be used afterwards.
func (d *Delegate) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range d.pipelines {
		p.Release()
	}
	d.pipelines = nil
	for _, s := range d.shaders {
		s.Release()
	}
	d.shaders = nil

	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
	return nil
}
