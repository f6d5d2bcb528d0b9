package webgpu

import (
	"testing"

	"github.com/slate-ml/slate/internal/evalue"
	"github.com/slate-ml/slate/internal/tensor"
)

func newTestDelegate(t *testing.T) *Delegate {
	t.Helper()
	if !IsAvailable() {
		t.Skip("WebGPU not available on this system")
	}
	d, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func args(tensors ...*tensor.Tensor) []*evalue.EValue {
	out := make([]*evalue.EValue, len(tensors))
	for i, tt := range tensors {
		v := evalue.FromTensor(tt)
		out[i] = &v
	}
	return out
}

func TestExecuteNeg(t *testing.T) {
	d := newTestDelegate(t)

	in, _ := tensor.FromFloat32(tensor.Shape{4}, []float32{1, -2, 3, 0})
	out, _ := tensor.New(tensor.Shape{4}, tensor.Float32)

	if err := d.Execute("neg", args(in, out)); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	want := []float32{-1, 2, -3, 0}
	for i, w := range want {
		if out.Float32s()[i] != w {
			t.Errorf("Element %d: expected %v, got %v", i, w, out.Float32s()[i])
		}
	}
}

func TestExecuteAddMul(t *testing.T) {
	d := newTestDelegate(t)

	a, _ := tensor.FromFloat32(tensor.Shape{3}, []float32{1, 2, 3})
	b, _ := tensor.FromFloat32(tensor.Shape{3}, []float32{4, 5, 6})
	out, _ := tensor.New(tensor.Shape{3}, tensor.Float32)

	if err := d.Execute("add", args(a, b, out)); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if out.Float32s()[2] != 9 {
		t.Errorf("add: expected 9, got %v", out.Float32s()[2])
	}

	if err := d.Execute("mul", args(a, b, out)); err != nil {
		t.Fatalf("mul failed: %v", err)
	}
	if out.Float32s()[2] != 18 {
		t.Errorf("mul: expected 18, got %v", out.Float32s()[2])
	}
}

func TestExecuteRejectsNonFloat32(t *testing.T) {
	d := newTestDelegate(t)

	in, _ := tensor.New(tensor.Shape{4}, tensor.Int32)
	out, _ := tensor.New(tensor.Shape{4}, tensor.Int32)

	if err := d.Execute("neg", args(in, out)); err == nil {
		t.Error("Expected error for non-float32 input")
	}
}

func TestExecuteUnknownOp(t *testing.T) {
	d := newTestDelegate(t)

	in, _ := tensor.New(tensor.Shape{4}, tensor.Float32)
	out, _ := tensor.New(tensor.Shape{4}, tensor.Float32)

	if err := d.Execute("softmax", args(in, out)); err == nil {
		t.Error("Expected error for unsupported op")
	}
}
