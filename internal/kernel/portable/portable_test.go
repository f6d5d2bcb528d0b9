package portable

import (
	"math"
	"testing"

	"github.com/slate-ml/slate/internal/evalue"
	"github.com/slate-ml/slate/internal/kernel"
	"github.com/slate-ml/slate/internal/parallel"
	"github.com/slate-ml/slate/internal/tensor"
)

func ctx() *kernel.Context {
	return &kernel.Context{Parallel: parallel.Config{Enabled: false}}
}

func f32Tensor(t *testing.T, shape tensor.Shape, values []float32) *tensor.Tensor {
	t.Helper()
	tt, err := tensor.FromFloat32(shape, values)
	if err != nil {
		t.Fatalf("FromFloat32 failed: %v", err)
	}
	return tt
}

func emptyF32(t *testing.T, shape tensor.Shape) *tensor.Tensor {
	t.Helper()
	tt, err := tensor.New(shape, tensor.Float32)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return tt
}

func argsOf(vals ...evalue.EValue) []*evalue.EValue {
	out := make([]*evalue.EValue, len(vals))
	for i := range vals {
		out[i] = &vals[i]
	}
	return out
}

func TestNeg(t *testing.T) {
	in := f32Tensor(t, tensor.Shape{4}, []float32{1.0, -2.0, 3.0, 0.0})
	out := emptyF32(t, tensor.Shape{4})

	if err := Neg(ctx(), argsOf(evalue.FromTensor(in), evalue.FromTensor(out))); err != nil {
		t.Fatalf("Neg failed: %v", err)
	}

	want := []float32{-1.0, 2.0, -3.0, 0.0}
	got := out.Float32s()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Element %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestNegInt64(t *testing.T) {
	in, _ := tensor.New(tensor.Shape{3}, tensor.Int64)
	copy(in.Int64s(), []int64{5, -7, 0})
	out, _ := tensor.New(tensor.Shape{3}, tensor.Int64)

	if err := Neg(ctx(), argsOf(evalue.FromTensor(in), evalue.FromTensor(out))); err != nil {
		t.Fatalf("Neg failed: %v", err)
	}
	got := out.Int64s()
	if got[0] != -5 || got[1] != 7 || got[2] != 0 {
		t.Errorf("Expected [-5 7 0], got %v", got)
	}
}

func TestNegFloat16(t *testing.T) {
	in, _ := tensor.New(tensor.Shape{2}, tensor.Float16Bits)
	in.Float16s()[0] = tensor.Half16(1.5)
	in.Float16s()[1] = tensor.Half16(-4.0)
	out, _ := tensor.New(tensor.Shape{2}, tensor.Float16Bits)

	if err := Neg(ctx(), argsOf(evalue.FromTensor(in), evalue.FromTensor(out))); err != nil {
		t.Fatalf("Neg failed: %v", err)
	}
	if tensor.Half16ToFloat32(out.Float16s()[0]) != -1.5 {
		t.Errorf("Expected -1.5, got %v", tensor.Half16ToFloat32(out.Float16s()[0]))
	}
	if tensor.Half16ToFloat32(out.Float16s()[1]) != 4.0 {
		t.Errorf("Expected 4.0, got %v", tensor.Half16ToFloat32(out.Float16s()[1]))
	}
}

func TestNegShapeMismatch(t *testing.T) {
	in := f32Tensor(t, tensor.Shape{4}, []float32{1, 2, 3, 4})
	out := emptyF32(t, tensor.Shape{2, 2})
	// Same element count but different declared shape is still a mismatch.
	if err := Neg(ctx(), argsOf(evalue.FromTensor(in), evalue.FromTensor(out))); err == nil {
		t.Error("Expected shape mismatch error")
	}
}

func TestBinaryOps(t *testing.T) {
	a := f32Tensor(t, tensor.Shape{3}, []float32{1, 4, 9})
	b := f32Tensor(t, tensor.Shape{3}, []float32{2, 2, 3})

	tests := []struct {
		name string
		k    kernel.Kernel
		want []float32
	}{
		{"add", Add, []float32{3, 6, 12}},
		{"sub", Sub, []float32{-1, 2, 6}},
		{"mul", Mul, []float32{2, 8, 27}},
		{"div", Div, []float32{0.5, 2, 3}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := emptyF32(t, tensor.Shape{3})
			err := tc.k(ctx(), argsOf(evalue.FromTensor(a), evalue.FromTensor(b), evalue.FromTensor(out)))
			if err != nil {
				t.Fatalf("%s failed: %v", tc.name, err)
			}
			got := out.Float32s()
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("Element %d: expected %v, got %v", i, tc.want[i], got[i])
				}
			}
		})
	}
}

func TestBinaryDTypeMismatch(t *testing.T) {
	a := f32Tensor(t, tensor.Shape{2}, []float32{1, 2})
	b, _ := tensor.New(tensor.Shape{2}, tensor.Int32)
	out := emptyF32(t, tensor.Shape{2})

	if err := Add(ctx(), argsOf(evalue.FromTensor(a), evalue.FromTensor(b), evalue.FromTensor(out))); err == nil {
		t.Error("Expected dtype mismatch error")
	}
}

func TestDivIntZeroDivisor(t *testing.T) {
	a, _ := tensor.New(tensor.Shape{3}, tensor.Int64)
	copy(a.Int64s(), []int64{6, 8, 10})
	b, _ := tensor.New(tensor.Shape{3}, tensor.Int64)
	copy(b.Int64s(), []int64{2, 0, 5})
	out, _ := tensor.New(tensor.Shape{3}, tensor.Int64)

	err := Div(ctx(), argsOf(evalue.FromTensor(a), evalue.FromTensor(b), evalue.FromTensor(out)))
	if err == nil {
		t.Error("Expected error for integer division by zero")
	}
}

func TestDivIntZeroDivisorParallel(t *testing.T) {
	// Large enough to split across parallel chunks; the zero divisor
	// must surface as an error, never as a panic inside a worker.
	n := 1 << 16
	a, _ := tensor.New(tensor.Shape{n}, tensor.Int32)
	b, _ := tensor.New(tensor.Shape{n}, tensor.Int32)
	bs := b.Int32s()
	for i := range bs {
		bs[i] = 1
	}
	bs[n-1] = 0
	out, _ := tensor.New(tensor.Shape{n}, tensor.Int32)

	pctx := &kernel.Context{Parallel: parallel.DefaultConfig()}
	err := Div(pctx, argsOf(evalue.FromTensor(a), evalue.FromTensor(b), evalue.FromTensor(out)))
	if err == nil {
		t.Error("Expected error for integer division by zero")
	}
}

func TestDivInt64(t *testing.T) {
	a, _ := tensor.New(tensor.Shape{3}, tensor.Int64)
	copy(a.Int64s(), []int64{6, 8, 10})
	b, _ := tensor.New(tensor.Shape{3}, tensor.Int64)
	copy(b.Int64s(), []int64{2, 4, 5})
	out, _ := tensor.New(tensor.Shape{3}, tensor.Int64)

	if err := Div(ctx(), argsOf(evalue.FromTensor(a), evalue.FromTensor(b), evalue.FromTensor(out))); err != nil {
		t.Fatalf("Div failed: %v", err)
	}
	got := out.Int64s()
	if got[0] != 3 || got[1] != 2 || got[2] != 2 {
		t.Errorf("Expected [3 2 2], got %v", got)
	}
}

func TestReluAndExp(t *testing.T) {
	in := f32Tensor(t, tensor.Shape{3}, []float32{-1, 0, 2})
	out := emptyF32(t, tensor.Shape{3})

	if err := Relu(ctx(), argsOf(evalue.FromTensor(in), evalue.FromTensor(out))); err != nil {
		t.Fatalf("Relu failed: %v", err)
	}
	got := out.Float32s()
	if got[0] != 0 || got[1] != 0 || got[2] != 2 {
		t.Errorf("Relu: expected [0 0 2], got %v", got)
	}

	if err := Exp(ctx(), argsOf(evalue.FromTensor(in), evalue.FromTensor(out))); err != nil {
		t.Fatalf("Exp failed: %v", err)
	}
	if math.Abs(float64(out.Float32s()[2])-math.Exp(2)) > 1e-4 {
		t.Errorf("Exp: expected e^2, got %v", out.Float32s()[2])
	}
}
