package tensor

import (
	"math"
	"testing"
)

func TestShape(t *testing.T) {
	s := Shape{2, 3, 4}
	if s.NumElements() != 24 {
		t.Errorf("Expected 24 elements, got %d", s.NumElements())
	}
	if !s.Equal(Shape{2, 3, 4}) {
		t.Error("Equal shapes reported unequal")
	}
	if s.Equal(Shape{2, 3}) {
		t.Error("Unequal shapes reported equal")
	}

	strides := s.ComputeStrides()
	want := []int{12, 4, 1}
	for i := range want {
		if strides[i] != want[i] {
			t.Errorf("Stride %d: expected %d, got %d", i, want[i], strides[i])
		}
	}

	if err := (Shape{2, 0}).Validate(); err == nil {
		t.Error("Expected validation error for zero dimension")
	}
	if (Shape{}).NumElements() != 1 {
		t.Error("Scalar shape must have one element")
	}
}

func TestNewViewSizeChecks(t *testing.T) {
	if _, err := NewView(make([]byte, 16), Shape{4}, Float32); err != nil {
		t.Fatalf("NewView failed: %v", err)
	}
	if _, err := NewView(make([]byte, 15), Shape{4}, Float32); err == nil {
		t.Error("Expected size mismatch error")
	}
	if _, err := NewView(make([]byte, 8), Shape{4}, Float16Bits); err != nil {
		t.Errorf("float16 view failed: %v", err)
	}
}

func TestTensorViewAliasesStorage(t *testing.T) {
	storage := make([]byte, 16)
	tt, err := NewView(storage, Shape{4}, Float32)
	if err != nil {
		t.Fatalf("NewView failed: %v", err)
	}

	tt.Float32s()[2] = 7.5
	if storage[8] == 0 && storage[9] == 0 && storage[10] == 0 && storage[11] == 0 {
		t.Error("Write through view did not reach backing storage")
	}
}

func TestCopyFrom(t *testing.T) {
	dst, _ := New(Shape{4}, Float32)
	src, err := FromFloat32(Shape{4}, []float32{1, -2, 3, 0})
	if err != nil {
		t.Fatalf("FromFloat32 failed: %v", err)
	}

	if err := dst.CopyFrom(src); err != nil {
		t.Fatalf("CopyFrom failed: %v", err)
	}
	if dst.Float32s()[1] != -2 {
		t.Errorf("Expected -2, got %v", dst.Float32s()[1])
	}

	wrongShape, _ := New(Shape{2, 2}, Float32)
	if err := dst.CopyFrom(wrongShape); err == nil {
		t.Error("Expected shape mismatch error")
	}
	wrongType, _ := New(Shape{4}, Int32)
	if err := dst.CopyFrom(wrongType); err == nil {
		t.Error("Expected dtype mismatch error")
	}
}

func TestSetData(t *testing.T) {
	tt, _ := New(Shape{2}, Float32)
	replacement := make([]byte, 8)
	if err := tt.SetData(replacement); err != nil {
		t.Fatalf("SetData failed: %v", err)
	}
	tt.Float32s()[0] = 3
	if replacement[0] == 0 && replacement[1] == 0 && replacement[2] == 0 && replacement[3] == 0 {
		t.Error("Write did not reach rebound storage")
	}
	if err := tt.SetData(make([]byte, 4)); err == nil {
		t.Error("Expected size mismatch error")
	}
}

func TestHalf16RoundTrip(t *testing.T) {
	for _, f := range []float32{0, 1, -2.5, 65504} {
		got := Half16ToFloat32(Half16(f))
		if got != f {
			t.Errorf("Half16 round trip: expected %v, got %v", f, got)
		}
	}
	if !math.IsInf(float64(Half16ToFloat32(Half16(1e6))), 1) {
		t.Error("Expected overflow to +Inf in half precision")
	}
}
