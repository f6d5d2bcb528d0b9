package program

import (
	"errors"
	"testing"

	"github.com/slate-ml/slate/internal/dataloader"
	"github.com/slate-ml/slate/internal/evalue"
	"github.com/slate-ml/slate/internal/memory"
	"github.com/slate-ml/slate/internal/tensor"

	_ "github.com/slate-ml/slate/internal/kernel/portable"
)

// negProgram builds a single-method program: out = -in over float32
// [1,4], both tensors memory-planned into one buffer.
func negProgram() *Builder {
	b := NewBuilder()
	mb := b.Method("forward")
	buf := mb.AddPlannedBuffer(32)
	in := mb.AddPlannedTensor(tensor.Float32, tensor.Shape{1, 4}, buf, 0)
	out := mb.AddPlannedTensor(tensor.Float32, tensor.Shape{1, 4}, buf, 16)
	mb.SetInputs(in)
	mb.SetOutputs(out)
	mb.AddInstruction("slate::neg", in, out)
	return b
}

func loadProgram(t *testing.T, b *Builder, version int, level Verification) *Program {
	t.Helper()
	data, err := b.Bytes(version)
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	p, err := Load(dataloader.NewBufferLoader(data), level)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return p
}

func managerFor(t *testing.T, meta *MethodMeta) *memory.Manager {
	t.Helper()
	spans := make([]memory.Span, meta.NumPlannedBuffers())
	for i := range spans {
		size, err := meta.PlannedBufferSize(i)
		if err != nil {
			t.Fatalf("PlannedBufferSize failed: %v", err)
		}
		spans[i] = memory.NewSpan(make([]byte, size))
	}
	return memory.NewManager(
		memory.NewMallocAllocator(),
		memory.NewHierarchicalAllocator(spans),
		memory.NewArenaAllocator(4096),
	)
}

func TestLoadV1(t *testing.T) {
	p := loadProgram(t, negProgram(), FormatVersion, VerifyMinimal)
	defer p.Close()

	if p.Version() != FormatVersion {
		t.Errorf("Expected version 1, got %d", p.Version())
	}
	if p.NumMethods() != 1 {
		t.Fatalf("Expected 1 method, got %d", p.NumMethods())
	}
	name, err := p.MethodName(0)
	if err != nil || name != "forward" {
		t.Errorf("Expected method forward, got %q (%v)", name, err)
	}
	if _, err := p.MethodName(1); err == nil {
		t.Error("Expected error for method index out of range")
	}
}

func TestLoadV2Checksum(t *testing.T) {
	b := NewBuilder()
	mb := b.Method("forward")
	c := mb.AddConstantTensor(mustTensor(t, tensor.Shape{2}, []float32{1, 2}))
	mb.SetOutputs(c)

	data, err := b.Bytes(FormatVersionV2)
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}

	p, err := Load(dataloader.NewBufferLoader(data), VerifyInternalConsistency)
	if err != nil {
		t.Fatalf("Load failed on intact file: %v", err)
	}
	_ = p.Close()

	// Corrupt one byte of the data segment.
	corrupted := make([]byte, len(data))
	copy(corrupted, data)
	corrupted[len(corrupted)-1] ^= 0xFF

	if _, err := Load(dataloader.NewBufferLoader(corrupted), VerifyInternalConsistency); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("Expected ErrChecksumMismatch, got %v", err)
	}

	// Minimal verification skips the checksum.
	if p, err := Load(dataloader.NewBufferLoader(corrupted), VerifyMinimal); err != nil {
		t.Errorf("Minimal verification must not validate the checksum: %v", err)
	} else {
		_ = p.Close()
	}
}

func TestLoadInvalidMagic(t *testing.T) {
	data, err := negProgram().Bytes(FormatVersion)
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	copy(data[0:4], "XXXX")

	if _, err := Load(dataloader.NewBufferLoader(data), VerifyMinimal); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("Expected ErrInvalidMagic, got %v", err)
	}
}

func TestLoadUnsupportedVersion(t *testing.T) {
	data, err := negProgram().Bytes(FormatVersion)
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	data[4] = 99

	if _, err := Load(dataloader.NewBufferLoader(data), VerifyMinimal); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("Expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestMethodMeta(t *testing.T) {
	p := loadProgram(t, negProgram(), FormatVersion, VerifyInternalConsistency)
	defer p.Close()

	meta, err := p.MethodMeta("forward")
	if err != nil {
		t.Fatalf("MethodMeta failed: %v", err)
	}
	if meta.NumInputs() != 1 || meta.NumOutputs() != 1 {
		t.Errorf("Expected 1 input and 1 output, got %d and %d", meta.NumInputs(), meta.NumOutputs())
	}
	info, err := meta.InputInfo(0)
	if err != nil {
		t.Fatalf("InputInfo failed: %v", err)
	}
	if info.DType() != tensor.Float32 || !info.Shape().Equal(tensor.Shape{1, 4}) {
		t.Errorf("Unexpected input info: %s %v", info.DType(), info.Shape())
	}
	if meta.NumPlannedBuffers() != 1 {
		t.Fatalf("Expected 1 planned buffer, got %d", meta.NumPlannedBuffers())
	}
	if size, _ := meta.PlannedBufferSize(0); size != 32 {
		t.Errorf("Expected planned buffer of 32 bytes, got %d", size)
	}

	if _, err := p.MethodMeta("nope"); !errors.Is(err, ErrMethodNotFound) {
		t.Errorf("Expected ErrMethodNotFound, got %v", err)
	}
}

func TestLoadMethodAndExecute(t *testing.T) {
	p := loadProgram(t, negProgram(), FormatVersion, VerifyInternalConsistency)
	defer p.Close()

	meta, err := p.MethodMeta("forward")
	if err != nil {
		t.Fatalf("MethodMeta failed: %v", err)
	}
	m, err := p.LoadMethod("forward", managerFor(t, meta), nil)
	if err != nil {
		t.Fatalf("LoadMethod failed: %v", err)
	}

	in := mustTensor(t, tensor.Shape{1, 4}, []float32{1, -2, 3, 0})
	if err := m.SetInput(evalue.FromTensor(in), 0); err != nil {
		t.Fatalf("SetInput failed: %v", err)
	}
	if err := m.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	outs, err := m.GetOutputs()
	if err != nil {
		t.Fatalf("GetOutputs failed: %v", err)
	}
	if len(outs) != 1 {
		t.Fatalf("Expected 1 output, got %d", len(outs))
	}
	want := []float32{-1, 2, -3, 0}
	for i, w := range want {
		if outs[0].Float32s()[i] != w {
			t.Errorf("Element %d: expected %v, got %v", i, w, outs[0].Float32s()[i])
		}
	}

	// Outputs are copies: a second execution must not mutate them.
	in2 := mustTensor(t, tensor.Shape{1, 4}, []float32{10, 20, 30, 40})
	if err := m.SetInput(evalue.FromTensor(in2), 0); err != nil {
		t.Fatalf("SetInput failed: %v", err)
	}
	if err := m.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if outs[0].Float32s()[0] != -1 {
		t.Error("GetOutputs result aliases planned memory")
	}
}

func TestSetInputMismatch(t *testing.T) {
	p := loadProgram(t, negProgram(), FormatVersion, VerifyMinimal)
	defer p.Close()

	meta, _ := p.MethodMeta("forward")
	m, err := p.LoadMethod("forward", managerFor(t, meta), nil)
	if err != nil {
		t.Fatalf("LoadMethod failed: %v", err)
	}

	// Wrong arity.
	in := mustTensor(t, tensor.Shape{1, 4}, []float32{1, 2, 3, 4})
	if err := m.SetInput(evalue.FromTensor(in), 1); !errors.Is(err, ErrBinding) {
		t.Errorf("Expected ErrBinding for index out of range, got %v", err)
	}

	// Wrong shape.
	bad := mustTensor(t, tensor.Shape{2, 2}, []float32{1, 2, 3, 4})
	if err := m.SetInput(evalue.FromTensor(bad), 0); !errors.Is(err, ErrBinding) {
		t.Errorf("Expected ErrBinding for shape mismatch, got %v", err)
	}

	// Not a tensor.
	if err := m.SetInput(evalue.FromInt(7), 0); !errors.Is(err, ErrBinding) {
		t.Errorf("Expected ErrBinding for kind mismatch, got %v", err)
	}
}

func TestSetOutputDataPtr(t *testing.T) {
	p := loadProgram(t, negProgram(), FormatVersion, VerifyMinimal)
	defer p.Close()

	meta, _ := p.MethodMeta("forward")
	m, err := p.LoadMethod("forward", managerFor(t, meta), nil)
	if err != nil {
		t.Fatalf("LoadMethod failed: %v", err)
	}

	dst := make([]byte, 16)
	if err := m.SetOutputDataPtr(dst, 0); err != nil {
		t.Fatalf("SetOutputDataPtr failed: %v", err)
	}

	in := mustTensor(t, tensor.Shape{1, 4}, []float32{1, -2, 3, 0})
	if err := m.SetInput(evalue.FromTensor(in), 0); err != nil {
		t.Fatalf("SetInput failed: %v", err)
	}
	if err := m.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	view, err := tensor.NewView(dst, tensor.Shape{1, 4}, tensor.Float32)
	if err != nil {
		t.Fatalf("NewView failed: %v", err)
	}
	if view.Float32s()[0] != -1 || view.Float32s()[2] != -3 {
		t.Errorf("Output did not land in caller storage: %v", view.Float32s())
	}

	if err := m.SetOutputDataPtr(make([]byte, 8), 0); !errors.Is(err, ErrBinding) {
		t.Errorf("Expected ErrBinding for wrong storage size, got %v", err)
	}
}

func TestLoadMethodUnknownOperator(t *testing.T) {
	b := NewBuilder()
	mb := b.Method("forward")
	buf := mb.AddPlannedBuffer(16)
	v := mb.AddPlannedTensor(tensor.Float32, tensor.Shape{4}, buf, 0)
	mb.SetInputs(v)
	mb.SetOutputs(v)
	mb.AddInstruction("slate::does_not_exist", v, v)

	p := loadProgram(t, b, FormatVersion, VerifyMinimal)
	defer p.Close()

	meta, _ := p.MethodMeta("forward")
	if _, err := p.LoadMethod("forward", managerFor(t, meta), nil); err == nil {
		t.Error("Expected error for unregistered operator")
	}
}

func TestLoadMethodUnknownDelegate(t *testing.T) {
	b := NewBuilder()
	mb := b.Method("forward")
	buf := mb.AddPlannedBuffer(16)
	v := mb.AddPlannedTensor(tensor.Float32, tensor.Shape{4}, buf, 0)
	mb.SetInputs(v)
	mb.SetOutputs(v)
	mb.AddDelegateInstruction("no_such_backend", "neg", v, v)

	p := loadProgram(t, b, FormatVersion, VerifyMinimal)
	defer p.Close()

	meta, _ := p.MethodMeta("forward")
	if _, err := p.LoadMethod("forward", managerFor(t, meta), nil); err == nil {
		t.Error("Expected error for unregistered delegate")
	}
}

func TestConstantTensorZeroCopy(t *testing.T) {
	b := NewBuilder()
	mb := b.Method("forward")
	buf := mb.AddPlannedBuffer(16)
	c := mb.AddConstantTensor(mustTensor(t, tensor.Shape{4}, []float32{1, 2, 3, 4}))
	in := mb.AddPlannedTensor(tensor.Float32, tensor.Shape{4}, buf, 0)
	mb.SetInputs(in)
	mb.SetOutputs(in)
	mb.AddInstruction("slate::add", in, c, in)

	p := loadProgram(t, b, FormatVersionV2, VerifyInternalConsistency)
	defer p.Close()

	meta, _ := p.MethodMeta("forward")
	m, err := p.LoadMethod("forward", managerFor(t, meta), nil)
	if err != nil {
		t.Fatalf("LoadMethod failed: %v", err)
	}

	input := mustTensor(t, tensor.Shape{4}, []float32{10, 10, 10, 10})
	if err := m.SetInput(evalue.FromTensor(input), 0); err != nil {
		t.Fatalf("SetInput failed: %v", err)
	}
	if err := m.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	outs, err := m.GetOutputs()
	if err != nil {
		t.Fatalf("GetOutputs failed: %v", err)
	}
	want := []float32{11, 12, 13, 14}
	for i, w := range want {
		if outs[0].Float32s()[i] != w {
			t.Errorf("Element %d: expected %v, got %v", i, w, outs[0].Float32s()[i])
		}
	}
}

func TestValidationRejectsOutOfBoundsPlanned(t *testing.T) {
	b := NewBuilder()
	mb := b.Method("forward")
	buf := mb.AddPlannedBuffer(8)
	// float32 [4] needs 16 bytes, buffer has 8.
	v := mb.AddPlannedTensor(tensor.Float32, tensor.Shape{4}, buf, 0)
	mb.SetOutputs(v)

	data, err := b.Bytes(FormatVersion)
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	if _, err := Load(dataloader.NewBufferLoader(data), VerifyMinimal); err == nil {
		t.Error("Expected out-of-bounds validation error")
	}
}

func TestValidationRejectsConstantOverlap(t *testing.T) {
	b := NewBuilder()
	mb := b.Method("forward")
	c := mb.AddConstantTensor(mustTensor(t, tensor.Shape{4}, []float32{1, 2, 3, 4}))
	mb.SetOutputs(c)
	// Hand-craft a second constant aliasing the first.
	mb.addValue(ValueDef{
		Kind:    KindTensor,
		DType:   "float32",
		Shape:   []int{2},
		Storage: StorageConstant,
		Offset:  8,
		Size:    8,
	})

	data, err := b.Bytes(FormatVersion)
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}

	if _, err := Load(dataloader.NewBufferLoader(data), VerifyInternalConsistency); err == nil {
		t.Error("Expected overlap validation error at internal-consistency level")
	}
	// Minimal verification tolerates aliasing constants.
	if p, err := Load(dataloader.NewBufferLoader(data), VerifyMinimal); err != nil {
		t.Errorf("Minimal verification must not check overlap: %v", err)
	} else {
		_ = p.Close()
	}
}

func TestCloseIdempotent(t *testing.T) {
	p := loadProgram(t, negProgram(), FormatVersion, VerifyMinimal)
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Second Close must be a no-op: %v", err)
	}
}

func mustTensor(t *testing.T, shape tensor.Shape, values []float32) *tensor.Tensor {
	t.Helper()
	tt, err := tensor.FromFloat32(shape, values)
	if err != nil {
		t.Fatalf("FromFloat32 failed: %v", err)
	}
	return tt
}
