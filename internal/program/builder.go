package program

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/slate-ml/slate/internal/tensor"
)

const slateVersion = "0.1.0" // Current Slate version

// Builder assembles a program in memory: methods, their value tables
// and instruction lists, and the shared constant-data segment. Export
// tooling and tests use it to produce .slate files.
type Builder struct {
	methods   []*MethodBuilder
	constants []byte
	metadata  map[string]string
}

// NewBuilder creates an empty program builder.
func NewBuilder() *Builder {
	return &Builder{metadata: make(map[string]string)}
}

// SetMetadata sets one custom metadata entry.
func (b *Builder) SetMetadata(key, value string) {
	b.metadata[key] = value
}

// Method starts a new method definition.
func (b *Builder) Method(name string) *MethodBuilder {
	mb := &MethodBuilder{builder: b, def: MethodDef{Name: name}}
	b.methods = append(b.methods, mb)
	return mb
}

// addConstant appends data to the constant segment, aligned to 8 bytes,
// and returns its offset.
func (b *Builder) addConstant(data []byte) int64 {
	if pad := (8 - (len(b.constants) % 8)) % 8; pad > 0 {
		b.constants = append(b.constants, make([]byte, pad)...)
	}
	offset := int64(len(b.constants))
	b.constants = append(b.constants, data...)
	return offset
}

// MethodBuilder assembles one method's value table and instructions.
// Value-adding calls return the value's table index for use in
// SetInputs, SetOutputs and AddInstruction.
type MethodBuilder struct {
	builder *Builder
	def     MethodDef
}

// AddPlannedBuffer declares a planning space of the given byte size and
// returns its index.
func (mb *MethodBuilder) AddPlannedBuffer(size int64) uint32 {
	mb.def.PlannedBuffers = append(mb.def.PlannedBuffers, size)
	return uint32(len(mb.def.PlannedBuffers) - 1)
}

// AddConstantTensor stores t's bytes in the constant segment and adds a
// constant tensor value.
func (mb *MethodBuilder) AddConstantTensor(t *tensor.Tensor) int {
	offset := mb.builder.addConstant(t.Data())
	return mb.addValue(ValueDef{
		Kind:    KindTensor,
		DType:   t.DType().String(),
		Shape:   []int(t.Shape()),
		Storage: StorageConstant,
		Offset:  offset,
		Size:    int64(t.ByteSize()),
	})
}

// AddPlannedTensor adds a tensor value resolved against planning space
// buffer at the given offset.
func (mb *MethodBuilder) AddPlannedTensor(dtype tensor.DataType, shape tensor.Shape, buffer uint32, offset int64) int {
	return mb.addValue(ValueDef{
		Kind:    KindTensor,
		DType:   dtype.String(),
		Shape:   []int(shape),
		Storage: StoragePlanned,
		Buffer:  buffer,
		Offset:  offset,
	})
}

// AddInt adds an integer scalar value.
func (mb *MethodBuilder) AddInt(v int64) int {
	return mb.addValue(ValueDef{Kind: KindInt, Int: v})
}

// AddFloat adds a floating-point scalar value.
func (mb *MethodBuilder) AddFloat(v float64) int {
	return mb.addValue(ValueDef{Kind: KindFloat, Float: v})
}

// AddBool adds a boolean scalar value.
func (mb *MethodBuilder) AddBool(v bool) int {
	return mb.addValue(ValueDef{Kind: KindBool, Bool: v})
}

// AddIntList adds an integer-list value.
func (mb *MethodBuilder) AddIntList(v []int64) int {
	return mb.addValue(ValueDef{Kind: KindIntList, IntList: v})
}

// AddNone adds an empty value.
func (mb *MethodBuilder) AddNone() int {
	return mb.addValue(ValueDef{Kind: KindNone})
}

func (mb *MethodBuilder) addValue(v ValueDef) int {
	mb.def.Values = append(mb.def.Values, v)
	return len(mb.def.Values) - 1
}

// SetInputs declares the method's input value indices in order.
func (mb *MethodBuilder) SetInputs(values ...int) {
	mb.def.Inputs = values
}

// SetOutputs declares the method's output value indices in order.
func (mb *MethodBuilder) SetOutputs(values ...int) {
	mb.def.Outputs = values
}

// AddInstruction appends a kernel instruction.
func (mb *MethodBuilder) AddInstruction(op string, args ...int) {
	mb.def.Instructions = append(mb.def.Instructions, Instruction{Op: op, Args: args})
}

// AddDelegateInstruction appends an instruction claimed by a backend
// delegate.
func (mb *MethodBuilder) AddDelegateInstruction(delegateName, op string, args ...int) {
	mb.def.Instructions = append(mb.def.Instructions, Instruction{Op: op, Delegate: delegateName, Args: args})
}

func (b *Builder) buildHeader(version int) Header {
	h := Header{
		FormatVersion: version,
		SlateVersion:  slateVersion,
		CreatedAt:     time.Now().UTC(),
		Methods:       make([]MethodDef, len(b.methods)),
		Metadata:      b.metadata,
	}
	for i, mb := range b.methods {
		h.Methods[i] = mb.def
	}
	return h
}

// WriteTo serializes the program in the given format version.
func (b *Builder) WriteTo(w io.Writer, version int) error {
	switch version {
	case FormatVersion:
		return b.writeV1(w)
	case FormatVersionV2:
		return b.writeV2(w)
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
}

// Bytes serializes the program into memory. Convenience for tests and
// buffer-backed loading.
func (b *Builder) Bytes(version int) ([]byte, error) {
	var buf bytes.Buffer
	if err := b.WriteTo(&buf, version); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile serializes the program to a file.
func (b *Builder) WriteFile(path string, version int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := b.WriteTo(f, version); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (b *Builder) writeV1(w io.Writer) error {
	headerJSON, err := json.Marshal(b.buildHeader(FormatVersion))
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	if _, err := w.Write([]byte(MagicBytes)); err != nil {
		return fmt.Errorf("failed to write magic bytes: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(FormatVersion)); err != nil {
		return fmt.Errorf("failed to write version: %w", err)
	}

	flags := uint32(0)
	if len(b.metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if err := binary.Write(w, binary.LittleEndian, flags); err != nil {
		return fmt.Errorf("failed to write flags: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	if err := writeDataPadding(w, int64(4+4+4+8)+int64(len(headerJSON))); err != nil {
		return err
	}
	if _, err := w.Write(b.constants); err != nil {
		return fmt.Errorf("failed to write data segment: %w", err)
	}
	return nil
}

func (b *Builder) writeV2(w io.Writer) error {
	headerJSON, err := json.Marshal(b.buildHeader(FormatVersionV2))
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	checksum := ComputeChecksum(b.constants)

	fixed := make([]byte, FixedHeaderSizeV2)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], uint32(FormatVersionV2))

	flags := uint32(0)
	if len(b.metadata) > 0 {
		flags |= FlagHasMetadata
	}
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	// 0x0C-0x0F reserved.
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(len(b.constants)))
	copy(fixed[ChecksumOffsetV2:ChecksumOffsetV2+ChecksumSize], checksum[:])

	if _, err := w.Write(fixed); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header JSON: %w", err)
	}

	if err := writeDataPadding(w, int64(FixedHeaderSizeV2)+int64(len(headerJSON))); err != nil {
		return err
	}
	if _, err := w.Write(b.constants); err != nil {
		return fmt.Errorf("failed to write data segment: %w", err)
	}
	return nil
}

// writeDataPadding pads the stream from currentPos to the next 64-byte
// boundary so the data segment lands aligned.
func writeDataPadding(w io.Writer, currentPos int64) error {
	padding := (HeaderAlignment - (currentPos % HeaderAlignment)) % HeaderAlignment
	if padding > 0 {
		if _, err := w.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}
	return nil
}
