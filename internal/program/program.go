package program

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/slate-ml/slate/internal/dataloader"
	"github.com/slate-ml/slate/internal/memory"
	"github.com/slate-ml/slate/internal/tracer"
)

// Program is an immutable, loaded .slate file. It retains the
// DataLoader it was parsed from so constant tensors can keep aliasing
// loader-owned bytes (mmap pages stay mapped for the program's
// lifetime). Methods loaded from one Program share its constant
// segment; Close releases the loader and must not be called while any
// method is still in use.
type Program struct {
	loader     dataloader.DataLoader
	header     Header
	version    uint32
	flags      uint32
	dataOffset int64
	constants  []byte // the full data segment, aliasing loader memory where possible
	closed     bool
}

// Load parses a program from loader at the given verification level.
// On success the Program owns the loader; on failure the caller keeps
// ownership.
func Load(loader dataloader.DataLoader, verification Verification) (*Program, error) {
	p := &Program{loader: loader}
	if err := p.parse(verification); err != nil {
		return nil, fmt.Errorf("failed to load program: %w", err)
	}
	return p, nil
}

func (p *Program) parse(verification Verification) error {
	prefix, err := p.loader.Read(0, 8)
	if err != nil {
		return fmt.Errorf("failed to read magic bytes: %w", err)
	}
	if string(prefix[:4]) != MagicBytes {
		return ErrInvalidMagic
	}
	p.version = binary.LittleEndian.Uint32(prefix[4:8])

	var headerSize, dataSize uint64
	var checksum [32]byte
	var headerOffset int64

	switch p.version {
	case FormatVersion:
		// v1: magic + version + flags + header size, then JSON.
		fixed, err := p.loader.Read(8, 12)
		if err != nil {
			return fmt.Errorf("failed to read header fields: %w", err)
		}
		p.flags = binary.LittleEndian.Uint32(fixed[0:4])
		headerSize = binary.LittleEndian.Uint64(fixed[4:12])
		headerOffset = 20
	case FormatVersionV2:
		fixed, err := p.loader.Read(0, FixedHeaderSizeV2)
		if err != nil {
			return fmt.Errorf("failed to read fixed header: %w", err)
		}
		p.flags = binary.LittleEndian.Uint32(fixed[8:12])
		headerSize = binary.LittleEndian.Uint64(fixed[16:24])
		dataSize = binary.LittleEndian.Uint64(fixed[24:32])
		copy(checksum[:], fixed[ChecksumOffsetV2:ChecksumOffsetV2+ChecksumSize])
		headerOffset = FixedHeaderSizeV2
	default:
		return fmt.Errorf("%w: got %d, expected %d or %d", ErrUnsupportedVersion, p.version, FormatVersion, FormatVersionV2)
	}

	if headerSize > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	headerBytes, err := p.loader.Read(headerOffset, int64(headerSize))
	if err != nil {
		return fmt.Errorf("failed to read header JSON: %w", err)
	}
	if err := json.Unmarshal(headerBytes, &p.header); err != nil {
		return fmt.Errorf("failed to parse header JSON: %w", err)
	}

	// Constant data starts at the next 64-byte boundary past the header.
	currentPos := headerOffset + int64(headerSize)
	padding := (HeaderAlignment - (currentPos % HeaderAlignment)) % HeaderAlignment
	p.dataOffset = currentPos + padding

	constSize := p.loader.Size() - p.dataOffset
	if constSize < 0 {
		return fmt.Errorf("data segment offset %d past end of file (%d bytes)", p.dataOffset, p.loader.Size())
	}
	if p.version == FormatVersionV2 && int64(dataSize) != constSize {
		return fmt.Errorf("data segment is %d bytes, fixed header declares %d", constSize, dataSize)
	}
	p.constants, err = p.loader.Read(p.dataOffset, constSize)
	if err != nil {
		return fmt.Errorf("failed to read data segment: %w", err)
	}

	if p.version == FormatVersionV2 && verification == VerifyInternalConsistency {
		if err := ValidateChecksum(ComputeChecksum(p.constants), checksum); err != nil {
			return err
		}
	}

	if err := validateHeader(&p.header, constSize, verification); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// Version returns the container format version.
func (p *Program) Version() uint32 {
	return p.version
}

// Metadata returns the header's metadata map.
func (p *Program) Metadata() map[string]string {
	return p.header.Metadata
}

// NumMethods returns the number of methods in the program.
func (p *Program) NumMethods() int {
	return len(p.header.Methods)
}

// MethodName returns the name of method i.
func (p *Program) MethodName(i int) (string, error) {
	if i < 0 || i >= len(p.header.Methods) {
		return "", fmt.Errorf("method index %d out of range (have %d)", i, len(p.header.Methods))
	}
	return p.header.Methods[i].Name, nil
}

func (p *Program) methodDef(name string) (*MethodDef, error) {
	for i := range p.header.Methods {
		if p.header.Methods[i].Name == name {
			return &p.header.Methods[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrMethodNotFound, name)
}

// MethodMeta returns the metadata of the named method without loading
// it.
func (p *Program) MethodMeta(name string) (*MethodMeta, error) {
	def, err := p.methodDef(name)
	if err != nil {
		return nil, err
	}
	return newMethodMeta(def)
}

// LoadMethod instantiates the named method. The manager supplies the
// planned-buffer spans (sized per MethodMeta) and the temp allocator;
// every value and instruction is resolved before the method is
// returned, so a successful load cannot fail on missing operators
// later.
func (p *Program) LoadMethod(name string, mgr *memory.Manager, tr tracer.EventTracer) (*Method, error) {
	def, err := p.methodDef(name)
	if err != nil {
		return nil, err
	}
	if tr == nil {
		tr = tracer.NopTracer{}
	}
	return newMethod(p, def, mgr, tr)
}

// constantSlice returns size bytes of the data segment starting at
// offset. The slice aliases loader memory; it stays valid until Close.
func (p *Program) constantSlice(offset, size int64) ([]byte, error) {
	if offset < 0 || size < 0 || offset+size > int64(len(p.constants)) {
		return nil, fmt.Errorf("constant region [%d, %d) outside data segment of %d bytes",
			offset, offset+size, len(p.constants))
	}
	return p.constants[offset : offset+size : offset+size], nil
}

// Close releases the underlying loader. Constant tensors and methods
// loaded from this program must not be used afterwards.
func (p *Program) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.constants = nil
	return p.loader.Close()
}
