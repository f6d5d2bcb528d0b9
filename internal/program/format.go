// Package program implements the .slate container format and the
// Program/Method execution pipeline built on top of it. A .slate file
// carries a JSON header describing one or more methods plus a 64-byte
// aligned constant-data segment; v2 adds a fixed preamble with a
// SHA-256 checksum over the data segment.
package program

import (
	"crypto/sha256"
	"time"
)

// Format constants.
const (
	MagicBytes        = "SLTE"
	FormatVersion     = 1    // v1: plain format, no checksum
	FormatVersionV2   = 2    // v2: fixed preamble with SHA-256 checksum
	HeaderAlignment   = 64   // constant data aligned for SIMD-friendly access
	FixedHeaderSizeV2 = 64   // v2 fixed preamble size (0x40 bytes)
	ChecksumSize      = 32   // SHA-256 checksum size
	ChecksumOffsetV2  = 0x20 // checksum offset in the v2 preamble
)

// Validation limits for resource protection.
const (
	MaxHeaderSize  = 100 * 1024 * 1024 // maximum JSON header size
	MaxMethodCount = 10_000            // maximum methods per program
	MaxValueCount  = 1_000_000         // maximum values per method
)

// Flags for the .slate format.
const (
	FlagHasMetadata uint32 = 1 << 0 // bit 0: custom metadata included
)

// Value kind string constants for serialization.
const (
	KindTensor  = "tensor"
	KindInt     = "int"
	KindFloat   = "float"
	KindBool    = "bool"
	KindIntList = "int_list"
	KindNone    = "none"
)

// Tensor storage location constants.
const (
	StorageConstant = "constant"
	StoragePlanned  = "planned"
)

// Header is the JSON header of a .slate file.
type Header struct {
	FormatVersion int               `json:"format_version"` // Version of the .slate format
	SlateVersion  string            `json:"slate_version"`  // Version of Slate that exported this file
	CreatedAt     time.Time         `json:"created_at"`     // When the file was created
	Methods       []MethodDef       `json:"methods"`        // Executable methods
	Metadata      map[string]string `json:"metadata"`       // Custom metadata
}

// MethodDef describes one executable method: its value table, the
// planned-buffer sizes the memory planner computed at export time, and
// the instruction list.
type MethodDef struct {
	Name           string        `json:"name"`
	PlannedBuffers []int64       `json:"planned_buffers"` // size in bytes per planning space
	Values         []ValueDef    `json:"values"`
	Inputs         []int         `json:"inputs"`  // value indices bound by SetInput
	Outputs        []int         `json:"outputs"` // value indices read by GetOutputs
	Instructions   []Instruction `json:"instructions"`
}

// ValueDef describes one entry of a method's value table. Tensors
// resolve to constant-segment bytes or a planned-buffer span; scalars
// are stored inline.
type ValueDef struct {
	Kind string `json:"kind"` // tensor | int | float | bool | int_list | none

	// Tensor fields.
	DType   string `json:"dtype,omitempty"`
	Shape   []int  `json:"shape,omitempty"`
	Storage string `json:"storage,omitempty"` // constant | planned
	Offset  int64  `json:"offset,omitempty"`  // constant: data-segment offset; planned: offset in buffer
	Size    int64  `json:"size,omitempty"`    // constant: byte size in the data segment
	Buffer  uint32 `json:"buffer,omitempty"`  // planned: planning-space index

	// Scalar fields.
	Int     int64   `json:"int,omitempty"`
	Float   float64 `json:"float,omitempty"`
	Bool    bool    `json:"bool,omitempty"`
	IntList []int64 `json:"int_list,omitempty"`
}

// Instruction is one execution step: a kernel op or a delegated op,
// with arguments given as value-table indices.
type Instruction struct {
	Op       string `json:"op"`                 // operator name
	Delegate string `json:"delegate,omitempty"` // backend delegate, empty for kernel dispatch
	Args     []int  `json:"args"`
}

// ComputeChecksum computes the SHA-256 checksum of the data segment.
func ComputeChecksum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ValidateChecksum compares a computed checksum against the stored one.
func ValidateChecksum(computed, stored [32]byte) error {
	if computed != stored {
		return ErrChecksumMismatch
	}
	return nil
}
