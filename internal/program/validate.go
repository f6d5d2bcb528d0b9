package program

import (
	"fmt"
	"sort"

	"github.com/slate-ml/slate/internal/tensor"
)

// Verification controls how much of a program is checked at load time.
type Verification int

const (
	// VerifyMinimal checks the container structure and the bounds of
	// every storage reference. Fast path for trusted files.
	VerifyMinimal Verification = iota
	// VerifyInternalConsistency additionally rejects overlapping
	// constant regions and validates the v2 data checksum.
	VerifyInternalConsistency
)

// String returns the verification level's name.
func (v Verification) String() string {
	switch v {
	case VerifyMinimal:
		return "minimal"
	case VerifyInternalConsistency:
		return "internal_consistency"
	default:
		return "unknown"
	}
}

// validateHeader checks every method definition against the size of the
// data segment. Storage bounds are always checked; handing out a slice
// past the segment would corrupt memory no matter the level.
func validateHeader(h *Header, dataSize int64, level Verification) error {
	if len(h.Methods) > MaxMethodCount {
		return &ValidationError{
			Type:    "too_many_methods",
			Value:   -1,
			Details: fmt.Sprintf("got %d, max %d", len(h.Methods), MaxMethodCount),
		}
	}

	seen := make(map[string]bool, len(h.Methods))
	for i := range h.Methods {
		m := &h.Methods[i]
		if m.Name == "" {
			return &ValidationError{Type: "empty_method_name", Value: -1, Details: fmt.Sprintf("method index %d", i)}
		}
		if seen[m.Name] {
			return &ValidationError{Type: "duplicate_method", Method: m.Name, Value: -1, Details: "name appears twice"}
		}
		seen[m.Name] = true

		if err := validateMethod(m, dataSize, level); err != nil {
			return err
		}
	}
	return nil
}

func validateMethod(m *MethodDef, dataSize int64, level Verification) error {
	if len(m.Values) > MaxValueCount {
		return &ValidationError{
			Type:    "too_many_values",
			Method:  m.Name,
			Value:   -1,
			Details: fmt.Sprintf("got %d, max %d", len(m.Values), MaxValueCount),
		}
	}

	for i := range m.Values {
		if err := validateValue(m, i, dataSize); err != nil {
			return err
		}
	}

	for _, ix := range m.Inputs {
		if err := requireTensorValue(m, ix, "input"); err != nil {
			return err
		}
	}
	for _, ix := range m.Outputs {
		if err := requireTensorValue(m, ix, "output"); err != nil {
			return err
		}
	}

	for i, inst := range m.Instructions {
		if inst.Op == "" {
			return &ValidationError{
				Type:    "empty_op",
				Method:  m.Name,
				Value:   -1,
				Details: fmt.Sprintf("instruction %d", i),
			}
		}
		for _, ix := range inst.Args {
			if ix < 0 || ix >= len(m.Values) {
				return &ValidationError{
					Type:    "arg_out_of_range",
					Method:  m.Name,
					Value:   ix,
					Details: fmt.Sprintf("instruction %d has %d values available", i, len(m.Values)),
				}
			}
		}
	}

	if level == VerifyInternalConsistency {
		if err := validateConstantOverlap(m); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(m *MethodDef, ix int, dataSize int64) error {
	v := &m.Values[ix]
	switch v.Kind {
	case KindInt, KindFloat, KindBool, KindIntList, KindNone:
		return nil
	case KindTensor:
	default:
		return &ValidationError{Type: "unknown_kind", Method: m.Name, Value: ix, Details: fmt.Sprintf("kind %q", v.Kind)}
	}

	dtype, ok := tensor.ParseDataType(v.DType)
	if !ok {
		return &ValidationError{Type: "unknown_dtype", Method: m.Name, Value: ix, Details: fmt.Sprintf("dtype %q", v.DType)}
	}
	shape := tensor.Shape(v.Shape)
	if err := shape.Validate(); err != nil {
		return &ValidationError{Type: "invalid_shape", Method: m.Name, Value: ix, Details: err.Error()}
	}
	byteSize := int64(shape.NumElements() * dtype.Size())

	switch v.Storage {
	case StorageConstant:
		if v.Offset < 0 || v.Size < 0 {
			return &ValidationError{
				Type:    "negative_offset",
				Method:  m.Name,
				Value:   ix,
				Details: fmt.Sprintf("offset=%d, size=%d", v.Offset, v.Size),
			}
		}
		if v.Size != byteSize {
			return &ValidationError{
				Type:    "size_mismatch",
				Method:  m.Name,
				Value:   ix,
				Details: fmt.Sprintf("stored size %d, shape %v of %s needs %d", v.Size, v.Shape, v.DType, byteSize),
			}
		}
		if v.Offset+v.Size > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Method:  m.Name,
				Value:   ix,
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", v.Offset, v.Size, dataSize),
			}
		}
	case StoragePlanned:
		if int(v.Buffer) >= len(m.PlannedBuffers) {
			return &ValidationError{
				Type:    "buffer_out_of_range",
				Method:  m.Name,
				Value:   ix,
				Details: fmt.Sprintf("buffer %d, have %d planning spaces", v.Buffer, len(m.PlannedBuffers)),
			}
		}
		if v.Offset < 0 || v.Offset+byteSize > m.PlannedBuffers[v.Buffer] {
			return &ValidationError{
				Type:    "out_of_bounds",
				Method:  m.Name,
				Value:   ix,
				Details: fmt.Sprintf("offset %d + size %d > planned buffer %d capacity %d",
					v.Offset, byteSize, v.Buffer, m.PlannedBuffers[v.Buffer]),
			}
		}
	default:
		return &ValidationError{Type: "unknown_storage", Method: m.Name, Value: ix, Details: fmt.Sprintf("storage %q", v.Storage)}
	}
	return nil
}

func requireTensorValue(m *MethodDef, ix int, role string) error {
	if ix < 0 || ix >= len(m.Values) {
		return &ValidationError{
			Type:    role + "_out_of_range",
			Method:  m.Name,
			Value:   ix,
			Details: fmt.Sprintf("have %d values", len(m.Values)),
		}
	}
	if m.Values[ix].Kind != KindTensor {
		return &ValidationError{
			Type:    role + "_not_tensor",
			Method:  m.Name,
			Value:   ix,
			Details: fmt.Sprintf("kind %q", m.Values[ix].Kind),
		}
	}
	return nil
}

// validateConstantOverlap rejects constant regions that alias each
// other within one method. Overlap would let one tensor's bytes leak
// into another.
func validateConstantOverlap(m *MethodDef) error {
	type region struct {
		ix          int
		offset, end int64
	}
	var regions []region
	for i := range m.Values {
		v := &m.Values[i]
		if v.Kind == KindTensor && v.Storage == StorageConstant {
			regions = append(regions, region{ix: i, offset: v.Offset, end: v.Offset + v.Size})
		}
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].offset < regions[j].offset })

	for i := 0; i < len(regions)-1; i++ {
		if regions[i].end > regions[i+1].offset {
			return &ValidationError{
				Type:    "offset_overlap",
				Method:  m.Name,
				Value:   regions[i].ix,
				Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
					regions[i].offset, regions[i].end, regions[i+1].offset, regions[i+1].end),
			}
		}
	}
	return nil
}
