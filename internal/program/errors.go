package program

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrInvalidMagic       = errors.New("invalid magic bytes")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrHeaderTooLarge     = errors.New("header exceeds maximum size")
	ErrChecksumMismatch   = errors.New("checksum mismatch: file may be corrupted")
	ErrMethodNotFound     = errors.New("method not found")
	ErrBinding            = errors.New("binding mismatch")
)

// ValidationError provides detailed information about header validation
// failures.
type ValidationError struct {
	Type    string // Type of error (e.g., "offset_overlap", "out_of_bounds")
	Method  string // Method involved
	Value   int    // Value index involved, -1 if not value-specific
	Details string // Additional details
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value >= 0 {
		return fmt.Sprintf("%s: method %q value %d: %s", e.Type, e.Method, e.Value, e.Details)
	}
	if e.Method != "" {
		return fmt.Sprintf("%s: method %q: %s", e.Type, e.Method, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}
