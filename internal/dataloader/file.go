package dataloader

import (
	"fmt"
	"io"
	"os"
)

// FileLoader reads program bytes from a regular file using positional
// reads. Each Read allocates a fresh slice, so it is the right choice
// when the program is consumed once at load time and the file may be
// larger than what should stay resident.
type FileLoader struct {
	file   *os.File
	size   int64
	closed bool
}

// NewFileLoader opens path for reading.
func NewFileLoader(path string) (*FileLoader, error) {
	//nolint:gosec // G304: model path is caller-provided
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return &FileLoader{file: file, size: stat.Size()}, nil
}

// Read reads size bytes at offset into a newly allocated slice.
func (f *FileLoader) Read(offset, size int64) ([]byte, error) {
	if f.closed {
		return nil, fmt.Errorf("loader is closed")
	}
	if err := checkRange(offset, size, f.size); err != nil {
		return nil, err
	}

	data := make([]byte, size)
	if _, err := f.file.ReadAt(data, offset); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read %d bytes at offset %d: %w", size, offset, err)
	}
	return data, nil
}

// Size returns the file size recorded at open time.
func (f *FileLoader) Size() int64 {
	return f.size
}

// Close closes the underlying file.
func (f *FileLoader) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return f.file.Close()
}
