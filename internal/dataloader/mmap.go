package dataloader

import (
	"fmt"
	"os"
)

// MlockConfig controls whether a memory-mapped loader locks its pages in
// physical memory and how lock failures are treated.
type MlockConfig int

const (
	// NoMlock maps the file without locking pages.
	NoMlock MlockConfig = iota
	// UseMlock locks the mapped pages and fails the open on lock error.
	UseMlock
	// UseMlockIgnoreErrors attempts to lock the mapped pages but tolerates
	// failure. Intended for degraded-but-functional behavior on systems
	// where the process lacks locking privilege.
	UseMlockIgnoreErrors
)

// MmapLoader serves zero-copy reads from a read-only memory map of a
// file. Reads cost no I/O beyond the OS page cache, which makes it the
// default choice for large programs with mmap-friendly constant layout.
type MmapLoader struct {
	file   *os.File
	data   []byte
	size   int64
	locked bool
	closed bool
}

// NewMmapLoader maps path read-only according to cfg.
func NewMmapLoader(path string, cfg MlockConfig) (*MmapLoader, error) {
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

	data, err := mmapFile(file, stat.Size())
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}

	l := &MmapLoader{
		file: file,
		data: data,
		size: stat.Size(),
	}

	switch cfg {
	case NoMlock:
	case UseMlock:
		if err := mlockRegion(data); err != nil {
			_ = l.Close()
			return nil, fmt.Errorf("mlock failed: %w", err)
		}
		l.locked = true
	case UseMlockIgnoreErrors:
		if err := mlockRegion(data); err == nil {
			l.locked = true
		}
	default:
		_ = l.Close()
		return nil, fmt.Errorf("unknown mlock config: %d", cfg)
	}

	return l, nil
}

// Read returns a zero-copy slice into the mapped region. The slice is
// read-only and valid only until Close.
func (m *MmapLoader) Read(offset, size int64) ([]byte, error) {
	if m.closed {
		return nil, fmt.Errorf("loader is closed")
	}
	if err := checkRange(offset, size, m.size); err != nil {
		return nil, err
	}
	return m.data[offset : offset+size], nil
}

// Size returns the mapped file size.
func (m *MmapLoader) Size() int64 {
	return m.size
}

// Locked reports whether the mapped pages are locked in memory.
func (m *MmapLoader) Locked() bool {
	return m.locked
}

// Close unlocks, unmaps and closes the file.
func (m *MmapLoader) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	var err error
	if m.data != nil {
		if m.locked {
			_ = munlockRegion(m.data)
		}
		err = munmapFile(m.data)
		m.data = nil
	}

	if closeErr := m.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
