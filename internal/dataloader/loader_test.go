package dataloader

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload.bin")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	return path
}

func TestBufferLoader(t *testing.T) {
	data := []byte("0123456789")
	l := NewBufferLoader(data)

	if l.Size() != 10 {
		t.Errorf("Expected size 10, got %d", l.Size())
	}

	got, err := l.Read(2, 4)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(got, []byte("2345")) {
		t.Errorf("Expected 2345, got %q", got)
	}

	if _, err := l.Read(8, 4); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}
	if _, err := l.Read(-1, 2); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange for negative offset, got %v", err)
	}

	if err := l.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestFileLoader(t *testing.T) {
	data := []byte("the quick brown fox")
	path := writeTestFile(t, data)

	l, err := NewFileLoader(path)
	if err != nil {
		t.Fatalf("NewFileLoader failed: %v", err)
	}
	defer l.Close()

	if l.Size() != int64(len(data)) {
		t.Errorf("Expected size %d, got %d", len(data), l.Size())
	}

	got, err := l.Read(4, 5)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(got, []byte("quick")) {
		t.Errorf("Expected quick, got %q", got)
	}

	if _, err := l.Read(0, l.Size()+1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}

	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := l.Read(0, 1); err == nil {
		t.Error("Expected error reading from closed loader")
	}
}

func TestFileLoaderMissing(t *testing.T) {
	if _, err := NewFileLoader(filepath.Join(t.TempDir(), "missing.slate")); err == nil {
		t.Error("Expected error opening missing file")
	}
}

func TestMmapLoader(t *testing.T) {
	data := []byte("memory mapped program bytes")
	path := writeTestFile(t, data)

	l, err := NewMmapLoader(path, NoMlock)
	if err != nil {
		t.Fatalf("NewMmapLoader failed: %v", err)
	}
	defer l.Close()

	if l.Size() != int64(len(data)) {
		t.Errorf("Expected size %d, got %d", len(data), l.Size())
	}

	got, err := l.Read(7, 6)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(got, []byte("mapped")) {
		t.Errorf("Expected mapped, got %q", got)
	}

	if _, err := l.Read(20, 100); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange, got %v", err)
	}

	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
}

func TestMmapLoaderMlockIgnoreErrors(t *testing.T) {
	// The lock attempt may or may not succeed depending on RLIMIT_MEMLOCK,
	// but the open must succeed either way.
	path := writeTestFile(t, make([]byte, 4096))

	l, err := NewMmapLoader(path, UseMlockIgnoreErrors)
	if err != nil {
		t.Fatalf("NewMmapLoader failed: %v", err)
	}
	defer l.Close()

	if _, err := l.Read(0, 4096); err != nil {
		t.Errorf("Read failed: %v", err)
	}
}
