package delegate

import (
	"errors"
	"testing"

	"github.com/slate-ml/slate/internal/evalue"
)

type fakeDelegate struct {
	name   string
	called int
}

func (f *fakeDelegate) Name() string { return f.name }

func (f *fakeDelegate) Execute(op string, args []*evalue.EValue) error {
	f.called++
	return nil
}

func (f *fakeDelegate) Close() error { return nil }

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	d := &fakeDelegate{name: "fake"}
	r.Register(d)

	got, err := r.Lookup("fake")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if err := got.Execute("noop", nil); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if d.called != 1 {
		t.Errorf("Expected 1 call, got %d", d.called)
	}

	if _, err := r.Lookup("missing"); !errors.Is(err, ErrDelegateMissing) {
		t.Errorf("Expected ErrDelegateMissing, got %v", err)
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeDelegate{name: "webgpu"})
	r.Register(&fakeDelegate{name: "cpu"})

	names := r.Names()
	if len(names) != 2 || names[0] != "cpu" || names[1] != "webgpu" {
		t.Errorf("Expected sorted names, got %v", names)
	}
}

func TestDefaultRegistryShared(t *testing.T) {
	Register(&fakeDelegate{name: "shared"})
	if _, err := Lookup("shared"); err != nil {
		t.Errorf("Default registry lookup failed: %v", err)
	}
	if _, err := Default().Lookup("shared"); err != nil {
		t.Errorf("Default() must expose the shared registry: %v", err)
	}
}
