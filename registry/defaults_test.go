package registry

import "testing"

func TestBuildDefaultAppliesEachRegistrar(t *testing.T) {
	var calls int
	stub := func(r *Registry) {
		calls++
		r.Register("Stub", "1.0", func(name string, config map[string]any) (any, error) {
			return name, nil
		})
	}

	reg := BuildDefault(stub, stub)
	if calls != 2 {
		t.Fatalf("expected both registrars to run, got %d calls", calls)
	}
	if _, err := reg.Get("Stub", "1.0"); err != nil {
		t.Fatalf("expected Stub to be registered: %v", err)
	}
}

func TestBuildDefaultEmpty(t *testing.T) {
	reg := BuildDefault()
	if _, err := reg.Get("Anything", "1.0"); err == nil {
		t.Fatal("expected miss on empty registry")
	}
}
