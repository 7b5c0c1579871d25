package system

import (
	"errors"
	"testing"
)

func phased(p Phase) *counterSystem {
	s := newCounterSystem()
	s.SetPhase(p)
	return s
}

func TestRunnerOrder(t *testing.T) {
	r := NewRunner()
	r.Register("zeta", phased(PhaseUpdate))
	r.Register("cleanup", phased(PhaseCleanup))
	r.Register("alpha", phased(PhaseUpdate))
	r.Register("input", phased(PhaseInput))

	var names []string
	for _, e := range r.Ordered() {
		names = append(names, e.Name)
	}
	want := []string{"input", "alpha", "zeta", "cleanup"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}

	r.Remove("alpha")
	r.Register("beta", phased(PhasePreUpdate))
	names = names[:0]
	for _, e := range r.Ordered() {
		names = append(names, e.Name)
	}
	want = []string{"input", "beta", "zeta", "cleanup"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}

	r.Clear()
	if len(r.Ordered()) != 0 {
		t.Error("runner not cleared")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("counter", func() System { return newCounterSystem() }); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("counter", func() System { return newCounterSystem() }); !errors.Is(err, ErrKindRegistered) {
		t.Errorf("expected ErrKindRegistered, got %v", err)
	}
	if !r.Has("counter") || r.Has("other") {
		t.Error("Has")
	}

	a, err := r.Create("counter")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := r.Create("counter")
	if a == b {
		t.Error("factory must return fresh instances")
	}
	if a.Kind() != "counter" {
		t.Errorf("expected kind counter, got %q", a.Kind())
	}
	if _, err := r.Create("other"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
	if kinds := r.Kinds(); len(kinds) != 1 || kinds[0] != "counter" {
		t.Errorf("unexpected kinds %v", kinds)
	}
}
