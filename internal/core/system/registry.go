package system

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUnknownKind    = errors.New("unknown system kind")
	ErrKindRegistered = errors.New("system kind already registered")
)

// Factory creates a fresh, unattached system instance.
type Factory func() System

// Registry maps system kinds to factories. Hosts register factories at start
// up; the engine instantiates systems through it by kind.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	kinds     []string
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory, 16),
	}
}

// Register adds a factory for kind. Registering a kind twice fails.
func (r *Registry) Register(kind string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[kind]; ok {
		return fmt.Errorf("%w: %q", ErrKindRegistered, kind)
	}
	r.factories[kind] = f
	r.kinds = append(r.kinds, kind)
	return nil
}

func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[kind]
	return ok
}

// Create instantiates a system of kind and tags it with the kind.
func (r *Registry) Create(kind string) (System, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	s := f()
	s.SetKind(kind)
	return s, nil
}

// Kinds returns registered kinds in registration order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.kinds))
	copy(out, r.kinds)
	return out
}
