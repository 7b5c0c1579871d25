package system

import (
	"fmt"
	"time"

	"github.com/l1jgo/enginecore/internal/core/doc"
	"github.com/l1jgo/enginecore/internal/core/ecs"
	"github.com/l1jgo/enginecore/internal/core/pool"
	"go.uber.org/zap"
)

// Handler supplies the per-component update of a ComponentStorage.
type Handler[T any] interface {
	UpdateComponent(c *T, owner *ecs.Entity, dt time.Duration)
}

// Preparer runs before the component reads its construction data.
type Preparer[T any] interface {
	PrepareComponent(c *T) error
}

// Filler copies construction data into a freshly read component.
type Filler[T any] interface {
	FillComponentData(c *T, data *doc.Document) error
}

// Finalizer runs before a component is erased by RemoveComponent.
type Finalizer[T any] interface {
	FinalizeComponent(c *T, owner string)
}

// Reader is implemented by component types that parse their own data.
type Reader interface {
	Read(data *doc.Document) error
}

// Dumper is implemented by component types that can serialize themselves.
type Dumper interface {
	Dump() *doc.Document
}

type stored[T any] struct {
	owner string
	value T
}

// ComponentStorage owns every component of type T in a pool and implements
// the System update loop over them. Concrete systems embed it and implement
// Handler[T], plus any of Preparer, Filler and Finalizer.
//
// Create and remove must be called from the engine goroutine.
type ComponentStorage[T any] struct {
	*Base
	handler    Handler[T]
	components *pool.Pool[stored[T]]
}

// NewComponentStorage binds handler, normally the embedding system, to a
// pool of poolSize initial elements.
func NewComponentStorage[T any](handler Handler[T], poolSize int) *ComponentStorage[T] {
	return NewComponentStorageWithLimit(handler, poolSize, pool.DefaultMaxBlockLength)
}

func NewComponentStorageWithLimit[T any](handler Handler[T], poolSize, maxBlockLength int) *ComponentStorage[T] {
	return &ComponentStorage[T]{
		Base:       NewBase(handler),
		handler:    handler,
		components: pool.New[stored[T]](poolSize, maxBlockLength),
	}
}

// CreateComponent allocates a component for owner and runs prepare, read
// and fill in that order. On any failure the component is erased again.
func (s *ComponentStorage[T]) CreateComponent(data *doc.Document, owner *ecs.Entity) (pool.Handle, error) {
	h, item := s.components.Create()
	if owner != nil {
		item.owner = owner.ID()
	}
	if err := s.construct(&item.value, data); err != nil {
		s.components.Erase(h)
		return 0, fmt.Errorf("create %s component: %w", s.Name(), err)
	}
	return h, nil
}

func (s *ComponentStorage[T]) construct(c *T, data *doc.Document) error {
	if p, ok := s.handler.(Preparer[T]); ok {
		if err := p.PrepareComponent(c); err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
	}
	if r, ok := any(c).(Reader); ok {
		if err := r.Read(data); err != nil {
			return fmt.Errorf("read: %w", err)
		}
	}
	if f, ok := s.handler.(Filler[T]); ok {
		if err := f.FillComponentData(c, data); err != nil {
			return fmt.Errorf("fill: %w", err)
		}
	}
	return nil
}

// RemoveComponent runs the Finalizer hook, if any, and erases the component.
func (s *ComponentStorage[T]) RemoveComponent(h pool.Handle) error {
	item, ok := s.components.Get(h)
	if !ok {
		return ErrStaleHandle
	}
	if f, ok := s.handler.(Finalizer[T]); ok {
		f.FinalizeComponent(&item.value, item.owner)
	}
	s.components.Erase(h)
	return nil
}

// ReadComponent applies data to an existing component in place, through the
// component's Read method or, failing that, the system's Filler.
func (s *ComponentStorage[T]) ReadComponent(h pool.Handle, data *doc.Document) error {
	item, ok := s.components.Get(h)
	if !ok {
		return ErrStaleHandle
	}
	if r, ok := any(&item.value).(Reader); ok {
		return r.Read(data)
	}
	if f, ok := s.handler.(Filler[T]); ok {
		return f.FillComponentData(&item.value, data)
	}
	return nil
}

func (s *ComponentStorage[T]) DumpComponent(h pool.Handle) (*doc.Document, error) {
	item, ok := s.components.Get(h)
	if !ok {
		return nil, ErrStaleHandle
	}
	if d, ok := any(&item.value).(Dumper); ok {
		return d.Dump(), nil
	}
	return doc.New(), nil
}

// Update runs the handler over a snapshot of live components. Components
// removed earlier in the same pass are skipped.
func (s *ComponentStorage[T]) Update(dt time.Duration) {
	handles := s.components.Elements()
	if len(handles) == 0 {
		return
	}
	s.ApplyConfig()

	host := s.Host()
	for _, h := range handles {
		item, ok := s.components.Get(h)
		if !ok {
			continue
		}
		var owner *ecs.Entity
		if host != nil {
			owner, _ = host.Entity(item.owner)
		}
		s.handler.UpdateComponent(&item.value, owner, dt)
	}
}

// UnloadComponents removes every component through the full removal path.
func (s *ComponentStorage[T]) UnloadComponents() {
	for {
		h, ok := s.components.Last()
		if !ok {
			return
		}
		if err := s.RemoveComponent(h); err != nil {
			s.Logger().Error("unload component", zap.Stringer("handle", h), zap.Error(err))
			return
		}
	}
}

func (s *ComponentStorage[T]) ComponentCount() int {
	return s.components.Len()
}

func (s *ComponentStorage[T]) Get(h pool.Handle) (*T, bool) {
	item, ok := s.components.Get(h)
	if !ok {
		return nil, false
	}
	return &item.value, true
}

// Owner returns the id of the entity owning the component.
func (s *ComponentStorage[T]) Owner(h pool.Handle) (string, bool) {
	item, ok := s.components.Get(h)
	if !ok {
		return "", false
	}
	return item.owner, true
}

// Each calls fn for every live component in insertion order.
func (s *ComponentStorage[T]) Each(fn func(h pool.Handle, c *T)) {
	s.components.Each(func(h pool.Handle, item *stored[T]) {
		fn(h, &item.value)
	})
}
