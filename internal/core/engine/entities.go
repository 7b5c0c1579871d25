package engine

import (
	"fmt"

	"github.com/l1jgo/enginecore/internal/core/doc"
	"github.com/l1jgo/enginecore/internal/core/ecs"
	"github.com/l1jgo/enginecore/internal/core/event"
	"github.com/l1jgo/enginecore/internal/core/pool"
	"github.com/l1jgo/enginecore/internal/core/system"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func (e *Engine) Entity(id string) (*ecs.Entity, bool) { return e.world.Get(id) }

func (e *Engine) EntityCount() int { return e.world.Len() }

// Entities returns a snapshot of live entities in creation order.
func (e *Engine) Entities() []*ecs.Entity { return e.world.Entities() }

// CreateEntity creates the entity described by data, or updates it in place
// when an entity with the same id already exists. Without an "id" key the
// id is generated as entity<N>. Every key other than the reserved ones names
// a system; its value is the component data for that system.
//
// Component failures do not abort creation: they are logged and the entity
// is returned without the failed components.
func (e *Engine) CreateEntity(data *doc.Document) (*ecs.Entity, error) {
	id := data.String(KeyID, "")
	if !data.Has(KeyID) {
		id = fmt.Sprintf("entity%d", e.entityCounter)
		e.entityCounter++
	}
	if id == "" {
		return nil, fmt.Errorf("create entity: empty %q", KeyID)
	}

	unlock := e.lockWorld()
	ent, created := e.world.Acquire(id)
	ent.SetClass(data.String(KeyClass, DefaultClass))
	if props, ok := data.Child(KeyProps); ok {
		ent.SetVars(props)
	} else if vars, ok := data.Child(KeyVars); ok {
		ent.SetVars(vars)
	}
	unlock()

	if err := e.ReadEntityData(ent, data); err != nil {
		e.log.Warn("entity created with errors", zap.String("entity", id), zap.Error(err))
	}

	if created {
		event.Fire(e.events, event.EntityCreated{ID: id})
	}
	return ent, nil
}

// ReadEntityData applies data to ent: flags are added, components missing
// from the entity are created, existing ones re-read in place.
func (e *Engine) ReadEntityData(ent *ecs.Entity, data *doc.Document) error {
	if flags := data.Strings(KeyFlags); len(flags) > 0 {
		unlock := e.lockWorld()
		for _, f := range flags {
			ent.SetFlag(f)
		}
		unlock()
	}

	var errs error
	data.Each(func(key string, v any) bool {
		switch key {
		case KeyID, KeyFlags, KeyClass, KeyProps, KeyVars:
			return true
		}
		sub, ok := v.(*doc.Document)
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("component %q: expected a document, got %T", key, v))
			return true
		}

		h, exists := ent.Component(key)
		if !exists {
			errs = multierr.Append(errs, e.CreateComponent(ent, key, sub))
			return true
		}

		s, ok := e.systems[key]
		if !ok {
			e.log.Error("component exists in entity but no such system", zap.String("entity", ent.ID()), zap.String("system", key))
			errs = multierr.Append(errs, fmt.Errorf("%w: %q", ErrSystemNotFound, key))
			return true
		}
		err := e.withSystem(key, func() error {
			return s.ReadComponent(h, sub)
		})
		if err != nil {
			e.log.Error("failed to read component", zap.String("entity", ent.ID()), zap.String("system", key), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("read %q component: %w", key, err))
		}
		return true
	})
	return errs
}

// CreateComponent creates a component in the named system and attaches it to
// ent, replacing any component ent already had from that system.
func (e *Engine) CreateComponent(ent *ecs.Entity, systemName string, data *doc.Document) error {
	s, ok := e.systems[systemName]
	if !ok {
		e.log.Error("failed to create component: no such system", zap.String("entity", ent.ID()), zap.String("system", systemName))
		return fmt.Errorf("%w: %q", ErrSystemNotFound, systemName)
	}

	var h pool.Handle
	err := e.withSystem(systemName, func() error {
		var err error
		h, err = s.CreateComponent(data, ent)
		return err
	})
	if err != nil {
		e.log.Error("failed to create component", zap.String("entity", ent.ID()), zap.String("system", systemName), zap.Error(err))
		return fmt.Errorf("%w in system %q: %w", ErrComponentNotCreated, systemName, err)
	}
	unlock := e.lockWorld()
	ent.AddComponent(systemName, h)
	unlock()
	return nil
}

// RemoveEntity announces the removal, removes the entity's components from
// their systems and releases the entity.
func (e *Engine) RemoveEntity(id string) error {
	ent, ok := e.world.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrEntityNotFound, id)
	}
	event.Fire(e.events, event.EntityRemoved{ID: id})
	e.removeComponents(ent)

	unlock := e.lockWorld()
	e.world.Release(id)
	unlock()
	return nil
}

func (e *Engine) removeComponents(ent *ecs.Entity) {
	for _, ref := range ent.Components() {
		s, ok := e.systems[ref.System]
		if !ok {
			continue
		}
		err := e.withSystem(ref.System, func() error {
			return s.RemoveComponent(ref.Handle)
		})
		if err != nil {
			e.log.Warn("failed to remove component", zap.String("entity", ent.ID()), zap.String("system", ref.System), zap.Error(err))
		}
		unlock := e.lockWorld()
		ent.RemoveComponent(ref.System)
		unlock()
	}
}

// UnloadAll removes every entity and every component of every system.
func (e *Engine) UnloadAll() {
	for _, ent := range e.world.Entities() {
		event.Fire(e.events, event.EntityRemoved{ID: ent.ID()})
	}
	for _, entry := range e.runner.Ordered() {
		_ = e.withSystem(entry.Name, func() error {
			entry.System.UnloadComponents()
			return nil
		})
	}
	unlock := e.lockWorld()
	e.world.Clear()
	unlock()
}

// UnloadMatching removes every entity for which match returns true and
// reports how many were removed.
func (e *Engine) UnloadMatching(match func(*ecs.Entity) bool) int {
	var ids []string
	for _, ent := range e.world.Entities() {
		if match(ent) {
			ids = append(ids, ent.ID())
		}
	}
	for _, id := range ids {
		_ = e.RemoveEntity(id)
	}
	return len(ids)
}

// MarkForRemoval queues id for removal on the next FlushRemovals. Unlike
// RemoveEntity it is safe to call from inside a system update, including
// the update of a dedicated-thread system.
func (e *Engine) MarkForRemoval(id string) {
	e.world.MarkForDestruction(id)
}

// FlushRemovals removes the entities queued by MarkForRemoval.
func (e *Engine) FlushRemovals() int {
	n := 0
	for _, id := range e.world.DrainDestroyQueue() {
		if e.RemoveEntity(id) == nil {
			n++
		}
	}
	return n
}

// DumpEntity serializes ent with its vars, flags and the dump of every
// component, keyed by system name.
func (e *Engine) DumpEntity(ent *ecs.Entity) *doc.Document {
	out := doc.New().
		Set(KeyID, ent.ID()).
		Set(KeyClass, ent.Class())
	if flags := ent.Flags(); len(flags) > 0 {
		out.Set(KeyFlags, flags)
	}
	if vars := ent.Vars(); vars.Len() > 0 {
		out.Set(KeyProps, vars.Clone())
	}
	for _, ref := range ent.Components() {
		s, ok := e.systems[ref.System]
		if !ok {
			continue
		}
		var d *doc.Document
		err := e.withSystem(ref.System, func() error {
			var err error
			d, err = s.DumpComponent(ref.Handle)
			return err
		})
		if err != nil {
			e.log.Warn("failed to dump component", zap.String("entity", ent.ID()), zap.String("system", ref.System), zap.Error(err))
			continue
		}
		out.Set(ref.System, d)
	}
	return out
}

// GetComponent returns the typed component ent holds in the named system.
func GetComponent[T any](e *Engine, ent *ecs.Entity, systemName string) (*T, bool) {
	if ent == nil {
		return nil, false
	}
	h, ok := ent.Component(systemName)
	if !ok {
		return nil, false
	}
	s, ok := e.systems[systemName]
	if !ok {
		return nil, false
	}
	return system.ComponentOf[T](s, h)
}
