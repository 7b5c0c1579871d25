package ecs

import (
	"github.com/l1jgo/enginecore/internal/core/doc"
	"github.com/l1jgo/enginecore/internal/core/pool"
)

// ComponentRef names the system owning a component and the component's
// handle inside that system's pool.
type ComponentRef struct {
	System string
	Handle pool.Handle
}

// Entity is a world object identified by a unique string id. It holds the
// handles of its components keyed by system name, in registration order.
// Entities live in a World's pool; pointers must not be kept after removal.
type Entity struct {
	id         string
	handle     pool.Handle
	class      string
	flags      []string
	vars       *doc.Document
	components []ComponentRef
}

func (e *Entity) ID() string            { return e.id }
func (e *Entity) Handle() pool.Handle   { return e.handle }
func (e *Entity) Class() string         { return e.class }
func (e *Entity) SetClass(class string) { e.class = class }

// Vars returns the free-form properties bag, creating it on first use.
func (e *Entity) Vars() *doc.Document {
	if e.vars == nil {
		e.vars = doc.New()
	}
	return e.vars
}

func (e *Entity) SetVars(v *doc.Document) {
	e.vars = v.Clone()
}

// SetFlag adds flag unless the entity already has it.
func (e *Entity) SetFlag(flag string) {
	if e.HasFlag(flag) {
		return
	}
	e.flags = append(e.flags, flag)
}

func (e *Entity) HasFlag(flag string) bool {
	for _, f := range e.flags {
		if f == flag {
			return true
		}
	}
	return false
}

func (e *Entity) Flags() []string {
	out := make([]string, len(e.flags))
	copy(out, e.flags)
	return out
}

// AddComponent records the component handle for system. Re-adding a system
// replaces the handle in place.
func (e *Entity) AddComponent(system string, h pool.Handle) {
	for i := range e.components {
		if e.components[i].System == system {
			e.components[i].Handle = h
			return
		}
	}
	e.components = append(e.components, ComponentRef{System: system, Handle: h})
}

func (e *Entity) RemoveComponent(system string) bool {
	for i, c := range e.components {
		if c.System == system {
			e.components = append(e.components[:i], e.components[i+1:]...)
			return true
		}
	}
	return false
}

func (e *Entity) Component(system string) (pool.Handle, bool) {
	for _, c := range e.components {
		if c.System == system {
			return c.Handle, true
		}
	}
	return 0, false
}

func (e *Entity) HasComponent(system string) bool {
	_, ok := e.Component(system)
	return ok
}

// HasComponents reports whether the entity has a component in every system.
func (e *Entity) HasComponents(systems ...string) bool {
	for _, s := range systems {
		if !e.HasComponent(s) {
			return false
		}
	}
	return true
}

// Components returns a copy of the component refs in registration order.
func (e *Entity) Components() []ComponentRef {
	out := make([]ComponentRef, len(e.components))
	copy(out, e.components)
	return out
}

func (e *Entity) ComponentNames() []string {
	out := make([]string, len(e.components))
	for i, c := range e.components {
		out[i] = c.System
	}
	return out
}
