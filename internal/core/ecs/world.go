package ecs

import (
	"sync"

	"github.com/l1jgo/enginecore/internal/core/pool"
)

// World owns the entity pool, the id index and a deferred removal queue
// flushed by the cleanup system at tick end.
//
// The pool and index are not synchronized; the engine serializes their
// writers. The destroy queue may be fed from any goroutine.
type World struct {
	pool *pool.Pool[Entity]
	byID map[string]pool.Handle

	queueMu      sync.Mutex
	destroyQueue []string
}

func NewWorld(poolSize, maxBlockLength int) *World {
	return &World{
		pool:         pool.New[Entity](poolSize, maxBlockLength),
		byID:         make(map[string]pool.Handle, poolSize),
		destroyQueue: make([]string, 0, 64),
	}
}

// Acquire returns the entity with id, allocating it when absent. created
// reports whether a new entity was allocated.
func (w *World) Acquire(id string) (e *Entity, created bool) {
	if e, ok := w.Get(id); ok {
		return e, false
	}
	h, e := w.pool.Create()
	e.id = id
	e.handle = h
	e.class = ""
	w.byID[id] = h
	return e, true
}

func (w *World) Get(id string) (*Entity, bool) {
	h, ok := w.byID[id]
	if !ok {
		return nil, false
	}
	return w.pool.Get(h)
}

func (w *World) Has(id string) bool {
	_, ok := w.Get(id)
	return ok
}

// Release erases the entity from the pool and the id index.
func (w *World) Release(id string) bool {
	h, ok := w.byID[id]
	if !ok {
		return false
	}
	delete(w.byID, id)
	return w.pool.Erase(h)
}

// Entities returns a snapshot of live entities in creation order.
func (w *World) Entities() []*Entity {
	handles := w.pool.Elements()
	out := make([]*Entity, 0, len(handles))
	for _, h := range handles {
		if e, ok := w.pool.Get(h); ok {
			out = append(out, e)
		}
	}
	return out
}

func (w *World) Len() int {
	return w.pool.Len()
}

func (w *World) Capacity() int {
	return w.pool.Capacity()
}

// Clear drops every entity without touching their components.
func (w *World) Clear() {
	w.pool.Clear()
	clear(w.byID)
	w.queueMu.Lock()
	w.destroyQueue = w.destroyQueue[:0]
	w.queueMu.Unlock()
}

// MarkForDestruction queues an entity id for end-of-tick removal.
func (w *World) MarkForDestruction(id string) {
	w.queueMu.Lock()
	defer w.queueMu.Unlock()
	for _, queued := range w.destroyQueue {
		if queued == id {
			return
		}
	}
	w.destroyQueue = append(w.destroyQueue, id)
}

// DrainDestroyQueue returns the queued ids and empties the queue.
func (w *World) DrainDestroyQueue() []string {
	w.queueMu.Lock()
	defer w.queueMu.Unlock()
	if len(w.destroyQueue) == 0 {
		return nil
	}
	out := make([]string, len(w.destroyQueue))
	copy(out, w.destroyQueue)
	w.destroyQueue = w.destroyQueue[:0]
	return out
}
