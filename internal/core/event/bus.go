package event

import (
	"reflect"
	"sort"
	"sync"
)

// Dispatcher is a typed publish/subscribe bus. Fire delivers synchronously on
// the caller's goroutine; Post queues the event for the next Flush, which the
// engine calls at tick start so background workers can reach main-loop
// subscribers.
type Dispatcher struct {
	mu      sync.Mutex // protects signals, nextID and pending
	signals map[reflect.Type][]listener
	nextID  uint64
	pending []func()
}

type listener struct {
	priority int
	id       uint64
	fn       any
}

// Connection identifies one subscription.
type Connection struct {
	d  *Dispatcher
	t  reflect.Type
	id uint64
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		signals: make(map[reflect.Type][]listener),
	}
}

// Subscribe registers fn for events of type T. Lower priority values run
// first; equal priorities run in subscription order. A handler returning
// false stops propagation to the remaining handlers.
func Subscribe[T any](d *Dispatcher, priority int, fn func(T) bool) Connection {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := reflect.TypeFor[T]()
	d.nextID++
	ls := append(d.signals[t], listener{priority: priority, id: d.nextID, fn: fn})
	sort.SliceStable(ls, func(i, j int) bool {
		return ls[i].priority < ls[j].priority
	})
	d.signals[t] = ls
	return Connection{d: d, t: t, id: d.nextID}
}

// Listen subscribes fn at priority 0 without the ability to stop propagation.
func Listen[T any](d *Dispatcher, fn func(T)) Connection {
	return Subscribe(d, 0, func(ev T) bool {
		fn(ev)
		return true
	})
}

// Fire delivers event to all handlers of type T.
func Fire[T any](d *Dispatcher, event T) {
	if d == nil {
		return
	}
	d.mu.Lock()
	ls := d.signals[reflect.TypeFor[T]()]
	// handlers may subscribe or disconnect while running
	snapshot := make([]listener, len(ls))
	copy(snapshot, ls)
	d.mu.Unlock()

	for _, l := range snapshot {
		if !l.fn.(func(T) bool)(event) {
			return
		}
	}
}

// Post queues event for delivery on the next Flush. Safe for concurrent use.
func Post[T any](d *Dispatcher, event T) {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.pending = append(d.pending, func() { Fire(d, event) })
	d.mu.Unlock()
}

// Flush delivers every posted event in posting order. Events posted by the
// handlers themselves wait for the next Flush.
func (d *Dispatcher) Flush() {
	d.mu.Lock()
	pending := d.pending
	d.pending = nil
	d.mu.Unlock()

	for _, fire := range pending {
		fire()
	}
}

// HasListeners reports whether any handler is subscribed for T.
func HasListeners[T any](d *Dispatcher) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.signals[reflect.TypeFor[T]()]) > 0
}

// Disconnect removes the subscription. Calling it more than once is a no-op.
func (c Connection) Disconnect() {
	if c.d == nil {
		return
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	ls := c.d.signals[c.t]
	for i, l := range ls {
		if l.id == c.id {
			c.d.signals[c.t] = append(ls[:i:i], ls[i+1:]...)
			return
		}
	}
}
