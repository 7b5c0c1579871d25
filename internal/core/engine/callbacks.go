package engine

import (
	"sync"
	"sync/atomic"
)

// Callback is a function queued for the engine loop by ExecuteInMainThread.
type Callback struct {
	fn        func()
	cancelled atomic.Bool
}

// Cancel prevents the callback from running if it has not run yet.
func (c *Callback) Cancel() {
	c.cancelled.Store(true)
}

func (c *Callback) Cancelled() bool {
	return c.cancelled.Load()
}

type callbackQueue struct {
	mu    sync.Mutex
	items []*Callback
	limit int
}

// push appends cb and returns how many of the oldest callbacks were dropped
// to stay within the limit.
func (q *callbackQueue) push(cb *Callback) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, cb)
	if q.limit <= 0 || len(q.items) <= q.limit {
		return 0
	}
	dropped := len(q.items) - q.limit
	q.items = append(q.items[:0], q.items[dropped:]...)
	return dropped
}

// run executes the callbacks queued so far. Callbacks queued while running
// wait for the next call.
func (q *callbackQueue) run() {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	for _, cb := range items {
		if !cb.Cancelled() {
			cb.fn()
		}
	}
}

func (q *callbackQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
