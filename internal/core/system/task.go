package system

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Task is a unit of work queued on a system's background workers.
// Cancel only prevents a task that has not started yet from running.
type Task struct {
	id        uuid.UUID
	fn        func()
	cancelled atomic.Bool
	done      chan struct{}
}

func newTask(fn func()) *Task {
	return &Task{
		id:   uuid.New(),
		fn:   fn,
		done: make(chan struct{}),
	}
}

func (t *Task) ID() string { return t.id.String() }

func (t *Task) Cancel() {
	t.cancelled.Store(true)
}

func (t *Task) Cancelled() bool {
	return t.cancelled.Load()
}

// Done is closed once a worker dequeued the task, whether it ran or was
// cancelled. Tasks still queued when the system shuts down are dropped and
// never close Done.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) run() {
	defer close(t.done)
	if !t.cancelled.Load() {
		t.fn()
	}
}
