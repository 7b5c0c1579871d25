package system

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/l1jgo/enginecore/internal/core/doc"
	"github.com/l1jgo/enginecore/internal/core/ecs"
	"github.com/l1jgo/enginecore/internal/core/event"
	"github.com/l1jgo/enginecore/internal/core/pool"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type testHost struct {
	log     *zap.Logger
	events  *event.Dispatcher
	world   *ecs.World
	systems map[string]System
}

func newTestHost(t *testing.T) *testHost {
	return &testHost{
		log:     zaptest.NewLogger(t),
		events:  event.NewDispatcher(),
		world:   ecs.NewWorld(8, pool.DefaultMaxBlockLength),
		systems: make(map[string]System),
	}
}

func (h *testHost) Logger() *zap.Logger                  { return h.log }
func (h *testHost) Events() *event.Dispatcher            { return h.events }
func (h *testHost) Entity(id string) (*ecs.Entity, bool) { return h.world.Get(id) }

func (h *testHost) System(name string) (System, bool) {
	s, ok := h.systems[name]
	return s, ok
}

type counterSystem struct {
	*Base
	updates atomic.Int32
	applied atomic.Int32
	multi   bool
}

func newCounterSystem() *counterSystem {
	s := &counterSystem{}
	s.Base = NewBase(s)
	return s
}

func (s *counterSystem) Update(time.Duration) {
	s.updates.Add(1)
	s.ApplyConfig()
}

func (s *counterSystem) AllowMultithreading() bool { return s.multi }

func (s *counterSystem) ConfigUpdated(*doc.Document) { s.applied.Add(1) }

func TestConfigure(t *testing.T) {
	s := newCounterSystem()
	s.Attach("c", newTestHost(t))

	if err := s.Configure(doc.New().Set("a", 1).Set("nested", doc.New().Set("x", 1))); err != nil {
		t.Fatal(err)
	}
	if err := s.Configure(doc.New().Set("b", 2).Set("nested", doc.New().Set("y", 2))); err != nil {
		t.Fatal(err)
	}
	cfg := s.Config()
	nested, _ := cfg.Child("nested")
	if cfg.Int("a", 0) != 1 || cfg.Int("b", 0) != 2 || nested.Int("x", 0) != 1 || nested.Int("y", 0) != 2 {
		t.Errorf("configs not merged: %v", cfg.Map())
	}

	// Config returns a copy
	cfg.Set("a", 100)
	if s.Config().Int("a", 0) != 1 {
		t.Error("Config leaked internal document")
	}

	s.Update(0)
	s.Update(0)
	if n := s.applied.Load(); n != 1 {
		t.Errorf("expected ConfigUpdated once, got %d", n)
	}

	if err := s.Configure(doc.New().Set(KeyEnabled, false)); err != nil {
		t.Fatal(err)
	}
	if s.Enabled() {
		t.Error("enabled=false not applied")
	}
	s.SetEnabled(true)
	if !s.Enabled() || !s.Config().Bool(KeyEnabled, false) {
		t.Error("SetEnabled not recorded")
	}
}

func TestInitialize(t *testing.T) {
	t.Run("marks ready and fires started", func(t *testing.T) {
		host := newTestHost(t)
		s := newCounterSystem()
		s.Attach("c", host)

		var started, stopping []string
		event.Listen(host.events, func(ev event.SystemStarted) { started = append(started, ev.Name) })
		event.Listen(host.events, func(ev event.SystemStopping) { stopping = append(stopping, ev.Name) })

		if err := s.Initialize(doc.New().Set(KeyThreadsNumber, 3)); err != nil {
			t.Fatal(err)
		}
		if !s.Ready() || s.ThreadsNumber() != 3 {
			t.Errorf("ready=%v threads=%d", s.Ready(), s.ThreadsNumber())
		}
		if !s.BecameReady() || s.BecameReady() {
			t.Error("BecameReady must report true exactly once")
		}
		s.Shutdown()
		if s.Ready() {
			t.Error("still ready after shutdown")
		}
		if len(started) != 1 || len(stopping) != 1 || started[0] != "c" {
			t.Errorf("started=%v stopping=%v", started, stopping)
		}
	})

	t.Run("dedicated thread requires support", func(t *testing.T) {
		s := newCounterSystem()
		s.Attach("c", newTestHost(t))
		err := s.Initialize(doc.New().Set(KeyDedicatedThread, true))
		if !errors.Is(err, ErrMultithreadingUnsupported) {
			t.Fatalf("expected ErrMultithreadingUnsupported, got %v", err)
		}
		if s.Ready() {
			t.Error("system must not be ready")
		}

		s.multi = true
		if err := s.Initialize(doc.New().Set(KeyDedicatedThread, true)); err != nil {
			t.Fatal(err)
		}
		if !s.DedicatedThread() {
			t.Error("dedicated flag not set")
		}
		s.Shutdown()
	})

	t.Run("dedicated lifecycle events are posted", func(t *testing.T) {
		host := newTestHost(t)
		s := newCounterSystem()
		s.multi = true
		s.Attach("c", host)

		started := 0
		event.Listen(host.events, func(event.SystemStarted) { started++ })
		if err := s.Initialize(doc.New().Set(KeyDedicatedThread, true)); err != nil {
			t.Fatal(err)
		}
		if started != 0 {
			t.Fatal("event delivered before flush")
		}
		host.events.Flush()
		if started != 1 {
			t.Errorf("expected 1 started event, got %d", started)
		}
		s.Shutdown()
	})
}

func TestBackgroundWorkers(t *testing.T) {
	s := newCounterSystem()
	s.Attach("w", newTestHost(t))
	if err := s.Initialize(doc.New().Set(KeyBackgroundWorkersCount, 3)); err != nil {
		t.Fatal(err)
	}
	if n := s.BackgroundWorkers(); n != 3 {
		t.Fatalf("expected 3 workers, got %d", n)
	}

	var mu sync.Mutex
	ran := 0
	tasks := make([]*Task, 0, 10)
	for i := 0; i < 10; i++ {
		tasks = append(tasks, s.AsyncTask(func() {
			mu.Lock()
			ran++
			mu.Unlock()
		}))
	}
	for _, task := range tasks {
		if task == nil {
			t.Fatal("expected a task handle")
		}
		select {
		case <-task.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("task did not finish")
		}
	}
	mu.Lock()
	if ran != 10 {
		t.Errorf("expected 10 tasks to run, got %d", ran)
	}
	mu.Unlock()

	if tasks[0].ID() == tasks[1].ID() {
		t.Error("task ids must be unique")
	}

	done := make(chan struct{})
	go func() {
		s.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not join workers")
	}
	if s.BackgroundWorkers() != 0 {
		t.Error("workers still registered")
	}
}

func TestCancelledTaskDoesNotRun(t *testing.T) {
	s := newCounterSystem()
	s.Attach("w", newTestHost(t))
	if err := s.Initialize(doc.New().Set(KeyBackgroundWorkersCount, 1)); err != nil {
		t.Fatal(err)
	}
	defer s.Shutdown()

	release := make(chan struct{})
	blocker := s.AsyncTask(func() { <-release })

	var ran atomic.Bool
	task := s.AsyncTask(func() { ran.Store(true) })
	task.Cancel()
	close(release)

	<-blocker.Done()
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled task never dequeued")
	}
	if ran.Load() {
		t.Error("cancelled task ran")
	}
	if !task.Cancelled() {
		t.Error("Cancelled must report true")
	}
}

func TestShutdownWithFullTaskQueue(t *testing.T) {
	host := newTestHost(t)
	s := newCounterSystem()
	s.Attach("w", host)
	err := s.Initialize(doc.New().
		Set(KeyBackgroundWorkersCount, 1).
		Set(KeyTasksQueueSize, 1))
	if err != nil {
		t.Fatal(err)
	}

	release := make(chan struct{})
	started := make(chan struct{})
	s.AsyncTask(func() {
		close(started)
		<-release
	})
	<-started
	s.AsyncTask(func() {}) // fills the queue

	queued := make(chan struct{})
	go func() {
		s.AsyncTask(func() {})
		close(queued)
	}()

	stopping := make(chan struct{})
	event.Listen(host.events, func(event.SystemStopping) { close(stopping) })
	stopped := make(chan struct{})
	go func() {
		s.Shutdown()
		close(stopped)
	}()
	<-stopping
	close(release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown blocked by a producer waiting on the task queue")
	}
	select {
	case <-queued:
	case <-time.After(2 * time.Second):
		t.Fatal("producer still blocked after shutdown")
	}
	if s.Ready() {
		t.Error("system still ready")
	}
}

func TestAsyncTaskWithoutWorkers(t *testing.T) {
	s := newCounterSystem()
	s.Attach("w", newTestHost(t))
	if err := s.Initialize(doc.New()); err != nil {
		t.Fatal(err)
	}
	defer s.Shutdown()

	ran := false
	task := s.AsyncTask(func() { ran = true })
	if !ran {
		t.Error("task must run before AsyncTask returns")
	}
	if task != nil {
		t.Error("expected no task handle")
	}
}

func TestRestart(t *testing.T) {
	t.Run("not ready is a no-op", func(t *testing.T) {
		s := newCounterSystem()
		s.Restart()
		if s.NeedsRestart() || s.Ready() {
			t.Error("restart of a stopped system must do nothing")
		}
	})

	t.Run("enabled system is flagged", func(t *testing.T) {
		s := newCounterSystem()
		s.Attach("r", newTestHost(t))
		_ = s.Initialize(doc.New())
		defer s.Shutdown()
		s.Restart()
		if !s.NeedsRestart() {
			t.Error("expected restart flag")
		}
		_ = s.Initialize(s.Config())
		if s.NeedsRestart() {
			t.Error("initialize must clear the restart flag")
		}
	})

	t.Run("disabled system restarts in place", func(t *testing.T) {
		host := newTestHost(t)
		s := newCounterSystem()
		s.Attach("r", host)
		_ = s.Initialize(doc.New().Set("x", 4).Set(KeyBackgroundWorkersCount, 1))
		defer s.Shutdown()
		s.SetEnabled(false)

		started := 0
		event.Listen(host.events, func(event.SystemStarted) { started++ })
		s.Restart()
		if s.NeedsRestart() {
			t.Error("disabled system must not be flagged")
		}
		if !s.Ready() || started != 1 {
			t.Errorf("ready=%v started=%d", s.Ready(), started)
		}
		if s.Config().Int("x", 0) != 4 || s.BackgroundWorkers() != 1 {
			t.Error("restart lost configuration")
		}
	})
}

func TestComponentDefaults(t *testing.T) {
	s := newCounterSystem()
	if _, err := s.CreateComponent(doc.New(), nil); !errors.Is(err, ErrComponentsUnsupported) {
		t.Errorf("expected ErrComponentsUnsupported, got %v", err)
	}
	if err := s.RemoveComponent(1); !errors.Is(err, ErrComponentsUnsupported) {
		t.Errorf("expected ErrComponentsUnsupported, got %v", err)
	}
	if s.ComponentCount() != 0 {
		t.Error("expected no components")
	}
}
