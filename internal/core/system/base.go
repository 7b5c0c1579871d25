package system

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/l1jgo/enginecore/internal/core/doc"
	"github.com/l1jgo/enginecore/internal/core/ecs"
	"github.com/l1jgo/enginecore/internal/core/event"
	"github.com/l1jgo/enginecore/internal/core/pool"
	"go.uber.org/zap"
)

const (
	// workerWaitTimeout bounds how long a background worker blocks before it
	// re-checks the shutdown flag.
	workerWaitTimeout = 200 * time.Millisecond

	defaultTasksQueueSize = 1024
)

// Reserved configuration keys.
const (
	KeyEnabled                = "enabled"
	KeyThreadsNumber          = "threadsNumber"
	KeyDedicatedThread        = "dedicatedThread"
	KeyBackgroundWorkersCount = "backgroundWorkersCount"
	KeyTasksQueueSize         = "tasksQueueSize"
)

// ConfigApplier is implemented by systems that react to configuration
// changes. ConfigUpdated runs at most once per update, after Configure.
type ConfigApplier interface {
	ConfigUpdated(cfg *doc.Document)
}

// Base implements the system lifecycle: configure, initialize, shutdown and
// restart, plus an optional pool of background workers fed by AsyncTask.
//
// Lifecycle methods are called from the engine goroutine; flags and the
// worker pool are safe to read from worker goroutines.
type Base struct {
	self any

	name  string
	kind  string
	phase Phase
	host  Host
	log   *zap.Logger

	mu        sync.Mutex // protects config, threads, dedicated
	config    *doc.Document
	threads   int
	dedicated bool

	ready      atomic.Bool
	fresh      atomic.Bool
	enabled    atomic.Bool
	dirty      atomic.Bool
	shutdown   atomic.Bool
	restarting atomic.Bool

	workerMu sync.RWMutex // protects workers, tasks, stop, closing
	workers  int
	tasks    chan *Task
	stop     chan struct{}
	closing  chan struct{} // closed by Shutdown to release blocked producers
	wg       sync.WaitGroup
}

// NewBase returns a base bound to self, the outer system value. Optional
// hooks (AllowMultithreading, ConfigUpdated) are looked up on self.
func NewBase(self any) *Base {
	b := &Base{
		self:   self,
		phase:  PhaseUpdate,
		log:    zap.NewNop(),
		config: doc.New(),
	}
	b.enabled.Store(true)
	return b
}

func (b *Base) Name() string        { return b.name }
func (b *Base) Kind() string        { return b.kind }
func (b *Base) SetKind(kind string) { b.kind = kind }
func (b *Base) Phase() Phase        { return b.phase }
func (b *Base) SetPhase(p Phase)    { b.phase = p }
func (b *Base) Host() Host          { return b.host }
func (b *Base) Logger() *zap.Logger { return b.log }

// Attach is called by the engine when the system is added under name.
func (b *Base) Attach(name string, host Host) {
	b.name = name
	b.host = host
	if host != nil && host.Logger() != nil {
		b.log = host.Logger().With(zap.String("system", name))
	}
}

// Detach is called by the engine when the system is removed.
func (b *Base) Detach() {
	b.host = nil
}

// Configure merges cfg into the stored configuration and marks it dirty.
// It may be called any number of times.
func (b *Base) Configure(cfg *doc.Document) error {
	b.mu.Lock()
	if b.config == nil {
		b.config = doc.New()
	}
	doc.Merge(b.config, cfg)
	enabled := b.config.Bool(KeyEnabled, true)
	b.mu.Unlock()

	b.enabled.Store(enabled)
	b.dirty.Store(true)
	return nil
}

// Config returns a copy of the current configuration.
func (b *Base) Config() *doc.Document {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config.Clone()
}

func (b *Base) ConfigDirty() bool {
	return b.dirty.Load()
}

// ApplyConfig clears the dirty flag and runs the ConfigUpdated hook once if
// the configuration changed since the last call.
func (b *Base) ApplyConfig() {
	if !b.dirty.CompareAndSwap(true, false) {
		return
	}
	if applier, ok := b.self.(ConfigApplier); ok {
		applier.ConfigUpdated(b.Config())
	}
}

// AllowMultithreading reports whether the system can run in dedicated-thread
// mode. Override on the outer system to enable it.
func (b *Base) AllowMultithreading() bool {
	return false
}

func (b *Base) allowMultithreading() bool {
	if m, ok := b.self.(interface{ AllowMultithreading() bool }); ok {
		return m.AllowMultithreading()
	}
	return b.AllowMultithreading()
}

// Initialize replaces the configuration with settings, starts the configured
// number of background workers and marks the system ready.
func (b *Base) Initialize(settings *doc.Document) error {
	b.shutdown.Store(false)
	b.restarting.Store(false)

	b.mu.Lock()
	b.config = settings.Clone()
	b.threads = b.config.Int(KeyThreadsNumber, 1)
	b.dedicated = b.config.Bool(KeyDedicatedThread, false)
	dedicated := b.dedicated
	workers := b.config.Int(KeyBackgroundWorkersCount, 0)
	queueSize := b.config.Int(KeyTasksQueueSize, defaultTasksQueueSize)
	b.mu.Unlock()

	if dedicated && !b.allowMultithreading() {
		b.log.Error("system does not support multithreaded mode")
		return fmt.Errorf("initialize %q: %w", b.name, ErrMultithreadingUnsupported)
	}
	b.setReady(true)

	if workers > 0 {
		b.startWorkers(workers, queueSize)
	}

	fireLifecycle(b, event.SystemStarted{Name: b.name, System: b.self})
	b.log.Info("system started")
	return nil
}

func (b *Base) startWorkers(count, queueSize int) {
	if queueSize < 1 {
		queueSize = defaultTasksQueueSize
	}
	b.workerMu.Lock()
	defer b.workerMu.Unlock()

	if b.tasks == nil {
		b.tasks = make(chan *Task, queueSize)
	}
	if b.stop == nil {
		b.stop = make(chan struct{}, count)
	}
	if b.closing == nil {
		b.closing = make(chan struct{})
	}
	for i := b.workers; i < count; i++ {
		b.wg.Add(1)
		go b.runWorker(i, b.tasks, b.stop)
	}
	if count > b.workers {
		b.workers = count
	}
}

func (b *Base) runWorker(i int, tasks <-chan *Task, stop <-chan struct{}) {
	defer b.wg.Done()
	b.log.Info("starting background worker", zap.Int("worker", i))

	timer := time.NewTimer(workerWaitTimeout)
	defer timer.Stop()
	for {
		signalled := false
		timer.Reset(workerWaitTimeout)
		select {
		case t := <-tasks:
			b.log.Debug("running task", zap.String("task", t.ID()), zap.Int("worker", i))
			t.run()
		case <-stop:
			signalled = true
		case <-timer.C:
		}
		if signalled || b.shutdown.Load() {
			break
		}
	}
	b.log.Info("stopped background worker", zap.Int("worker", i))
}

// Shutdown stops and joins the background workers and marks the system as
// not ready. Tasks still queued are dropped.
func (b *Base) Shutdown() {
	fireLifecycle(b, event.SystemStopping{Name: b.name, System: b.self})
	b.shutdown.Store(true)

	b.workerMu.Lock()
	n, stop, tasks := b.workers, b.stop, b.tasks
	if b.closing != nil {
		close(b.closing)
	}
	b.workers = 0
	b.tasks = nil
	b.stop = nil
	b.closing = nil
	for i := 0; i < n; i++ {
		// workers that already saw the flag leave their signal unread
		select {
		case stop <- struct{}{}:
		default:
		}
	}
	b.workerMu.Unlock()

	b.wg.Wait()
	if dropped := len(tasks); dropped > 0 {
		b.log.Warn("dropped queued tasks on shutdown", zap.Int("tasks", dropped))
	}
	b.setReady(false)
}

// Restart re-runs shutdown and initialize with the current configuration.
// An enabled system is only flagged: the engine restarts it after its
// in-flight update completes.
func (b *Base) Restart() {
	if !b.Ready() {
		return
	}
	if b.Enabled() {
		b.restarting.Store(true)
		return
	}
	lc, ok := b.self.(interface {
		Shutdown()
		Initialize(*doc.Document) error
	})
	if !ok {
		lc = b
	}
	cfg := b.Config()
	lc.Shutdown()
	if err := lc.Initialize(cfg); err != nil {
		b.log.Error("restart failed", zap.Error(err))
	}
}

func (b *Base) NeedsRestart() bool {
	return b.restarting.Load()
}

// AsyncTask queues fn on a background worker and returns its handle. With no
// workers running fn runs synchronously and the result is nil. A full queue
// blocks the caller until a worker frees a slot or the system shuts down; in
// the latter case fn also runs synchronously.
func (b *Base) AsyncTask(fn func()) *Task {
	b.workerMu.RLock()
	workers, tasks, closing := b.workers, b.tasks, b.closing
	b.workerMu.RUnlock()

	if workers == 0 || b.shutdown.Load() {
		b.log.Warn("no background workers are started, task will run in foreground")
		fn()
		return nil
	}

	t := newTask(fn)
	select {
	case tasks <- t:
		return t
	case <-closing:
		b.log.Warn("system is shutting down, task will run in foreground", zap.String("task", t.ID()))
		fn()
		return nil
	}
}

func (b *Base) BackgroundWorkers() int {
	b.workerMu.RLock()
	defer b.workerMu.RUnlock()
	return b.workers
}

func (b *Base) setReady(v bool) {
	b.ready.Store(v)
	b.fresh.Store(v)
}

func (b *Base) Ready() bool {
	return b.ready.Load()
}

// BecameReady reports true once after every transition to ready.
func (b *Base) BecameReady() bool {
	return b.fresh.CompareAndSwap(true, false)
}

func (b *Base) Enabled() bool {
	return b.enabled.Load()
}

// SetEnabled toggles the system and records the value in its configuration.
func (b *Base) SetEnabled(enabled bool) {
	b.enabled.Store(enabled)
	b.mu.Lock()
	b.config.Set(KeyEnabled, enabled)
	b.mu.Unlock()
}

func (b *Base) DedicatedThread() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dedicated
}

func (b *Base) ThreadsNumber() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.threads
}

// Systems without components keep these defaults.

func (b *Base) CreateComponent(*doc.Document, *ecs.Entity) (pool.Handle, error) {
	return 0, ErrComponentsUnsupported
}

func (b *Base) RemoveComponent(pool.Handle) error {
	return ErrComponentsUnsupported
}

func (b *Base) ReadComponent(pool.Handle, *doc.Document) error {
	return ErrComponentsUnsupported
}

func (b *Base) DumpComponent(pool.Handle) (*doc.Document, error) {
	return nil, ErrComponentsUnsupported
}

func (b *Base) UnloadComponents() {}

func (b *Base) ComponentCount() int { return 0 }

// fireLifecycle delivers ev directly on the engine goroutine, or posts it for
// the next tick when the system runs on a dedicated thread.
func fireLifecycle[T any](b *Base, ev T) {
	if b.host == nil {
		return
	}
	d := b.host.Events()
	if b.DedicatedThread() {
		event.Post(d, ev)
		return
	}
	event.Fire(d, ev)
}
