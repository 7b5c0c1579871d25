package engine

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/l1jgo/enginecore/internal/core/doc"
	"github.com/l1jgo/enginecore/internal/core/ecs"
	"github.com/l1jgo/enginecore/internal/core/event"
	"github.com/l1jgo/enginecore/internal/core/pool"
	"github.com/l1jgo/enginecore/internal/core/system"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Reserved entity document keys.
const (
	KeyID    = "id"
	KeyFlags = "flags"
	KeyClass = "class"
	KeyProps = "props"
	KeyVars  = "vars"

	DefaultClass = "default"
)

const (
	DefaultEntityPoolSize    = 1024
	DefaultDedicatedTickRate = 16 * time.Millisecond
)

var (
	ErrSystemExists        = errors.New("system already exists")
	ErrSystemNotFound      = errors.New("system not found")
	ErrEntityNotFound      = errors.New("entity not found")
	ErrComponentNotCreated = errors.New("component was not created")
)

// Engine owns the entity world and the registered systems, routes entity
// and component mutation through the owning system and ticks the systems.
//
// All methods must be called from a single goroutine, the engine loop.
// Background work reaches the loop through ExecuteInMainThread or event.Post.
type Engine struct {
	log      *zap.Logger
	events   *event.Dispatcher
	world    *ecs.World
	registry *system.Registry

	systems    map[string]system.System
	setUpOrder []string
	managed    map[string]bool
	runner     *system.Runner
	dedicated  map[string]*dedicatedGroup

	initialized bool
	config      *doc.Document
	env         *doc.Document

	entityCounter uint64
	callbacks     *callbackQueue

	entityPoolSize    int
	maxBlockLength    int
	dedicatedTickRate time.Duration
}

type Option func(*Engine)

// WithEntityPool sets the initial capacity and max node length of the
// entity pool.
func WithEntityPool(size, maxBlockLength int) Option {
	return func(e *Engine) {
		e.entityPoolSize = size
		e.maxBlockLength = maxBlockLength
	}
}

// WithRegistry sets the factory registry used by CreateSystem.
func WithRegistry(r *system.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithDedicatedTickRate sets the update interval of dedicated-thread systems.
func WithDedicatedTickRate(d time.Duration) Option {
	return func(e *Engine) { e.dedicatedTickRate = d }
}

// WithMainThreadQueueLimit bounds the main-thread callback queue; the oldest
// callbacks are dropped on overflow. Zero means unbounded.
func WithMainThreadQueueLimit(n int) Option {
	return func(e *Engine) { e.callbacks.limit = n }
}

func New(log *zap.Logger, opts ...Option) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		log:               log,
		events:            event.NewDispatcher(),
		registry:          system.NewRegistry(),
		systems:           make(map[string]system.System, 16),
		managed:           make(map[string]bool),
		runner:            system.NewRunner(),
		dedicated:         make(map[string]*dedicatedGroup),
		config:            doc.New(),
		env:               doc.New(),
		callbacks:         &callbackQueue{},
		entityPoolSize:    DefaultEntityPoolSize,
		maxBlockLength:    pool.DefaultMaxBlockLength,
		dedicatedTickRate: DefaultDedicatedTickRate,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.world = ecs.NewWorld(e.entityPoolSize, e.maxBlockLength)
	return e
}

func (e *Engine) Logger() *zap.Logger        { return e.log }
func (e *Engine) Events() *event.Dispatcher  { return e.events }
func (e *Engine) Registry() *system.Registry { return e.registry }
func (e *Engine) Initialized() bool          { return e.initialized }

// Settings returns a copy of the stored system configuration.
func (e *Engine) Settings() *doc.Document { return e.config.Clone() }

// Env returns a copy of the environment passed to Initialize.
func (e *Engine) Env() *doc.Document { return e.env.Clone() }

// Initialize initializes every registered system in the order it was added,
// passing each its sub-document of configuration. Systems already ready are
// skipped. The sequence stops at the first failure; systems initialized
// before it stay initialized.
func (e *Engine) Initialize(configuration, environment *doc.Document) error {
	e.config = configuration.Clone()
	e.env = environment.Clone()

	var err error
	for _, name := range e.setUpOrder {
		s, ok := e.systems[name]
		if !ok {
			continue
		}
		if s.Ready() {
			e.log.Info("system is already initialized, skipped", zap.String("system", name))
			continue
		}
		if err = e.configureSystem(name, false); err != nil {
			e.log.Error("failed to initialize system", zap.String("system", name), zap.Error(err))
			break
		}
		e.log.Info("initialized system", zap.String("system", name))
	}
	e.initialized = true
	return err
}

// ConfigureSystems merges config into the stored configuration and
// reconfigures every system with its sub-document. All systems are
// attempted; their errors are combined.
func (e *Engine) ConfigureSystems(config *doc.Document) error {
	doc.Merge(e.config, config)

	var errs error
	for _, name := range slices.Clone(e.setUpOrder) {
		s, ok := e.systems[name]
		if !ok {
			continue
		}
		e.log.Info("configuring system", zap.String("system", name))
		err := e.withSystem(name, func() error {
			return s.Configure(e.subConfig(name))
		})
		if err != nil {
			e.log.Error("failed to configure system", zap.String("system", name), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("configure %q: %w", name, err))
		}
	}

	event.Fire(e.events, event.SettingsUpdated{Settings: e.config.Clone()})
	return errs
}

// ConfigureSystem replaces the stored configuration of one system and
// configures it, or restarts it when restart is set.
func (e *Engine) ConfigureSystem(name string, config *doc.Document, restart bool) error {
	e.config.Set(name, config.Clone())
	return e.configureSystem(name, restart)
}

func (e *Engine) configureSystem(name string, restart bool) error {
	s, ok := e.systems[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrSystemNotFound, name)
	}

	firstSetup := !s.Ready()
	cfg := e.subConfig(name)
	dedicated := cfg.Bool(system.KeyDedicatedThread, false) && s.AllowMultithreading()

	if firstSetup && dedicated {
		if _, running := e.dedicated[name]; !running {
			threads := cfg.Int(system.KeyThreadsNumber, 1)
			e.log.Info("spawning dedicated system workers", zap.String("system", name), zap.Int("threads", threads))
			g := startDedicated(name, s, cfg, threads, e.dedicatedTickRate, e.log)
			g.announce = true
			e.dedicated[name] = g
		}
		return nil
	}

	err := e.withSystem(name, func() error {
		if !s.Ready() {
			if err := s.Initialize(cfg); err != nil {
				return err
			}
		}
		if restart {
			if err := s.Configure(cfg); err != nil {
				return err
			}
			s.Restart()
			return nil
		}
		return s.Configure(cfg)
	})
	if err != nil {
		return err
	}

	if firstSetup {
		event.Fire(e.events, event.SystemAdded{Name: name, System: s})
	}
	return nil
}

func (e *Engine) subConfig(name string) *doc.Document {
	if c, ok := e.config.Child(name); ok {
		return c.Clone()
	}
	return doc.New()
}

// Update ticks every enabled, ready system in phase order, then runs the
// queued main-thread callbacks. Systems flagged for restart are restarted
// right after their update.
func (e *Engine) Update(dt time.Duration) {
	e.events.Flush()
	event.Fire(e.events, event.EngineUpdated{Dt: dt})

	for _, entry := range e.runner.Ordered() {
		s := entry.System
		if cur, ok := e.systems[entry.Name]; !ok || cur != s {
			continue
		}
		if !s.Enabled() || !s.Ready() {
			continue
		}

		if g, ok := e.dedicated[entry.Name]; ok {
			if s.BecameReady() && g.announce {
				g.announce = false
				event.Fire(e.events, event.SystemAdded{Name: entry.Name, System: s})
			}
			if s.NeedsRestart() {
				e.restartDedicated(entry.Name, g)
			}
			continue
		}

		s.Update(dt)

		if s.NeedsRestart() {
			e.log.Info("restarting system", zap.String("system", entry.Name))
			cfg := s.Config()
			s.Shutdown()
			if err := s.Initialize(cfg); err != nil {
				e.log.Error("failed to restart system", zap.String("system", entry.Name), zap.Error(err))
			}
		}
	}

	e.callbacks.run()
}

// AddSystem registers s under name. When the engine is already initialized
// the system is set up immediately from the stored configuration.
func (e *Engine) AddSystem(name string, s system.System) error {
	if _, ok := e.systems[name]; ok {
		e.log.Error("failed to add system: system with such id exists", zap.String("system", name))
		return fmt.Errorf("%w: %q", ErrSystemExists, name)
	}

	s.Attach(name, e)
	e.systems[name] = s
	e.setUpOrder = append(e.setUpOrder, name)
	e.runner.Register(name, s)

	if e.initialized {
		if err := e.configureSystem(name, false); err != nil {
			e.log.Error("failed to set up system", zap.String("system", name), zap.Error(err))
			return err
		}
	}
	return nil
}

// CreateSystem instantiates a system of kind from the registry and adds it
// under name. The engine owns the instance and releases it on removal.
func (e *Engine) CreateSystem(kind, name string) (system.System, error) {
	s, err := e.registry.Create(kind)
	if err != nil {
		return nil, err
	}
	err = e.AddSystem(name, s)
	if errors.Is(err, ErrSystemExists) {
		return nil, err
	}
	// registered even when set-up failed
	e.managed[name] = true
	return s, err
}

func (e *Engine) HasSystem(name string) bool {
	_, ok := e.systems[name]
	return ok
}

func (e *Engine) System(name string) (system.System, bool) {
	s, ok := e.systems[name]
	return s, ok
}

// Systems returns system names in the order they were added.
func (e *Engine) Systems() []string {
	return slices.Clone(e.setUpOrder)
}

// RemoveSystem drops the system registered under name. Engine-managed
// systems are shut down and their components unloaded.
func (e *Engine) RemoveSystem(name string) error {
	s, ok := e.systems[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrSystemNotFound, name)
	}
	event.Fire(e.events, event.SystemRemoved{Name: name, System: s})

	e.stopDedicated(name)
	if e.managed[name] {
		delete(e.managed, name)
		e.release(name, s)
	}
	delete(e.systems, name)
	e.setUpOrder = slices.DeleteFunc(e.setUpOrder, func(n string) bool { return n == name })
	e.runner.Remove(name)
	s.Detach()
	return nil
}

// RemoveSystems drops every system, announcing each removal first.
func (e *Engine) RemoveSystems() {
	order := slices.Clone(e.setUpOrder)
	for _, name := range order {
		event.Fire(e.events, event.SystemRemoved{Name: name, System: e.systems[name]})
	}
	for _, name := range order {
		e.stopDedicated(name)
		s := e.systems[name]
		if e.managed[name] {
			e.release(name, s)
		}
		s.Detach()
	}
	clear(e.systems)
	clear(e.managed)
	e.setUpOrder = e.setUpOrder[:0]
	e.runner.Clear()
}

func (e *Engine) release(name string, s system.System) {
	if s.Ready() {
		s.Shutdown()
	}
	e.log.Info("unload components from system", zap.String("system", name))
	s.UnloadComponents()
}

// Shutdown stops dedicated-thread workers and shuts down every ready system
// in reverse set-up order.
func (e *Engine) Shutdown() {
	for name := range e.dedicated {
		e.stopDedicated(name)
	}
	for i := len(e.setUpOrder) - 1; i >= 0; i-- {
		name := e.setUpOrder[i]
		if s := e.systems[name]; s.Ready() {
			e.log.Info("stopping system", zap.String("system", name))
			s.Shutdown()
		}
	}
}

func (e *Engine) stopDedicated(name string) {
	g, ok := e.dedicated[name]
	if !ok {
		return
	}
	delete(e.dedicated, name)
	e.log.Info("stopping dedicated system workers", zap.String("system", name))
	g.shutdown()
}

// withSystem runs fn holding the dedicated-thread lock of the named system,
// if it has one, so component access never overlaps its update.
func (e *Engine) withSystem(name string, fn func() error) error {
	if g, ok := e.dedicated[name]; ok {
		g.mu.Lock()
		defer g.mu.Unlock()
	}
	return fn()
}

// ExecuteInMainThread queues fn to run on the engine loop at the end of the
// next Update. Safe for concurrent use.
func (e *Engine) ExecuteInMainThread(fn func()) *Callback {
	cb := &Callback{fn: fn}
	if dropped := e.callbacks.push(cb); dropped > 0 {
		e.log.Warn("main thread queue overflow, dropped oldest callbacks", zap.Int("dropped", dropped))
	}
	return cb
}
