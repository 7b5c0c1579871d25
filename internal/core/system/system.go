package system

import (
	"errors"
	"time"

	"github.com/l1jgo/enginecore/internal/core/doc"
	"github.com/l1jgo/enginecore/internal/core/ecs"
	"github.com/l1jgo/enginecore/internal/core/event"
	"github.com/l1jgo/enginecore/internal/core/pool"
	"go.uber.org/zap"
)

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain external input
	PhasePreUpdate               // 1: react to last tick's events
	PhaseUpdate                  // 2: main logic, default
	PhasePostUpdate              // 3: derived state
	PhaseOutput                  // 4: publish results
	PhasePersist                 // 5: snapshots
	PhaseCleanup                 // 6: deferred entity removal
)

var (
	ErrMultithreadingUnsupported = errors.New("system does not support multithreaded mode")
	ErrComponentsUnsupported     = errors.New("system does not manage components")
	ErrStaleHandle               = errors.New("component handle is stale or unknown")
	ErrNotReady                  = errors.New("system is not initialized")
)

// Host is the engine as seen by an attached system.
type Host interface {
	Logger() *zap.Logger
	Events() *event.Dispatcher
	Entity(id string) (*ecs.Entity, bool)
	System(name string) (System, bool)
}

// System is the interface every engine system implements. Embed *Base (or
// *ComponentStorage[T]) and provide Update to get the lifecycle for free.
type System interface {
	Name() string
	Kind() string
	SetKind(kind string)
	Phase() Phase
	Attach(name string, host Host)
	Detach()

	Configure(cfg *doc.Document) error
	Config() *doc.Document
	Initialize(settings *doc.Document) error
	Shutdown()
	Restart()
	NeedsRestart() bool

	Ready() bool
	BecameReady() bool
	Enabled() bool
	SetEnabled(enabled bool)
	DedicatedThread() bool
	ThreadsNumber() int
	AllowMultithreading() bool

	Update(dt time.Duration)

	CreateComponent(data *doc.Document, owner *ecs.Entity) (pool.Handle, error)
	RemoveComponent(h pool.Handle) error
	ReadComponent(h pool.Handle, data *doc.Document) error
	DumpComponent(h pool.Handle) (*doc.Document, error)
	UnloadComponents()
	ComponentCount() int
}

// ComponentOf resolves a typed component from a component storage system.
func ComponentOf[T any](s System, h pool.Handle) (*T, bool) {
	getter, ok := s.(interface {
		Get(pool.Handle) (*T, bool)
	})
	if !ok {
		return nil, false
	}
	return getter.Get(h)
}
