package engine

import (
	"sync"
	"time"

	"github.com/l1jgo/enginecore/internal/core/doc"
	"github.com/l1jgo/enginecore/internal/core/system"
	"go.uber.org/zap"
)

// dedicatedGroup runs one system's updates on its own goroutines instead of
// the engine loop. mu serializes the system's update with component access
// made by the engine.
type dedicatedGroup struct {
	name string
	sys  system.System
	tick time.Duration
	log  *zap.Logger

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup

	// announce is set until SystemAdded has been fired for the group's first
	// start. Engine goroutine only.
	announce bool
}

func startDedicated(name string, s system.System, cfg *doc.Document, threads int, tick time.Duration, log *zap.Logger) *dedicatedGroup {
	if threads < 1 {
		threads = 1
	}
	if tick <= 0 {
		tick = DefaultDedicatedTickRate
	}
	g := &dedicatedGroup{
		name: name,
		sys:  s,
		tick: tick,
		log:  log.With(zap.String("system", name)),
		stop: make(chan struct{}),
	}
	for i := 0; i < threads; i++ {
		g.wg.Add(1)
		go g.run(i, cfg)
	}
	return g
}

func (g *dedicatedGroup) run(i int, cfg *doc.Document) {
	defer g.wg.Done()

	g.mu.Lock()
	if !g.sys.Ready() {
		if err := g.sys.Initialize(cfg); err != nil {
			g.mu.Unlock()
			g.log.Error("failed to initialize dedicated system", zap.Int("thread", i), zap.Error(err))
			return
		}
	}
	g.mu.Unlock()

	ticker := time.NewTicker(g.tick)
	defer ticker.Stop()
	prev := time.Now()
	for {
		select {
		case <-g.stop:
			return
		case now := <-ticker.C:
			g.mu.Lock()
			if g.sys.Enabled() && g.sys.Ready() {
				g.sys.Update(now.Sub(prev))
			}
			g.mu.Unlock()
			prev = now
		}
	}
}

// shutdown stops the goroutines, waits for them and shuts the system down.
func (g *dedicatedGroup) shutdown() {
	close(g.stop)
	g.wg.Wait()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sys.Ready() {
		g.sys.Shutdown()
	}
}

// restartDedicated stops the group's goroutines, shuts the system down and
// starts a new group that initializes it again with its current
// configuration.
func (e *Engine) restartDedicated(name string, g *dedicatedGroup) {
	e.log.Info("restarting dedicated system", zap.String("system", name))
	g.mu.Lock()
	cfg := g.sys.Config()
	g.mu.Unlock()

	e.stopDedicated(name)
	threads := cfg.Int(system.KeyThreadsNumber, 1)
	e.dedicated[name] = startDedicated(name, g.sys, cfg, threads, e.dedicatedTickRate, e.log)
}

// lockWorld holds every dedicated group's lock while the engine mutates the
// entity world, so no dedicated update observes a half-applied change. It
// must not be called while holding a group lock.
func (e *Engine) lockWorld() (unlock func()) {
	if len(e.dedicated) == 0 {
		return func() {}
	}
	groups := make([]*dedicatedGroup, 0, len(e.dedicated))
	for _, g := range e.dedicated {
		g.mu.Lock()
		groups = append(groups, g)
	}
	return func() {
		for _, g := range groups {
			g.mu.Unlock()
		}
	}
}
