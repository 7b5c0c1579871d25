package system

import (
	"fmt"
	"time"

	"github.com/l1jgo/enginecore/internal/core/doc"
	"github.com/l1jgo/enginecore/internal/core/ecs"
	coresys "github.com/l1jgo/enginecore/internal/core/system"
)

// KeyTimeScale scales the time lifetimes advance by. 1 is real time.
const KeyTimeScale = "timeScale"

// Lifetime expires its owner once Elapsed reaches TTL.
type Lifetime struct {
	TTL     time.Duration
	Elapsed time.Duration
	expired bool
}

// Read accepts ttl and elapsed either as a duration string ("1.5s") or as a
// number of seconds.
func (l *Lifetime) Read(data *doc.Document) error {
	ttl, err := readDuration(data, "ttl", l.TTL)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", ttl)
	}
	elapsed, err := readDuration(data, "elapsed", l.Elapsed)
	if err != nil {
		return err
	}
	l.TTL, l.Elapsed = ttl, elapsed
	return nil
}

func (l *Lifetime) Dump() *doc.Document {
	return doc.New().
		Set("ttl", l.TTL.String()).
		Set("elapsed", l.Elapsed.String())
}

func (l *Lifetime) Remaining() time.Duration {
	if l.Elapsed >= l.TTL {
		return 0
	}
	return l.TTL - l.Elapsed
}

func readDuration(data *doc.Document, key string, def time.Duration) (time.Duration, error) {
	v, ok := data.Get(key)
	if !ok {
		return def, nil
	}
	if s, ok := v.(string); ok {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return d, nil
	}
	secs := data.Float(key, -1)
	if secs < 0 {
		return 0, fmt.Errorf("%s: expected duration or seconds, got %v", key, v)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// LifetimeSystem ages Lifetime components and queues their owners for
// removal when they expire. Phase 3 (PostUpdate).
type LifetimeSystem struct {
	*coresys.ComponentStorage[Lifetime]
	queue RemovalQueue
	scale float64
}

func NewLifetimeSystem(queue RemovalQueue, poolSize int) *LifetimeSystem {
	s := &LifetimeSystem{queue: queue, scale: 1}
	s.ComponentStorage = coresys.NewComponentStorage[Lifetime](s, poolSize)
	s.SetPhase(coresys.PhasePostUpdate)
	return s
}

func (s *LifetimeSystem) ConfigUpdated(cfg *doc.Document) {
	s.scale = cfg.Float(KeyTimeScale, 1)
}

func (s *LifetimeSystem) UpdateComponent(c *Lifetime, owner *ecs.Entity, dt time.Duration) {
	if c.expired {
		return
	}
	c.Elapsed += time.Duration(float64(dt) * s.scale)
	if c.Elapsed < c.TTL || owner == nil {
		return
	}
	c.expired = true
	s.queue.MarkForRemoval(owner.ID())
}
