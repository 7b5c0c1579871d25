package system

import (
	"time"

	coresys "github.com/l1jgo/enginecore/internal/core/system"
	"go.uber.org/zap"
)

// RemovalQueue is the engine's deferred entity removal queue.
type RemovalQueue interface {
	MarkForRemoval(id string)
	FlushRemovals() int
}

// CleanupSystem flushes the deferred entity removal queue at tick end.
// Phase 6 (Cleanup).
type CleanupSystem struct {
	*coresys.Base
	queue RemovalQueue
}

func NewCleanupSystem(queue RemovalQueue) *CleanupSystem {
	s := &CleanupSystem{queue: queue}
	s.Base = coresys.NewBase(s)
	s.SetPhase(coresys.PhaseCleanup)
	return s
}

func (s *CleanupSystem) Update(_ time.Duration) {
	if n := s.queue.FlushRemovals(); n > 0 {
		s.Logger().Debug("removed entities", zap.Int("count", n))
	}
}
