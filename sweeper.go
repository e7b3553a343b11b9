package authcore

import (
	"context"
	"sync"
	"time"
)

// Sweeper periodically deletes stale pending accounts using the engine's
// configured cutoff. It runs as an internal maintenance actor, outside the
// system-owner authorization that guards the manual operation.
type Sweeper struct {
	engine   *Engine
	interval time.Duration

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSweeper builds a sweeper from the engine's Cleanup section. It returns
// nil when cleanup is disabled; a nil sweeper ignores Start and Stop.
func NewSweeper(engine *Engine) *Sweeper {
	if engine == nil || !engine.config.Cleanup.Enabled {
		return nil
	}
	return &Sweeper{
		engine:   engine,
		interval: engine.config.Cleanup.Interval,
		done:     make(chan struct{}),
	}
}

// Start launches the periodic sweep loop. The first sweep runs after one
// full interval, not immediately.
func (s *Sweeper) Start() {
	if s == nil {
		return
	}
	s.wg.Add(1)
	go s.run()
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result, err := s.engine.cleanupStalePendingUsers(ctx, "system:sweeper", 0)
	if err != nil {
		s.engine.logger.Error(ctx, "pending-user sweep failed", "error", err)
		return
	}
	if result.DeletedUsers > 0 {
		s.engine.logger.Info(ctx, "pending-user sweep removed stale accounts",
			"deleted", result.DeletedUsers,
			"cutoff", result.Cutoff.String(),
		)
	}
}

// Stop halts the loop and waits for an in-flight sweep to finish. Safe to
// call more than once.
func (s *Sweeper) Stop() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}
