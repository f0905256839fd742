package presence

import (
	"context"
	"log/slog"
	"time"

	"rapidride/internal/observability"
)

// Sweeper periodically evicts idle drivers from a Registry.
type Sweeper struct {
	registry Registry
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a new Sweeper.
func NewSweeper(registry Registry, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{registry: registry, interval: interval, logger: logger}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep and refreshes the online gauge.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	removed, err := s.registry.SweepIdle(ctx)
	if err != nil {
		s.logger.Error("presence sweep failed", "error", err)
		return 0
	}
	if removed > 0 {
		s.logger.Info("evicted idle drivers", "count", removed)
	}
	if n, err := s.registry.Count(ctx); err == nil {
		observability.DriversOnline.Set(float64(n))
	}
	return removed
}
