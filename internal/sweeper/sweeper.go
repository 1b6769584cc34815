// Package sweeper runs the periodic cleanup of expired mappings. Resolution
// already treats expired rows as missing, so the sweeper only reclaims
// storage; the service stays correct if it never runs.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExpiredPurger is the part of the mapping service the sweeper drives.
type ExpiredPurger interface {
	SweepExpired(ctx context.Context) (int64, error)
}

type Sweeper struct {
	purger   ExpiredPurger
	interval time.Duration
	logger   *zap.Logger
}

func New(purger ExpiredPurger, interval time.Duration) *Sweeper {
	return &Sweeper{
		purger:   purger,
		interval: interval,
		logger:   zap.L().With(zap.String("component", "Sweeper")),
	}
}

// Start launches the sweep loop in its own goroutine. It stops when ctx is
// cancelled. A sweep failure is logged and the loop keeps going; the next
// tick retries.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		s.logger.Info("Sweeper started", zap.Duration("interval", s.interval))
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Sweeper stopped")
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
}

func (s *Sweeper) runOnce(ctx context.Context) {
	count, err := s.purger.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("Sweep failed", zap.Error(err))
		return
	}
	if count > 0 {
		s.logger.Info("Sweep completed", zap.Int64("deleted", count))
	}
}
