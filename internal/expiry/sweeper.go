// Package expiry runs the periodic sweep that moves idle reports to expired.
package expiry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SweepFunc expires every stale report and returns how many changed.
type SweepFunc func(ctx context.Context) (int64, error)

// Sweeper calls a SweepFunc on a fixed interval.
type Sweeper struct {
	sweep    SweepFunc
	interval time.Duration
	logger   *zap.Logger
}

func NewSweeper(sweep SweepFunc, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		sweep:    sweep,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps once on start, then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("Expiry sweeper started.", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Expiry sweeper stopped.")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	n, err := s.sweep(sweepCtx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("Failed to sweep expired reports", zap.Error(err))
		}
		return
	}
	s.logger.Debug("Expiry sweep finished", zap.Int64("expired", n))
}
