package auth

import (
	"context"
	"time"

	"github.com/civicdesk/civicdesk/internal/logger"
)

const defaultSweepInterval = 24 * time.Hour

// Sweeper deletes expired refresh token rows on a fixed schedule
// It shares the store with the request path but never blocks it: a failed
// sweep is logged and retried on the next tick
type Sweeper struct {
	interval time.Duration
	refresh  *RefreshManager
	logger   logger.Logger
}

func NewSweeper(interval time.Duration, refresh *RefreshManager, l logger.Logger) *Sweeper {
	if interval == 0 {
		interval = defaultSweepInterval
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Sweeper{
		interval: interval,
		refresh:  refresh,
		logger:   l,
	}
}

// Run sweeps until the context is cancelled
// The returned channel closes when the sweeper has fully stopped
func (s *Sweeper) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	s.logger.Debug("Starting refresh token sweeper", "interval", s.interval)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Sweeper stopped by context")
				return

			case <-ticker.C:
				deleted, err := s.refresh.SweepExpired(ctx, time.Now())
				if err != nil {
					s.logger.Error("Failed to sweep expired refresh tokens", "error", err)
					continue
				}
				s.logger.Info("Swept expired refresh tokens", "deleted", deleted)
			}
		}
	}()

	return idleStopped
}
