package retry

import (
	"context"
	"errors"
	"time"

	"github.com/civicdesk/civicdesk/internal/logger"
)

// DefaultTargetPolicy is the per-target send policy: a small fixed attempt
// count with exponential backoff and jitter
func DefaultTargetPolicy(name string, log logger.Logger) Policy {
	return Policy{
		Name:     name,
		Attempts: 3,
		Backoff:  ExpoJitter{Base: 100 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.2},
		Retryable: func(err error) bool {
			return err != nil
		},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Warn("Dispatch send attempt failed", "target", name, "attempt", i+1, "error", err)
			}
		},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Warn("Dispatch send retries exhausted", "target", name, "error", err)
			}
		},
	}
}
