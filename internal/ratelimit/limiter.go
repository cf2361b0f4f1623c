// Package ratelimit caps the outbound send rate of a stress run.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps a token-bucket limiter. A nil *Limiter never blocks, so
// callers can thread an optional cap without nil checks.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing rps sends per second with burst rps.
// rps <= 0 returns nil (no limiting).
func New(rps int) *Limiter {
	if rps <= 0 {
		return nil
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(rps), rps)}
}

// Wait blocks until a send is allowed or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}
