package fetch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/serptrend/serptrend/internal/metrics"
)

// Pacer serializes all outbound search requests behind a single minimum
// inter-request delay. One Pacer is shared by every attempt of every query
// within a run; concurrent fetches would defeat the throttle.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer creates a Pacer enforcing minDelay between requests.
// A non-positive delay disables pacing.
func NewPacer(minDelay time.Duration) *Pacer {
	limit := rate.Inf
	if minDelay > 0 {
		limit = rate.Every(minDelay)
	}
	return &Pacer{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next request slot, respecting the context.
func (p *Pacer) Wait(ctx context.Context) error {
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitWait(waited)
	}
	return nil
}
