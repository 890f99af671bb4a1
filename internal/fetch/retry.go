package fetch

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// RetryPolicy implements bounded exponential backoff with jitter.
// MaxRetries bounds the retries after the initial attempt, so a query is
// tried at most MaxRetries+1 times.
type RetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetryPolicy builds a policy, substituting sane defaults for zero values.
func NewRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration) *RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	return &RetryPolicy{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

// ShouldRetry reports whether another attempt is allowed after the given
// zero-based attempt number.
func (p *RetryPolicy) ShouldRetry(attempt int) bool {
	return attempt < p.maxRetries
}

// MaxAttempts returns the total attempt budget.
func (p *RetryPolicy) MaxAttempts() int {
	return p.maxRetries + 1
}

// Backoff returns the wait duration before the attempt following the given
// zero-based attempt number.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
