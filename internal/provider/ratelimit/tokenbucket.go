package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket refills at rate tokens per second up to capacity, the burst.
// It starts full.
type TokenBucket struct {
	rate     float64
	capacity float64

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

var _ Limiter = (*TokenBucket)(nil)

// NewTokenBucket admits perMinute calls per minute with bursts of up to
// burst calls.
func NewTokenBucket(perMinute, burst int) *TokenBucket {
	rate := float64(perMinute) / 60
	if rate <= 0 {
		rate = 1e-7
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		rate:     rate,
		capacity: float64(burst),
		tokens:   float64(burst),
		last:     time.Now(),
	}
}

// take refills the bucket and either consumes a token or reports how long
// until one is available.
func (tb *TokenBucket) take(now time.Time) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if elapsed := now.Sub(tb.last).Seconds(); elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.rate)
		tb.last = now
	}
	if tb.tokens >= 1 {
		tb.tokens--
		return 0
	}
	return max(time.Millisecond, time.Duration((1-tb.tokens)/tb.rate*float64(time.Second)))
}

// Wait blocks until a token is taken or ctx ends.
func (tb *TokenBucket) Wait(ctx context.Context) (time.Duration, error) {
	began := time.Now()
	for held := false; ; held = true {
		d := tb.take(time.Now())
		if d == 0 {
			if !held {
				return 0, nil
			}
			return time.Since(began), nil
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return time.Since(began), ctx.Err()
		case <-timer.C:
		}
	}
}
