// Package ratelimit bounds the rate of outbound translation and prediction
// calls, on top of the pipeline's in-flight concurrency limit.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket refills at a fixed per-second rate up to a burst capacity.
// A nil *TokenBucket never limits, so callers can wire it optionally.
type TokenBucket struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	tokens float64
	last   time.Time
}

func New(perSec float64, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{
		rate:   perSec,
		burst:  float64(burst),
		tokens: float64(burst),
		last:   time.Now(),
	}
}

// take refills from elapsed time and consumes a token if available,
// otherwise returns how long until one accrues. Callers hold mu.
func (tb *TokenBucket) take() (bool, time.Duration) {
	now := time.Now()
	tb.tokens += now.Sub(tb.last).Seconds() * tb.rate
	if tb.tokens > tb.burst {
		tb.tokens = tb.burst
	}
	tb.last = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true, 0
	}
	wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return false, wait
}

// Wait blocks until a token is available or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	if tb == nil {
		return nil
	}
	for {
		tb.mu.Lock()
		ok, wait := tb.take()
		tb.mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
