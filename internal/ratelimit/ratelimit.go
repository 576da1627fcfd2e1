// Package ratelimit provides a pluggable rate limiting interface.
//
// The built-in implementation is an in-memory token bucket used to
// throttle best-effort directory lookups; a deployment coordinating
// several processes can substitute its own — the Limiter interface is
// the contract.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether one more operation should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow returns true if the operation should proceed. Returning an
	// error signals a limiter malfunction; callers should treat errors as
	// fail-open rather than blocking traffic.
	Allow(ctx context.Context) (bool, error)

	// Close releases resources.
	Close() error
}

// NoopLimiter permits every operation. Used when throttling is disabled.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context) (bool, error) { return true, nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }

// Bucket implements Limiter with a single in-memory token bucket: a
// sustained rate of tokens per second and a burst capacity. This process
// serves one tenant, so one bucket is enough.
type Bucket struct {
	rate  float64 // tokens added per second
	burst float64 // maximum tokens

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// NewBucket creates a token bucket limiter allowing rate operations per
// second with bursts up to burst. The bucket starts full.
func NewBucket(rate float64, burst int) *Bucket {
	return &Bucket{
		rate:   rate,
		burst:  float64(burst),
		tokens: float64(burst),
		last:   time.Now(),
	}
}

// Allow consumes one token. Returns false when the bucket is empty.
func (b *Bucket) Allow(_ context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens += now.Sub(b.last).Seconds() * b.rate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.last = now

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// Close is a no-op; the bucket holds no background resources.
func (b *Bucket) Close() error { return nil }
