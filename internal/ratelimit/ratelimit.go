package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// SimpleRateLimiter spaces out page loads by a random delay in [minDelay, maxDelay).
type SimpleRateLimiter struct {
	minDelay time.Duration
	maxDelay time.Duration
	mu       sync.Mutex
	rnd      *rand.Rand
}

func NewSimpleRateLimiter(minDelay, maxDelay time.Duration) *SimpleRateLimiter {
	return &SimpleRateLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Pause sleeps one jittered delay or until ctx is done.
func (r *SimpleRateLimiter) Pause(ctx context.Context) error {
	return Sleep(ctx, r.NextDelay())
}

// NextDelay draws the next jittered delay.
func (r *SimpleRateLimiter) NextDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxDelay <= r.minDelay {
		return r.minDelay
	}

	delta := r.maxDelay - r.minDelay
	return r.minDelay + time.Duration(r.rnd.Int63n(int64(delta)))
}

// Sleep waits for d, returning early with ctx.Err() if ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
