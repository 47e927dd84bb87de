package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter spaces out requests to the target shop.
type Limiter interface {
	Wait(ctx context.Context) error
}

// New picks a limiter for the configured delay window. A zero window
// disables limiting.
func New(minDelay, maxDelay time.Duration) Limiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	if maxDelay <= 0 {
		return Unlimited{}
	}
	if minDelay == maxDelay {
		return NewTokenBucket(minDelay, 1)
	}
	return NewJitterLimiter(minDelay, maxDelay)
}

type Unlimited struct{}

func (Unlimited) Wait(ctx context.Context) error {
	return ctx.Err()
}

// JitterLimiter waits a random delay in [min, max) since the previous
// action, so request timing does not look scripted.
type JitterLimiter struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	mu         sync.Mutex
}

func NewJitterLimiter(minDelay, maxDelay time.Duration) *JitterLimiter {
	return &JitterLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
	}
}

func (r *JitterLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if wait := r.nextDelay() - time.Since(r.lastAction); wait > 0 && !r.lastAction.IsZero() {
		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	r.lastAction = time.Now()
	return nil
}

func (r *JitterLimiter) nextDelay() time.Duration {
	delta := r.maxDelay - r.minDelay
	if delta <= 0 {
		return r.minDelay
	}
	return r.minDelay + rand.N(delta)
}

// TokenBucket allows burst requests, then one per interval.
type TokenBucket struct {
	limiter *rate.Limiter
}

func NewTokenBucket(interval time.Duration, burst int) *TokenBucket {
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Every(interval), burst),
	}
}

func (t *TokenBucket) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}
