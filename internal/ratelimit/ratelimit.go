// Package ratelimit provides a keyed token bucket limiter. The sync worker keys
// it by entity kind so one failing table cannot starve retries of the others.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Keyed manages one independent limiter per key.
type Keyed[K comparable] struct {
	mu       sync.RWMutex
	limiters map[K]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// New creates a keyed limiter allowing rps events per second per key with the
// given burst.
func New[K comparable](rps float64, burst int) *Keyed[K] {
	return &Keyed[K]{
		limiters: make(map[K]*rate.Limiter),
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether an event for key may happen now, consuming a token if so.
func (k *Keyed[K]) Allow(key K) bool {
	return k.limiter(key).Allow()
}

// Wait blocks until an event for key is allowed or ctx is done.
func (k *Keyed[K]) Wait(ctx context.Context, key K) error {
	return k.limiter(key).Wait(ctx)
}

// Len returns the number of keys seen so far.
func (k *Keyed[K]) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.limiters)
}

func (k *Keyed[K]) limiter(key K) *rate.Limiter {
	k.mu.RLock()
	l, ok := k.limiters[key]
	k.mu.RUnlock()
	if ok {
		return l
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if l, ok = k.limiters[key]; ok {
		return l
	}
	l = rate.NewLimiter(k.limit, k.burst)
	k.limiters[key] = l
	return l
}
