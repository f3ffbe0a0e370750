// Package restfetch builds the per-venue REST fetchers the poller fans out
// over, bounding request rate per venue and stopping short of hammering a
// venue that is already failing.
package restfetch

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter wraps one golang.org/x/time/rate.Limiter per venue.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter builds an empty per-venue limiter set, lazily creating each
// venue's bucket on first Allow with the rps/burst given there.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{limiters: make(map[string]*rate.Limiter)}
}

// Allow registers venue (if unseen) with the given rps/burst and blocks
// until a token is available or ctx is cancelled.
func (r *RateLimiter) Allow(ctx context.Context, venue string, rps float64, burst int) error {
	r.mu.Lock()
	lim, ok := r.limiters[venue]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(rps), burst)
		r.limiters[venue] = lim
	}
	r.mu.Unlock()
	return lim.Wait(ctx)
}
