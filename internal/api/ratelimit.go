package api

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per tenant.
type RateLimiter struct {
	mu    sync.Mutex
	rps   rate.Limit
	burst int
	m     map[string]*rate.Limiter
}

// NewRateLimiter returns nil when rps <= 0, which disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{rps: rate.Limit(rps), burst: burst, m: map[string]*rate.Limiter{}}
}

// Allow reports whether tenant may make another request now.
func (l *RateLimiter) Allow(tenant string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.m[tenant]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.m[tenant] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
