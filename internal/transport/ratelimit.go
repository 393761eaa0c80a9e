// Copyright 2025 Joseph Cumines
//
// Token bucket rate limiter for HTTP transport

package transport

import (
	"net/http"
	"sync"
	"time"
)

// RateLimiter implements a token bucket. The burst is twice the rate, with a
// floor of one request.
type RateLimiter struct {
	clock      func() time.Time
	lastUpdate time.Time
	rate       float64
	burst      float64
	tokens     float64
	mu         sync.Mutex
}

// NewRateLimiter returns a limiter admitting requestsPerSecond on average,
// or nil (no limiting) when the rate is not positive. A nil clock uses
// time.Now.
func NewRateLimiter(requestsPerSecond float64, clock func() time.Time) *RateLimiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	burst := max(requestsPerSecond*2, 1)
	return &RateLimiter{
		rate:       requestsPerSecond,
		burst:      burst,
		tokens:     burst,
		lastUpdate: clock(),
		clock:      clock,
	}
}

// Allow consumes a token if one is available.
func (r *RateLimiter) Allow() bool {
	if r == nil {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	r.tokens = min(r.tokens+now.Sub(r.lastUpdate).Seconds()*r.rate, r.burst)
	r.lastUpdate = now

	if r.tokens < 1 {
		return false
	}
	r.tokens--
	return true
}

// Tokens returns the available tokens, or -1 for a nil limiter.
func (r *RateLimiter) Tokens() float64 {
	if r == nil {
		return -1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens
}

// RateLimitMiddleware rejects requests with 429 once the bucket is empty.
// /health and /metrics are exempt.
func RateLimitMiddleware(limiter *RateLimiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isExempt(r.URL.Path) || limiter.Allow() {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Retry-After", "1")
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
	})
}

func isExempt(path string) bool {
	return path == "/health" || path == "/metrics"
}
