package slack

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Middleware applies per-user rate limits before a message is classified.
type Middleware struct {
	logger      zerolog.Logger
	rateLimiter *RateLimiter
}

// NewMiddleware creates a middleware allowing maxRequests per user per window.
func NewMiddleware(logger zerolog.Logger, maxRequests int, window time.Duration) *Middleware {
	return &Middleware{
		logger:      logger.With().Str("component", "slack.middleware").Logger(),
		rateLimiter: NewRateLimiter(maxRequests, window),
	}
}

// CheckRateLimit returns true if the user is within rate limits.
func (m *Middleware) CheckRateLimit(userID string) bool {
	allowed := m.rateLimiter.Allow(userID)
	if !allowed {
		m.logger.Warn().Str("user_id", userID).Msg("rate limited")
	}
	return allowed
}

// RateLimiter is a sliding-window limiter keyed by Slack user id. A
// maxRequests below 1 disables limiting.
type RateLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	requests    map[string][]time.Time
	lastPurge   time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
	}
}

// Allow records a request for key and reports whether it is within the limit.
func (r *RateLimiter) Allow(key string) bool {
	if r.maxRequests < 1 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)
	if now.Sub(r.lastPurge) > r.window {
		r.purge(cutoff)
		r.lastPurge = now
	}

	valid := prune(r.requests[key], cutoff)
	if len(valid) >= r.maxRequests {
		r.requests[key] = valid
		return false
	}
	r.requests[key] = append(valid, now)
	return true
}

// Tracked returns the number of users with requests in the current window.
func (r *RateLimiter) Tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

// purge drops users idle for a whole window.
func (r *RateLimiter) purge(cutoff time.Time) {
	for k, times := range r.requests {
		if valid := prune(times, cutoff); len(valid) > 0 {
			r.requests[k] = valid
		} else {
			delete(r.requests, k)
		}
	}
}

func prune(times []time.Time, cutoff time.Time) []time.Time {
	valid := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	return valid
}
