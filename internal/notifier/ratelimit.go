package notifier

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds per-channel rate limiter configuration.
type RateLimitConfig struct {
	PerMinute int  // Sends allowed per channel per minute (default: 30)
	Burst     int  // Burst size (default: PerMinute)
	Enabled   bool // Whether rate limiting is enabled
}

// DefaultRateLimitConfig returns default rate limit settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		PerMinute: 30,
		Burst:     30,
		Enabled:   true,
	}
}

// RateLimiter keeps one token bucket per channel name so a noisy alert
// storm cannot flood a single destination.
type RateLimiter struct {
	mu       sync.Mutex
	config   RateLimitConfig
	limiters map[string]*rate.Limiter
	dropped  int64
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.PerMinute <= 0 {
		config.PerMinute = 30
	}
	if config.Burst <= 0 {
		config.Burst = config.PerMinute
	}
	return &RateLimiter{
		config:   config,
		limiters: make(map[string]*rate.Limiter),
	}
}

// AllowAt reports whether a send on channel is allowed at now.
func (r *RateLimiter) AllowAt(channel string, now time.Time) bool {
	if r == nil || !r.config.Enabled {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[channel]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(r.config.PerMinute)), r.config.Burst)
		r.limiters[channel] = l
	}
	if !l.AllowN(now, 1) {
		r.dropped++
		return false
	}
	return true
}

// Stats returns rate limiter statistics.
func (r *RateLimiter) Stats() RateLimitStats {
	if r == nil {
		return RateLimitStats{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	return RateLimitStats{
		Dropped:   r.dropped,
		Channels:  len(r.limiters),
		PerMinute: r.config.PerMinute,
		Burst:     r.config.Burst,
		Enabled:   r.config.Enabled,
	}
}

// RateLimitStats contains rate limiter statistics.
type RateLimitStats struct {
	Dropped   int64 `json:"dropped"`
	Channels  int   `json:"channels"`
	PerMinute int   `json:"per_minute"`
	Burst     int   `json:"burst"`
	Enabled   bool  `json:"enabled"`
}
