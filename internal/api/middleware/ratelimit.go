package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/good-yellow-bee/blazewatch/internal/api/respond"
)

// RateLimiter keeps one token bucket per caller key.
type RateLimiter struct {
	mu       sync.Mutex
	perMin   int
	limiters map[string]*limiterEntry
	idleTTL  time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter allowing limit requests per
// minute per key, with a burst of limit.
func NewRateLimiter(limit int) *RateLimiter {
	if limit <= 0 {
		limit = 120
	}
	return &RateLimiter{
		perMin:   limit,
		limiters: make(map[string]*limiterEntry),
		idleTTL:  10 * time.Minute,
	}
}

// Allow checks if a request is allowed for the given key.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.allowAt(key, time.Now())
}

func (rl *RateLimiter) allowAt(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, ok := rl.limiters[key]
	if !ok {
		e = &limiterEntry{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.perMin)), rl.perMin),
		}
		rl.limiters[key] = e
		rl.cleanupLocked(now)
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// cleanupLocked drops limiters idle for longer than idleTTL.
func (rl *RateLimiter) cleanupLocked(now time.Time) {
	for key, e := range rl.limiters {
		if !e.lastSeen.IsZero() && now.Sub(e.lastSeen) > rl.idleTTL {
			delete(rl.limiters, key)
		}
	}
}

// RateLimitByCaller returns middleware that rate limits by token subject,
// or by client IP for anonymous requests.
func RateLimitByCaller(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := GetSubject(r.Context())
			if key == "" {
				key = getClientIP(r)
			}
			if !limiter.Allow(key) {
				w.Header().Set("Retry-After", strconv.Itoa(int((time.Minute / time.Duration(limiter.perMin)).Seconds())+1))
				respond.JSONError(w, respond.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
