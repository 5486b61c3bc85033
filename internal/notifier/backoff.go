package notifier

import (
	"math/rand"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// maxBackoffShift caps the exponent so the delay cannot overflow.
const maxBackoffShift = 20

// RetryDelay returns the delay before the next attempt of a notification
// that has already been retried retryCount times: RetryDelayMs, or
// RetryDelayMs * 2^retryCount with exponential backoff.
func RetryDelay(cfg models.RetryConfig, retryCount int) time.Duration {
	base := time.Duration(cfg.RetryDelayMs) * time.Millisecond
	if !cfg.ExponentialBackoff || retryCount <= 0 {
		return base
	}
	if retryCount > maxBackoffShift {
		retryCount = maxBackoffShift
	}
	return base * time.Duration(1<<uint(retryCount))
}

// applyJitter spreads delay by a random factor in [-jitter, +jitter].
// A jitter of zero returns delay unchanged.
func applyJitter(delay time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return delay
	}
	if jitter > 1 {
		jitter = 1
	}
	d := float64(delay)
	d += (rand.Float64()*2 - 1) * d * jitter
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}
