package notifier

import (
	"testing"
	"time"
)

func TestRateLimiterPerChannel(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{PerMinute: 2, Burst: 2, Enabled: true})
	now := testTime

	if !rl.AllowAt("a", now) || !rl.AllowAt("a", now) {
		t.Fatal("burst should be allowed")
	}
	if rl.AllowAt("a", now) {
		t.Error("third send within the burst window should be refused")
	}
	if !rl.AllowAt("b", now) {
		t.Error("other channels have their own bucket")
	}

	// One token every 30 seconds.
	if !rl.AllowAt("a", now.Add(30*time.Second)) {
		t.Error("token should refill after 30s")
	}

	stats := rl.Stats()
	if stats.Dropped != 1 || stats.Channels != 2 || stats.PerMinute != 2 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestRateLimiterDisabledAndNil(t *testing.T) {
	var nilLimiter *RateLimiter
	if !nilLimiter.AllowAt("a", testTime) {
		t.Error("nil limiter must allow")
	}
	if nilLimiter.Stats().Enabled {
		t.Error("nil limiter reports disabled stats")
	}

	rl := NewRateLimiter(RateLimitConfig{PerMinute: 1, Enabled: false})
	for i := 0; i < 5; i++ {
		if !rl.AllowAt("a", testTime) {
			t.Fatal("disabled limiter must allow")
		}
	}
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.PerMinute != 30 || cfg.Burst != 30 || !cfg.Enabled {
		t.Errorf("DefaultRateLimitConfig() = %+v", cfg)
	}
}
