package notifier

import (
	"testing"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

func TestRetryDelay(t *testing.T) {
	exp := models.RetryConfig{MaxRetries: 3, RetryDelayMs: 3000, ExponentialBackoff: true}
	constant := models.RetryConfig{MaxRetries: 3, RetryDelayMs: 3000}

	tests := []struct {
		name  string
		cfg   models.RetryConfig
		count int
		want  time.Duration
	}{
		{"exponential first", exp, 0, 3 * time.Second},
		{"exponential second", exp, 1, 6 * time.Second},
		{"exponential third", exp, 2, 12 * time.Second},
		{"constant", constant, 2, 3 * time.Second},
		{"zero delay", models.RetryConfig{ExponentialBackoff: true}, 4, 0},
		{"shift capped", models.RetryConfig{RetryDelayMs: 1, ExponentialBackoff: true}, 50, time.Millisecond << maxBackoffShift},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RetryDelay(tt.cfg, tt.count); got != tt.want {
				t.Errorf("RetryDelay() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestApplyJitter(t *testing.T) {
	if got := applyJitter(time.Second, 0); got != time.Second {
		t.Errorf("applyJitter(1s, 0) = %s, want 1s", got)
	}
	for i := 0; i < 100; i++ {
		got := applyJitter(time.Second, 0.2)
		if got < 800*time.Millisecond || got > 1200*time.Millisecond {
			t.Fatalf("applyJitter(1s, 0.2) = %s, out of range", got)
		}
	}
}
