package prober

import (
	"context"
	"errors"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// ErrDegraded marks a probe result that is reachable but not fully healthy.
// A probe returns it (wrapped) to report degraded without counting a failure.
var ErrDegraded = errors.New("degraded")

// HealthProbe checks one dependency.
type HealthProbe interface {
	// Name is the service name reported in statuses and alerts.
	Name() string
	// Check performs one health check and returns the observed latency.
	Check(ctx context.Context) (time.Duration, error)
}

// ThresholdProbe is implemented by probes that override the prober's
// performance threshold. A zero threshold keeps the default.
type ThresholdProbe interface {
	PerformanceThreshold() time.Duration
}

// QuotaProvider reports quota usage for one service.
type QuotaProvider interface {
	Service() string
	Quotas(ctx context.Context) ([]models.QuotaStatus, error)
}

// ProbeFunc adapts a function to HealthProbe.
type ProbeFunc struct {
	Service string
	Fn      func(ctx context.Context) (time.Duration, error)
}

// Name returns the service name.
func (p ProbeFunc) Name() string { return p.Service }

// Check calls Fn.
func (p ProbeFunc) Check(ctx context.Context) (time.Duration, error) { return p.Fn(ctx) }
