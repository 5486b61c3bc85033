// Package models defines domain models for BlazeWatch.
package models

import (
	"encoding/json"
	"time"
)

// HealthStatus is the health classification of a single service or the
// whole system.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ServiceHealthStatus is the outcome of one probe of one service.
type ServiceHealthStatus struct {
	Service   string            `json:"service"`
	Status    HealthStatus      `json:"status"`
	Latency   time.Duration     `json:"latency"`
	CheckedAt time.Time         `json:"checked_at"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// LatencyMs returns the latency in milliseconds.
func (s ServiceHealthStatus) LatencyMs() float64 {
	return float64(s.Latency) / float64(time.Millisecond)
}

// OverallStatus derives the system status: unhealthy if any service is
// unhealthy, else degraded if any is degraded, else healthy.
func OverallStatus(services []ServiceHealthStatus) HealthStatus {
	overall := HealthStatusHealthy
	for _, s := range services {
		switch s.Status {
		case HealthStatusUnhealthy:
			return HealthStatusUnhealthy
		case HealthStatusDegraded:
			overall = HealthStatusDegraded
		}
	}
	return overall
}

// QuotaLevel classifies quota consumption.
type QuotaLevel string

const (
	QuotaHealthy  QuotaLevel = "healthy"
	QuotaWarning  QuotaLevel = "warning"
	QuotaCritical QuotaLevel = "critical"
)

// Quota thresholds in percent.
const (
	QuotaWarningPercent  = 80.0
	QuotaCriticalPercent = 95.0
)

// QuotaStatus is the usage of one quota of one service. The percentage and
// level are always derived from Used and Limit.
type QuotaStatus struct {
	Service   string  `json:"service" yaml:"service"`
	QuotaType string  `json:"quota_type" yaml:"quota_type"`
	Used      float64 `json:"used" yaml:"used"`
	Limit     float64 `json:"limit" yaml:"limit"`
}

// UsagePercentage returns Used/Limit*100, or 0 when Limit is not positive.
func (q QuotaStatus) UsagePercentage() float64 {
	if q.Limit <= 0 {
		return 0
	}
	return q.Used / q.Limit * 100
}

// Status classifies the usage percentage.
func (q QuotaStatus) Status() QuotaLevel {
	pct := q.UsagePercentage()
	switch {
	case pct >= QuotaCriticalPercent:
		return QuotaCritical
	case pct >= QuotaWarningPercent:
		return QuotaWarning
	default:
		return QuotaHealthy
	}
}

// MarshalJSON adds the derived fields to the JSON form.
func (q QuotaStatus) MarshalJSON() ([]byte, error) {
	type plain QuotaStatus
	return json.Marshal(struct {
		plain
		UsagePercentage float64    `json:"usage_percentage"`
		Status          QuotaLevel `json:"status"`
	}{plain(q), q.UsagePercentage(), q.Status()})
}

// ServiceMetrics are the rolling counters kept per service. The request
// counts cover a bounded window of the most recent checks.
type ServiceMetrics struct {
	Service        string        `json:"service"`
	TotalRequests  int64         `json:"total_requests"`
	FailedRequests int64         `json:"failed_requests"`
	AverageLatency time.Duration `json:"average_latency"`
	LastUpdated    time.Time     `json:"last_updated"`
}

// ErrorRate returns FailedRequests/TotalRequests*100.
func (m ServiceMetrics) ErrorRate() float64 {
	if m.TotalRequests == 0 {
		return 0
	}
	return float64(m.FailedRequests) / float64(m.TotalRequests) * 100
}

// MarshalJSON adds the derived error rate.
func (m ServiceMetrics) MarshalJSON() ([]byte, error) {
	type plain ServiceMetrics
	return json.Marshal(struct {
		plain
		ErrorRate float64 `json:"error_rate"`
	}{plain(m), m.ErrorRate()})
}

// SystemHealthReport is the on-demand view of the whole system.
type SystemHealthReport struct {
	Timestamp     time.Time             `json:"timestamp"`
	OverallStatus HealthStatus          `json:"overall_status"`
	Services      []ServiceHealthStatus `json:"services"`
	Quotas        []QuotaStatus         `json:"quotas"`
	Metrics       []ServiceMetrics      `json:"metrics"`
	Alerts        []*HealthAlert        `json:"alerts"`
}
