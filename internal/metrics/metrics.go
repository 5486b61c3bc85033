// Package metrics provides Prometheus metrics for BlazeWatch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "blazewatch"
)

// Probe metrics
var (
	// ProbeDuration tracks probe latency per service.
	ProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "duration_seconds",
			Help:      "Health probe latency in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"service"},
	)

	// ServiceStatus exposes the last probe result per service
	// (0 healthy, 1 degraded, 2 unhealthy).
	ServiceStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "service_status",
			Help:      "Last probe status per service (0 healthy, 1 degraded, 2 unhealthy)",
		},
		[]string{"service"},
	)

	// ProbeCyclesTotal counts probe cycles by kind and result.
	ProbeCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "cycles_total",
			Help:      "Total probe cycles",
		},
		[]string{"kind", "result"}, // health|quota, ok|error
	)

	// QuotaUsage exposes quota usage percentage.
	QuotaUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "quota",
			Name:      "usage_percent",
			Help:      "Quota usage percentage",
		},
		[]string{"service", "quota_type"},
	)

	// QuotaErrors counts quota provider failures.
	QuotaErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quota",
			Name:      "errors_total",
			Help:      "Total quota provider errors",
		},
		[]string{"service"},
	)
)

// Alert metrics
var (
	// AlertsEmitted counts alerts synthesized by the prober.
	AlertsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "emitted_total",
			Help:      "Total alerts synthesized",
		},
		[]string{"type", "severity"},
	)

	// AlertsSuppressed counts alerts blocked by cooldown.
	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "suppressed_total",
			Help:      "Total alerts suppressed by cooldown",
		},
	)

	// AlertsUnmatched counts alerts no config matched.
	AlertsUnmatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "unmatched_total",
			Help:      "Total alerts dropped because no config matched",
		},
	)

	// AlertsDropped counts alerts dropped because the routing queue was full.
	AlertsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "dropped_total",
			Help:      "Total alerts dropped due to a full routing queue",
		},
	)

	// AlertsActive tracks unresolved alerts.
	AlertsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "active",
			Help:      "Number of unresolved alerts",
		},
	)

	// EscalationsTotal counts escalations by rule.
	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "escalations_total",
			Help:      "Total alert escalations",
		},
		[]string{"config", "rule"},
	)
)

// Notification metrics
var (
	// NotificationsTotal counts delivery attempts by channel type and outcome.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "attempts_total",
			Help:      "Total notification delivery attempts",
		},
		[]string{"channel_type", "result"}, // sent, retrying, failed
	)

	// NotificationsRateLimited counts sends refused by the channel rate limiter.
	NotificationsRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "rate_limited_total",
			Help:      "Total sends refused by the per-channel rate limiter",
		},
		[]string{"channel"},
	)

	// NotificationsPendingRetry tracks notifications waiting for a retry.
	NotificationsPendingRetry = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "retrying",
			Help:      "Notifications waiting for a retry",
		},
	)
)

// History metrics
var (
	// HistoryEntries tracks the size of the history log.
	HistoryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "entries",
			Help:      "Entries currently held in the alert history log",
		},
	)

	// HistoryPurged counts entries removed by retention cleanup.
	HistoryPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "purged_total",
			Help:      "Total history entries removed by retention cleanup",
		},
	)
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks request latency by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks requests currently being served.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being served",
		},
	)

	// StreamClients tracks connected event stream clients.
	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "stream_clients",
			Help:      "Number of connected event stream clients",
		},
	)
)

// Info metric
var (
	// BuildInfo exposes build information.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, commit, buildTime string) {
	BuildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// StatusValue maps a health status string to the ServiceStatus gauge value.
func StatusValue(status string) float64 {
	switch status {
	case "healthy":
		return 0
	case "degraded":
		return 1
	default:
		return 2
	}
}
