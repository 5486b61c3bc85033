package models

import (
	"fmt"
	"strings"
	"time"
)

// AlertType classifies what a HealthAlert is about.
type AlertType string

const (
	AlertTypeServiceDown         AlertType = "service_down"
	AlertTypeQuotaExceeded       AlertType = "quota_exceeded"
	AlertTypePerformanceDegraded AlertType = "performance_degraded"
	AlertTypeHighErrorRate       AlertType = "high_error_rate"
	AlertTypeCustom              AlertType = "custom"
)

// Valid reports whether t is one of the known alert types.
func (t AlertType) Valid() bool {
	switch t {
	case AlertTypeServiceDown, AlertTypeQuotaExceeded, AlertTypePerformanceDegraded,
		AlertTypeHighErrorRate, AlertTypeCustom:
		return true
	}
	return false
}

// Severity represents alert severity level.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the position of s in the total order low < medium < high < critical.
// Unknown severities rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as other or more.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// ParseSeverity converts a case-insensitive severity name.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.Rank() == 0 {
		return "", fmt.Errorf("invalid severity %q (want low, medium, high or critical)", s)
	}
	return sev, nil
}

// Metadata keys carried by synthesized alerts.
const (
	MetaLatencyMs       = "latencyMs"
	MetaUsagePercentage = "usagePercentage"
	MetaQuotaType       = "quotaType"
	MetaUsed            = "used"
	MetaLimit           = "limit"
	MetaErrorRate       = "errorRate"
	MetaTotalRequests   = "totalRequests"
	MetaFailedRequests  = "failedRequests"
	MetaError           = "error"
	MetaValue           = "value"
	MetaResolvedAt      = "resolvedAt"
	MetaTest            = "test"
	MetaEscalationRule  = "escalationRule"
	MetaEscalatedFrom   = "escalatedFrom"
)

// HealthAlert is a typed alert fact produced by the prober.
type HealthAlert struct {
	ID        string         `json:"id"`
	Type      AlertType      `json:"type"`
	Severity  Severity       `json:"severity"`
	Service   string         `json:"service"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Resolved  bool           `json:"resolved"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Resolve marks the alert resolved and records when. It returns false if the
// alert was already resolved, in which case nothing changes.
func (a *HealthAlert) Resolve(now time.Time) bool {
	if a.Resolved {
		return false
	}
	a.Resolved = true
	if a.Metadata == nil {
		a.Metadata = make(map[string]any)
	}
	a.Metadata[MetaResolvedAt] = now
	return true
}

// ResolvedAt returns the resolution time stamped by Resolve.
func (a *HealthAlert) ResolvedAt() (time.Time, bool) {
	if !a.Resolved || a.Metadata == nil {
		return time.Time{}, false
	}
	t, ok := a.Metadata[MetaResolvedAt].(time.Time)
	return t, ok
}

// Clone returns a deep-enough copy: the metadata map is duplicated so the
// copy can be handed across goroutines.
func (a *HealthAlert) Clone() *HealthAlert {
	cp := *a
	if a.Metadata != nil {
		cp.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// CooldownKey is the deduplication key for an alert: (type, service).
func (a *HealthAlert) CooldownKey() string {
	return CooldownKey(a.Type, a.Service)
}

// CooldownKey derives the cooldown map key from an alert type and service.
func CooldownKey(t AlertType, service string) string {
	return string(t) + "|" + service
}
