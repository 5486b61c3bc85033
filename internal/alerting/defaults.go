package alerting

import (
	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// Default config ids.
const (
	DefaultCriticalConfigID    = "critical-services"
	DefaultPerformanceConfigID = "performance"
	DefaultQuotaConfigID       = "quota-warnings"
)

// DefaultConfigs returns the built-in configs wired to the given channels:
//
//   - critical-services: service_down and high_error_rate, 5 minute cooldown,
//     escalates through every channel after 15 minutes
//   - performance: latency above 5000ms, 10 minute cooldown
//   - quota-warnings: quota usage from 80%, 30 minute cooldown, no SMS
func DefaultConfigs(channels []models.AlertChannel) []*AlertConfig {
	var names []string
	var noSMS []models.AlertChannel
	for _, ch := range channels {
		names = append(names, ch.Name)
		if ch.Type != models.ChannelSMS {
			noSMS = append(noSMS, ch)
		}
	}

	critical := &AlertConfig{
		ID:       DefaultCriticalConfigID,
		Name:     "Critical services",
		Enabled:  true,
		Channels: append([]models.AlertChannel(nil), channels...),
		Rules: []AlertRule{
			{
				ID:        "service-down",
				Condition: AlertCondition{Type: models.AlertTypeServiceDown, Operator: OpEq, Value: true},
				Severity:  models.SeverityCritical,
			},
			{
				ID:        "high-error-rate",
				Condition: AlertCondition{Type: models.AlertTypeHighErrorRate, Operator: OpGt, Value: 10.0},
				Severity:  models.SeverityHigh,
			},
		},
		CooldownMinutes: 5,
	}
	if len(names) > 0 {
		critical.EscalationRules = []EscalationRule{{
			ID:           "critical-escalation",
			AfterMinutes: 15,
			Channels:     names,
			Severity:     models.SeverityCritical,
		}}
	}

	performance := &AlertConfig{
		ID:       DefaultPerformanceConfigID,
		Name:     "Performance",
		Enabled:  true,
		Channels: append([]models.AlertChannel(nil), channels...),
		Rules: []AlertRule{{
			ID:        "slow-response",
			Condition: AlertCondition{Type: models.AlertTypePerformanceDegraded, Operator: OpGt, Value: 5000.0},
			Severity:  models.SeverityMedium,
		}},
		CooldownMinutes: 10,
	}

	quota := &AlertConfig{
		ID:       DefaultQuotaConfigID,
		Name:     "Quota warnings",
		Enabled:  true,
		Channels: noSMS,
		Rules: []AlertRule{{
			ID:        "quota-usage",
			Condition: AlertCondition{Type: models.AlertTypeQuotaExceeded, Operator: OpGte, Value: 80.0},
			Severity:  models.SeverityMedium,
		}},
		CooldownMinutes: 30,
	}

	return []*AlertConfig{critical, performance, quota}
}
