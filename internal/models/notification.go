package models

import "time"

// NotificationStatus is the delivery state of one notification.
type NotificationStatus string

const (
	NotificationPending  NotificationStatus = "pending"
	NotificationSent     NotificationStatus = "sent"
	NotificationFailed   NotificationStatus = "failed"
	NotificationRetrying NotificationStatus = "retrying"
)

// Terminal reports whether no further transition is allowed.
func (s NotificationStatus) Terminal() bool {
	return s == NotificationSent || s == NotificationFailed
}

// AlertNotification tracks the delivery of one alert through one channel.
type AlertNotification struct {
	ID             string             `json:"id"`
	AlertID        string             `json:"alert_id"`
	ConfigID       string             `json:"config_id,omitempty"`
	ChannelType    ChannelType        `json:"channel_type"`
	ChannelName    string             `json:"channel_name"`
	Status         NotificationStatus `json:"status"`
	SentAt         *time.Time         `json:"sent_at,omitempty"`
	Error          string             `json:"error,omitempty"`
	RetryCount     int                `json:"retry_count"`
	NextRetryAt    *time.Time         `json:"next_retry_at,omitempty"`
	EscalationRule string             `json:"escalation_rule,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// Clone returns a copy safe to hand to readers.
func (n *AlertNotification) Clone() *AlertNotification {
	cp := *n
	if n.SentAt != nil {
		t := *n.SentAt
		cp.SentAt = &t
	}
	if n.NextRetryAt != nil {
		t := *n.NextRetryAt
		cp.NextRetryAt = &t
	}
	return &cp
}

// HistoryStatus is the kind of lifecycle event recorded for an alert.
type HistoryStatus string

const (
	HistoryTriggered  HistoryStatus = "triggered"
	HistoryResolved   HistoryStatus = "resolved"
	HistoryEscalated  HistoryStatus = "escalated"
	HistorySuppressed HistoryStatus = "suppressed"
)

// HistoryEntry records one alert lifecycle event.
type HistoryEntry struct {
	ID        string         `json:"id"`
	AlertID   string         `json:"alert_id"`
	Status    HistoryStatus  `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}
