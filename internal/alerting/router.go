package alerting

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/blazewatch/internal/clock"
	"github.com/good-yellow-bee/blazewatch/internal/history"
	"github.com/good-yellow-bee/blazewatch/internal/metrics"
	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// Dispatcher delivers notifications. It is implemented by notifier.Dispatcher.
type Dispatcher interface {
	// Submit takes ownership of a pending notification, makes the first
	// delivery attempt and returns a snapshot of its state afterwards.
	Submit(ctx context.Context, n *models.AlertNotification, ch models.AlertChannel, alert *models.HealthAlert) *models.AlertNotification
	// Deliver makes a single untracked attempt.
	Deliver(ctx context.Context, ch models.AlertChannel, alert *models.HealthAlert) error
}

// RouterOptions configures a Router.
type RouterOptions struct {
	Verbose bool
}

type sustainState struct {
	first time.Time
	last  time.Time
}

// Router matches alerts against configs, applies cooldown and hands
// notifications to the dispatcher.
type Router struct {
	store      *Store
	dispatcher Dispatcher
	history    *history.Log
	clock      clock.Clock
	verbose    bool

	// mu makes the cooldown check-and-set atomic across concurrent Route calls.
	mu      sync.Mutex
	sustain map[string]sustainState
}

// NewRouter creates a router.
func NewRouter(store *Store, dispatcher Dispatcher, hist *history.Log, clk clock.Clock, opts RouterOptions) *Router {
	return &Router{
		store:      store,
		dispatcher: dispatcher,
		history:    hist,
		clock:      clock.OrReal(clk),
		verbose:    opts.Verbose,
		sustain:    make(map[string]sustainState),
	}
}

func (r *Router) logf(format string, args ...any) {
	if r.verbose {
		log.Printf("[router] "+format, args...)
	}
}

// Route processes one alert and returns the notifications it produced.
// Suppressed and unmatched alerts produce none.
func (r *Router) Route(ctx context.Context, alert *models.HealthAlert) []*models.AlertNotification {
	now := r.clock.Now()
	key := alert.CooldownKey()

	r.mu.Lock()
	if r.store.cooldown.IsOnCooldown(key, now) {
		until, _ := r.store.cooldown.ExpiresAt(key)
		r.mu.Unlock()

		metrics.AlertsSuppressed.Inc()
		r.logf("suppressed %s for %s until %s", alert.Type, alert.Service, until.Format(time.RFC3339))
		r.history.Record(alert.ID, models.HistorySuppressed, map[string]any{
			"type":           string(alert.Type),
			"service":        alert.Service,
			"cooldown_until": until,
		})
		return nil
	}

	matched := r.matchConfigsLocked(alert, now)
	if len(matched) == 0 {
		r.mu.Unlock()
		metrics.AlertsUnmatched.Inc()
		r.logf("no config matched %s for %s", alert.Type, alert.Service)
		return nil
	}
	for _, cfg := range matched {
		r.store.cooldown.SetCooldown(key, cfg.Cooldown(), now)
	}
	r.mu.Unlock()

	ids := make([]string, len(matched))
	for i, cfg := range matched {
		ids[i] = cfg.ID
	}
	r.store.TrackAlert(alert, ids)

	var out []*models.AlertNotification
	for _, cfg := range matched {
		for _, ch := range cfg.Channels {
			if !ch.Enabled || ch.EscalationOnly {
				continue
			}
			n := r.newNotification(alert.ID, cfg.ID, ch, "", now)
			out = append(out, r.dispatcher.Submit(ctx, n, ch, alert))
		}
	}

	r.history.Record(alert.ID, models.HistoryTriggered, map[string]any{
		"type":          string(alert.Type),
		"service":       alert.Service,
		"severity":      string(alert.Severity),
		"configs":       ids,
		"notifications": len(out),
	})
	r.logf("routed %s for %s to %d notification(s) via %v", alert.Type, alert.Service, len(out), ids)
	return out
}

// matchConfigsLocked returns the enabled configs with at least one matching
// rule. Callers hold r.mu.
func (r *Router) matchConfigsLocked(alert *models.HealthAlert, now time.Time) []*AlertConfig {
	var matched []*AlertConfig
	for _, cfg := range r.store.EnabledConfigs() {
		hit := false
		for i := range cfg.Rules {
			// Every rule is evaluated so sustain tracking stays current.
			if r.ruleHoldsLocked(cfg.ID, &cfg.Rules[i], alert, now) {
				hit = true
			}
		}
		if hit {
			matched = append(matched, cfg)
		}
	}
	return matched
}

func (r *Router) ruleHoldsLocked(configID string, rule *AlertRule, alert *models.HealthAlert, now time.Time) bool {
	d := rule.SustainDuration()
	skey := configID + "/" + rule.ID + "/" + alert.Service

	if !MatchRule(rule, alert) {
		if d > 0 && rule.Condition.Type == alert.Type {
			delete(r.sustain, skey)
		}
		return false
	}
	if d <= 0 {
		return true
	}

	st, ok := r.sustain[skey]
	if !ok || now.Sub(st.last) > d {
		st.first = now
	}
	st.last = now
	r.sustain[skey] = st
	return now.Sub(st.first) >= d
}

// Escalate re-routes alert through the channels named by rule, bypassing
// cooldown.
func (r *Router) Escalate(ctx context.Context, alert *models.HealthAlert, cfg *AlertConfig, rule EscalationRule) []*models.AlertNotification {
	now := r.clock.Now()

	escalated := alert.Clone()
	if escalated.Metadata == nil {
		escalated.Metadata = make(map[string]any)
	}
	escalated.Metadata[models.MetaEscalatedFrom] = string(alert.Severity)
	escalated.Metadata[models.MetaEscalationRule] = rule.ID
	escalated.Severity = rule.Severity
	if escalated.Severity == "" {
		escalated.Severity = bumpSeverity(alert.Severity)
	}

	var out []*models.AlertNotification
	var used []string
	for _, name := range rule.Channels {
		ch, ok := cfg.Channel(name)
		if !ok || !ch.Enabled {
			r.logf("escalation %s/%s: channel %q missing or disabled", cfg.ID, rule.ID, name)
			continue
		}
		n := r.newNotification(alert.ID, cfg.ID, ch, rule.ID, now)
		out = append(out, r.dispatcher.Submit(ctx, n, ch, escalated))
		used = append(used, name)
	}

	metrics.EscalationsTotal.WithLabelValues(cfg.ID, rule.ID).Inc()
	r.history.Record(alert.ID, models.HistoryEscalated, map[string]any{
		"config":   cfg.ID,
		"rule":     rule.ID,
		"severity": string(escalated.Severity),
		"channels": used,
	})
	log.Printf("[router] escalated alert %s (%s/%s) via %s/%s to %d channel(s)",
		alert.ID, alert.Type, alert.Service, cfg.ID, rule.ID, len(out))
	return out
}

// TestConfig sends a synthetic low severity alert through every enabled
// channel of the config once. Cooldown, history and notification tracking
// are untouched. The returned error joins every channel failure.
func (r *Router) TestConfig(ctx context.Context, configID string) error {
	cfg, ok := r.store.Config(configID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrConfigNotFound, configID)
	}

	alert := &models.HealthAlert{
		ID:        uuid.New().String(),
		Type:      models.AlertTypeCustom,
		Severity:  models.SeverityLow,
		Service:   "alert-test",
		Message:   fmt.Sprintf("Test alert for configuration %q", cfg.Name),
		Timestamp: r.clock.Now(),
		Metadata: map[string]any{
			models.MetaTest:  true,
			models.MetaValue: 0,
		},
	}

	var errs []error
	sent := 0
	for _, ch := range cfg.Channels {
		if !ch.Enabled {
			continue
		}
		sent++
		if err := r.dispatcher.Deliver(ctx, ch, alert); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name, err))
		}
	}
	if sent == 0 {
		return fmt.Errorf("config %q has no enabled channels", configID)
	}
	return errors.Join(errs...)
}

func (r *Router) newNotification(alertID, configID string, ch models.AlertChannel, escalationRule string, now time.Time) *models.AlertNotification {
	return &models.AlertNotification{
		ID:             uuid.New().String(),
		AlertID:        alertID,
		ConfigID:       configID,
		ChannelType:    ch.Type,
		ChannelName:    ch.Name,
		Status:         models.NotificationPending,
		EscalationRule: escalationRule,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func bumpSeverity(s models.Severity) models.Severity {
	switch s {
	case models.SeverityLow:
		return models.SeverityMedium
	case models.SeverityMedium:
		return models.SeverityHigh
	default:
		return models.SeverityCritical
	}
}
