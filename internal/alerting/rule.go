// Package alerting routes health alerts to notification channels.
// It holds the alert configuration registry, matches alerts against rules,
// suppresses duplicates with (type, service) cooldowns and escalates alerts
// that stay unresolved.
package alerting

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// Operator is a comparison operator of a rule condition.
type Operator string

const (
	OpEq       Operator = "eq"
	OpGt       Operator = "gt"
	OpLt       Operator = "lt"
	OpGte      Operator = "gte"
	OpLte      Operator = "lte"
	OpContains Operator = "contains"
)

// Valid reports whether op is supported.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpGt, OpLt, OpGte, OpLte, OpContains:
		return true
	}
	return false
}

// AlertCondition is the comparison a rule applies to an alert.
type AlertCondition struct {
	// Type is the alert type the condition applies to.
	Type models.AlertType `json:"type" yaml:"type"`
	// Operator compares the value extracted from the alert with Value.
	Operator Operator `json:"operator" yaml:"operator"`
	// Value is the right-hand side of the comparison.
	Value any `json:"value" yaml:"value"`
	// Duration optionally requires the condition to keep holding for this
	// long (e.g. "5m") before the rule matches.
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`
	// Expression is an optional expr-lang filter that must also hold,
	// e.g. `service startsWith "db-" && value > 90`.
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`

	duration time.Duration
	expr     *ExprMatcher
}

// AlertRule matches alerts of one type above a severity floor.
type AlertRule struct {
	ID        string          `json:"id" yaml:"id"`
	Condition AlertCondition  `json:"condition" yaml:"condition"`
	Severity  models.Severity `json:"severity" yaml:"severity"`
	// Services restricts the rule to these services when non-empty.
	Services []string `json:"services,omitempty" yaml:"services,omitempty"`
}

// Validate validates and compiles the rule.
func (r *AlertRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if !r.Condition.Type.Valid() {
		return fmt.Errorf("invalid alert type %q for rule %q", r.Condition.Type, r.ID)
	}
	if r.Condition.Operator == "" {
		r.Condition.Operator = OpEq
	}
	if !r.Condition.Operator.Valid() {
		return fmt.Errorf("invalid operator %q for rule %q", r.Condition.Operator, r.ID)
	}
	if r.Condition.Value == nil {
		return fmt.Errorf("condition value is required for rule %q", r.ID)
	}
	if r.Condition.Duration != "" {
		d, err := time.ParseDuration(r.Condition.Duration)
		if err != nil {
			return fmt.Errorf("invalid duration %q for rule %q: %w", r.Condition.Duration, r.ID, err)
		}
		r.Condition.duration = d
	}
	if r.Condition.Expression != "" {
		m, err := NewExprMatcher(r.Condition.Expression)
		if err != nil {
			return fmt.Errorf("invalid expression for rule %q: %w", r.ID, err)
		}
		r.Condition.expr = m
	}
	if r.Severity == "" {
		r.Severity = models.SeverityLow
	}
	if r.Severity.Rank() == 0 {
		return fmt.Errorf("invalid severity %q for rule %q", r.Severity, r.ID)
	}
	return nil
}

// SustainDuration returns the parsed condition duration.
func (r *AlertRule) SustainDuration() time.Duration {
	return r.Condition.duration
}

// AppliesToService reports whether the allow-list admits service.
func (r *AlertRule) AppliesToService(service string) bool {
	if len(r.Services) == 0 {
		return true
	}
	for _, s := range r.Services {
		if s == service {
			return true
		}
	}
	return false
}

// EscalationRule re-routes an unresolved alert after AfterMinutes.
type EscalationRule struct {
	ID           string `json:"id" yaml:"id"`
	AfterMinutes int    `json:"after_minutes" yaml:"after_minutes"`
	// Channels names channels of the owning config.
	Channels []string        `json:"channels" yaml:"channels"`
	Severity models.Severity `json:"severity,omitempty" yaml:"severity,omitempty"`
}

// After returns the escalation delay.
func (e EscalationRule) After() time.Duration {
	return time.Duration(e.AfterMinutes) * time.Minute
}

// AlertConfig groups rules, channels, cooldown and escalation.
type AlertConfig struct {
	ID              string                `json:"id" yaml:"id"`
	Name            string                `json:"name" yaml:"name"`
	Enabled         bool                  `json:"enabled" yaml:"enabled"`
	Channels        []models.AlertChannel `json:"channels" yaml:"channels"`
	Rules           []AlertRule           `json:"rules" yaml:"rules"`
	CooldownMinutes int                   `json:"cooldown_minutes" yaml:"cooldown_minutes"`
	EscalationRules []EscalationRule      `json:"escalation_rules,omitempty" yaml:"escalation_rules,omitempty"`
}

// Cooldown returns the cooldown window.
func (c *AlertConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

// Validate validates the config, its channels, rules and escalation rules.
func (c *AlertConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("config id is required")
	}
	if c.CooldownMinutes < 0 {
		return fmt.Errorf("cooldown_minutes must not be negative for config %q", c.ID)
	}
	if len(c.Rules) == 0 {
		return fmt.Errorf("config %q needs at least one rule", c.ID)
	}

	names := make(map[string]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if err := ch.Validate(); err != nil {
			return fmt.Errorf("config %q: %w", c.ID, err)
		}
		if names[ch.Name] {
			return fmt.Errorf("config %q: duplicate channel name %q", c.ID, ch.Name)
		}
		names[ch.Name] = true
	}

	ruleIDs := make(map[string]bool, len(c.Rules))
	for i := range c.Rules {
		if err := c.Rules[i].Validate(); err != nil {
			return fmt.Errorf("config %q: %w", c.ID, err)
		}
		if ruleIDs[c.Rules[i].ID] {
			return fmt.Errorf("config %q: duplicate rule id %q", c.ID, c.Rules[i].ID)
		}
		ruleIDs[c.Rules[i].ID] = true
	}

	escIDs := make(map[string]bool, len(c.EscalationRules))
	for _, esc := range c.EscalationRules {
		if esc.ID == "" {
			return fmt.Errorf("config %q: escalation rule id is required", c.ID)
		}
		if escIDs[esc.ID] {
			return fmt.Errorf("config %q: duplicate escalation rule id %q", c.ID, esc.ID)
		}
		escIDs[esc.ID] = true
		if esc.AfterMinutes <= 0 {
			return fmt.Errorf("config %q: after_minutes must be positive for escalation %q", c.ID, esc.ID)
		}
		if len(esc.Channels) == 0 {
			return fmt.Errorf("config %q: escalation %q names no channels", c.ID, esc.ID)
		}
		for _, name := range esc.Channels {
			if !names[name] {
				return fmt.Errorf("config %q: escalation %q references unknown channel %q", c.ID, esc.ID, name)
			}
		}
		if esc.Severity != "" && esc.Severity.Rank() == 0 {
			return fmt.Errorf("config %q: invalid severity %q for escalation %q", c.ID, esc.Severity, esc.ID)
		}
	}
	return nil
}

// Channel returns the channel with the given name.
func (c *AlertConfig) Channel(name string) (models.AlertChannel, bool) {
	for _, ch := range c.Channels {
		if ch.Name == name {
			return ch, true
		}
	}
	return models.AlertChannel{}, false
}

// Clone returns a deep copy.
func (c *AlertConfig) Clone() *AlertConfig {
	cp := *c
	cp.Channels = append([]models.AlertChannel(nil), c.Channels...)
	cp.Rules = make([]AlertRule, len(c.Rules))
	for i, r := range c.Rules {
		r.Services = append([]string(nil), r.Services...)
		cp.Rules[i] = r
	}
	cp.EscalationRules = make([]EscalationRule, len(c.EscalationRules))
	for i, e := range c.EscalationRules {
		e.Channels = append([]string(nil), e.Channels...)
		cp.EscalationRules[i] = e
	}
	return &cp
}

// UnmarshalYAML defaults Enabled to true when omitted.
func (c *AlertConfig) UnmarshalYAML(value *yaml.Node) error {
	type raw AlertConfig
	r := raw{Enabled: true}
	if err := value.Decode(&r); err != nil {
		return err
	}
	*c = AlertConfig(r)
	return nil
}

// UnmarshalJSON defaults Enabled to true when omitted.
func (c *AlertConfig) UnmarshalJSON(data []byte) error {
	type raw AlertConfig
	r := raw{Enabled: true}
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*c = AlertConfig(r)
	return nil
}

// ConfigsFile is the top-level YAML layout of an alert configuration file.
type ConfigsFile struct {
	Configs []*AlertConfig `yaml:"configs"`
}
