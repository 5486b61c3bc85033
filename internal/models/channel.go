package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ChannelType identifies a notification delivery mechanism.
type ChannelType string

const (
	ChannelEmail   ChannelType = "email"
	ChannelSlack   ChannelType = "slack"
	ChannelWebhook ChannelType = "webhook"
	ChannelSMS     ChannelType = "sms"
	ChannelTeams   ChannelType = "teams"
	ChannelDiscord ChannelType = "discord"
)

// DefaultChannelTimeout bounds a single send when the channel sets none.
const DefaultChannelTimeout = 30 * time.Second

// RetryConfig controls how failed deliveries are retried.
type RetryConfig struct {
	MaxRetries         int  `json:"max_retries" yaml:"max_retries"`
	RetryDelayMs       int  `json:"retry_delay_ms" yaml:"retry_delay_ms"`
	ExponentialBackoff bool `json:"exponential_backoff" yaml:"exponential_backoff"`
}

// EmailConfig holds SMTP configuration.
type EmailConfig struct {
	Host       string   `json:"host" yaml:"host"`
	Port       int      `json:"port" yaml:"port"` // 465 for implicit TLS, 587 for STARTTLS
	Username   string   `json:"username,omitempty" yaml:"username,omitempty"`
	Password   string   `json:"password,omitempty" yaml:"password,omitempty"`
	From       string   `json:"from" yaml:"from"`
	Recipients []string `json:"recipients" yaml:"recipients"`
}

// Validate validates the email configuration.
func (c *EmailConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if c.Port == 0 {
		return fmt.Errorf("SMTP port is required")
	}
	if c.From == "" {
		return fmt.Errorf("from address is required")
	}
	if len(c.Recipients) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	return nil
}

// SlackConfig holds Slack webhook configuration.
type SlackConfig struct {
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`
	Channel    string `json:"channel,omitempty" yaml:"channel,omitempty"`
}

// Validate validates the Slack configuration.
func (c *SlackConfig) Validate() error {
	return validateHTTPSWebhook(c.WebhookURL)
}

// TeamsConfig holds Microsoft Teams webhook configuration.
type TeamsConfig struct {
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`
}

// Validate validates the Teams configuration.
func (c *TeamsConfig) Validate() error {
	return validateHTTPSWebhook(c.WebhookURL)
}

// DiscordConfig holds Discord webhook configuration.
type DiscordConfig struct {
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`
	Username   string `json:"username,omitempty" yaml:"username,omitempty"`
}

// Validate validates the Discord configuration.
func (c *DiscordConfig) Validate() error {
	return validateHTTPSWebhook(c.WebhookURL)
}

// WebhookConfig holds a generic JSON webhook target.
type WebhookConfig struct {
	URL         string            `json:"url" yaml:"url"`
	Method      string            `json:"method,omitempty" yaml:"method,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	BearerToken string            `json:"bearer_token,omitempty" yaml:"bearer_token,omitempty"`
}

// Validate validates the webhook configuration.
func (c *WebhookConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !strings.HasPrefix(c.URL, "https://") && !strings.HasPrefix(c.URL, "http://") {
		return fmt.Errorf("webhook URL must be http or https")
	}
	switch strings.ToUpper(c.Method) {
	case "", "POST", "PUT":
	default:
		return fmt.Errorf("unsupported webhook method %q", c.Method)
	}
	return nil
}

// SMSConfig holds an SMS gateway configuration (Twilio compatible API).
type SMSConfig struct {
	APIBaseURL string   `json:"api_base_url,omitempty" yaml:"api_base_url,omitempty"`
	AccountSID string   `json:"account_sid" yaml:"account_sid"`
	AuthToken  string   `json:"auth_token" yaml:"auth_token"`
	From       string   `json:"from" yaml:"from"`
	To         []string `json:"to" yaml:"to"`
}

// Validate validates the SMS configuration.
func (c *SMSConfig) Validate() error {
	if c.AccountSID == "" {
		return fmt.Errorf("account SID is required")
	}
	if c.AuthToken == "" {
		return fmt.Errorf("auth token is required")
	}
	if c.From == "" {
		return fmt.Errorf("from number is required")
	}
	if len(c.To) == 0 {
		return fmt.Errorf("at least one recipient number is required")
	}
	return nil
}

func validateHTTPSWebhook(u string) error {
	if u == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !strings.HasPrefix(u, "https://") {
		return fmt.Errorf("webhook URL must use HTTPS")
	}
	return nil
}

// AlertChannel is one configured delivery target. Exactly one of the typed
// config pointers is set, the one matching Type.
type AlertChannel struct {
	Type    ChannelType  `json:"type" yaml:"type"`
	Name    string       `json:"name" yaml:"name"`
	Enabled bool         `json:"enabled" yaml:"enabled"`
	Retry   *RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`
	// TimeoutSeconds bounds one send; zero means DefaultChannelTimeout.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	// EscalationOnly channels are skipped by normal routing and only used
	// when an escalation rule names them.
	EscalationOnly bool `json:"escalation_only,omitempty" yaml:"escalation_only,omitempty"`

	Email   *EmailConfig   `json:"email,omitempty" yaml:"email,omitempty"`
	Slack   *SlackConfig   `json:"slack,omitempty" yaml:"slack,omitempty"`
	Webhook *WebhookConfig `json:"webhook,omitempty" yaml:"webhook,omitempty"`
	SMS     *SMSConfig     `json:"sms,omitempty" yaml:"sms,omitempty"`
	Teams   *TeamsConfig   `json:"teams,omitempty" yaml:"teams,omitempty"`
	Discord *DiscordConfig `json:"discord,omitempty" yaml:"discord,omitempty"`
}

// UnmarshalYAML defaults Enabled to true when omitted.
func (c *AlertChannel) UnmarshalYAML(value *yaml.Node) error {
	type raw AlertChannel
	r := raw{Enabled: true}
	if err := value.Decode(&r); err != nil {
		return err
	}
	*c = AlertChannel(r)
	return nil
}

// UnmarshalJSON defaults Enabled to true when omitted.
func (c *AlertChannel) UnmarshalJSON(data []byte) error {
	type raw AlertChannel
	r := raw{Enabled: true}
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*c = AlertChannel(r)
	return nil
}

// Timeout returns the per-send deadline.
func (c AlertChannel) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultChannelTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// variants returns how many typed configs are set.
func (c AlertChannel) variants() int {
	n := 0
	if c.Email != nil {
		n++
	}
	if c.Slack != nil {
		n++
	}
	if c.Webhook != nil {
		n++
	}
	if c.SMS != nil {
		n++
	}
	if c.Teams != nil {
		n++
	}
	if c.Discord != nil {
		n++
	}
	return n
}

// hasVariant reports whether the config for c.Type is present.
func (c AlertChannel) hasVariant() bool {
	switch c.Type {
	case ChannelEmail:
		return c.Email != nil
	case ChannelSlack:
		return c.Slack != nil
	case ChannelWebhook:
		return c.Webhook != nil
	case ChannelSMS:
		return c.SMS != nil
	case ChannelTeams:
		return c.Teams != nil
	case ChannelDiscord:
		return c.Discord != nil
	}
	return false
}

// Validate checks the channel structure. Destination details are checked by
// the sender at delivery time so one bad channel cannot block the others.
func (c AlertChannel) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("channel name is required")
	}
	if c.Type == "" {
		return fmt.Errorf("channel type is required for channel %q", c.Name)
	}
	if c.variants() > 1 {
		return fmt.Errorf("channel %q sets more than one channel config", c.Name)
	}
	if c.Retry != nil {
		if c.Retry.MaxRetries < 0 {
			return fmt.Errorf("max_retries must not be negative for channel %q", c.Name)
		}
		if c.Retry.RetryDelayMs < 0 {
			return fmt.Errorf("retry_delay_ms must not be negative for channel %q", c.Name)
		}
	}
	return nil
}

// ConfigError reports a missing or mismatched typed config, or nil.
func (c AlertChannel) ConfigError() error {
	if !c.hasVariant() {
		return fmt.Errorf("channel %q of type %q has no %s config", c.Name, c.Type, c.Type)
	}
	return nil
}

// Secrets returns the credential values of the channel that must never
// appear in recorded errors.
func (c AlertChannel) Secrets() []string {
	var out []string
	add := func(vals ...string) {
		for _, v := range vals {
			if v != "" {
				out = append(out, v)
			}
		}
	}
	if c.Email != nil {
		add(c.Email.Password)
	}
	if c.Slack != nil {
		add(c.Slack.WebhookURL)
	}
	if c.Webhook != nil {
		add(c.Webhook.BearerToken)
		for k, v := range c.Webhook.Headers {
			if IsSensitiveHeader(k) {
				add(v)
			}
		}
	}
	if c.SMS != nil {
		add(c.SMS.AuthToken)
	}
	if c.Teams != nil {
		add(c.Teams.WebhookURL)
	}
	if c.Discord != nil {
		add(c.Discord.WebhookURL)
	}
	return out
}

// IsSensitiveHeader reports whether a header name looks like it carries a
// credential.
func IsSensitiveHeader(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "auth") || strings.Contains(n, "token") ||
		strings.Contains(n, "key") || strings.Contains(n, "secret")
}
