// Package main provides the BlazeWatch server CLI.
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/blazewatch/internal/models"
	"github.com/good-yellow-bee/blazewatch/internal/monitor"
	"github.com/good-yellow-bee/blazewatch/internal/notifier"
	"github.com/good-yellow-bee/blazewatch/internal/prober"
)

// Probe types.
const (
	ProbeHTTP     = "http"
	ProbeTCP      = "tcp"
	ProbeConsul   = "consul"
	ProbePostgres = "postgres"
	ProbeBlob     = "blob"
)

// Quota provider types.
const (
	QuotaStatic = "static"
	QuotaHTTP   = "http"
)

// Config represents the server configuration.
type Config struct {
	Server        ServerConfig          `yaml:"server"`
	Monitor       MonitorConfig         `yaml:"monitor"`
	Notifications NotificationsConfig   `yaml:"notifications"`
	Alerts        AlertsConfig          `yaml:"alerts"`
	Probes        []ProbeConfig         `yaml:"probes"`
	Quotas        []QuotaConfig         `yaml:"quotas"`
	Channels      []models.AlertChannel `yaml:"channels"`
	Verbose       bool                  `yaml:"-"` // set via CLI flag
}

// ServerConfig contains the HTTP API and metrics listener settings.
type ServerConfig struct {
	HTTPAddress    string    `yaml:"http_address"`    // API listen address (default: :8080)
	MetricsAddress string    `yaml:"metrics_address"` // Prometheus listen address (default: :9090, "" disables)
	JWTSecret      string    `yaml:"jwt_secret"`      // Enables bearer auth when set
	TokenTTL       string    `yaml:"token_ttl"`       // Default TTL of tokens minted by watchctl (default: 24h)
	CORSOrigins    []string  `yaml:"cors_origins"`
	RateLimit      int       `yaml:"rate_limit_per_minute"` // Per caller; 0 disables
	TLS            TLSConfig `yaml:"tls"`
}

// TLSConfig contains TLS settings for the HTTP API.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// MonitorConfig holds schedules and thresholds.
type MonitorConfig struct {
	HealthInterval       time.Duration `yaml:"health_interval"`
	QuotaInterval        time.Duration `yaml:"quota_interval"`
	RetryInterval        time.Duration `yaml:"retry_interval"`
	EscalationInterval   time.Duration `yaml:"escalation_interval"`
	CleanupInterval      time.Duration `yaml:"cleanup_interval"`
	Retention            time.Duration `yaml:"retention"`
	QueueSize            int           `yaml:"queue_size"`
	MaxHistoryEntries    int           `yaml:"max_history_entries"`
	AutoResolve          bool          `yaml:"auto_resolve"`
	ProbeTimeout         time.Duration `yaml:"probe_timeout"`
	PerformanceThreshold time.Duration `yaml:"performance_threshold"`
	ErrorRateThreshold   float64       `yaml:"error_rate_threshold"`
	ErrorRateMinRequests int64         `yaml:"error_rate_min_requests"`
	ErrorRateWindow      int           `yaml:"error_rate_window"`
}

// NotificationsConfig tunes delivery.
type NotificationsConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	// Jitter spreads retry delays by up to this fraction (0-1).
	Jitter float64 `yaml:"jitter"`
}

// RateLimitConfig is the per-channel send limit.
type RateLimitConfig struct {
	Enabled   *bool `yaml:"enabled"` // default: true
	PerMinute int   `yaml:"per_minute"`
	Burst     int   `yaml:"burst"`
}

// AlertsConfig points at the alert configuration file.
type AlertsConfig struct {
	File  string `yaml:"file"`
	Watch bool   `yaml:"watch"` // Reload the file on change
}

// ProbeConfig describes one monitored service.
type ProbeConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// http
	URL            string            `yaml:"url"`
	Headers        map[string]string `yaml:"headers"`
	ExpectedStatus int               `yaml:"expected_status"`
	// tcp
	Address string `yaml:"address"`
	// consul
	ConsulAddress string `yaml:"consul_address"` // default: CONSUL_HTTP_ADDR
	ConsulService string `yaml:"consul_service"` // default: name
	// postgres
	DSN string `yaml:"dsn"`
	// blob
	Blob *BlobConfig `yaml:"blob"`

	// Threshold overrides the performance threshold (http only).
	Threshold time.Duration `yaml:"threshold"`
}

// BlobConfig is an S3 compatible endpoint.
type BlobConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
}

// QuotaConfig describes one quota provider.
type QuotaConfig struct {
	Service string               `yaml:"service"`
	Type    string               `yaml:"type"`
	URL     string               `yaml:"url"`
	Headers map[string]string    `yaml:"headers"`
	Quotas  []models.QuotaStatus `yaml:"quotas"`
}

// LoadConfig loads configuration from a YAML file. ${VAR} references are
// expanded from the environment before parsing.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses, defaults and validates a YAML configuration.
func ParseConfig(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.HTTPAddress == "" {
		c.Server.HTTPAddress = ":8080"
	}
	if c.Server.TokenTTL == "" {
		c.Server.TokenTTL = "24h"
	}
	if c.Notifications.RateLimit.Enabled == nil {
		enabled := true
		c.Notifications.RateLimit.Enabled = &enabled
	}
	d := notifier.DefaultRateLimitConfig()
	if c.Notifications.RateLimit.PerMinute == 0 {
		c.Notifications.RateLimit.PerMinute = d.PerMinute
	}
	if c.Notifications.RateLimit.Burst == 0 {
		c.Notifications.RateLimit.Burst = c.Notifications.RateLimit.PerMinute
	}
	for i := range c.Probes {
		if c.Probes[i].Type == "" {
			c.Probes[i].Type = ProbeHTTP
		}
	}
	for i := range c.Quotas {
		if c.Quotas[i].Type == "" {
			c.Quotas[i].Type = QuotaStatic
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.HTTPAddress == "" {
		return fmt.Errorf("server.http_address is required")
	}
	if c.Server.JWTSecret != "" && len(c.Server.JWTSecret) < 32 {
		return fmt.Errorf("server.jwt_secret must be at least 32 characters")
	}
	if _, err := time.ParseDuration(c.Server.TokenTTL); err != nil {
		return fmt.Errorf("server.token_ttl: %w", err)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit_per_minute must not be negative")
	}
	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" {
			return fmt.Errorf("server.tls.cert_file is required when TLS is enabled")
		}
		if c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls.key_file is required when TLS is enabled")
		}
	}

	m := c.Monitor
	for name, d := range map[string]time.Duration{
		"health_interval":       m.HealthInterval,
		"quota_interval":        m.QuotaInterval,
		"retry_interval":        m.RetryInterval,
		"escalation_interval":   m.EscalationInterval,
		"cleanup_interval":      m.CleanupInterval,
		"retention":             m.Retention,
		"probe_timeout":         m.ProbeTimeout,
		"performance_threshold": m.PerformanceThreshold,
	} {
		if d < 0 {
			return fmt.Errorf("monitor.%s must not be negative", name)
		}
	}
	if m.QueueSize < 0 || m.MaxHistoryEntries < 0 {
		return fmt.Errorf("monitor queue and history sizes must not be negative")
	}
	if m.ErrorRateThreshold < 0 || m.ErrorRateThreshold > 100 {
		return fmt.Errorf("monitor.error_rate_threshold must be between 0 and 100")
	}
	if m.ErrorRateWindow < 0 || m.ErrorRateMinRequests < 0 {
		return fmt.Errorf("monitor error rate window and minimum must not be negative")
	}
	if m.ErrorRateWindow > 0 && m.ErrorRateMinRequests > int64(m.ErrorRateWindow) {
		return fmt.Errorf("monitor.error_rate_min_requests must not exceed monitor.error_rate_window")
	}
	if j := c.Notifications.Jitter; j < 0 || j > 1 {
		return fmt.Errorf("notifications.jitter must be between 0 and 1")
	}
	if c.Notifications.RateLimit.PerMinute < 0 || c.Notifications.RateLimit.Burst < 0 {
		return fmt.Errorf("notifications.rate_limit values must not be negative")
	}

	names := make(map[string]bool, len(c.Probes))
	for i, p := range c.Probes {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("probes[%d]: %w", i, err)
		}
		if names[p.Name] {
			return fmt.Errorf("probes[%d]: duplicate service name %q", i, p.Name)
		}
		names[p.Name] = true
	}
	for i, q := range c.Quotas {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("quotas[%d]: %w", i, err)
		}
	}

	channels := make(map[string]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if err := ch.Validate(); err != nil {
			return fmt.Errorf("channels: %w", err)
		}
		if channels[ch.Name] {
			return fmt.Errorf("channels: duplicate channel name %q", ch.Name)
		}
		channels[ch.Name] = true
	}
	return nil
}

// Validate checks one probe entry.
func (p ProbeConfig) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch p.Type {
	case ProbeHTTP:
		if !strings.HasPrefix(p.URL, "http://") && !strings.HasPrefix(p.URL, "https://") {
			return fmt.Errorf("probe %q: url must be http or https", p.Name)
		}
	case ProbeTCP:
		if p.Address == "" {
			return fmt.Errorf("probe %q: address is required", p.Name)
		}
	case ProbeConsul:
	case ProbePostgres:
		if p.DSN == "" {
			return fmt.Errorf("probe %q: dsn is required", p.Name)
		}
	case ProbeBlob:
		if p.Blob == nil || p.Blob.Endpoint == "" {
			return fmt.Errorf("probe %q: blob.endpoint is required", p.Name)
		}
	default:
		return fmt.Errorf("probe %q: unknown type %q", p.Name, p.Type)
	}
	if p.Threshold < 0 {
		return fmt.Errorf("probe %q: threshold must not be negative", p.Name)
	}
	return nil
}

// Validate checks one quota provider entry.
func (q QuotaConfig) Validate() error {
	if q.Service == "" {
		return fmt.Errorf("service is required")
	}
	switch q.Type {
	case QuotaStatic:
		if len(q.Quotas) == 0 {
			return fmt.Errorf("quota provider %q: static quotas are required", q.Service)
		}
		for _, s := range q.Quotas {
			if s.QuotaType == "" {
				return fmt.Errorf("quota provider %q: quota_type is required", q.Service)
			}
		}
	case QuotaHTTP:
		if !strings.HasPrefix(q.URL, "http://") && !strings.HasPrefix(q.URL, "https://") {
			return fmt.Errorf("quota provider %q: url must be http or https", q.Service)
		}
	default:
		return fmt.Errorf("quota provider %q: unknown type %q", q.Service, q.Type)
	}
	return nil
}

// TokenTTL returns the parsed default token lifetime.
func (c *Config) TokenTTL() time.Duration {
	d, _ := time.ParseDuration(c.Server.TokenTTL)
	return d
}

// MonitorConfig converts the file settings to monitor.Config.
func (c *Config) MonitorConfig() monitor.Config {
	m := c.Monitor
	return monitor.Config{
		HealthInterval:     m.HealthInterval,
		QuotaInterval:      m.QuotaInterval,
		RetryInterval:      m.RetryInterval,
		EscalationInterval: m.EscalationInterval,
		CleanupInterval:    m.CleanupInterval,
		Retention:          m.Retention,
		QueueSize:          m.QueueSize,
		MaxHistoryEntries:  m.MaxHistoryEntries,
		AutoResolve:        m.AutoResolve,
		Verbose:            c.Verbose,
	}
}

// ProberOptions converts the thresholds to prober.Options.
func (c *Config) ProberOptions() prober.Options {
	m := c.Monitor
	return prober.Options{
		ProbeTimeout:         m.ProbeTimeout,
		PerformanceThreshold: m.PerformanceThreshold,
		ErrorRateThreshold:   m.ErrorRateThreshold,
		ErrorRateMinRequests: m.ErrorRateMinRequests,
		ErrorRateWindow:      m.ErrorRateWindow,
		Verbose:              c.Verbose,
	}
}

// DispatchOptions converts the delivery settings.
func (c *Config) DispatchOptions() notifier.DispatcherOptions {
	rl := c.Notifications.RateLimit
	return notifier.DispatcherOptions{
		RateLimit: notifier.RateLimitConfig{
			Enabled:   rl.Enabled != nil && *rl.Enabled,
			PerMinute: rl.PerMinute,
			Burst:     rl.Burst,
		},
		Jitter:  c.Notifications.Jitter,
		Verbose: c.Verbose,
	}
}
