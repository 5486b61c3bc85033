// Package api provides the HTTP REST API server.
package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/api/alerts"
	"github.com/good-yellow-bee/blazewatch/internal/api/configs"
	"github.com/good-yellow-bee/blazewatch/internal/api/health"
	"github.com/good-yellow-bee/blazewatch/internal/api/stream"
	"github.com/good-yellow-bee/blazewatch/internal/history"
)

// Config contains HTTP API server configuration.
type Config struct {
	Address string
	// JWTSecret enables bearer token auth when set. Without it the API is
	// open and meant for a trusted network only.
	JWTSecret       []byte
	AccessTokenTTL  time.Duration
	CORSOrigins     []string
	HTTPTLSEnabled  bool
	HTTPTLSCertFile string
	HTTPTLSKeyFile  string
	// RateLimitPerMinute is per caller; zero disables rate limiting.
	RateLimitPerMinute int
	// ReportTimeout bounds the on-demand health cycle.
	ReportTimeout time.Duration
	Verbose       bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = 24 * time.Hour
	}
	if c.ReportTimeout == 0 {
		c.ReportTimeout = health.DefaultReportTimeout
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if len(c.JWTSecret) > 0 && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 bytes")
	}
	if c.HTTPTLSEnabled && (c.HTTPTLSCertFile == "" || c.HTTPTLSKeyFile == "") {
		return fmt.Errorf("TLS cert and key files are required when TLS is enabled")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	return nil
}

// Monitor is everything the API reads from and drives on the monitor.
type Monitor interface {
	health.Service
	alerts.Service
	configs.Service
	History() *history.Log
}

// Server is the HTTP API server.
type Server struct {
	config  *Config
	monitor Monitor
	hub     *stream.Hub
	handler http.Handler
	server  *http.Server

	unsubscribe func()
}

// New creates a new API server.
func New(cfg *Config, mon Monitor) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if mon == nil {
		return nil, fmt.Errorf("monitor is required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid API config: %w", err)
	}
	if len(cfg.JWTSecret) == 0 {
		log.Printf("[api] WARNING: no JWT secret configured, API authentication is disabled")
	}

	s := &Server{
		config:  cfg,
		monitor: mon,
		hub:     stream.New(cfg.CORSOrigins),
	}
	s.unsubscribe = s.hub.Attach(mon.History())
	s.handler = s.setupRouter()

	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// WriteTimeout stays 0: the event stream is long lived and the
		// health report is bounded by ReportTimeout.
		IdleTimeout: 60 * time.Second,
	}
	if cfg.HTTPTLSEnabled {
		s.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return s, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run starts the HTTP server and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errChan := make(chan error, 1)

	go func() {
		log.Printf("[api] HTTP API listening on %s", ln.Addr())
		var err error
		if s.config.HTTPTLSEnabled {
			err = s.server.ServeTLS(ln, s.config.HTTPTLSCertFile, s.config.HTTPTLSKeyFile)
		} else {
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		log.Printf("[api] shutting down HTTP API server...")
		s.unsubscribe()
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err, ok := <-errChan:
		s.unsubscribe()
		s.hub.Close()
		if !ok {
			return nil
		}
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}
