// Package configs serves the alert configuration registry.
package configs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/blazewatch/internal/alerting"
	"github.com/good-yellow-bee/blazewatch/internal/api/respond"
	"github.com/good-yellow-bee/blazewatch/internal/models"
	"github.com/good-yellow-bee/blazewatch/internal/monitor"
)

// maxBodyBytes bounds a config request body.
const maxBodyBytes = 1 << 20

// Redacted replaces credential values in responses.
const Redacted = "********"

// Service is the config registry the handler manages.
type Service interface {
	ListAlertConfigs() []*alerting.AlertConfig
	AddAlertConfig(cfg *alerting.AlertConfig) error
	RemoveAlertConfig(id string) error
	TestAlertConfig(ctx context.Context, id string) monitor.TestResult
}

// Handler handles alert config endpoints.
type Handler struct {
	svc Service
}

// NewHandler creates a config handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// List returns every config sorted by id, with credentials redacted.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	cfgs := h.svc.ListAlertConfigs()
	out := make([]*alerting.AlertConfig, len(cfgs))
	for i, cfg := range cfgs {
		out[i] = Redact(cfg)
	}
	respond.OK(w, out)
}

// Get returns one config with credentials redacted.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cfg, ok := h.find(id)
	if !ok {
		respond.JSONError(w, respond.NewNotFound("alert config not found: "+id))
		return
	}
	respond.OK(w, Redact(cfg))
}

// Create inserts or replaces a config. Credentials sent back as Redacted
// keep the value stored for the same channel of the replaced config.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var cfg alerting.AlertConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respond.JSONError(w, respond.NewBadRequest(fmt.Sprintf("invalid request body: %v", err)))
		return
	}

	prev, existed := h.find(cfg.ID)
	if err := restoreRedacted(&cfg, prev); err != nil {
		respond.JSONError(w, respond.NewValidationError(err.Error()))
		return
	}
	if err := h.svc.AddAlertConfig(&cfg); err != nil {
		respond.JSONError(w, respond.NewValidationError(err.Error()))
		return
	}

	saved, ok := h.find(cfg.ID)
	if !ok {
		respond.JSONError(w, respond.ErrInternalServer)
		return
	}
	if existed {
		respond.OK(w, Redact(saved))
		return
	}
	respond.Created(w, Redact(saved))
}

// Delete removes a config.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.RemoveAlertConfig(id); err != nil {
		if errors.Is(err, alerting.ErrConfigNotFound) {
			respond.JSONError(w, respond.NewNotFound("alert config not found: "+id))
			return
		}
		log.Printf("[api] remove config %s: %v", id, err)
		respond.JSONError(w, respond.ErrInternalServer)
		return
	}
	respond.NoContent(w)
}

// Test sends a test alert through the config's enabled channels. Delivery
// failures are reported in the result, not as an HTTP error.
func (h *Handler) Test(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.find(id); !ok {
		respond.JSONError(w, respond.NewNotFound("alert config not found: "+id))
		return
	}
	respond.OK(w, h.svc.TestAlertConfig(r.Context(), id))
}

func (h *Handler) find(id string) (*alerting.AlertConfig, bool) {
	if id == "" {
		return nil, false
	}
	for _, cfg := range h.svc.ListAlertConfigs() {
		if cfg.ID == id {
			return cfg, true
		}
	}
	return nil, false
}

// Redact returns a copy of cfg with every channel credential replaced.
func Redact(cfg *alerting.AlertConfig) *alerting.AlertConfig {
	cp := cfg.Clone()
	for i := range cp.Channels {
		cp.Channels[i] = redactChannel(cp.Channels[i])
	}
	return cp
}

func redactChannel(ch models.AlertChannel) models.AlertChannel {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return Redacted
	}
	if ch.Email != nil {
		c := *ch.Email
		c.Password = mask(c.Password)
		ch.Email = &c
	}
	if ch.Slack != nil {
		c := *ch.Slack
		c.WebhookURL = mask(c.WebhookURL)
		ch.Slack = &c
	}
	if ch.Teams != nil {
		c := *ch.Teams
		c.WebhookURL = mask(c.WebhookURL)
		ch.Teams = &c
	}
	if ch.Discord != nil {
		c := *ch.Discord
		c.WebhookURL = mask(c.WebhookURL)
		ch.Discord = &c
	}
	if ch.SMS != nil {
		c := *ch.SMS
		c.AuthToken = mask(c.AuthToken)
		ch.SMS = &c
	}
	if ch.Webhook != nil {
		c := *ch.Webhook
		c.URL = mask(c.URL)
		c.BearerToken = mask(c.BearerToken)
		if len(c.Headers) > 0 {
			headers := make(map[string]string, len(c.Headers))
			for k, v := range c.Headers {
				if models.IsSensitiveHeader(k) {
					v = mask(v)
				}
				headers[k] = v
			}
			c.Headers = headers
		}
		ch.Webhook = &c
	}
	return ch
}

// restoreRedacted swaps every Redacted credential in cfg for the value of the
// same channel (matched by name and type) in prev. A placeholder with nothing
// to restore is an error, so it can never be saved as the secret itself.
func restoreRedacted(cfg, prev *alerting.AlertConfig) error {
	var errs []error
	for i := range cfg.Channels {
		ch := &cfg.Channels[i]
		var old models.AlertChannel
		if prev != nil {
			for _, p := range prev.Channels {
				if p.Name == ch.Name && p.Type == ch.Type {
					old = p
					break
				}
			}
		}
		restore := func(field string, dst *string, stored string) {
			if *dst != Redacted {
				return
			}
			if stored == "" || stored == Redacted {
				errs = append(errs, fmt.Errorf("channel %q: %s is redacted and has no stored value", ch.Name, field))
				return
			}
			*dst = stored
		}

		if ch.Email != nil {
			restore("email.password", &ch.Email.Password, deref(old.Email).Password)
		}
		if ch.Slack != nil {
			restore("slack.webhook_url", &ch.Slack.WebhookURL, deref(old.Slack).WebhookURL)
		}
		if ch.Teams != nil {
			restore("teams.webhook_url", &ch.Teams.WebhookURL, deref(old.Teams).WebhookURL)
		}
		if ch.Discord != nil {
			restore("discord.webhook_url", &ch.Discord.WebhookURL, deref(old.Discord).WebhookURL)
		}
		if ch.SMS != nil {
			restore("sms.auth_token", &ch.SMS.AuthToken, deref(old.SMS).AuthToken)
		}
		if ch.Webhook != nil {
			stored := deref(old.Webhook)
			restore("webhook.url", &ch.Webhook.URL, stored.URL)
			restore("webhook.bearer_token", &ch.Webhook.BearerToken, stored.BearerToken)
			for k, v := range ch.Webhook.Headers {
				restore("webhook.headers."+k, &v, stored.Headers[k])
				ch.Webhook.Headers[k] = v
			}
		}
	}
	return errors.Join(errs...)
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
