package notifier

import (
	"errors"
	"strings"
	"testing"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

func TestSanitizeError(t *testing.T) {
	slack := models.AlertChannel{
		Type:  models.ChannelSlack,
		Name:  "chat",
		Slack: &models.SlackConfig{WebhookURL: "https://hooks.slack.com/services/T0/B0/XYZ"},
	}
	sms := models.AlertChannel{
		Type: models.ChannelSMS,
		Name: "pager",
		SMS:  &models.SMSConfig{AuthToken: "tw-secret"},
	}
	hook := models.AlertChannel{
		Type: models.ChannelWebhook,
		Name: "hook",
		Webhook: &models.WebhookConfig{
			URL:     "https://example.com",
			Headers: map[string]string{"X-Api-Key": "k-123", "X-Source": "plain"},
		},
	}

	tests := []struct {
		name    string
		ch      models.AlertChannel
		err     error
		want    string
		notWant []string
	}{
		{
			name:    "slack webhook url",
			ch:      slack,
			err:     errors.New(`Post "https://hooks.slack.com/services/T0/B0/XYZ": dial tcp: timeout`),
			want:    `Post "[REDACTED]": dial tcp: timeout`,
			notWant: []string{"XYZ"},
		},
		{
			name:    "sms auth token",
			ch:      sms,
			err:     errors.New("auth failed for tw-secret"),
			want:    "auth failed for [REDACTED]",
			notWant: []string{"tw-secret"},
		},
		{
			name:    "sensitive header only",
			ch:      hook,
			err:     errors.New("rejected k-123 from plain"),
			want:    "rejected [REDACTED] from plain",
			notWant: []string{"k-123"},
		},
		{
			name: "bare host kept",
			ch:   hook,
			err:  errors.New("connect https://example.com refused"),
			want: "connect https://example.com refused",
		},
		{
			name:    "url path reduced",
			ch:      hook,
			err:     errors.New("status 404 from https://api.example.com/v1/hooks?key=1"),
			want:    "status 404 from https://api.example.com/[REDACTED]",
			notWant: []string{"key=1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeError(tt.err, tt.ch)
			if got != tt.want {
				t.Errorf("SanitizeError() = %q, want %q", got, tt.want)
			}
			for _, s := range tt.notWant {
				if strings.Contains(got, s) {
					t.Errorf("SanitizeError() leaks %q: %q", s, got)
				}
			}
		})
	}
}

func TestSanitizeErrorTruncates(t *testing.T) {
	got := SanitizeError(errors.New(strings.Repeat("e", 2000)), models.AlertChannel{})
	if len(got) != maxErrorMessage {
		t.Errorf("len = %d, want %d", len(got), maxErrorMessage)
	}
	if SanitizeError(nil, models.AlertChannel{}) != "" {
		t.Error("nil error should sanitize to empty")
	}
}

func TestRegistry(t *testing.T) {
	hook := &mockSender{typ: models.ChannelWebhook}
	r := NewRegistry(hook)

	if s, ok := r.Get(models.ChannelWebhook); !ok || s != hook {
		t.Fatal("webhook sender not registered")
	}
	if _, ok := r.Get(models.ChannelSMS); ok {
		t.Error("unregistered channel type should not resolve")
	}

	def, err := DefaultRegistry(nil)
	if err != nil {
		t.Fatalf("DefaultRegistry() error = %v", err)
	}
	for _, typ := range []models.ChannelType{
		models.ChannelEmail, models.ChannelSlack, models.ChannelTeams,
		models.ChannelDiscord, models.ChannelWebhook, models.ChannelSMS,
	} {
		if _, ok := def.Get(typ); !ok {
			t.Errorf("DefaultRegistry() missing %s sender", typ)
		}
	}
	if err := def.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
