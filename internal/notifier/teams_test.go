package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

func teamsChannel(url string) models.AlertChannel {
	return models.AlertChannel{
		Type:    models.ChannelTeams,
		Name:    "ops-teams",
		Enabled: true,
		Teams:   &models.TeamsConfig{WebhookURL: url},
	}
}

func TestTeamsSenderSend(t *testing.T) {
	var raw []byte

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender := NewTeamsSender(server.Client())
	if err := sender.Send(context.Background(), teamsChannel(server.URL), testAlert()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	var msg struct {
		Type        string `json:"type"`
		Attachments []struct {
			ContentType string `json:"contentType"`
			Content     struct {
				Type string           `json:"type"`
				Body []map[string]any `json:"body"`
			} `json:"content"`
		} `json:"attachments"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("failed to parse payload: %v", err)
	}

	if msg.Type != "message" || len(msg.Attachments) != 1 {
		t.Fatalf("unexpected envelope: %s", raw)
	}
	att := msg.Attachments[0]
	if att.ContentType != "application/vnd.microsoft.card.adaptive" {
		t.Errorf("contentType = %q", att.ContentType)
	}
	if att.Content.Type != "AdaptiveCard" {
		t.Errorf("card type = %q", att.Content.Type)
	}
	if len(att.Content.Body) != 4 {
		t.Fatalf("expected 4 body elements, got %d", len(att.Content.Body))
	}
	if style := att.Content.Body[0]["style"]; style != "attention" {
		t.Errorf("container style = %v, want attention", style)
	}
	if !strings.Contains(string(raw), "ocr responded in 6000ms") {
		t.Error("payload missing message")
	}
}

func TestTeamsSenderErrors(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sender := NewTeamsSender(server.Client())
	if err := sender.Send(context.Background(), teamsChannel(server.URL), testAlert()); err == nil {
		t.Error("expected error for 500 response")
	}

	bare := models.AlertChannel{Type: models.ChannelTeams, Name: "bare"}
	if err := sender.Send(context.Background(), bare, testAlert()); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("Send() error = %v, want ErrInvalidChannel", err)
	}
}

func TestTeamsSeverityStyle(t *testing.T) {
	tests := []struct {
		severity models.Severity
		want     string
	}{
		{models.SeverityCritical, "attention"},
		{models.SeverityHigh, "warning"},
		{models.SeverityMedium, "accent"},
		{models.SeverityLow, "good"},
		{models.Severity("unknown"), "default"},
	}

	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			if got := teamsSeverityStyle(tt.severity); got != tt.want {
				t.Errorf("teamsSeverityStyle(%q) = %q, want %q", tt.severity, got, tt.want)
			}
		})
	}
}
