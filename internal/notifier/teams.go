package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// TeamsSender sends alerts to Microsoft Teams via webhook.
type TeamsSender struct {
	httpClient *http.Client
}

// NewTeamsSender creates a Teams sender. A nil client gets the default.
func NewTeamsSender(client *http.Client) *TeamsSender {
	return &TeamsSender{httpClient: httpClientOrDefault(client)}
}

// Type returns "teams".
func (t *TeamsSender) Type() models.ChannelType {
	return models.ChannelTeams
}

// Send posts an Adaptive Card to the channel's webhook.
func (t *TeamsSender) Send(ctx context.Context, ch models.AlertChannel, alert *models.HealthAlert) error {
	if ch.Teams == nil {
		return errorf(ErrInvalidChannel, "channel %q has no teams config", ch.Name)
	}
	if err := ch.Teams.Validate(); err != nil {
		return errorf(ErrInvalidChannel, "invalid teams config: %v", err)
	}

	return doJSON(ctx, t.httpClient, jsonRequest{
		url:     ch.Teams.WebhookURL,
		payload: buildTeamsPayload(alert),
		service: "teams",
	})
}

// Close is a no-op for Teams sender.
func (t *TeamsSender) Close() error {
	return nil
}

// teamsMessage represents the Teams webhook payload with Adaptive Card.
type teamsMessage struct {
	Type        string            `json:"type"`
	Attachments []teamsAttachment `json:"attachments"`
}

type teamsAttachment struct {
	ContentType string       `json:"contentType"`
	ContentURL  *string      `json:"contentUrl"`
	Content     adaptiveCard `json:"content"`
}

type adaptiveCard struct {
	Schema  string `json:"$schema"`
	Type    string `json:"type"`
	Version string `json:"version"`
	Body    []any  `json:"body"`
}

// Adaptive Card element types
type textBlock struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Size   string `json:"size,omitempty"`
	Weight string `json:"weight,omitempty"`
	Color  string `json:"color,omitempty"`
	Wrap   bool   `json:"wrap,omitempty"`
}

type factSet struct {
	Type  string `json:"type"`
	Facts []fact `json:"facts"`
}

type fact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

type container struct {
	Type  string `json:"type"`
	Style string `json:"style,omitempty"`
	Items []any  `json:"items"`
}

func buildTeamsPayload(alert *models.HealthAlert) teamsMessage {
	emoji := severityEmoji(alert.Severity)

	body := []any{
		container{
			Type:  "Container",
			Style: teamsSeverityStyle(alert.Severity),
			Items: []any{
				textBlock{
					Type:   "TextBlock",
					Text:   fmt.Sprintf("%s %s", emoji, alertTitle(alert)),
					Size:   "Large",
					Weight: "Bolder",
					Wrap:   true,
				},
			},
		},
		factSet{
			Type: "FactSet",
			Facts: []fact{
				{Title: "Severity", Value: fmt.Sprintf("%s %s", emoji, strings.ToUpper(string(alert.Severity)))},
				{Title: "Service", Value: alert.Service},
				{Title: "Type", Value: string(alert.Type)},
				{Title: "Time", Value: alert.Timestamp.Format(timestampLayout)},
			},
		},
		textBlock{
			Type: "TextBlock",
			Text: fmt.Sprintf("**Message:** %s", alert.Message),
			Wrap: true,
		},
	}

	if details := alertDetails(alert); len(details) > 0 {
		facts := make([]fact, 0, len(details))
		for _, d := range details {
			facts = append(facts, fact{Title: d.Key, Value: truncate(d.Value, 200)})
		}
		body = append(body, factSet{Type: "FactSet", Facts: facts})
	}

	return teamsMessage{
		Type: "message",
		Attachments: []teamsAttachment{
			{
				ContentType: "application/vnd.microsoft.card.adaptive",
				Content: adaptiveCard{
					Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
					Type:    "AdaptiveCard",
					Version: "1.4",
					Body:    body,
				},
			},
		},
	}
}

// teamsSeverityStyle returns an Adaptive Card container style for the severity level.
func teamsSeverityStyle(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "attention"
	case models.SeverityHigh:
		return "warning"
	case models.SeverityMedium:
		return "accent"
	case models.SeverityLow:
		return "good"
	default:
		return "default"
	}
}
