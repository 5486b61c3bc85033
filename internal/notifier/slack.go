package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// SlackSender sends alerts to Slack incoming webhooks.
type SlackSender struct {
	httpClient *http.Client
}

// NewSlackSender creates a Slack sender. A nil client gets the default.
func NewSlackSender(client *http.Client) *SlackSender {
	return &SlackSender{httpClient: httpClientOrDefault(client)}
}

// Type returns "slack".
func (s *SlackSender) Type() models.ChannelType {
	return models.ChannelSlack
}

// Send posts a Block Kit message to the channel's webhook.
func (s *SlackSender) Send(ctx context.Context, ch models.AlertChannel, alert *models.HealthAlert) error {
	if ch.Slack == nil {
		return errorf(ErrInvalidChannel, "channel %q has no slack config", ch.Name)
	}
	if err := ch.Slack.Validate(); err != nil {
		return errorf(ErrInvalidChannel, "invalid slack config: %v", err)
	}

	return doJSON(ctx, s.httpClient, jsonRequest{
		url:     ch.Slack.WebhookURL,
		payload: buildSlackPayload(ch.Slack, alert),
		service: "slack",
	})
}

// Close is a no-op for Slack sender.
func (s *SlackSender) Close() error {
	return nil
}

// slackMessage represents the Slack webhook payload.
type slackMessage struct {
	Channel string       `json:"channel,omitempty"`
	Text    string       `json:"text"`
	Blocks  []slackBlock `json:"blocks"`
}

// slackBlock represents a Slack Block Kit block.
type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

// slackText represents text in Slack Block Kit.
type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

func buildSlackPayload(cfg *models.SlackConfig, alert *models.HealthAlert) slackMessage {
	emoji := severityEmoji(alert.Severity)
	title := alertTitle(alert)

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{
				Type:  "plain_text",
				Text:  fmt.Sprintf("%s %s", emoji, title),
				Emoji: true,
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Severity:*\n%s %s", emoji, strings.ToUpper(string(alert.Severity)))},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Time:*\n%s", alert.Timestamp.Format(timestampLayout))},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Service:*\n%s", alert.Service)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Type:*\n%s", alert.Type)},
			},
		},
		{
			Type: "section",
			Text: &slackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*Message:*\n%s", truncate(alert.Message, 2000)),
			},
		},
	}

	if details := alertDetails(alert); len(details) > 0 {
		parts := make([]string, 0, len(details))
		for _, d := range details {
			parts = append(parts, fmt.Sprintf("`%s=%s`", d.Key, truncate(d.Value, 100)))
		}
		blocks = append(blocks, slackBlock{
			Type: "context",
			Elements: []slackText{
				{Type: "mrkdwn", Text: strings.Join(parts, " ")},
			},
		})
	}

	return slackMessage{
		Channel: cfg.Channel,
		Text:    title,
		Blocks:  blocks,
	}
}
