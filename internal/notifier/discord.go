package notifier

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// Discord limits embed fields per message.
const discordMaxFields = 25

// DiscordSender sends alerts to Discord webhooks.
type DiscordSender struct {
	httpClient *http.Client
}

// NewDiscordSender creates a Discord sender. A nil client gets the default.
func NewDiscordSender(client *http.Client) *DiscordSender {
	return &DiscordSender{httpClient: httpClientOrDefault(client)}
}

// Type returns "discord".
func (d *DiscordSender) Type() models.ChannelType {
	return models.ChannelDiscord
}

// Send posts an embed to the channel's webhook.
func (d *DiscordSender) Send(ctx context.Context, ch models.AlertChannel, alert *models.HealthAlert) error {
	if ch.Discord == nil {
		return errorf(ErrInvalidChannel, "channel %q has no discord config", ch.Name)
	}
	if err := ch.Discord.Validate(); err != nil {
		return errorf(ErrInvalidChannel, "invalid discord config: %v", err)
	}

	return doJSON(ctx, d.httpClient, jsonRequest{
		url:     ch.Discord.WebhookURL,
		payload: buildDiscordPayload(ch.Discord, alert),
		service: "discord",
	})
}

// Close is a no-op for Discord sender.
func (d *DiscordSender) Close() error {
	return nil
}

type discordMessage struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp"`
	Fields      []discordField `json:"fields,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

func buildDiscordPayload(cfg *models.DiscordConfig, alert *models.HealthAlert) discordMessage {
	username := cfg.Username
	if username == "" {
		username = "BlazeWatch"
	}

	fields := []discordField{
		{Name: "Severity", Value: strings.ToUpper(string(alert.Severity)), Inline: true},
		{Name: "Service", Value: alert.Service, Inline: true},
		{Name: "Type", Value: string(alert.Type), Inline: true},
	}
	for _, d := range alertDetails(alert) {
		if len(fields) == discordMaxFields {
			break
		}
		fields = append(fields, discordField{Name: d.Key, Value: truncate(d.Value, 1024), Inline: true})
	}

	return discordMessage{
		Username: username,
		Embeds: []discordEmbed{{
			Title:       truncate(severityEmoji(alert.Severity)+" "+alertTitle(alert), 256),
			Description: truncate(alert.Message, 4096),
			Color:       discordColor(alert.Severity),
			Timestamp:   alert.Timestamp.UTC().Format(time.RFC3339),
			Fields:      fields,
		}},
	}
}

// discordColor converts the severity hex color to Discord's integer form.
func discordColor(severity models.Severity) int {
	c, err := strconv.ParseInt(strings.TrimPrefix(severityColor(severity), "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(c)
}
