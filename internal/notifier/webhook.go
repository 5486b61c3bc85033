package notifier

import (
	"context"
	"net/http"
	"strings"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// WebhookSender posts alerts as JSON to arbitrary HTTP endpoints.
type WebhookSender struct {
	httpClient *http.Client
}

// NewWebhookSender creates a webhook sender. A nil client gets the default.
func NewWebhookSender(client *http.Client) *WebhookSender {
	return &WebhookSender{httpClient: httpClientOrDefault(client)}
}

// Type returns "webhook".
func (w *WebhookSender) Type() models.ChannelType {
	return models.ChannelWebhook
}

// WebhookPayload is the JSON body posted to generic webhooks.
type WebhookPayload struct {
	Event   string              `json:"event"`
	Title   string              `json:"title"`
	Channel string              `json:"channel"`
	Alert   *models.HealthAlert `json:"alert"`
}

// Send posts the alert to the configured URL.
func (w *WebhookSender) Send(ctx context.Context, ch models.AlertChannel, alert *models.HealthAlert) error {
	if ch.Webhook == nil {
		return errorf(ErrInvalidChannel, "channel %q has no webhook config", ch.Name)
	}
	if err := ch.Webhook.Validate(); err != nil {
		return errorf(ErrInvalidChannel, "invalid webhook config: %v", err)
	}

	headers := make(map[string]string, len(ch.Webhook.Headers)+1)
	for k, v := range ch.Webhook.Headers {
		headers[k] = v
	}
	if ch.Webhook.BearerToken != "" {
		headers["Authorization"] = "Bearer " + ch.Webhook.BearerToken
	}

	event := "health_alert"
	if isTestAlert(alert) {
		event = "health_alert_test"
	}

	return doJSON(ctx, w.httpClient, jsonRequest{
		method:  strings.ToUpper(ch.Webhook.Method),
		url:     ch.Webhook.URL,
		headers: headers,
		payload: WebhookPayload{
			Event:   event,
			Title:   alertTitle(alert),
			Channel: ch.Name,
			Alert:   alert,
		},
		service: "webhook",
	})
}

// Close is a no-op for webhook sender.
func (w *WebhookSender) Close() error {
	return nil
}
