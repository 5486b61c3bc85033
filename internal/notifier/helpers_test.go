package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

var testTime = time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

func testAlert() *models.HealthAlert {
	return &models.HealthAlert{
		ID:        "alert-1",
		Type:      models.AlertTypePerformanceDegraded,
		Severity:  models.SeverityCritical,
		Service:   "ocr",
		Message:   "ocr responded in 6000ms",
		Timestamp: testTime,
		Metadata: map[string]any{
			models.MetaLatencyMs: 6000.0,
		},
	}
}

// mockSender records sends and fails while failures > 0.
type mockSender struct {
	mu        sync.Mutex
	typ       models.ChannelType
	failures  int
	err       error
	sends     int
	panicWith any
}

func (m *mockSender) Type() models.ChannelType { return m.typ }

func (m *mockSender) Send(ctx context.Context, ch models.AlertChannel, alert *models.HealthAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends++
	if m.panicWith != nil {
		panic(m.panicWith)
	}
	if m.failures != 0 {
		if m.failures > 0 {
			m.failures--
		}
		if m.err != nil {
			return m.err
		}
		return errors.New("mock send error")
	}
	return nil
}

func (m *mockSender) Close() error { return nil }

func (m *mockSender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sends
}

func webhookChannel(name string, retry *models.RetryConfig) models.AlertChannel {
	return models.AlertChannel{
		Type:    models.ChannelWebhook,
		Name:    name,
		Enabled: true,
		Retry:   retry,
		Webhook: &models.WebhookConfig{URL: "https://hooks.example.com/" + name},
	}
}

func pendingNotification(id string, ch models.AlertChannel) *models.AlertNotification {
	return &models.AlertNotification{
		ID:          id,
		AlertID:     "alert-1",
		ChannelType: ch.Type,
		ChannelName: ch.Name,
		Status:      models.NotificationPending,
	}
}
