package alerting

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/clock"
	"github.com/good-yellow-bee/blazewatch/internal/history"
	"github.com/good-yellow-bee/blazewatch/internal/models"
)

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type submission struct {
	notification *models.AlertNotification
	channel      models.AlertChannel
	alert        *models.HealthAlert
}

type fakeDispatcher struct {
	mu         sync.Mutex
	submitted  []submission
	delivered  []string
	deliverErr map[string]error
}

func (f *fakeDispatcher) Submit(_ context.Context, n *models.AlertNotification, ch models.AlertChannel, alert *models.HealthAlert) *models.AlertNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.Status = models.NotificationSent
	f.submitted = append(f.submitted, submission{n.Clone(), ch, alert.Clone()})
	return n.Clone()
}

func (f *fakeDispatcher) Deliver(_ context.Context, ch models.AlertChannel, _ *models.HealthAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, ch.Name)
	return f.deliverErr[ch.Name]
}

func (f *fakeDispatcher) submissions() []submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submission(nil), f.submitted...)
}

var errBoom = errors.New("boom")

func webhookChannel(name string) models.AlertChannel {
	return models.AlertChannel{
		Type:    models.ChannelWebhook,
		Name:    name,
		Enabled: true,
		Webhook: &models.WebhookConfig{URL: "https://hooks.example.com/" + name},
	}
}

func newAlert(id string, t models.AlertType, sev models.Severity, service string, at time.Time, meta map[string]any) *models.HealthAlert {
	return &models.HealthAlert{
		ID:        id,
		Type:      t,
		Severity:  sev,
		Service:   service,
		Message:   string(t) + " on " + service,
		Timestamp: at,
		Metadata:  meta,
	}
}

func serviceDownConfig(id string, cooldown int, channels ...models.AlertChannel) *AlertConfig {
	return &AlertConfig{
		ID:       id,
		Name:     id,
		Enabled:  true,
		Channels: channels,
		Rules: []AlertRule{{
			ID:        "down",
			Condition: AlertCondition{Type: models.AlertTypeServiceDown, Operator: OpEq, Value: true},
			Severity:  models.SeverityLow,
		}},
		CooldownMinutes: cooldown,
	}
}

type routerFixture struct {
	clock      *clock.Fake
	store      *Store
	dispatcher *fakeDispatcher
	history    *history.Log
	router     *Router
}

func newRouterFixture() *routerFixture {
	clk := clock.NewFake(testEpoch)
	store := NewStore(clk)
	disp := &fakeDispatcher{}
	hist := history.New(100, clk)
	return &routerFixture{
		clock:      clk,
		store:      store,
		dispatcher: disp,
		history:    hist,
		router:     NewRouter(store, disp, hist, clk, RouterOptions{}),
	}
}
