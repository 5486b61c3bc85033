// Package monitor wires the prober, alert router, dispatcher, escalation
// scheduler and history log into one service and owns its periodic tasks.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/blazewatch/internal/alerting"
	"github.com/good-yellow-bee/blazewatch/internal/clock"
	"github.com/good-yellow-bee/blazewatch/internal/history"
	"github.com/good-yellow-bee/blazewatch/internal/metrics"
	"github.com/good-yellow-bee/blazewatch/internal/models"
	"github.com/good-yellow-bee/blazewatch/internal/notifier"
	"github.com/good-yellow-bee/blazewatch/internal/prober"
)

// Config holds the monitor schedule and limits.
type Config struct {
	HealthInterval     time.Duration
	QuotaInterval      time.Duration
	RetryInterval      time.Duration
	EscalationInterval time.Duration
	CleanupInterval    time.Duration
	// Retention bounds history, resolved alerts and finished notifications.
	Retention time.Duration
	// QueueSize is the capacity of the routing queue.
	QueueSize         int
	MaxHistoryEntries int
	// AutoResolve resolves service_down and performance_degraded alerts
	// once their service probes healthy again.
	AutoResolve bool
	Verbose     bool
}

// DefaultConfig returns the default schedule.
func DefaultConfig() Config {
	return Config{
		HealthInterval:     60 * time.Second,
		QuotaInterval:      5 * time.Minute,
		RetryInterval:      5 * time.Second,
		EscalationInterval: 60 * time.Second,
		CleanupInterval:    time.Hour,
		Retention:          7 * 24 * time.Hour,
		QueueSize:          256,
		MaxHistoryEntries:  history.DefaultMaxEntries,
	}
}

// setDefaults fills zero values from DefaultConfig.
func (c *Config) setDefaults() {
	d := DefaultConfig()
	if c.HealthInterval <= 0 {
		c.HealthInterval = d.HealthInterval
	}
	if c.QuotaInterval <= 0 {
		c.QuotaInterval = d.QuotaInterval
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = d.RetryInterval
	}
	if c.EscalationInterval <= 0 {
		c.EscalationInterval = d.EscalationInterval
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.Retention <= 0 {
		c.Retention = d.Retention
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.MaxHistoryEntries <= 0 {
		c.MaxHistoryEntries = d.MaxHistoryEntries
	}
}

// Deps are the collaborators of a Monitor.
type Deps struct {
	Probes         []prober.HealthProbe
	QuotaProviders []prober.QuotaProvider
	ProberOptions  prober.Options
	// Registry holds the channel senders. Nil gets notifier.DefaultRegistry.
	Registry *notifier.Registry
	// Dispatcher options; Clock and Verbose are taken from the monitor.
	Dispatch notifier.DispatcherOptions
	// Configs seeds the alert config registry.
	Configs []*alerting.AlertConfig
	Clock   clock.Clock
}

// TestResult is the outcome of TestAlertConfig.
type TestResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Monitor is the health monitoring and alert routing service.
type Monitor struct {
	cfg   Config
	clock clock.Clock

	prober     *prober.Prober
	store      *alerting.Store
	router     *alerting.Router
	dispatcher *notifier.Dispatcher
	escalation *alerting.EscalationScheduler
	history    *history.Log

	queue chan *models.HealthAlert
}

// New builds a monitor. Invalid seed configs are a bootstrap error.
func New(cfg Config, deps Deps) (*Monitor, error) {
	cfg.setDefaults()
	clk := clock.OrReal(deps.Clock)

	registry := deps.Registry
	if registry == nil {
		var err error
		registry, err = notifier.DefaultRegistry(nil)
		if err != nil {
			return nil, fmt.Errorf("create sender registry: %w", err)
		}
	}

	popts := deps.ProberOptions
	popts.Clock = clk
	popts.Verbose = popts.Verbose || cfg.Verbose

	dopts := deps.Dispatch
	dopts.Clock = clk
	dopts.Verbose = dopts.Verbose || cfg.Verbose

	hist := history.New(cfg.MaxHistoryEntries, clk)
	store := alerting.NewStore(clk)
	dispatcher := notifier.NewDispatcher(registry, dopts)
	router := alerting.NewRouter(store, dispatcher, hist, clk, alerting.RouterOptions{Verbose: cfg.Verbose})

	if err := store.ReplaceConfigs(deps.Configs); err != nil {
		return nil, fmt.Errorf("seed alert configs: %w", err)
	}

	return &Monitor{
		cfg:        cfg,
		clock:      clk,
		prober:     prober.New(deps.Probes, deps.QuotaProviders, popts),
		store:      store,
		router:     router,
		dispatcher: dispatcher,
		escalation: alerting.NewEscalationScheduler(store, router, clk),
		history:    hist,
		queue:      make(chan *models.HealthAlert, cfg.QueueSize),
	}, nil
}

func (m *Monitor) logf(format string, args ...any) {
	if m.cfg.Verbose {
		log.Printf("[monitor] "+format, args...)
	}
}

// Run starts the periodic tasks and the routing worker and blocks until ctx
// is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	log.Printf("[monitor] starting: health every %s, quota every %s, %d probes, %d configs",
		m.cfg.HealthInterval, m.cfg.QuotaInterval, len(m.prober.Services()), len(m.store.Configs()))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.routeLoop(ctx) })
	g.Go(func() error { return every(ctx, m.clock, m.cfg.HealthInterval, true, m.healthTick) })
	g.Go(func() error { return every(ctx, m.clock, m.cfg.QuotaInterval, true, m.quotaTick) })
	g.Go(func() error { return every(ctx, m.clock, m.cfg.RetryInterval, false, m.retryTick) })
	g.Go(func() error { return every(ctx, m.clock, m.cfg.EscalationInterval, false, m.escalationTick) })
	g.Go(func() error { return every(ctx, m.clock, m.cfg.CleanupInterval, false, m.cleanupTick) })

	err := g.Wait()
	log.Printf("[monitor] stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// every runs fn on each tick of clk until ctx is done.
func every(ctx context.Context, clk clock.Clock, interval time.Duration, immediate bool, fn func(context.Context)) error {
	if immediate {
		fn(ctx)
	}
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			fn(ctx)
		}
	}
}

func (m *Monitor) routeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case alert := <-m.queue:
			m.router.Route(ctx, alert)
		}
	}
}

// Submit queues an alert for routing. It returns false and counts the
// alert as dropped when the queue is full.
func (m *Monitor) Submit(alert *models.HealthAlert) bool {
	select {
	case m.queue <- alert:
		return true
	default:
		metrics.AlertsDropped.Inc()
		log.Printf("[monitor] routing queue full, dropped %s alert for %s", alert.Type, alert.Service)
		return false
	}
}

// Route routes an alert synchronously.
func (m *Monitor) Route(ctx context.Context, alert *models.HealthAlert) []*models.AlertNotification {
	return m.router.Route(ctx, alert)
}

func (m *Monitor) healthTick(ctx context.Context) {
	cycle := m.prober.RunHealthCycle(ctx)
	m.handleHealthCycle(cycle)
}

func (m *Monitor) handleHealthCycle(cycle prober.HealthCycle) {
	if m.cfg.AutoResolve && cycle.Err == nil {
		for _, st := range cycle.Services {
			if st.Status == models.HealthStatusHealthy {
				m.autoResolve(st.Service, models.AlertTypeServiceDown, models.AlertTypePerformanceDegraded)
			}
		}
	}
	for _, alert := range cycle.Alerts {
		m.Submit(alert)
	}
}

func (m *Monitor) autoResolve(service string, types ...models.AlertType) {
	for _, t := range types {
		for _, id := range m.store.ResolveMatching(t, service) {
			m.history.Record(id, models.HistoryResolved, map[string]any{
				"service": service,
				"auto":    true,
			})
			m.logf("auto-resolved %s alert %s for %s", t, id, service)
		}
	}
}

func (m *Monitor) quotaTick(ctx context.Context) {
	for _, alert := range m.prober.RunQuotaCycle(ctx).Alerts {
		m.Submit(alert)
	}
}

func (m *Monitor) retryTick(ctx context.Context) {
	if n := m.dispatcher.RetryDue(ctx); n > 0 {
		m.logf("retried %d notification(s)", n)
	}
}

func (m *Monitor) escalationTick(ctx context.Context) {
	if n := m.escalation.Scan(ctx); n > 0 {
		m.logf("escalated %d alert(s)", n)
	}
}

func (m *Monitor) cleanupTick(ctx context.Context) {
	m.Cleanup()
}

// Cleanup drops history, resolved alerts and finished notifications older
// than the retention window, and expired cooldowns.
func (m *Monitor) Cleanup() {
	now := m.clock.Now()
	cutoff := now.Add(-m.cfg.Retention)

	purged := m.history.PurgeBefore(cutoff)
	metrics.HistoryPurged.Add(float64(purged))
	metrics.HistoryEntries.Set(float64(m.history.Len()))

	alerts := m.store.PruneResolved(cutoff)
	notifications := m.dispatcher.PruneTerminal(cutoff)
	cooldowns := m.store.Cooldowns().PruneExpired(now)

	if purged+alerts+notifications+cooldowns > 0 {
		log.Printf("[monitor] cleanup: %d history entries, %d alerts, %d notifications, %d cooldowns removed",
			purged, alerts, notifications, cooldowns)
	}
}

// GetCurrentHealth runs one health cycle and returns the system report.
// Alerts from the cycle are queued for routing.
func (m *Monitor) GetCurrentHealth(ctx context.Context) *models.SystemHealthReport {
	cycle := m.prober.RunHealthCycle(ctx)
	m.handleHealthCycle(cycle)

	services := cycle.Services
	overall := models.OverallStatus(services)
	if cycle.Err != nil {
		services = m.prober.Latest()
		overall = models.HealthStatusUnhealthy
	}

	return &models.SystemHealthReport{
		Timestamp:     cycle.Timestamp,
		OverallStatus: overall,
		Services:      nonNil(services),
		Quotas:        nonNil(m.prober.Quotas()),
		Metrics:       nonNil(m.prober.Metrics()),
		Alerts:        nonNil(m.store.ActiveAlerts()),
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// GetActiveAlerts returns unresolved alerts, oldest first.
func (m *Monitor) GetActiveAlerts() []*models.HealthAlert {
	return m.store.ActiveAlerts()
}

// ResolveAlert resolves an alert. Resolving twice is a no-op.
func (m *Monitor) ResolveAlert(id string) error {
	changed, err := m.store.ResolveAlert(id)
	if err != nil {
		return err
	}
	if changed {
		m.history.Record(id, models.HistoryResolved, map[string]any{"manual": true})
		m.logf("resolved alert %s", id)
	}
	return nil
}

// AddAlertConfig inserts or replaces a config.
func (m *Monitor) AddAlertConfig(cfg *alerting.AlertConfig) error {
	if err := m.store.AddConfig(cfg); err != nil {
		return err
	}
	log.Printf("[monitor] alert config %s saved", cfg.ID)
	return nil
}

// RemoveAlertConfig removes a config.
func (m *Monitor) RemoveAlertConfig(id string) error {
	if err := m.store.RemoveConfig(id); err != nil {
		return err
	}
	log.Printf("[monitor] alert config %s removed", id)
	return nil
}

// ReplaceAlertConfigs swaps the whole config set, e.g. after a file reload.
func (m *Monitor) ReplaceAlertConfigs(cfgs []*alerting.AlertConfig) error {
	if err := m.store.ReplaceConfigs(cfgs); err != nil {
		return err
	}
	log.Printf("[monitor] loaded %d alert config(s)", len(cfgs))
	return nil
}

// ListAlertConfigs returns copies of all configs sorted by id.
func (m *Monitor) ListAlertConfigs() []*alerting.AlertConfig {
	return m.store.Configs()
}

// GetAlertHistory returns the history of one alert, or all history for "".
func (m *Monitor) GetAlertHistory(alertID string) []models.HistoryEntry {
	return m.history.ForAlert(alertID)
}

// GetNotificationStatus returns every tracked notification, oldest first.
func (m *Monitor) GetNotificationStatus() []*models.AlertNotification {
	return m.dispatcher.Notifications()
}

// TestAlertConfig sends a test alert through every enabled channel of a
// config.
func (m *Monitor) TestAlertConfig(ctx context.Context, id string) TestResult {
	if err := m.router.TestConfig(ctx, id); err != nil {
		return TestResult{Success: false, Error: err.Error()}
	}
	return TestResult{Success: true}
}

// History exposes the history log for subscribers.
func (m *Monitor) History() *history.Log {
	return m.history
}

// DeliveryStats summarizes notification throttling state.
type DeliveryStats struct {
	RateLimit notifier.RateLimitStats `json:"rate_limit"`
	Cooldowns []alerting.Entry        `json:"cooldowns"`
}

// GetDeliveryStats returns the rate limiter counters and the alert
// cooldowns still in effect.
func (m *Monitor) GetDeliveryStats() DeliveryStats {
	return DeliveryStats{
		RateLimit: m.dispatcher.RateLimitStats(),
		Cooldowns: nonNil(m.store.Cooldowns().Active(m.clock.Now())),
	}
}

// GetServiceHistory returns the retained statuses of one service, oldest
// first. ok is false for a service that is not probed.
func (m *Monitor) GetServiceHistory(service string) (statuses []models.ServiceHealthStatus, ok bool) {
	for _, name := range m.prober.Services() {
		if name == service {
			return nonNil(m.prober.History(service)), true
		}
	}
	return nil, false
}

// Close releases probe and sender resources.
func (m *Monitor) Close() error {
	return errors.Join(m.prober.Close(), m.dispatcher.Close())
}
