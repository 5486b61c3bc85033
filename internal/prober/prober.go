// Package prober samples dependency health and quota usage on demand or on
// a schedule, keeps rolling per-service metrics and a bounded health
// history, and synthesizes health alerts from what it observes.
package prober

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/blazewatch/internal/clock"
	"github.com/good-yellow-bee/blazewatch/internal/metrics"
	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// Defaults.
const (
	DefaultProbeTimeout         = 30 * time.Second
	DefaultPerformanceThreshold = 5 * time.Second
	DefaultErrorRateThreshold   = 10.0
	DefaultErrorRateMinRequests = 5
	DefaultErrorRateWindow      = 100
	DefaultHistoryRetention     = 24 * time.Hour

	// MonitorService is the pseudo-service used for alerts about the
	// prober itself.
	MonitorService = "health-monitor"
)

// Options configures a Prober.
type Options struct {
	// ProbeTimeout bounds each probe and quota call.
	ProbeTimeout time.Duration
	// PerformanceThreshold marks a service degraded above this latency.
	PerformanceThreshold time.Duration
	// ErrorRateThreshold in percent raises high_error_rate above it.
	ErrorRateThreshold float64
	// ErrorRateMinRequests is the sample count needed before the error
	// rate is evaluated.
	ErrorRateMinRequests int64
	// ErrorRateWindow is how many of the most recent checks the request
	// counters and the error rate cover.
	ErrorRateWindow int
	// HistoryRetention bounds the per-service health history.
	HistoryRetention time.Duration
	Clock            clock.Clock
	Verbose          bool
}

func (o *Options) setDefaults() {
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = DefaultProbeTimeout
	}
	if o.PerformanceThreshold <= 0 {
		o.PerformanceThreshold = DefaultPerformanceThreshold
	}
	if o.ErrorRateThreshold <= 0 {
		o.ErrorRateThreshold = DefaultErrorRateThreshold
	}
	if o.ErrorRateMinRequests <= 0 {
		o.ErrorRateMinRequests = DefaultErrorRateMinRequests
	}
	if o.ErrorRateWindow <= 0 {
		o.ErrorRateWindow = DefaultErrorRateWindow
	}
	if o.HistoryRetention <= 0 {
		o.HistoryRetention = DefaultHistoryRetention
	}
	o.Clock = clock.OrReal(o.Clock)
}

// HealthCycle is the outcome of one health cycle.
type HealthCycle struct {
	Timestamp time.Time
	Services  []models.ServiceHealthStatus
	Alerts    []*models.HealthAlert
	// Err is set when the cycle itself failed.
	Err error
}

// QuotaCycle is the outcome of one quota cycle.
type QuotaCycle struct {
	Timestamp time.Time
	Quotas    []models.QuotaStatus
	Alerts    []*models.HealthAlert
}

// Prober runs health probes and quota providers.
type Prober struct {
	opts      Options
	probes    []HealthProbe
	providers []QuotaProvider

	mu      sync.RWMutex
	latest  map[string]models.ServiceHealthStatus
	history map[string][]models.ServiceHealthStatus
	metrics map[string]*models.ServiceMetrics
	quotas  map[string]models.QuotaStatus
	// outcomes holds the failure flag of each check in the error rate
	// window, oldest first.
	outcomes map[string][]bool
}

// New creates a prober.
func New(probes []HealthProbe, providers []QuotaProvider, opts Options) *Prober {
	opts.setDefaults()
	return &Prober{
		opts:      opts,
		probes:    probes,
		providers: providers,
		latest:    make(map[string]models.ServiceHealthStatus),
		history:   make(map[string][]models.ServiceHealthStatus),
		metrics:   make(map[string]*models.ServiceMetrics),
		quotas:    make(map[string]models.QuotaStatus),
		outcomes:  make(map[string][]bool),
	}
}

func (p *Prober) logf(format string, args ...any) {
	if p.opts.Verbose {
		log.Printf("[prober] "+format, args...)
	}
}

// RunHealthCycle probes every service concurrently, records the results
// and returns the statuses and synthesized alerts. A failed cycle yields a
// single critical service_down alert for MonitorService.
func (p *Prober) RunHealthCycle(ctx context.Context) (cycle HealthCycle) {
	now := p.opts.Clock.Now()
	cycle.Timestamp = now

	defer func() {
		if r := recover(); r != nil {
			cycle = p.failedCycle(now, fmt.Errorf("health cycle panic: %v", r))
		}
	}()

	statuses := make([]models.ServiceHealthStatus, len(p.probes))
	g, gctx := errgroup.WithContext(ctx)
	for i, probe := range p.probes {
		g.Go(func() error {
			statuses[i] = p.runProbe(gctx, probe)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return p.failedCycle(now, fmt.Errorf("health cycle interrupted: %w", err))
	}

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Service < statuses[j].Service })
	cycle.Services = statuses
	for _, st := range statuses {
		cycle.Alerts = append(cycle.Alerts, p.record(st)...)
	}
	p.pruneHistory(now)

	metrics.ProbeCyclesTotal.WithLabelValues("health", "ok").Inc()
	p.logf("health cycle: %d services, overall %s, %d alerts",
		len(statuses), models.OverallStatus(statuses), len(cycle.Alerts))
	return cycle
}

func (p *Prober) failedCycle(now time.Time, err error) HealthCycle {
	log.Printf("[prober] %v", err)
	metrics.ProbeCyclesTotal.WithLabelValues("health", "error").Inc()
	alert := p.newAlert(now, models.AlertTypeServiceDown, models.SeverityCritical, MonitorService,
		fmt.Sprintf("Health check cycle failed: %v", err),
		map[string]any{models.MetaError: err.Error()})
	return HealthCycle{Timestamp: now, Alerts: []*models.HealthAlert{alert}, Err: err}
}

// runProbe performs one isolated, time-bounded probe call.
func (p *Prober) runProbe(ctx context.Context, probe HealthProbe) (st models.ServiceHealthStatus) {
	name := probe.Name()
	st = models.ServiceHealthStatus{Service: name}

	ctx, cancel := context.WithTimeout(ctx, p.opts.ProbeTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			st.Status = models.HealthStatusUnhealthy
			st.Error = fmt.Sprintf("probe panic: %v", r)
		}
		st.CheckedAt = p.opts.Clock.Now()
	}()

	latency, err := probe.Check(ctx)
	st.Latency = latency
	metrics.ProbeDuration.WithLabelValues(name).Observe(latency.Seconds())

	threshold := p.opts.PerformanceThreshold
	if tp, ok := probe.(ThresholdProbe); ok && tp.PerformanceThreshold() > 0 {
		threshold = tp.PerformanceThreshold()
	}

	switch {
	case err != nil && errors.Is(err, ErrDegraded):
		st.Status = models.HealthStatusDegraded
		st.Error = err.Error()
	case err != nil:
		st.Status = models.HealthStatusUnhealthy
		st.Error = err.Error()
	case latency > threshold:
		st.Status = models.HealthStatusDegraded
		st.Metadata = map[string]string{"threshold": threshold.String()}
	default:
		st.Status = models.HealthStatusHealthy
	}
	return st
}

// record stores one status, updates the rolling metrics and returns the
// alerts it warrants.
func (p *Prober) record(st models.ServiceHealthStatus) []*models.HealthAlert {
	p.mu.Lock()
	p.latest[st.Service] = st
	p.history[st.Service] = append(p.history[st.Service], st)

	m, ok := p.metrics[st.Service]
	if !ok {
		m = &models.ServiceMetrics{Service: st.Service}
		p.metrics[st.Service] = m
	}
	if m.TotalRequests == 0 {
		m.AverageLatency = st.Latency
	} else {
		m.AverageLatency = (m.AverageLatency + st.Latency) / 2
	}
	window := append(p.outcomes[st.Service], st.Status == models.HealthStatusUnhealthy)
	if len(window) > p.opts.ErrorRateWindow {
		window = window[len(window)-p.opts.ErrorRateWindow:]
	}
	p.outcomes[st.Service] = window
	m.TotalRequests = int64(len(window))
	m.FailedRequests = 0
	for _, failed := range window {
		if failed {
			m.FailedRequests++
		}
	}
	m.LastUpdated = st.CheckedAt
	snapshot := *m
	p.mu.Unlock()

	metrics.ServiceStatus.WithLabelValues(st.Service).Set(metrics.StatusValue(string(st.Status)))

	var alerts []*models.HealthAlert
	switch st.Status {
	case models.HealthStatusUnhealthy:
		alerts = append(alerts, p.newAlert(st.CheckedAt, models.AlertTypeServiceDown, models.SeverityCritical, st.Service,
			fmt.Sprintf("Service %s is unhealthy: %s", st.Service, st.Error),
			map[string]any{
				models.MetaError:     st.Error,
				models.MetaLatencyMs: st.LatencyMs(),
			}))
	case models.HealthStatusDegraded:
		alerts = append(alerts, p.newAlert(st.CheckedAt, models.AlertTypePerformanceDegraded, models.SeverityMedium, st.Service,
			fmt.Sprintf("Service %s is degraded: latency %.0fms", st.Service, st.LatencyMs()),
			map[string]any{models.MetaLatencyMs: st.LatencyMs()}))
	}

	if snapshot.TotalRequests >= p.opts.ErrorRateMinRequests {
		if rate := snapshot.ErrorRate(); rate > p.opts.ErrorRateThreshold {
			alerts = append(alerts, p.newAlert(st.CheckedAt, models.AlertTypeHighErrorRate, models.SeverityHigh, st.Service,
				fmt.Sprintf("Service %s error rate %.1f%% exceeds %.1f%%", st.Service, rate, p.opts.ErrorRateThreshold),
				map[string]any{
					models.MetaErrorRate:      rate,
					models.MetaTotalRequests:  snapshot.TotalRequests,
					models.MetaFailedRequests: snapshot.FailedRequests,
				}))
		}
	}
	return alerts
}

func (p *Prober) pruneHistory(now time.Time) {
	cutoff := now.Add(-p.opts.HistoryRetention)
	p.mu.Lock()
	defer p.mu.Unlock()
	for svc, series := range p.history {
		i := 0
		for i < len(series) && series[i].CheckedAt.Before(cutoff) {
			i++
		}
		if i > 0 {
			p.history[svc] = append([]models.ServiceHealthStatus(nil), series[i:]...)
		}
	}
}

// RunQuotaCycle queries every quota provider concurrently. Provider errors
// are logged and counted and never abort the cycle.
func (p *Prober) RunQuotaCycle(ctx context.Context) QuotaCycle {
	now := p.opts.Clock.Now()
	results := make([][]models.QuotaStatus, len(p.providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, provider := range p.providers {
		g.Go(func() error {
			results[i] = p.runProvider(gctx, provider)
			return nil
		})
	}
	_ = g.Wait()

	cycle := QuotaCycle{Timestamp: now}
	for _, qs := range results {
		cycle.Quotas = append(cycle.Quotas, qs...)
	}
	sort.Slice(cycle.Quotas, func(i, j int) bool {
		if cycle.Quotas[i].Service != cycle.Quotas[j].Service {
			return cycle.Quotas[i].Service < cycle.Quotas[j].Service
		}
		return cycle.Quotas[i].QuotaType < cycle.Quotas[j].QuotaType
	})

	p.mu.Lock()
	for _, q := range cycle.Quotas {
		p.quotas[q.Service+"|"+q.QuotaType] = q
	}
	p.mu.Unlock()

	for _, q := range cycle.Quotas {
		metrics.QuotaUsage.WithLabelValues(q.Service, q.QuotaType).Set(q.UsagePercentage())
		if alert := p.quotaAlert(now, q); alert != nil {
			cycle.Alerts = append(cycle.Alerts, alert)
		}
	}
	metrics.ProbeCyclesTotal.WithLabelValues("quota", "ok").Inc()
	p.logf("quota cycle: %d quotas, %d alerts", len(cycle.Quotas), len(cycle.Alerts))
	return cycle
}

func (p *Prober) runProvider(ctx context.Context, provider QuotaProvider) (out []models.QuotaStatus) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.ProbeTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[prober] quota provider %s panic: %v", provider.Service(), r)
			metrics.QuotaErrors.WithLabelValues(provider.Service()).Inc()
			out = nil
		}
	}()

	qs, err := provider.Quotas(ctx)
	if err != nil {
		log.Printf("[prober] quota provider %s: %v", provider.Service(), err)
		metrics.QuotaErrors.WithLabelValues(provider.Service()).Inc()
		return nil
	}
	return qs
}

// quotaAlert returns the alert for a quota at or above the warning level.
func (p *Prober) quotaAlert(now time.Time, q models.QuotaStatus) *models.HealthAlert {
	var severity models.Severity
	switch q.Status() {
	case models.QuotaCritical:
		severity = models.SeverityCritical
	case models.QuotaWarning:
		severity = models.SeverityMedium
	default:
		return nil
	}
	pct := q.UsagePercentage()
	return p.newAlert(now, models.AlertTypeQuotaExceeded, severity, q.Service,
		fmt.Sprintf("%s quota %s at %.1f%% (%g/%g)", q.Service, q.QuotaType, pct, q.Used, q.Limit),
		map[string]any{
			models.MetaUsagePercentage: pct,
			models.MetaQuotaType:       q.QuotaType,
			models.MetaUsed:            q.Used,
			models.MetaLimit:           q.Limit,
		})
}

func (p *Prober) newAlert(now time.Time, typ models.AlertType, sev models.Severity, service, msg string, meta map[string]any) *models.HealthAlert {
	metrics.AlertsEmitted.WithLabelValues(string(typ), string(sev)).Inc()
	return &models.HealthAlert{
		ID:        uuid.New().String(),
		Type:      typ,
		Severity:  sev,
		Service:   service,
		Message:   msg,
		Timestamp: now,
		Metadata:  meta,
	}
}

// Services returns the names of the probed services.
func (p *Prober) Services() []string {
	names := make([]string, len(p.probes))
	for i, probe := range p.probes {
		names[i] = probe.Name()
	}
	return names
}

// Latest returns the most recent status of every probed service.
func (p *Prober) Latest() []models.ServiceHealthStatus {
	p.mu.RLock()
	out := make([]models.ServiceHealthStatus, 0, len(p.latest))
	for _, st := range p.latest {
		out = append(out, st)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

// History returns the retained health history of a service, oldest first.
func (p *Prober) History(service string) []models.ServiceHealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]models.ServiceHealthStatus(nil), p.history[service]...)
}

// Metrics returns the rolling metrics of every service.
func (p *Prober) Metrics() []models.ServiceMetrics {
	p.mu.RLock()
	out := make([]models.ServiceMetrics, 0, len(p.metrics))
	for _, m := range p.metrics {
		out = append(out, *m)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

// Quotas returns the last observed value of every quota.
func (p *Prober) Quotas() []models.QuotaStatus {
	p.mu.RLock()
	out := make([]models.QuotaStatus, 0, len(p.quotas))
	for _, q := range p.quotas {
		out = append(out, q)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Service != out[j].Service {
			return out[i].Service < out[j].Service
		}
		return out[i].QuotaType < out[j].QuotaType
	})
	return out
}

// Close releases probe resources.
func (p *Prober) Close() error {
	var errs []error
	for _, probe := range p.probes {
		if c, ok := probe.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", probe.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
