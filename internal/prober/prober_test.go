package prober

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/clock"
	"github.com/good-yellow-bee/blazewatch/internal/models"
)

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedProbe(name string, latency time.Duration, err error) HealthProbe {
	return ProbeFunc{Service: name, Fn: func(ctx context.Context) (time.Duration, error) {
		return latency, err
	}}
}

func alertsOfType(alerts []*models.HealthAlert, typ models.AlertType) []*models.HealthAlert {
	var out []*models.HealthAlert
	for _, a := range alerts {
		if a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

func TestHealthCycleStatuses(t *testing.T) {
	tests := []struct {
		name         string
		latency      time.Duration
		err          error
		wantStatus   models.HealthStatus
		wantAlert    models.AlertType
		wantSeverity models.Severity
	}{
		{"healthy", 120 * time.Millisecond, nil, models.HealthStatusHealthy, "", ""},
		{"at threshold", 5000 * time.Millisecond, nil, models.HealthStatusHealthy, "", ""},
		// latency 6000ms against the 5000ms threshold
		{"slow", 6000 * time.Millisecond, nil, models.HealthStatusDegraded, models.AlertTypePerformanceDegraded, models.SeverityMedium},
		{"error", 10 * time.Millisecond, errors.New("connection refused"), models.HealthStatusUnhealthy, models.AlertTypeServiceDown, models.SeverityCritical},
		{"degraded error", 10 * time.Millisecond, ErrDegraded, models.HealthStatusDegraded, models.AlertTypePerformanceDegraded, models.SeverityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New([]HealthProbe{fixedProbe("ocr", tt.latency, tt.err)}, nil, Options{Clock: clock.NewFake(testEpoch)})
			cycle := p.RunHealthCycle(context.Background())

			if cycle.Err != nil {
				t.Fatalf("cycle error = %v", cycle.Err)
			}
			if len(cycle.Services) != 1 || cycle.Services[0].Status != tt.wantStatus {
				t.Fatalf("services = %+v, want status %s", cycle.Services, tt.wantStatus)
			}
			if !cycle.Services[0].CheckedAt.Equal(testEpoch) {
				t.Errorf("checkedAt = %v", cycle.Services[0].CheckedAt)
			}

			if tt.wantAlert == "" {
				if len(cycle.Alerts) != 0 {
					t.Errorf("alerts = %d, want none", len(cycle.Alerts))
				}
				return
			}
			if len(cycle.Alerts) != 1 {
				t.Fatalf("alerts = %d, want 1", len(cycle.Alerts))
			}
			a := cycle.Alerts[0]
			if a.Type != tt.wantAlert || a.Severity != tt.wantSeverity || a.Service != "ocr" {
				t.Errorf("alert = %s/%s/%s, want %s/%s/ocr", a.Type, a.Severity, a.Service, tt.wantAlert, tt.wantSeverity)
			}
			if a.ID == "" || !a.Timestamp.Equal(testEpoch) || a.Resolved {
				t.Errorf("alert identity = %+v", a)
			}
		})
	}
}

func TestPerformanceDegradedCarriesLatency(t *testing.T) {
	p := New([]HealthProbe{fixedProbe("ocr", 6000*time.Millisecond, nil)}, nil, Options{
		PerformanceThreshold: 5000 * time.Millisecond,
		Clock:                clock.NewFake(testEpoch),
	})
	cycle := p.RunHealthCycle(context.Background())

	a := cycle.Alerts[0]
	if got := a.Metadata[models.MetaLatencyMs]; got != 6000.0 {
		t.Errorf("latencyMs = %v, want 6000", got)
	}
	if models.OverallStatus(cycle.Services) != models.HealthStatusDegraded {
		t.Error("overall status should be degraded")
	}
}

type thresholdProbe struct {
	HealthProbe
	threshold time.Duration
}

func (p thresholdProbe) PerformanceThreshold() time.Duration { return p.threshold }

func TestProbeThresholdOverride(t *testing.T) {
	probe := thresholdProbe{fixedProbe("gemini", 8*time.Second, nil), 10 * time.Second}
	p := New([]HealthProbe{probe}, nil, Options{Clock: clock.NewFake(testEpoch)})

	cycle := p.RunHealthCycle(context.Background())
	if cycle.Services[0].Status != models.HealthStatusHealthy {
		t.Errorf("status = %s, want healthy under the probe's own threshold", cycle.Services[0].Status)
	}
}

func TestHealthCycleIsolatesProbes(t *testing.T) {
	probes := []HealthProbe{
		fixedProbe("a-ok", time.Millisecond, nil),
		ProbeFunc{Service: "b-panic", Fn: func(ctx context.Context) (time.Duration, error) {
			panic("nil map")
		}},
		ProbeFunc{Service: "c-hang", Fn: func(ctx context.Context) (time.Duration, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		}},
		fixedProbe("d-ok", time.Millisecond, nil),
	}
	p := New(probes, nil, Options{ProbeTimeout: 50 * time.Millisecond, Clock: clock.NewFake(testEpoch)})

	start := time.Now()
	cycle := p.RunHealthCycle(context.Background())
	if time.Since(start) > 5*time.Second {
		t.Fatal("hanging probe was not bounded by the timeout")
	}

	want := map[string]models.HealthStatus{
		"a-ok":    models.HealthStatusHealthy,
		"b-panic": models.HealthStatusUnhealthy,
		"c-hang":  models.HealthStatusUnhealthy,
		"d-ok":    models.HealthStatusHealthy,
	}
	if len(cycle.Services) != len(want) {
		t.Fatalf("services = %d, want %d", len(cycle.Services), len(want))
	}
	for _, st := range cycle.Services {
		if st.Status != want[st.Service] {
			t.Errorf("%s status = %s, want %s", st.Service, st.Status, want[st.Service])
		}
	}
	if !strings.Contains(cycle.Services[1].Error, "probe panic") {
		t.Errorf("panic error = %q", cycle.Services[1].Error)
	}
	if got := len(alertsOfType(cycle.Alerts, models.AlertTypeServiceDown)); got != 2 {
		t.Errorf("service_down alerts = %d, want 2", got)
	}
	if models.OverallStatus(cycle.Services) != models.HealthStatusUnhealthy {
		t.Error("overall status should be unhealthy")
	}
}

func TestHealthCycleCancelledEmitsMonitorAlert(t *testing.T) {
	p := New([]HealthProbe{fixedProbe("ocr", time.Millisecond, nil)}, nil, Options{Clock: clock.NewFake(testEpoch)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cycle := p.RunHealthCycle(ctx)
	if cycle.Err == nil {
		t.Fatal("cycle should fail on a cancelled context")
	}
	if len(cycle.Alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(cycle.Alerts))
	}
	a := cycle.Alerts[0]
	if a.Service != MonitorService || a.Type != models.AlertTypeServiceDown || a.Severity != models.SeverityCritical {
		t.Errorf("alert = %+v", a)
	}
	if _, ok := a.Metadata[models.MetaError]; !ok {
		t.Error("monitor alert should carry the error")
	}
	if len(p.Latest()) != 0 {
		t.Error("an interrupted cycle must not record statuses")
	}
}

func TestRollingMetrics(t *testing.T) {
	latencies := []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 600 * time.Millisecond}
	i := 0
	probe := ProbeFunc{Service: "vision", Fn: func(ctx context.Context) (time.Duration, error) {
		l := latencies[i]
		i++
		if i == 2 {
			return l, errors.New("503")
		}
		return l, nil
	}}
	p := New([]HealthProbe{probe}, nil, Options{Clock: clock.NewFake(testEpoch)})

	for range latencies {
		p.RunHealthCycle(context.Background())
	}

	m := p.Metrics()
	if len(m) != 1 {
		t.Fatalf("metrics = %d, want 1", len(m))
	}
	// 100 -> (100+300)/2 = 200 -> (200+600)/2 = 400
	if m[0].AverageLatency != 400*time.Millisecond {
		t.Errorf("average latency = %s, want 400ms", m[0].AverageLatency)
	}
	if m[0].TotalRequests != 3 || m[0].FailedRequests != 1 {
		t.Errorf("requests = %d/%d, want 3/1", m[0].FailedRequests, m[0].TotalRequests)
	}
}

func TestHighErrorRateNeedsMinimumSamples(t *testing.T) {
	calls := 0
	probe := ProbeFunc{Service: "docai", Fn: func(ctx context.Context) (time.Duration, error) {
		calls++
		if calls == 1 {
			return time.Millisecond, errors.New("timeout")
		}
		return time.Millisecond, nil
	}}
	p := New([]HealthProbe{probe}, nil, Options{Clock: clock.NewFake(testEpoch)})

	for n := 1; n <= 5; n++ {
		cycle := p.RunHealthCycle(context.Background())
		got := alertsOfType(cycle.Alerts, models.AlertTypeHighErrorRate)
		if n < 5 {
			if len(got) != 0 {
				t.Fatalf("cycle %d: high_error_rate before minimum samples", n)
			}
			continue
		}
		// 1 failure in 5 requests = 20% > 10%
		if len(got) != 1 {
			t.Fatalf("cycle %d: high_error_rate alerts = %d, want 1", n, len(got))
		}
		if got[0].Severity != models.SeverityHigh || got[0].Metadata[models.MetaErrorRate] != 20.0 {
			t.Errorf("alert = %+v", got[0])
		}
	}
}

func TestErrorRateRecoversOutsideWindow(t *testing.T) {
	var failing bool
	probe := ProbeFunc{Service: "docai", Fn: func(ctx context.Context) (time.Duration, error) {
		if failing {
			return time.Millisecond, errors.New("timeout")
		}
		return time.Millisecond, nil
	}}
	p := New([]HealthProbe{probe}, nil, Options{
		Clock:                clock.NewFake(testEpoch),
		ErrorRateMinRequests: 5,
		ErrorRateWindow:      10,
	})
	ctx := context.Background()

	failing = true
	for range 5 {
		p.RunHealthCycle(ctx)
	}
	failing = false
	for range 9 {
		p.RunHealthCycle(ctx)
	}
	// Window holds 1 failure and 9 successes: exactly 10%, not above.
	m := p.Metrics()[0]
	if m.TotalRequests != 10 || m.FailedRequests != 1 {
		t.Fatalf("requests = %d/%d, want 1/10", m.FailedRequests, m.TotalRequests)
	}

	cycle := p.RunHealthCycle(ctx)
	if got := alertsOfType(cycle.Alerts, models.AlertTypeHighErrorRate); len(got) != 0 {
		t.Errorf("high_error_rate still raised after the failures left the window: %+v", got[0])
	}
	if m := p.Metrics()[0]; m.FailedRequests != 0 || m.ErrorRate() != 0 {
		t.Errorf("metrics = %+v, want a clean window", m)
	}
}

func TestHistoryRetention(t *testing.T) {
	clk := clock.NewFake(testEpoch)
	p := New([]HealthProbe{fixedProbe("ocr", time.Millisecond, nil)}, nil, Options{
		HistoryRetention: time.Hour,
		Clock:            clk,
	})

	p.RunHealthCycle(context.Background())
	clk.Advance(30 * time.Minute)
	p.RunHealthCycle(context.Background())
	if got := len(p.History("ocr")); got != 2 {
		t.Fatalf("history = %d, want 2", got)
	}

	clk.Advance(45 * time.Minute)
	p.RunHealthCycle(context.Background())
	h := p.History("ocr")
	if len(h) != 2 {
		t.Fatalf("history = %d, want 2 after retention", len(h))
	}
	if !h[0].CheckedAt.Equal(testEpoch.Add(30 * time.Minute)) {
		t.Errorf("oldest entry = %v", h[0].CheckedAt)
	}
}

type failingProvider struct{}

func (failingProvider) Service() string { return "broken" }

func (failingProvider) Quotas(ctx context.Context) ([]models.QuotaStatus, error) {
	return nil, errors.New("quota API down")
}

func TestQuotaCycle(t *testing.T) {
	providers := []QuotaProvider{
		NewStaticQuotaProvider("gemini",
			models.QuotaStatus{QuotaType: "requests", Used: 950, Limit: 1000},
			models.QuotaStatus{QuotaType: "tokens", Used: 850, Limit: 1000},
		),
		NewStaticQuotaProvider("vision", models.QuotaStatus{QuotaType: "images", Used: 10, Limit: 1000}),
		failingProvider{},
	}
	p := New(nil, providers, Options{Clock: clock.NewFake(testEpoch)})

	cycle := p.RunQuotaCycle(context.Background())
	if len(cycle.Quotas) != 3 {
		t.Fatalf("quotas = %d, want 3", len(cycle.Quotas))
	}
	if len(cycle.Alerts) != 2 {
		t.Fatalf("alerts = %d, want 2", len(cycle.Alerts))
	}

	// used=950, limit=1000 is exactly 95%: critical
	crit := cycle.Alerts[0]
	if crit.Type != models.AlertTypeQuotaExceeded || crit.Severity != models.SeverityCritical || crit.Service != "gemini" {
		t.Errorf("critical alert = %+v", crit)
	}
	if crit.Metadata[models.MetaUsagePercentage] != 95.0 || crit.Metadata[models.MetaQuotaType] != "requests" {
		t.Errorf("critical metadata = %v", crit.Metadata)
	}
	if cycle.Quotas[0].Status() != models.QuotaCritical {
		t.Errorf("quota status = %s, want critical", cycle.Quotas[0].Status())
	}

	if warn := cycle.Alerts[1]; warn.Severity != models.SeverityMedium {
		t.Errorf("warning alert severity = %s, want medium", warn.Severity)
	}

	if got := len(p.Quotas()); got != 3 {
		t.Errorf("Quotas() = %d, want 3", got)
	}
}
