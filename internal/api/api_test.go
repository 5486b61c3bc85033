package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/good-yellow-bee/blazewatch/internal/alerting"
	"github.com/good-yellow-bee/blazewatch/internal/api/auth"
	"github.com/good-yellow-bee/blazewatch/internal/api/configs"
	"github.com/good-yellow-bee/blazewatch/internal/api/stream"
	"github.com/good-yellow-bee/blazewatch/internal/models"
	"github.com/good-yellow-bee/blazewatch/internal/monitor"
	"github.com/good-yellow-bee/blazewatch/internal/notifier"
	"github.com/good-yellow-bee/blazewatch/internal/prober"
)

var testSecret = []byte("test-jwt-secret-32-bytes-long!!!")

type webhookRecorder struct {
	mu   sync.Mutex
	sent int
	fail bool
}

func (s *webhookRecorder) Type() models.ChannelType { return models.ChannelWebhook }

func (s *webhookRecorder) Send(ctx context.Context, ch models.AlertChannel, alert *models.HealthAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	if s.fail {
		return errors.New("receiver down")
	}
	return nil
}

func (s *webhookRecorder) Close() error { return nil }

func opsConfig() *alerting.AlertConfig {
	return &alerting.AlertConfig{
		ID:              "ops",
		Name:            "Ops",
		Enabled:         true,
		CooldownMinutes: 5,
		Channels: []models.AlertChannel{{
			Type:    models.ChannelWebhook,
			Name:    "ops-hook",
			Enabled: true,
			Webhook: &models.WebhookConfig{
				URL:         "https://hooks.example.com/ops",
				BearerToken: "hook-secret",
				Headers:     map[string]string{"X-Api-Key": "key-secret", "X-Team": "ops"},
			},
		}},
		Rules: []alerting.AlertRule{{
			ID:        "down",
			Condition: alerting.AlertCondition{Type: models.AlertTypeServiceDown, Operator: alerting.OpEq, Value: true},
		}},
	}
}

type testEnv struct {
	srv    *Server
	http   *httptest.Server
	mon    *monitor.Monitor
	sender *webhookRecorder
}

func newTestEnv(t *testing.T, secret []byte) *testEnv {
	t.Helper()

	sender := &webhookRecorder{}
	down := prober.ProbeFunc{Service: "vision", Fn: func(ctx context.Context) (time.Duration, error) {
		return 10 * time.Millisecond, errors.New("connection refused")
	}}
	mon, err := monitor.New(monitor.Config{}, monitor.Deps{
		Probes:   []prober.HealthProbe{down},
		Registry: notifier.NewRegistry(sender),
		Configs:  []*alerting.AlertConfig{opsConfig()},
	})
	if err != nil {
		t.Fatalf("monitor.New() error = %v", err)
	}

	srv, err := New(&Config{JWTSecret: secret}, mon)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.hub.Close()
		ts.Close()
	})
	return &testEnv{srv: srv, http: ts, mon: mon, sender: sender}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var rd *bytes.Reader
	if body != nil {
		var data []byte
		switch b := body.(type) {
		case string:
			data = []byte(b)
		default:
			var err error
			if data, err = json.Marshal(b); err != nil {
				t.Fatal(err)
			}
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.http.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.http.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func decodeData(t *testing.T, body []byte, v any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode envelope %s: %v", body, err)
	}
	if err := json.Unmarshal(envelope.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", envelope.Data, err)
	}
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode error envelope %s: %v", body, err)
	}
	return envelope.Error.Code
}

func token(t *testing.T, role auth.Role) string {
	t.Helper()
	tok, err := auth.NewJWTService(testSecret, time.Hour).GenerateToken("test-"+string(role), role)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func serviceDown(id string) *models.HealthAlert {
	return &models.HealthAlert{
		ID:        id,
		Type:      models.AlertTypeServiceDown,
		Severity:  models.SeverityCritical,
		Service:   "vision",
		Message:   "Service vision is down",
		Timestamp: time.Now(),
	}
}

func TestNewValidatesConfig(t *testing.T) {
	env := newTestEnv(t, nil)

	if _, err := New(nil, env.mon); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := New(&Config{}, nil); err == nil {
		t.Error("expected error for nil monitor")
	}
	if _, err := New(&Config{JWTSecret: []byte("short")}, env.mon); err == nil {
		t.Error("expected error for short JWT secret")
	}
	if _, err := New(&Config{HTTPTLSEnabled: true}, env.mon); err == nil {
		t.Error("expected error for TLS without cert files")
	}
}

func TestLivenessIsPublic(t *testing.T) {
	env := newTestEnv(t, testSecret)

	resp, body := env.do(t, "GET", "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var data map[string]string
	decodeData(t, body, &data)
	if data["status"] != "ok" {
		t.Errorf("data = %v", data)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID missing")
	}
}

func TestAuthorization(t *testing.T) {
	env := newTestEnv(t, testSecret)
	viewer := token(t, auth.RoleViewer)
	admin := token(t, auth.RoleAdmin)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"no token", "GET", "/api/v1/alerts", "", nil, http.StatusUnauthorized},
		{"bad token", "GET", "/api/v1/alerts", "garbage", nil, http.StatusUnauthorized},
		{"viewer reads alerts", "GET", "/api/v1/alerts", viewer, nil, http.StatusOK},
		{"viewer reads configs", "GET", "/api/v1/configs", viewer, nil, http.StatusOK},
		{"viewer cannot delete", "DELETE", "/api/v1/configs/ops", viewer, nil, http.StatusForbidden},
		{"viewer cannot resolve", "POST", "/api/v1/alerts/x/resolve", viewer, nil, http.StatusForbidden},
		{"admin resolves unknown", "POST", "/api/v1/alerts/x/resolve", admin, nil, http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := env.do(t, tc.method, tc.path, tc.token, tc.body)
			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d (body %s)", resp.StatusCode, tc.want, body)
			}
		})
	}
}

func TestOpenWithoutSecret(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _ := env.do(t, "DELETE", "/api/v1/configs/ops", "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204 without auth", resp.StatusCode)
	}
}

func TestSystemHealthReport(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, "GET", "/api/v1/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var report struct {
		OverallStatus string `json:"overall_status"`
		Services      []struct {
			Service string `json:"service"`
			Status  string `json:"status"`
			Error   string `json:"error"`
		} `json:"services"`
		Quotas []any `json:"quotas"`
	}
	decodeData(t, body, &report)

	if report.OverallStatus != "unhealthy" {
		t.Errorf("overall_status = %q, want unhealthy", report.OverallStatus)
	}
	if len(report.Services) != 1 || report.Services[0].Service != "vision" || report.Services[0].Error == "" {
		t.Errorf("services = %+v", report.Services)
	}
	if report.Quotas == nil {
		t.Error("quotas should be an empty list, not null")
	}

	var history []models.ServiceHealthStatus
	resp, body = env.do(t, "GET", "/api/v1/health/vision/history", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d, want 200", resp.StatusCode)
	}
	decodeData(t, body, &history)
	if len(history) != 1 || history[0].Status != models.HealthStatusUnhealthy {
		t.Errorf("history = %+v", history)
	}

	resp, body = env.do(t, "GET", "/api/v1/health/ocr/history", "", nil)
	if resp.StatusCode != http.StatusNotFound || errorCode(t, body) != "NOT_FOUND" {
		t.Errorf("unknown service: status = %d body = %s", resp.StatusCode, body)
	}
}

func TestAlertLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mon.Route(context.Background(), serviceDown("a-1"))

	resp, body := env.do(t, "GET", "/api/v1/alerts?service=vision&severity=high", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var active []models.HealthAlert
	decodeData(t, body, &active)
	if len(active) != 1 || active[0].ID != "a-1" {
		t.Fatalf("active = %+v", active)
	}

	var stats monitor.DeliveryStats
	_, body = env.do(t, "GET", "/api/v1/notifications/stats", "", nil)
	decodeData(t, body, &stats)
	if len(stats.Cooldowns) != 1 || stats.Cooldowns[0].Key != models.CooldownKey(models.AlertTypeServiceDown, "vision") {
		t.Errorf("cooldowns = %+v", stats.Cooldowns)
	}
	if r := stats.Cooldowns; len(r) == 1 && (r[0].Remaining <= 0 || r[0].Remaining > 5*time.Minute) {
		t.Errorf("remaining = %s, want within the 5m cooldown", r[0].Remaining)
	}

	_, body = env.do(t, "GET", "/api/v1/alerts?service=ocr", "", nil)
	decodeData(t, body, &active)
	if len(active) != 0 {
		t.Errorf("service filter returned %d alerts", len(active))
	}

	resp, body = env.do(t, "GET", "/api/v1/alerts?severity=urgent", "", nil)
	if resp.StatusCode != http.StatusBadRequest || errorCode(t, body) != "BAD_REQUEST" {
		t.Errorf("bad severity: status = %d body = %s", resp.StatusCode, body)
	}

	for i := 0; i < 2; i++ {
		resp, _ = env.do(t, "POST", "/api/v1/alerts/a-1/resolve", "", nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("resolve #%d status = %d, want 200", i+1, resp.StatusCode)
		}
	}

	_, body = env.do(t, "GET", "/api/v1/alerts", "", nil)
	decodeData(t, body, &active)
	if len(active) != 0 {
		t.Errorf("active after resolve = %d", len(active))
	}

	var entries []models.HistoryEntry
	_, body = env.do(t, "GET", "/api/v1/history?alert_id=a-1", "", nil)
	decodeData(t, body, &entries)
	if len(entries) != 2 || entries[0].Status != models.HistoryTriggered || entries[1].Status != models.HistoryResolved {
		t.Errorf("history = %+v", entries)
	}

	_, body = env.do(t, "GET", "/api/v1/history?status=resolved&limit=1", "", nil)
	decodeData(t, body, &entries)
	if len(entries) != 1 || entries[0].Status != models.HistoryResolved {
		t.Errorf("filtered history = %+v", entries)
	}

	resp, _ = env.do(t, "GET", "/api/v1/history?limit=0", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d, want 400", resp.StatusCode)
	}

	var notifications []models.AlertNotification
	_, body = env.do(t, "GET", "/api/v1/notifications?alert_id=a-1", "", nil)
	decodeData(t, body, &notifications)
	if len(notifications) != 1 || notifications[0].Status != models.NotificationSent || notifications[0].ChannelName != "ops-hook" {
		t.Errorf("notifications = %+v", notifications)
	}
}

func TestConfigEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	var list []alerting.AlertConfig
	_, body := env.do(t, "GET", "/api/v1/configs", "", nil)
	decodeData(t, body, &list)
	if len(list) != 1 {
		t.Fatalf("configs = %d, want 1", len(list))
	}
	hook := list[0].Channels[0].Webhook
	if hook.URL != configs.Redacted || hook.BearerToken != configs.Redacted || hook.Headers["X-Api-Key"] != configs.Redacted || hook.Headers["X-Team"] != "ops" {
		t.Errorf("webhook not redacted: %+v", hook)
	}
	if strings.Contains(string(body), "hook-secret") || strings.Contains(string(body), "key-secret") {
		t.Error("secret leaked in config listing")
	}

	perf := map[string]any{
		"id":   "perf",
		"name": "Performance",
		"channels": []map[string]any{{
			"type":    "webhook",
			"name":    "perf-hook",
			"webhook": map[string]any{"url": "https://hooks.example.com/perf"},
		}},
		"rules": []map[string]any{{
			"id":        "slow",
			"condition": map[string]any{"type": "performance_degraded", "operator": "gt", "value": 5000},
			"severity":  "high",
		}},
	}

	resp, body := env.do(t, "POST", "/api/v1/configs", "", perf)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", resp.StatusCode, body)
	}
	var created alerting.AlertConfig
	decodeData(t, body, &created)
	if !created.Enabled || !created.Channels[0].Enabled {
		t.Errorf("enabled should default to true: %+v", created)
	}

	resp, _ = env.do(t, "POST", "/api/v1/configs", "", perf)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("replace status = %d, want 200", resp.StatusCode)
	}

	resp, body = env.do(t, "POST", "/api/v1/configs", "", map[string]any{"id": "empty"})
	if resp.StatusCode != http.StatusBadRequest || errorCode(t, body) != "VALIDATION_FAILED" {
		t.Errorf("invalid config: status = %d body = %s", resp.StatusCode, body)
	}

	resp, body = env.do(t, "POST", "/api/v1/configs", "", `{"id": "x", "rules": [`)
	if resp.StatusCode != http.StatusBadRequest || errorCode(t, body) != "BAD_REQUEST" {
		t.Errorf("malformed body: status = %d body = %s", resp.StatusCode, body)
	}

	resp, body = env.do(t, "GET", "/api/v1/configs/perf", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("get status = %d", resp.StatusCode)
	}

	var result monitor.TestResult
	resp, body = env.do(t, "POST", "/api/v1/configs/perf/test", "", nil)
	decodeData(t, body, &result)
	if resp.StatusCode != http.StatusOK || !result.Success {
		t.Errorf("test: status = %d result = %+v", resp.StatusCode, result)
	}

	env.sender.mu.Lock()
	env.sender.fail = true
	env.sender.mu.Unlock()
	_, body = env.do(t, "POST", "/api/v1/configs/perf/test", "", nil)
	decodeData(t, body, &result)
	if result.Success || !strings.Contains(result.Error, "receiver down") {
		t.Errorf("failing test result = %+v", result)
	}

	resp, _ = env.do(t, "POST", "/api/v1/configs/missing/test", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("test missing status = %d, want 404", resp.StatusCode)
	}

	resp, _ = env.do(t, "DELETE", "/api/v1/configs/perf", "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", resp.StatusCode)
	}
	resp, body = env.do(t, "DELETE", "/api/v1/configs/perf", "", nil)
	if resp.StatusCode != http.StatusNotFound || errorCode(t, body) != "NOT_FOUND" {
		t.Errorf("second delete: status = %d body = %s", resp.StatusCode, body)
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, "GET", "/api/v1/nope", "", nil)
	if resp.StatusCode != http.StatusNotFound || errorCode(t, body) != "NOT_FOUND" {
		t.Errorf("status = %d body = %s", resp.StatusCode, body)
	}
}

func TestStreamRequiresTokenAndDeliversHistory(t *testing.T) {
	env := newTestEnv(t, testSecret)
	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/api/v1/stream"

	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dial without token: err = %v resp = %v", err, resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?access_token="+token(t, auth.RoleViewer), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.srv.hub.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	env.mon.Route(context.Background(), serviceDown("s-1"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg stream.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Event != stream.EventHistory || msg.Data.AlertID != "s-1" || msg.Data.Status != models.HistoryTriggered {
		t.Errorf("message = %+v", msg)
	}
}
