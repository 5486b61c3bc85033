package alerts

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/blazewatch/internal/alerting"
	"github.com/good-yellow-bee/blazewatch/internal/models"
	"github.com/good-yellow-bee/blazewatch/internal/monitor"
	"github.com/good-yellow-bee/blazewatch/internal/notifier"
)

type stubService struct {
	alerts        []*models.HealthAlert
	history       []models.HistoryEntry
	notifications []*models.AlertNotification
	resolved      []string
	stats         monitor.DeliveryStats
}

func (s *stubService) GetActiveAlerts() []*models.HealthAlert { return s.alerts }

func (s *stubService) ResolveAlert(id string) error {
	for _, a := range s.alerts {
		if a.ID == id {
			s.resolved = append(s.resolved, id)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", alerting.ErrAlertNotFound, id)
}

func (s *stubService) GetAlertHistory(alertID string) []models.HistoryEntry {
	if alertID == "" {
		return s.history
	}
	var out []models.HistoryEntry
	for _, e := range s.history {
		if e.AlertID == alertID {
			out = append(out, e)
		}
	}
	return out
}

func (s *stubService) GetNotificationStatus() []*models.AlertNotification { return s.notifications }

func (s *stubService) GetDeliveryStats() monitor.DeliveryStats { return s.stats }

func newRouter(svc Service) http.Handler {
	h := NewHandler(svc)
	r := chi.NewRouter()
	r.Get("/alerts", h.List)
	r.Post("/alerts/{id}/resolve", h.Resolve)
	r.Get("/history", h.History)
	r.Get("/notifications", h.Notifications)
	r.Get("/notifications/stats", h.DeliveryStats)
	return r
}

func get(t *testing.T, h http.Handler, method, path string) (int, json.RawMessage) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var body struct {
		Data json.RawMessage `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	return rec.Code, body.Data
}

func TestList_Filters(t *testing.T) {
	svc := &stubService{alerts: []*models.HealthAlert{
		{ID: "1", Type: models.AlertTypeServiceDown, Severity: models.SeverityCritical, Service: "ocr"},
		{ID: "2", Type: models.AlertTypeQuotaExceeded, Severity: models.SeverityMedium, Service: "ocr"},
		{ID: "3", Type: models.AlertTypeServiceDown, Severity: models.SeverityCritical, Service: "vision"},
	}}
	h := newRouter(svc)

	tests := []struct {
		query string
		want  []string
		code  int
	}{
		{"", []string{"1", "2", "3"}, http.StatusOK},
		{"?service=ocr", []string{"1", "2"}, http.StatusOK},
		{"?type=service_down", []string{"1", "3"}, http.StatusOK},
		{"?severity=high", []string{"1", "3"}, http.StatusOK},
		{"?service=ocr&severity=HIGH", []string{"1"}, http.StatusOK},
		{"?service=nobody", []string{}, http.StatusOK},
		{"?type=bogus", nil, http.StatusBadRequest},
		{"?severity=urgent", nil, http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			code, data := get(t, h, "GET", "/alerts"+tc.query)
			if code != tc.code {
				t.Fatalf("status = %d, want %d", code, tc.code)
			}
			if tc.code != http.StatusOK {
				return
			}
			var got []models.HealthAlert
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %d alerts, want %d", len(got), len(tc.want))
			}
			for i, a := range got {
				if a.ID != tc.want[i] {
					t.Errorf("alert[%d] = %s, want %s", i, a.ID, tc.want[i])
				}
			}
		})
	}
}

func TestResolve(t *testing.T) {
	svc := &stubService{alerts: []*models.HealthAlert{{ID: "a", Type: models.AlertTypeServiceDown}}}
	h := newRouter(svc)

	if code, _ := get(t, h, "POST", "/alerts/a/resolve"); code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
	if code, _ := get(t, h, "POST", "/alerts/zzz/resolve"); code != http.StatusNotFound {
		t.Errorf("unknown alert status = %d, want 404", code)
	}
	if len(svc.resolved) != 1 || svc.resolved[0] != "a" {
		t.Errorf("resolved = %v", svc.resolved)
	}
}

func TestHistory_StatusAndLimit(t *testing.T) {
	svc := &stubService{history: []models.HistoryEntry{
		{ID: "1", AlertID: "a", Status: models.HistoryTriggered},
		{ID: "2", AlertID: "b", Status: models.HistoryTriggered},
		{ID: "3", AlertID: "a", Status: models.HistoryEscalated},
		{ID: "4", AlertID: "a", Status: models.HistoryResolved},
	}}
	h := newRouter(svc)

	tests := []struct {
		query string
		want  []string
		code  int
	}{
		{"", []string{"1", "2", "3", "4"}, http.StatusOK},
		{"?alert_id=a", []string{"1", "3", "4"}, http.StatusOK},
		{"?status=triggered", []string{"1", "2"}, http.StatusOK},
		{"?limit=2", []string{"3", "4"}, http.StatusOK},
		{"?alert_id=a&status=escalated", []string{"3"}, http.StatusOK},
		{"?status=exploded", nil, http.StatusBadRequest},
		{"?limit=-1", nil, http.StatusBadRequest},
		{"?limit=abc", nil, http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			code, data := get(t, h, "GET", "/history"+tc.query)
			if code != tc.code {
				t.Fatalf("status = %d, want %d", code, tc.code)
			}
			if tc.code != http.StatusOK {
				return
			}
			var got []models.HistoryEntry
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tc.want))
			}
			for i, e := range got {
				if e.ID != tc.want[i] {
					t.Errorf("entry[%d] = %s, want %s", i, e.ID, tc.want[i])
				}
			}
		})
	}
}

func TestNotifications_Filters(t *testing.T) {
	svc := &stubService{notifications: []*models.AlertNotification{
		{ID: "n1", AlertID: "a", Status: models.NotificationSent},
		{ID: "n2", AlertID: "a", Status: models.NotificationRetrying},
		{ID: "n3", AlertID: "b", Status: models.NotificationFailed},
	}}
	h := newRouter(svc)

	code, data := get(t, h, "GET", "/notifications?alert_id=a&status=retrying")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var got []models.AlertNotification
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "n2" {
		t.Errorf("notifications = %+v", got)
	}

	if code, _ := get(t, h, "GET", "/notifications?status=lost"); code != http.StatusBadRequest {
		t.Errorf("bad status code = %d, want 400", code)
	}
}

func TestDeliveryStats(t *testing.T) {
	until := time.Date(2025, 1, 15, 10, 35, 0, 0, time.UTC)
	svc := &stubService{stats: monitor.DeliveryStats{
		RateLimit: notifier.RateLimitStats{Dropped: 3, Channels: 2, PerMinute: 10, Burst: 5, Enabled: true},
		Cooldowns: []alerting.Entry{{Key: "ocr-down|service_down", Until: until, Remaining: 4 * time.Minute}},
	}}

	code, data := get(t, newRouter(svc), "GET", "/notifications/stats")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	var got monitor.DeliveryStats
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.RateLimit.Dropped != 3 || !got.RateLimit.Enabled {
		t.Errorf("rate limit = %+v", got.RateLimit)
	}
	if len(got.Cooldowns) != 1 || got.Cooldowns[0].Remaining != 4*time.Minute || !got.Cooldowns[0].Until.Equal(until) {
		t.Errorf("cooldowns = %+v", got.Cooldowns)
	}
}
