// Package alerts serves active alerts, alert history and notification
// status.
package alerts

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/blazewatch/internal/alerting"
	"github.com/good-yellow-bee/blazewatch/internal/api/respond"
	"github.com/good-yellow-bee/blazewatch/internal/models"
	"github.com/good-yellow-bee/blazewatch/internal/monitor"
)

// MaxHistoryLimit caps the limit query parameter of the history endpoint.
const MaxHistoryLimit = 1000

// Service is the alert state the handler reads and mutates.
type Service interface {
	GetActiveAlerts() []*models.HealthAlert
	ResolveAlert(id string) error
	GetAlertHistory(alertID string) []models.HistoryEntry
	GetNotificationStatus() []*models.AlertNotification
	GetDeliveryStats() monitor.DeliveryStats
}

// Handler handles alert endpoints.
type Handler struct {
	svc Service
}

// NewHandler creates an alert handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// ResolveResponse is returned by Resolve.
type ResolveResponse struct {
	ID       string `json:"id"`
	Resolved bool   `json:"resolved"`
}

// List returns unresolved alerts, optionally filtered by service, type and
// minimum severity.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	service := q.Get("service")
	alertType := models.AlertType(q.Get("type"))
	if alertType != "" && !alertType.Valid() {
		respond.JSONError(w, respond.NewBadRequest("invalid alert type: "+string(alertType)))
		return
	}
	var minSeverity models.Severity
	if s := q.Get("severity"); s != "" {
		sev, err := models.ParseSeverity(s)
		if err != nil {
			respond.JSONError(w, respond.NewBadRequest(err.Error()))
			return
		}
		minSeverity = sev
	}

	out := make([]*models.HealthAlert, 0)
	for _, a := range h.svc.GetActiveAlerts() {
		if service != "" && a.Service != service {
			continue
		}
		if alertType != "" && a.Type != alertType {
			continue
		}
		if minSeverity != "" && !a.Severity.AtLeast(minSeverity) {
			continue
		}
		out = append(out, a)
	}
	respond.OK(w, out)
}

// Resolve marks an alert resolved. Resolving twice succeeds.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.ResolveAlert(id); err != nil {
		if errors.Is(err, alerting.ErrAlertNotFound) {
			respond.JSONError(w, respond.NewNotFound("alert not found: "+id))
			return
		}
		respond.JSONError(w, respond.ErrInternalServer)
		return
	}
	respond.OK(w, ResolveResponse{ID: id, Resolved: true})
}

// History returns history entries oldest first. alert_id narrows to one
// alert, status to one lifecycle event kind and limit keeps the newest n.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := models.HistoryStatus(q.Get("status"))
	switch status {
	case "", models.HistoryTriggered, models.HistoryResolved, models.HistoryEscalated, models.HistorySuppressed:
	default:
		respond.JSONError(w, respond.NewBadRequest("invalid history status: "+string(status)))
		return
	}

	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		respond.JSONError(w, respond.NewBadRequest(err.Error()))
		return
	}

	entries := h.svc.GetAlertHistory(q.Get("alert_id"))
	out := make([]models.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if status != "" && e.Status != status {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	respond.OK(w, out)
}

// Notifications returns tracked notifications oldest first, optionally
// filtered by alert_id and status.
func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	alertID := q.Get("alert_id")

	status := models.NotificationStatus(q.Get("status"))
	switch status {
	case "", models.NotificationPending, models.NotificationSent, models.NotificationFailed, models.NotificationRetrying:
	default:
		respond.JSONError(w, respond.NewBadRequest("invalid notification status: "+string(status)))
		return
	}

	out := make([]*models.AlertNotification, 0)
	for _, n := range h.svc.GetNotificationStatus() {
		if alertID != "" && n.AlertID != alertID {
			continue
		}
		if status != "" && n.Status != status {
			continue
		}
		out = append(out, n)
	}
	respond.OK(w, out)
}

// DeliveryStats returns rate limiter counters and active alert cooldowns.
func (h *Handler) DeliveryStats(w http.ResponseWriter, r *http.Request) {
	respond.OK(w, h.svc.GetDeliveryStats())
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > MaxHistoryLimit {
		n = MaxHistoryLimit
	}
	return n, nil
}
