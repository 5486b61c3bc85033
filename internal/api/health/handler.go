// Package health serves the liveness endpoint and the on-demand system
// health report.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/blazewatch/internal/api/respond"
	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// DefaultReportTimeout bounds one on-demand health cycle.
const DefaultReportTimeout = 45 * time.Second

// Service produces the system health report and per-service history.
type Service interface {
	GetCurrentHealth(ctx context.Context) *models.SystemHealthReport
	GetServiceHistory(service string) ([]models.ServiceHealthStatus, bool)
}

// Handler manages health endpoints.
type Handler struct {
	svc     Service
	timeout time.Duration
}

// NewHandler creates a new health handler. A non-positive timeout uses
// DefaultReportTimeout.
func NewHandler(svc Service, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = DefaultReportTimeout
	}
	return &Handler{svc: svc, timeout: timeout}
}

// LiveResponse is the liveness payload.
type LiveResponse struct {
	Status string `json:"status"`
}

// Live reports that the process is serving requests.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	respond.OK(w, LiveResponse{Status: "ok"})
}

// Report runs a health cycle and returns the system report.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	respond.OK(w, h.svc.GetCurrentHealth(ctx))
}

// ServiceHistory returns the retained statuses of one service, oldest first.
func (h *Handler) ServiceHistory(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	statuses, ok := h.svc.GetServiceHistory(service)
	if !ok {
		respond.JSONError(w, respond.NewNotFound("unknown service: "+service))
		return
	}
	respond.OK(w, statuses)
}
