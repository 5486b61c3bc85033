package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/good-yellow-bee/blazewatch/internal/api/alerts"
	"github.com/good-yellow-bee/blazewatch/internal/api/auth"
	"github.com/good-yellow-bee/blazewatch/internal/api/configs"
	"github.com/good-yellow-bee/blazewatch/internal/api/health"
	"github.com/good-yellow-bee/blazewatch/internal/api/middleware"
	"github.com/good-yellow-bee/blazewatch/internal/api/respond"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestLogger(s.config.Verbose))
	r.Use(middleware.PrometheusMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	if len(s.config.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond.JSONError(w, respond.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respond.JSONError(w, &respond.Error{
			Code:    respond.ErrCodeBadRequest,
			Message: "method not allowed",
			Status:  http.StatusMethodNotAllowed,
		})
	})

	healthHandler := health.NewHandler(s.monitor, s.config.ReportTimeout)
	alertHandler := alerts.NewHandler(s.monitor)
	configHandler := configs.NewHandler(s.monitor)

	authEnabled := len(s.config.JWTSecret) > 0
	var jwtService *auth.JWTService
	if authEnabled {
		jwtService = auth.NewJWTService(s.config.JWTSecret, s.config.AccessTokenTTL)
	}

	// Mutations need the admin role when auth is on.
	requireAdmin := func(next http.Handler) http.Handler { return next }
	if authEnabled {
		requireAdmin = middleware.RequireAdmin
	}

	// Liveness (public, no rate limit)
	r.Get("/health", healthHandler.Live)

	r.Route("/api/v1", func(r chi.Router) {
		if authEnabled {
			r.Use(middleware.JWTAuth(jwtService))
		}
		if s.config.RateLimitPerMinute > 0 {
			r.Use(middleware.RateLimitByCaller(middleware.NewRateLimiter(s.config.RateLimitPerMinute)))
		}

		r.Get("/health", healthHandler.Report)
		r.Get("/health/{service}/history", healthHandler.ServiceHistory)

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", alertHandler.List)
			r.With(requireAdmin).Post("/{id}/resolve", alertHandler.Resolve)
		})

		r.Get("/history", alertHandler.History)
		r.Get("/notifications", alertHandler.Notifications)
		r.Get("/notifications/stats", alertHandler.DeliveryStats)

		r.Route("/configs", func(r chi.Router) {
			r.Get("/", configHandler.List)
			r.Get("/{id}", configHandler.Get)
			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				r.Post("/", configHandler.Create)
				r.Delete("/{id}", configHandler.Delete)
				r.Post("/{id}/test", configHandler.Test)
			})
		})

		r.Get("/stream", s.hub.ServeHTTP)
	})

	return r
}
