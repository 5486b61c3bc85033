package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/good-yellow-bee/blazewatch/internal/api/auth"
)

func setAuthContext(r *http.Request, subject string, role auth.Role) *http.Request {
	ctx := r.Context()
	ctx = context.WithValue(ctx, subjectKey, subject)
	ctx = context.WithValue(ctx, roleKey, role)
	return r.WithContext(ctx)
}

func TestRequireRole(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name     string
		role     auth.Role
		allowed  []auth.Role
		wantCode int
	}{
		{"exact match", auth.RoleAdmin, []auth.Role{auth.RoleAdmin}, http.StatusOK},
		{"viewer allowed", auth.RoleViewer, []auth.Role{auth.RoleViewer}, http.StatusOK},
		{"admin bypass", auth.RoleAdmin, []auth.Role{auth.RoleViewer}, http.StatusOK},
		{"viewer not admin", auth.RoleViewer, []auth.Role{auth.RoleAdmin}, http.StatusForbidden},
		{"empty role", "", []auth.Role{auth.RoleViewer}, http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := RequireRole(tc.allowed...)(handler)

			req := httptest.NewRequest("GET", "/test", nil)
			if tc.role != "" {
				req = setAuthContext(req, "caller", tc.role)
			}
			rec := httptest.NewRecorder()

			wrapped.ServeHTTP(rec, req)

			if rec.Code != tc.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantCode)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		role     auth.Role
		wantCode int
	}{
		{auth.RoleAdmin, http.StatusOK},
		{auth.RoleViewer, http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(string(tc.role), func(t *testing.T) {
			req := httptest.NewRequest("POST", "/test", nil)
			req = setAuthContext(req, "caller", tc.role)
			rec := httptest.NewRecorder()

			RequireAdmin(handler).ServeHTTP(rec, req)

			if rec.Code != tc.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantCode)
			}
		})
	}
}
