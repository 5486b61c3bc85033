package middleware

import (
	"net/http"

	"github.com/good-yellow-bee/blazewatch/internal/api/auth"
	"github.com/good-yellow-bee/blazewatch/internal/api/respond"
)

// RequireRole returns middleware that requires one of the given roles.
// Admin always has access.
func RequireRole(allowedRoles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userRole := GetRole(r.Context())
			if userRole == "" {
				respond.JSONError(w, respond.ErrForbidden)
				return
			}

			if userRole == auth.RoleAdmin {
				next.ServeHTTP(w, r)
				return
			}
			for _, role := range allowedRoles {
				if userRole == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			respond.JSONError(w, respond.ErrForbidden)
		})
	}
}

// RequireAdmin is shorthand for RequireRole(RoleAdmin).
func RequireAdmin(next http.Handler) http.Handler {
	return RequireRole(auth.RoleAdmin)(next)
}
