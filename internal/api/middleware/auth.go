package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/good-yellow-bee/blazewatch/internal/api/auth"
	"github.com/good-yellow-bee/blazewatch/internal/api/respond"
)

// Context keys for storing caller information.
type contextKey string

const (
	subjectKey contextKey = "subject"
	roleKey    contextKey = "role"
	claimsKey  contextKey = "claims"
)

// tokenQueryParam carries the token for websocket clients that cannot set
// request headers.
const tokenQueryParam = "access_token"

// bearerToken extracts the token from the Authorization header, falling back
// to the access_token query parameter.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}
	return r.URL.Query().Get(tokenQueryParam)
}

// JWTAuth returns middleware that validates JWT tokens.
func JWTAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				respond.JSONError(w, respond.ErrInvalidToken)
				return
			}

			claims, err := jwtService.ValidateToken(token)
			if err != nil {
				log.Printf("[api] JWT auth failed for %s: %v", r.RemoteAddr, err)
				respond.JSONError(w, respond.ErrInvalidToken)
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, subjectKey, claims.Subject)
			ctx = context.WithValue(ctx, roleKey, claims.Role)
			ctx = context.WithValue(ctx, claimsKey, claims)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSubject returns the token subject from context.
func GetSubject(ctx context.Context) string {
	if v, ok := ctx.Value(subjectKey).(string); ok {
		return v
	}
	return ""
}

// GetRole returns the caller role from context.
func GetRole(ctx context.Context) auth.Role {
	if v, ok := ctx.Value(roleKey).(auth.Role); ok {
		return v
	}
	return ""
}

// GetClaims returns the JWT claims from context.
func GetClaims(ctx context.Context) *auth.Claims {
	if v, ok := ctx.Value(claimsKey).(*auth.Claims); ok {
		return v
	}
	return nil
}
