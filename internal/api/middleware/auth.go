package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/sechat/internal/auth"
)

type contextKey string

const adminContextKey contextKey = "admin"

// AdminCookie carries the admin token for browser clients.
const AdminCookie = "admin_token"

// SessionHeader carries a participant session when the body has none.
const SessionHeader = "X-Session-ID"

// AuthMiddleware resolves the admin token of a request.
type AuthMiddleware struct {
	tokens *auth.TokenManager
	logger zerolog.Logger
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(tokens *auth.TokenManager, logger zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, logger: logger}
}

// Identify attaches the admin claims to the context when a valid token is
// present. It never rejects a request.
func (m *AuthMiddleware) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := adminToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.tokens.Verify(token)
		if err != nil {
			m.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("ignoring admin token")
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), adminContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects requests without a verified admin token.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(r.Context()) {
			jsonError(w, http.StatusUnauthorized, "관리자 인증이 필요합니다")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// adminToken reads the bearer token, falling back to the cookie.
func adminToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(AdminCookie); err == nil {
		return c.Value
	}
	return ""
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetAdminFromContext retrieves the verified admin claims, or nil.
func GetAdminFromContext(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(adminContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

// IsAdmin reports whether the request carries a verified admin token.
func IsAdmin(ctx context.Context) bool {
	return GetAdminFromContext(ctx) != nil
}

// SessionFromRequest returns the participant session header.
func SessionFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(SessionHeader))
}
