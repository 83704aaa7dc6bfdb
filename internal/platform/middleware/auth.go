package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// TokenValidator verifies a bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*TokenClaims, error)
}

// TokenClaims is the middleware's view of an authenticated request.
type TokenClaims struct {
	Subject   string
	SessionID string
	Scopes    []string
}

type contextKeySubject struct{}
type contextKeySessionID struct{}
type contextKeyScopes struct{}

var (
	ContextKeySubject   = contextKeySubject{}
	ContextKeySessionID = contextKeySessionID{}
	ContextKeyScopes    = contextKeyScopes{}
)

// GetSubject returns the authenticated subject, or "" outside RequireAuth.
func GetSubject(ctx context.Context) string {
	s, _ := ctx.Value(ContextKeySubject).(string)
	return s
}

// GetSessionID returns the token's session id, or "".
func GetSessionID(ctx context.Context) string {
	s, _ := ctx.Value(ContextKeySessionID).(string)
	return s
}

// GetScopes returns the token's scopes, or nil.
func GetScopes(ctx context.Context) []string {
	s, _ := ctx.Value(ContextKeyScopes).([]string)
	return s
}

// RequireAuth rejects requests without a valid bearer token and puts the
// validated identity on the request context for handlers downstream.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", GetRequestID(ctx))
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(ctx))
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx = context.WithValue(ctx, ContextKeySubject, claims.Subject)
			ctx = context.WithValue(ctx, ContextKeySessionID, claims.SessionID)
			ctx = context.WithValue(ctx, ContextKeyScopes, claims.Scopes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
