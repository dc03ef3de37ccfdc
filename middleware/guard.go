package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MrEthical07/branchauth"
)

// Authenticator validates an access token and returns the caller.
// *branchauth.Engine satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*branchauth.CurrentUser, error)
}

// CurrentUserFromContext returns the user SessionGuard attached to ctx.
func CurrentUserFromContext(ctx context.Context) (*branchauth.CurrentUser, bool) {
	return branchauth.CurrentUserFromContext(ctx)
}

// SessionGuard rejects requests whose bearer token is invalid, expired or
// belongs to a blacklisted session, and attaches the CurrentUser otherwise.
// Every rejection is a 401 with the same body.
func SessionGuard(auth Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				Unauthorized(w)
				return
			}

			token, ok := BearerToken(r)
			if !ok {
				Unauthorized(w)
				return
			}

			user, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				if !branchauth.IsUnauthorized(err) {
					logger.Error("branchauth: session check failed", "path", r.URL.Path, "error", err)
				}
				Unauthorized(w)
				return
			}

			ctx := branchauth.WithCurrentUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Unauthorized writes the single externally visible auth failure.
func Unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="branchauth"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}

// BearerToken extracts the token from the request's Authorization header.
// The scheme match is case-insensitive and surrounding spaces are trimmed.
func BearerToken(r *http.Request) (string, bool) {
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
