// Package middleware holds the gateway's HTTP middleware.
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ssabihuddin/modelgate/internal/api/ctxkeys"
	"github.com/ssabihuddin/modelgate/internal/infra/config"
	pkgauth "github.com/ssabihuddin/modelgate/pkg/auth"
)

// RequireAdmin guards mutating routes with a Bearer JWT obtained from
// POST /auth/token. Auth is opt-in: when no admin key hash is configured the
// middleware passes every request through, matching a single-user deployment.
func RequireAdmin(store *config.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store.Snapshot().API.AdminKeyHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := extractBearerToken(r)
			if token == "" {
				writeUnauthorized(w, "missing or invalid Authorization header")
				return
			}

			claims, err := pkgauth.ParseToken(token)
			if err != nil {
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			ctx := ctxkeys.WithValue(r.Context(), ctxkeys.Actor, claims.Actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken extracts the token from "Authorization: Bearer <token>".
// Returns empty string if the header is missing, wrong scheme, or empty.
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")

	// Must start with "Bearer " (case-sensitive per RFC 7235).
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

// writeUnauthorized writes a 401 JSON response, same shape as the handlers'
// writeError.
func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message}) //nolint:errcheck
}
