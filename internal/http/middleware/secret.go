package middleware

import (
	"encoding/json"
	"net/http"
)

const secretHeader = "X-Gateway-Secret"

// RequireSecret rejects requests whose shared-secret header is absent or does
// not match.
func RequireSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(secretHeader)
			if provided == "" || provided != secret {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]any{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
