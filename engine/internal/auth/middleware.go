package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

// ModeAPIKey enables key checking; every other mode passes requests through.
const ModeAPIKey = "apikey"

// APIKeyMiddleware returns middleware that enforces API key authentication.
//
// Behaviour:
//   - If mode != "apikey" or key == "", all requests are allowed.
//   - Otherwise the value of header must equal key. Browsers cannot set
//     headers on WebSocket upgrades, so the "api_key" query parameter is
//     accepted as a fallback.
//   - A missing or incorrect key returns 401 with a JSON error body.
func APIKeyMiddleware(mode, header, key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if mode != ModeAPIKey || key == "" {
			return next
		}
		want := []byte(key)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if got == "" {
				got = r.URL.Query().Get("api_key")
			}
			if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid api key"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
