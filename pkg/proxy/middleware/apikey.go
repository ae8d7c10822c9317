package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"teclab/bitgate/pkg/proxy"
	"teclab/bitgate/pkg/proxy/types"
)

// APIKeyMiddleware requires "Authorization: Bearer <key>" on every request.
// A missing or wrong key is answered with 403. An empty key disables the
// check.
func APIKeyMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		want := []byte(key)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			got := proxy.ExtractAPIKey(r)
			if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(types.NewPermissionDeniedError("Invalid API key."))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
