package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"

	"teclab/bitgate/pkg/proxy/types"
)

// RecoveryMiddleware turns a handler panic into a 500 OpenAI error body
// and logs the stack trace. Nothing internal is exposed to the client.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			err := recover()
			if err == nil {
				return
			}
			if err == http.ErrAbortHandler {
				panic(err)
			}

			slog.ErrorContext(r.Context(), "panic in handler",
				"component", "http",
				"error", err,
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)

			errResp := types.NewServerError("An internal error occurred. Please try again later.")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(errResp)
		}()

		next.ServeHTTP(w, r)
	})
}
