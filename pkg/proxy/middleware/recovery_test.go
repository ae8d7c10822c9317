package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"teclab/bitgate/pkg/proxy/types"
)

func TestRecoveryMiddleware(t *testing.T) {
	t.Run("recovers from panic", func(t *testing.T) {
		wrapped := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", w.Code)
		}
		var body types.ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Error.Type != types.ErrorTypeServerError {
			t.Errorf("type = %q", body.Error.Type)
		}
	})

	t.Run("passes through", func(t *testing.T) {
		w := httptest.NewRecorder()
		RecoveryMiddleware(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		if w.Code != http.StatusOK || w.Body.String() != "OK" {
			t.Errorf("got %d %q", w.Code, w.Body.String())
		}
	})

	t.Run("re-panics on abort", func(t *testing.T) {
		wrapped := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic(http.ErrAbortHandler)
		}))

		defer func() {
			if recover() != http.ErrAbortHandler {
				t.Error("expected http.ErrAbortHandler to propagate")
			}
		}()
		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
