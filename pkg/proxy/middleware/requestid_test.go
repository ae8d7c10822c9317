package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	wrapped := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	t.Run("generates id", func(t *testing.T) {
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		got := w.Header().Get(RequestIDHeader)
		if len(got) != 36 {
			t.Errorf("generated id %q is not a UUID", got)
		}
		if seen != got {
			t.Errorf("context id = %q, header id = %q", seen, got)
		}
	})

	t.Run("reuses client id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "client-42")
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)

		if got := w.Header().Get(RequestIDHeader); got != "client-42" {
			t.Errorf("header id = %q, want client-42", got)
		}
		if seen != "client-42" {
			t.Errorf("context id = %q, want client-42", seen)
		}
	})

	t.Run("replaces oversized id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLength+1))
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)

		if got := w.Header().Get(RequestIDHeader); len(got) != 36 {
			t.Errorf("oversized id not replaced: %q", got)
		}
	})

	t.Run("unique ids", func(t *testing.T) {
		w1, w2 := httptest.NewRecorder(), httptest.NewRecorder()
		wrapped.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/", nil))
		wrapped.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/", nil))
		if w1.Header().Get(RequestIDHeader) == w2.Header().Get(RequestIDHeader) {
			t.Error("expected different ids")
		}
	})
}
