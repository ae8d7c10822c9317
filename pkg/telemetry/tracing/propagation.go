package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Extract returns ctx carrying the W3C trace context found in headers.
func Extract(ctx context.Context, headers http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(headers))
}

// HTTPMiddleware continues incoming traces and echoes the trace id in the
// X-Trace-ID response header.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := Extract(r.Context(), r.Header)
		if id := TraceID(ctx); id != "" {
			w.Header().Set("X-Trace-ID", id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
