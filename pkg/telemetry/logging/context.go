package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// ModelKey is the context key for the public model id.
	ModelKey contextKey = "model"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithModel adds a model id to the context.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ModelKey, model)
}

// GetModel retrieves the model id from the context.
func GetModel(ctx context.Context) string {
	if model, ok := ctx.Value(ModelKey).(string); ok {
		return model
	}
	return ""
}

// contextFields returns the log fields carried by ctx.
func contextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	if id := GetRequestID(ctx); id != "" {
		attrs = append(attrs, slog.String(string(RequestIDKey), id))
	}
	if model := GetModel(ctx); model != "" {
		attrs = append(attrs, slog.String(string(ModelKey), model))
	}
	return attrs
}

// contextHandler adds context fields to every record logged through the
// *Context methods of slog.Logger.
type contextHandler struct {
	next slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := contextFields(ctx); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.next.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name)}
}
