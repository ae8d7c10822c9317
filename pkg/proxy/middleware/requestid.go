package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"teclab/bitgate/pkg/telemetry/logging"
)

// RequestIDHeader is the HTTP header carrying the request id.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds client-supplied ids that end up in logs.
const maxRequestIDLength = 128

// RequestIDMiddleware stores a request id in the request context and echoes
// it in the X-Request-ID response header. A client-supplied id is reused
// when present and reasonably short; otherwise a UUID is generated.
//
// The id reaches every log line written with the request context, see
// logging.WithRequestID.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), requestID)))
	})
}

// GetRequestID returns the request id stored by RequestIDMiddleware.
func GetRequestID(ctx context.Context) string {
	return logging.GetRequestID(ctx)
}
