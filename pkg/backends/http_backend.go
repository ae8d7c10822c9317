package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// HTTPBackend is the shared base for HTTP-based backend adapters. It provides
// connection pooling, auth header injection, bounded retries for idempotent
// calls, timeout handling and health bookkeeping.
//
// Concrete adapters embed it and implement the rest of the Backend interface.
type HTTPBackend struct {
	config BackendConfig

	// client carries no overall timeout so streams can outlive it; per-call
	// deadlines are applied by DoRequest and the transport header timeout.
	client *http.Client

	guard *AuthGuard

	health   BackendHealth
	healthMu sync.RWMutex

	logger *slog.Logger
}

// NewHTTPBackend creates a new HTTP base with connection pooling. The
// handshake function is run by Authenticate and Reauthenticate; it must
// return the new AuthContext.
func NewHTTPBackend(config BackendConfig, handshake func(ctx context.Context) (*AuthContext, error)) *HTTPBackend {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		ResponseHeaderTimeout: config.Timeout,
		ForceAttemptHTTP2:     true,
	}

	b := &HTTPBackend{
		config: config,
		client: &http.Client{Transport: transport},
		health: BackendHealth{
			IsHealthy:             true,
			LastCheck:             time.Now(),
			LastSuccessfulRequest: time.Now(),
		},
		logger: slog.Default().With("component", "backend", "backend", config.Name),
	}
	b.guard = NewAuthGuard(config.Name, handshake)
	return b
}

// Name returns the backend's configured name.
func (b *HTTPBackend) Name() string {
	return b.config.Name
}

// Type returns the backend's type.
func (b *HTTPBackend) Type() string {
	return b.config.Type
}

// Logger returns the backend's component logger.
func (b *HTTPBackend) Logger() *slog.Logger {
	return b.logger
}

// Authenticate runs the handshake unconditionally.
func (b *HTTPBackend) Authenticate(ctx context.Context) error {
	return b.guard.Authenticate(ctx)
}

// AuthGeneration returns the current auth generation.
func (b *HTTPBackend) AuthGeneration() uint64 {
	return b.guard.Generation()
}

// Reauthenticate refreshes the AuthContext unless it changed since seen.
func (b *HTTPBackend) Reauthenticate(ctx context.Context, seen uint64) error {
	return b.guard.Reauthenticate(ctx, seen)
}

// Guard returns the backend's auth guard.
func (b *HTTPBackend) Guard() *AuthGuard {
	return b.guard
}

// AuthContext returns the current auth context, or nil before the first
// successful handshake.
func (b *HTTPBackend) AuthContext() *AuthContext {
	return b.guard.Current()
}

// IsHealthy returns the current health status.
func (b *HTTPBackend) IsHealthy() bool {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	return b.health.IsHealthy
}

// Health returns detailed health information.
func (b *HTTPBackend) Health() BackendHealth {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	return b.health
}

// UpdateHealth records the outcome of a request or probe.
func (b *HTTPBackend) UpdateHealth(success bool, err error) {
	b.healthMu.Lock()
	defer b.healthMu.Unlock()

	b.health.LastCheck = time.Now()

	if success {
		if !b.health.IsHealthy {
			b.logger.Info("backend marked healthy", "previous_failures", b.health.ConsecutiveFailures)
		}
		b.health.IsHealthy = true
		b.health.ConsecutiveFailures = 0
		b.health.LastError = nil
		b.health.LastSuccessfulRequest = time.Now()
		return
	}

	b.health.ConsecutiveFailures++
	b.health.LastError = err

	// Mark unhealthy after 3 consecutive failures
	if b.health.ConsecutiveFailures >= 3 && b.health.IsHealthy {
		b.health.IsHealthy = false
		b.logger.Warn("backend marked unhealthy",
			"consecutive_failures", b.health.ConsecutiveFailures,
			"error", err,
		)
	}
}

func (b *HTTPBackend) recordRequest(success bool) {
	b.healthMu.Lock()
	defer b.healthMu.Unlock()

	b.health.TotalRequests++
	if !success {
		b.health.FailedRequests++
	}
}

// Request describes one upstream call.
type Request struct {
	Method string
	URL    string
	Body   any

	// Headers are merged over the auth context headers.
	Headers map[string]string

	// Stream disables the per-call deadline so the body can be read
	// incrementally; the response header wait is still bounded.
	Stream bool

	// Idempotent allows transport-level retries on network errors and 5xx.
	Idempotent bool
}

// DoRequest performs an upstream call with auth headers attached. Non-2xx
// responses are returned as *UpstreamError, or *AuthError for 401/403.
//
// For non-stream requests the returned cancel func must be called after
// the body is consumed.
func (b *HTTPBackend) DoRequest(ctx context.Context, r Request) (*http.Response, context.CancelFunc, error) {
	var bodyBytes []byte
	if r.Body != nil {
		var err error
		bodyBytes, err = json.Marshal(r.Body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	cancel := context.CancelFunc(func() {})
	if !r.Stream && b.config.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, b.config.Timeout)
	}

	maxTries := uint(1)
	if r.Idempotent && b.config.MaxRetries > 0 {
		maxTries += uint(b.config.MaxRetries)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 8 * time.Second

	resp, err := backoff.Retry(ctx, func() (*http.Response, error) {
		return b.attempt(ctx, r, bodyBytes)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			b.logger.Warn("request failed, will retry", "url", r.URL, "error", err, "backoff", next)
		}),
	)
	if err != nil {
		// Retry returns the operation's error as-is when the last try is
		// marked permanent, so the wrapper can still be attached here.
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		cancel()
		b.UpdateHealth(false, err)
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, nil, &TimeoutError{Backend: b.config.Name, Timeout: b.config.Timeout, Cause: err}
		}
		return nil, nil, err
	}

	b.UpdateHealth(true, nil)
	return resp, cancel, nil
}

func (b *HTTPBackend) attempt(ctx context.Context, r Request, body []byte) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, bodyReader)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	if ac := b.guard.Current(); ac != nil {
		for k, v := range ac.Headers {
			req.Header.Set(k, v)
		}
		for name, value := range ac.Cookies {
			req.AddCookie(&http.Cookie{Name: name, Value: value})
		}
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	b.logger.Debug("sending request to backend", "method", r.Method, "url", r.URL)

	resp, err := b.client.Do(req)
	if err != nil {
		b.recordRequest(false)
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		b.recordRequest(true)
		return resp, nil
	}

	errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	b.recordRequest(false)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(&AuthError{Backend: b.config.Name, Message: string(errorBody)})
	case resp.StatusCode >= 500:
		return nil, &UpstreamError{Backend: b.config.Name, StatusCode: resp.StatusCode, Message: string(errorBody)}
	default:
		return nil, backoff.Permanent(&UpstreamError{Backend: b.config.Name, StatusCode: resp.StatusCode, Message: string(errorBody)})
	}
}

// DoJSONRequest performs a non-streaming call and decodes the response body
// into respBody.
func (b *HTTPBackend) DoJSONRequest(ctx context.Context, r Request, respBody any) error {
	resp, cancel, err := b.DoRequest(ctx, r)
	if err != nil {
		return err
	}
	defer cancel()
	defer resp.Body.Close()

	responseBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ParseError{Backend: b.config.Name, Cause: fmt.Errorf("failed to read response: %w", err)}
	}

	if respBody != nil && len(responseBytes) > 0 {
		if err := json.Unmarshal(responseBytes, respBody); err != nil {
			return &ParseError{
				Backend:     b.config.Name,
				RawResponse: string(responseBytes),
				Cause:       fmt.Errorf("failed to unmarshal response: %w", err),
			}
		}
	}
	return nil
}

// OpenStream performs a streaming call and wraps the body in an SSE reader.
func (b *HTTPBackend) OpenStream(ctx context.Context, r Request) (EventStream, error) {
	r.Stream = true
	if r.Headers == nil {
		r.Headers = map[string]string{}
	}
	if _, ok := r.Headers["Accept"]; !ok {
		r.Headers["Accept"] = "text/event-stream"
	}

	ctx, cancel := context.WithCancel(ctx)
	resp, _, err := b.DoRequest(ctx, r)
	if err != nil {
		cancel()
		return nil, err
	}
	return NewSSEReader(b.config.Name, resp.Body, cancel, b.config.StreamIdleTimeout), nil
}

// Close releases idle connections.
func (b *HTTPBackend) Close() error {
	b.client.CloseIdleConnections()
	b.logger.Info("backend closed")
	return nil
}
