package backends

import "context"

// Backend is the contract every upstream chat backend implements. The
// session manager and orchestrator talk to backends only through it.
//
// All blocking methods accept a context.Context and must return promptly
// once it is cancelled.
//
// Example usage:
//
//	b, err := registry.NewBackend(cfg)
//	if err != nil {
//	    return err
//	}
//	if err := b.Init(ctx); err != nil {
//	    return err
//	}
//	h, err := b.OpenSession(ctx)
//	if err != nil {
//	    return err
//	}
//	defer b.CloseSession(ctx, h)
//	events, err := b.StreamQuery(ctx, &Turn{Query: "hi"}, h)
type Backend interface {
	// Init authenticates and performs any backend-specific startup work,
	// such as clearing stale upstream conversations.
	Init(ctx context.Context) error

	// Authenticate performs the handshake unconditionally and installs a
	// fresh AuthContext.
	Authenticate(ctx context.Context) error

	// AuthGeneration returns a counter that advances on every successful
	// handshake. Callers capture it before a request and pass it to
	// Reauthenticate after a rejection.
	AuthGeneration() uint64

	// Reauthenticate refreshes the AuthContext unless another caller already
	// did so since generation seen was observed. At most one handshake runs
	// at a time per backend.
	Reauthenticate(ctx context.Context, seen uint64) error

	// OpenSession creates a disposable upstream conversation.
	OpenSession(ctx context.Context) (SessionHandle, error)

	// CloseSession deletes an upstream conversation. Failures are logged,
	// never returned, so cleanup cannot mask a turn's real outcome.
	CloseSession(ctx context.Context, h SessionHandle)

	// StreamQuery submits the turn within session h and returns the raw
	// event stream. The caller owns the stream and must Close it.
	StreamQuery(ctx context.Context, turn *Turn, h SessionHandle) (EventStream, error)

	// NewDemuxer returns a fresh classifier for this backend's event format.
	// Demuxers are stateful and must not be shared between turns.
	NewDemuxer() Demuxer

	// Name returns the backend's configured name.
	Name() string

	// Type returns the backend's type (TypeUnifiedLogin or TypeAppKey).
	Type() string

	// IsHealthy returns the current health status.
	IsHealthy() bool

	// Health returns detailed health information.
	Health() BackendHealth

	// Close stops background work and releases connections.
	Close() error
}

// EventStream yields raw upstream events in arrival order.
type EventStream interface {
	// Next returns the next event, or io.EOF when the upstream ends the stream.
	Next(ctx context.Context) (RawEvent, error)

	// Close releases the underlying connection. It is safe to call twice.
	Close() error
}

// Demuxer classifies raw events into fragments. ok is false for events that
// carry nothing for the client (noise, malformed data, control markers).
type Demuxer interface {
	Classify(ev RawEvent) (f Fragment, ok bool)

	// Flush returns any text held back waiting for a possible marker once
	// the stream has ended.
	Flush() (f Fragment, ok bool)

	// Dropped returns the number of malformed events discarded so far.
	Dropped() int
}
