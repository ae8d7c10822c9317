package backends

import "time"

// Message is one prior conversation entry supplied with a Turn.
type Message struct {
	// Role is either RoleUser or RoleAssistant once history has been reshaped.
	Role string `json:"role"`

	// Content is the plain text of the message.
	Content string `json:"content"`
}

// Turn is the unit of work handed to a Backend: one query plus the prior
// conversation it should be answered in the context of.
//
// A Turn is immutable once submitted; backends must not modify History.
type Turn struct {
	// Query is the user's new question, already merged with any system prompt.
	Query string

	// History is the ordered prior conversation (user/assistant pairs).
	History []Message

	// Model is the configured model identifier the Turn was routed to.
	Model string
}

// SessionHandle names a disposable upstream conversation. It is valid for
// exactly one Turn and is never shared between concurrent Turns.
type SessionHandle string

// RawEvent is a single server-sent event as read off the upstream connection.
// Data holds the bytes after the "data:" prefix, untouched; it may be
// truncated, non-UTF-8, or otherwise malformed.
type RawEvent struct {
	// Event is the value of the most recent "event:" field, if any.
	Event string

	// Data is the raw payload of the "data:" line.
	Data []byte
}

// FragmentKind tags a Fragment as final-answer text or chain-of-thought.
type FragmentKind int

const (
	// KindContent marks final answer text.
	KindContent FragmentKind = iota

	// KindReasoning marks chain-of-thought text.
	KindReasoning
)

// String returns the wire name of the kind.
func (k FragmentKind) String() string {
	switch k {
	case KindReasoning:
		return "reasoning"
	default:
		return "content"
	}
}

// Fragment is one incremental unit of output (a Delta Fragment). Exactly one
// of content or reasoning is carried, selected by Kind.
type Fragment struct {
	Kind FragmentKind
	Text string
}

// Reasoning returns the text if this is a reasoning fragment.
func (f Fragment) Reasoning() (string, bool) {
	if f.Kind == KindReasoning {
		return f.Text, true
	}
	return "", false
}

// AuthContext is the authentication material derived by a successful
// handshake. It is replaced wholesale, never mutated, so a reader always
// sees a consistent set of headers.
type AuthContext struct {
	// Token is the backend-specific credential (for example a badge cookie).
	Token string

	// Headers are sent on every upstream request made under this context.
	Headers map[string]string

	// Cookies are attached to every upstream request made under this context.
	Cookies map[string]string

	// ObtainedAt is when the handshake completed.
	ObtainedAt time.Time
}

// Credentials is the opaque bag of secrets configured for one backend.
// It is immutable after configuration load.
type Credentials struct {
	Username   string
	Password   string
	AppKey     string
	VisitorKey string
}

// BackendConfig contains the configuration of one backend instance.
type BackendConfig struct {
	// Name is the backend instance name (usually the model id it serves).
	Name string

	// Type selects the implementation: TypeUnifiedLogin or TypeAppKey.
	Type string

	// BaseURL is the upstream API origin.
	BaseURL string

	// LoginURL is the unified identity login page (unified-login only).
	LoginURL string

	// AssistantID is the upstream assistant identifier (unified-login only).
	AssistantID int

	// Credentials are the secrets used by Authenticate.
	Credentials Credentials

	// Timeout bounds every non-streaming upstream call and the wait for
	// response headers on streaming calls.
	Timeout time.Duration

	// StreamIdleTimeout bounds the gap between two reads of a stream.
	StreamIdleTimeout time.Duration

	// MaxRetries is the number of transport-level retries for idempotent calls.
	MaxRetries int

	// KeepaliveInterval is the period of the keepalive probe (unified-login only).
	KeepaliveInterval time.Duration

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// MaxIdleConnsPerHost is the maximum idle connections per host.
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long an idle connection remains in the pool.
	IdleConnTimeout time.Duration
}

// BackendHealth tracks the health of a backend as observed by requests and
// keepalive probes.
type BackendHealth struct {
	IsHealthy             bool
	LastCheck             time.Time
	LastError             error
	ConsecutiveFailures   int
	LastSuccessfulRequest time.Time
	TotalRequests         int64
	FailedRequests        int64
}

// Backend types.
const (
	TypeUnifiedLogin = "unified_login"
	TypeAppKey       = "app_key"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
