package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"teclab/bitgate/pkg/backends"
	"teclab/bitgate/pkg/registry"
	"teclab/bitgate/pkg/telemetry/logging"
	"teclab/bitgate/pkg/telemetry/tracing"
)

// Turn modes.
const (
	ModeComplete = "complete"
	ModeStream   = "stream"
)

// Turn outcomes used in metrics, spans and logs.
const (
	OutcomeSuccess        = "success"
	OutcomeInvalidRequest = "invalid_request"
	OutcomeAuthError      = "auth_error"
	OutcomeSessionError   = "session_error"
	OutcomeUpstreamError  = "upstream_error"
	OutcomeTimeout        = "timeout"
	OutcomeCanceled       = "canceled"
)

// SpanName is the name of the span opened for every turn.
const SpanName = "completion.turn"

// Request is a turn as received from the HTTP boundary.
type Request struct {
	// Model is the configured model identifier.
	Model string

	// Messages is the full conversation; the last entry is the new question.
	Messages []backends.Message
}

// Result is the aggregated output of a completed turn.
type Result struct {
	Reasoning string
	Content   string
}

// Event is one element of a streamed turn. Exactly one of Fragment, Err or
// Done is meaningful; Err and Done are always the final event.
type Event struct {
	Fragment backends.Fragment
	Err      error
	Done     bool
}

// Models resolves model identifiers. *registry.Registry satisfies it.
type Models interface {
	Lookup(id string) (*registry.Model, error)
}

// UsageRecorder receives the text of every successful turn. It must not
// block. *usage.Recorder satisfies it.
type UsageRecorder interface {
	RecordUsage(model, inputText, outputText string)
}

// Metrics receives turn observations. *metrics.Collector satisfies it.
type Metrics interface {
	RecordTurn(model, mode, outcome string, d time.Duration)
	RecordFragment(model, kind string)
	RecordDropped(model string, n int)
}

// Orchestrator runs turns against the registered models.
type Orchestrator struct {
	models     Models
	usage      UsageRecorder
	metrics    Metrics
	tracer     trace.Tracer
	logContent bool
	buffer     int
	logger     *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithUsage sets the usage recorder.
func WithUsage(u UsageRecorder) Option {
	return func(o *Orchestrator) { o.usage = u }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer sets the tracer used for turn spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithLogContent logs queries and answers at debug level.
func WithLogContent(enabled bool) Option {
	return func(o *Orchestrator) { o.logContent = enabled }
}

// WithStreamBuffer sets the capacity of the channel returned by Stream.
func WithStreamBuffer(n int) Option {
	return func(o *Orchestrator) { o.buffer = n }
}

// New creates an orchestrator over models.
func New(models Models, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		models: models,
		tracer: noop.NewTracerProvider().Tracer(tracing.InstrumentationName),
		buffer: 16,
		logger: slog.Default().With("component", "orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// turnState is a validated, reshaped turn ready for dispatch.
type turnState struct {
	model *registry.Model
	turn  *backends.Turn
	mode  string
	start time.Time

	span trace.Span

	reasoning strings.Builder
	content   strings.Builder
	fragments int
	dropped   int
}

// prepare runs Validate and Reshape. No network call happens here.
func (o *Orchestrator) prepare(ctx context.Context, req Request, mode string) (*turnState, error) {
	start := time.Now()
	if err := validate(req.Messages); err != nil {
		o.observeRejected(ctx, req.Model, mode, start, err)
		return nil, err
	}
	m, err := o.models.Lookup(req.Model)
	if err != nil {
		o.observeRejected(ctx, req.Model, mode, start, err)
		return nil, err
	}

	query, history := reshape(req.Messages)
	return &turnState{
		model: m,
		turn:  &backends.Turn{Query: query, History: history, Model: m.ID},
		mode:  mode,
		start: start,
	}, nil
}

func (o *Orchestrator) observeRejected(ctx context.Context, model, mode string, start time.Time, err error) {
	if o.metrics != nil {
		o.metrics.RecordTurn(model, mode, OutcomeInvalidRequest, time.Since(start))
	}
	o.logger.InfoContext(ctx, "turn rejected", "model", model, "mode", mode, "error", err)
}

// Complete runs a turn and returns the aggregated reasoning and content.
func (o *Orchestrator) Complete(ctx context.Context, req Request) (*Result, error) {
	ts, err := o.prepare(ctx, req, ModeComplete)
	if err != nil {
		return nil, err
	}

	ctx = o.begin(ctx, ts)
	err = o.dispatch(ctx, ts, func(backends.Fragment) error { return nil })
	o.finish(ctx, ts, err)
	if err != nil {
		return nil, err
	}
	return &Result{Reasoning: ts.reasoning.String(), Content: ts.content.String()}, nil
}

// Stream runs a turn and forwards fragments as they arrive. Validation
// errors are returned directly; later failures arrive as the final Event.
// The channel is closed after the final event. If ctx is cancelled the
// upstream read stops, the session is still closed and no final event is
// guaranteed.
func (o *Orchestrator) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	ts, err := o.prepare(ctx, req, ModeStream)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, o.buffer)
	go func() {
		defer close(events)

		ctx := o.begin(ctx, ts)
		err := o.dispatch(ctx, ts, func(f backends.Fragment) error {
			select {
			case events <- Event{Fragment: f}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		o.finish(ctx, ts, err)

		final := Event{Done: true}
		if err != nil {
			final = Event{Err: err}
		}
		select {
		case events <- final:
		case <-ctx.Done():
		}
	}()
	return events, nil
}

func (o *Orchestrator) begin(ctx context.Context, ts *turnState) context.Context {
	ctx = logging.WithModel(ctx, ts.model.ID)
	ctx, ts.span = o.tracer.Start(ctx, SpanName, trace.WithAttributes(
		tracing.TurnAttributes(ts.model.ID, ts.model.Backend.Name(), ts.model.Backend.Type(), ts.mode, logging.GetRequestID(ctx))...,
	))
	ts.span.SetAttributes(
		tracing.AttrHistoryLength.Int(len(ts.turn.History)),
	)

	o.logger.InfoContext(ctx, "turn started",
		"mode", ts.mode,
		"history", len(ts.turn.History),
	)
	if o.logContent {
		o.logger.DebugContext(ctx, "turn query", "query", ts.turn.Query)
	}
	return ctx
}

// dispatch opens a session, streams the query through the backend's
// demuxer and hands every fragment to emit in upstream order.
func (o *Orchestrator) dispatch(ctx context.Context, ts *turnState, emit func(backends.Fragment) error) error {
	demuxer := ts.model.Backend.NewDemuxer()
	defer func() { ts.dropped = demuxer.Dropped() }()

	forward := func(f backends.Fragment) error {
		if f.Text == "" {
			return nil
		}
		ts.fragments++
		if f.Kind == backends.KindReasoning {
			ts.reasoning.WriteString(f.Text)
		} else {
			ts.content.WriteString(f.Text)
		}
		if o.metrics != nil {
			o.metrics.RecordFragment(ts.model.ID, f.Kind.String())
		}
		return emit(f)
	}

	return ts.model.Sessions.Do(ctx, ts.turn, func(stream backends.EventStream) error {
		tracing.AddEvent(ts.span, "stream.opened")
		for {
			ev, err := stream.Next(ctx)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			if f, ok := demuxer.Classify(ev); ok {
				if err := forward(f); err != nil {
					return err
				}
			}
		}
		if f, ok := demuxer.Flush(); ok {
			return forward(f)
		}
		return nil
	})
}

// finish records the outcome and, on success, hands usage off.
func (o *Orchestrator) finish(ctx context.Context, ts *turnState, err error) {
	outcome := Outcome(err)
	d := time.Since(ts.start)

	tracing.SetResultAttributes(ts.span, outcome, ts.fragments, ts.reasoning.Len(), ts.content.Len(), ts.dropped)
	tracing.SetStatus(ts.span, err)
	ts.span.End()

	if o.metrics != nil {
		o.metrics.RecordTurn(ts.model.ID, ts.mode, outcome, d)
		if ts.dropped > 0 {
			o.metrics.RecordDropped(ts.model.ID, ts.dropped)
		}
	}

	attrs := []any{
		"mode", ts.mode,
		"outcome", outcome,
		"fragments", ts.fragments,
		"dropped_events", ts.dropped,
		"duration", d,
	}
	if err != nil {
		o.logger.WarnContext(ctx, "turn failed", append(attrs, "error", err)...)
		return
	}
	o.logger.InfoContext(ctx, "turn completed", attrs...)
	if o.logContent {
		o.logger.DebugContext(ctx, "turn answer",
			"reasoning", ts.reasoning.String(),
			"content", ts.content.String(),
		)
	}

	if o.usage != nil {
		o.usage.RecordUsage(ts.model.ID, ts.turn.Query, ts.content.String()+ts.reasoning.String())
	}
}

// Outcome classifies a turn error for metrics and logs.
func Outcome(err error) string {
	var (
		authErr    *backends.AuthError
		sessErr    *backends.SessionError
		timeoutErr *backends.TimeoutError
	)
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, backends.ErrInvalidRequest):
		return OutcomeInvalidRequest
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.As(err, &authErr):
		return OutcomeAuthError
	case errors.As(err, &sessErr):
		return OutcomeSessionError
	default:
		return OutcomeUpstreamError
	}
}
