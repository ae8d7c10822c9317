package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys recorded on gateway spans.
const (
	AttrModel          = attribute.Key("bitgate.model")
	AttrBackend        = attribute.Key("bitgate.backend")
	AttrBackendType    = attribute.Key("bitgate.backend.type")
	AttrMode           = attribute.Key("bitgate.mode")
	AttrRequestID      = attribute.Key("bitgate.request_id")
	AttrHistoryLength  = attribute.Key("bitgate.history.length")
	AttrHistoryDropped = attribute.Key("bitgate.history.dropped")
	AttrFragments      = attribute.Key("bitgate.fragments")
	AttrReasoningChars = attribute.Key("bitgate.reasoning.chars")
	AttrContentChars   = attribute.Key("bitgate.content.chars")
	AttrDroppedEvents  = attribute.Key("bitgate.events.dropped")
	AttrOutcome        = attribute.Key("bitgate.outcome")
)

// TurnAttributes describes a turn when it starts.
func TurnAttributes(model, backend, backendType, mode, requestID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrModel.String(model),
		AttrBackend.String(backend),
		AttrBackendType.String(backendType),
		AttrMode.String(mode),
	}
	if requestID != "" {
		attrs = append(attrs, AttrRequestID.String(requestID))
	}
	return attrs
}

// SetResultAttributes records how a turn ended.
func SetResultAttributes(span trace.Span, outcome string, fragments, reasoningChars, contentChars, dropped int) {
	span.SetAttributes(
		AttrOutcome.String(outcome),
		AttrFragments.Int(fragments),
		AttrReasoningChars.Int(reasoningChars),
		AttrContentChars.Int(contentChars),
		AttrDroppedEvents.Int(dropped),
	)
}

// AddEvent adds a named event to span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
