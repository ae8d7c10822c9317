package demux

import (
	"encoding/json"
	"unicode/utf8"

	"teclab/bitgate/pkg/backends"
)

// Event types carried by app-key streams.
const (
	EventThinkMessage = "think_message"
	EventMessage      = "message"
)

type typedEvent struct {
	Event  string `json:"event"`
	Answer string `json:"answer"`
}

// EventTypeDemuxer classifies events carrying an explicit discriminator:
// think_message events are reasoning, message events are content. Every
// other event type is ignored.
type EventTypeDemuxer struct {
	dropped int
}

// NewEventTypeDemuxer creates an EventTypeDemuxer.
func NewEventTypeDemuxer() *EventTypeDemuxer {
	return &EventTypeDemuxer{}
}

// Classify implements backends.Demuxer.
func (d *EventTypeDemuxer) Classify(ev backends.RawEvent) (backends.Fragment, bool) {
	if !utf8.Valid(ev.Data) {
		d.dropped++
		return backends.Fragment{}, false
	}
	var payload typedEvent
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		d.dropped++
		return backends.Fragment{}, false
	}

	kind := payload.Event
	if kind == "" {
		kind = ev.Event
	}
	if payload.Answer == "" {
		return backends.Fragment{}, false
	}

	switch kind {
	case EventThinkMessage:
		return backends.Fragment{Kind: backends.KindReasoning, Text: payload.Answer}, true
	case EventMessage:
		return backends.Fragment{Kind: backends.KindContent, Text: payload.Answer}, true
	default:
		return backends.Fragment{}, false
	}
}

// Flush implements backends.Demuxer. Nothing is ever held back.
func (d *EventTypeDemuxer) Flush() (backends.Fragment, bool) {
	return backends.Fragment{}, false
}

// Dropped implements backends.Demuxer.
func (d *EventTypeDemuxer) Dropped() int {
	return d.dropped
}
