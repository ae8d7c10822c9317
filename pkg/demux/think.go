package demux

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"teclab/bitgate/pkg/backends"
)

const (
	OpenThink  = "<think>"
	CloseThink = "</think>"
)

type thinkState int

const (
	beforeThink thinkState = iota
	inThink
	afterThink
)

// ThinkTagDemuxer classifies a stream of {"answer": "..."} events whose
// reasoning is delimited by <think> ... </think> in the running text.
//
// The demuxer tracks what the cumulative text has shown so far: a fragment
// is reasoning while an open marker has been seen and no close marker has.
// The fragment that completes the close marker is content. Markers are
// stripped from the emitted text. A trailing partial marker is held back
// until the next event resolves it, which is the only buffering done.
type ThinkTagDemuxer struct {
	// Field is the JSON key carrying the text. Defaults to "answer".
	Field string

	state   thinkState
	pending string
	dropped int
}

// NewThinkTagDemuxer creates a demuxer reading the "answer" field.
func NewThinkTagDemuxer() *ThinkTagDemuxer {
	return &ThinkTagDemuxer{Field: "answer"}
}

// Classify implements backends.Demuxer.
func (d *ThinkTagDemuxer) Classify(ev backends.RawEvent) (backends.Fragment, bool) {
	text, ok := d.decode(ev.Data)
	if !ok {
		d.dropped++
		return backends.Fragment{}, false
	}
	return d.feed(text)
}

// Flush releases a held-back partial marker as plain text.
func (d *ThinkTagDemuxer) Flush() (backends.Fragment, bool) {
	if d.pending == "" {
		return backends.Fragment{}, false
	}
	text := d.pending
	d.pending = ""
	return backends.Fragment{Kind: d.kind(), Text: text}, true
}

// Dropped implements backends.Demuxer.
func (d *ThinkTagDemuxer) Dropped() int {
	return d.dropped
}

func (d *ThinkTagDemuxer) decode(data []byte) (string, bool) {
	if !utf8.Valid(data) {
		return "", false
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", false
	}
	field := d.Field
	if field == "" {
		field = "answer"
	}
	raw, ok := payload[field]
	if !ok {
		return "", false
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", false
	}
	return text, true
}

func (d *ThinkTagDemuxer) feed(text string) (backends.Fragment, bool) {
	s := d.pending + text
	d.pending = ""

	switch d.state {
	case beforeThink:
		if i := strings.Index(s, OpenThink); i >= 0 {
			d.state = inThink
			s = s[:i] + s[i+len(OpenThink):]
			// The close marker may arrive in the same event.
			if j := strings.Index(s, CloseThink); j >= 0 {
				d.state = afterThink
				s = s[:j] + s[j+len(CloseThink):]
			}
		} else if j := strings.Index(s, CloseThink); j >= 0 {
			d.state = afterThink
			s = s[:j] + s[j+len(CloseThink):]
		}
	case inThink:
		if j := strings.Index(s, CloseThink); j >= 0 {
			d.state = afterThink
			s = s[:j] + s[j+len(CloseThink):]
		}
	}

	if d.state != afterThink {
		s, d.pending = splitPartialMarker(s, d.nextMarker())
	}

	if s == "" {
		return backends.Fragment{}, false
	}
	return backends.Fragment{Kind: d.kind(), Text: s}, true
}

func (d *ThinkTagDemuxer) kind() backends.FragmentKind {
	if d.state == inThink {
		return backends.KindReasoning
	}
	return backends.KindContent
}

func (d *ThinkTagDemuxer) nextMarker() string {
	if d.state == inThink {
		return CloseThink
	}
	return OpenThink
}

// splitPartialMarker splits off the longest suffix of s that is a proper
// prefix of marker.
func splitPartialMarker(s, marker string) (emit, held string) {
	n := len(marker) - 1
	if n > len(s) {
		n = len(s)
	}
	for ; n > 0; n-- {
		if strings.HasSuffix(s, marker[:n]) {
			return s[:len(s)-n], s[len(s)-n:]
		}
	}
	return s, ""
}
