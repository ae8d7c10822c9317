package backends

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func readAll(t *testing.T, r *SSEReader) []RawEvent {
	t.Helper()
	var out []RawEvent
	for {
		ev, err := r.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out = append(out, ev)
	}
}

func TestSSEReader_DataLines(t *testing.T) {
	body := "data: {\"answer\":\"a\"}\n\n" +
		": comment\n" +
		"event: message\n" +
		"data: {\"answer\":\"b\"}\n\n" +
		"data:{\"answer\":\"c\"}\n"
	r := NewSSEReader("test", io.NopCloser(strings.NewReader(body)), nil, 0)

	events := readAll(t, r)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if string(events[0].Data) != `{"answer":"a"}` {
		t.Errorf("unexpected first event: %q", events[0].Data)
	}
	if events[1].Event != "message" {
		t.Errorf("expected event name message, got %q", events[1].Event)
	}
	if events[2].Event != "" {
		t.Errorf("expected event name reset after blank line, got %q", events[2].Event)
	}
	if string(events[2].Data) != `{"answer":"c"}` {
		t.Errorf("unexpected third event: %q", events[2].Data)
	}
}

func TestSSEReader_OversizedLineSkipped(t *testing.T) {
	huge := "data: " + strings.Repeat("x", maxSSELine+10)
	body := "data: first\n\n" + huge + "\n\n" + "data: second\r\n\n" + "data: last"
	r := NewSSEReader("test", io.NopCloser(strings.NewReader(body)), nil, 0)

	events := readAll(t, r)
	var got []string
	for _, ev := range events {
		got = append(got, string(ev.Data))
	}
	if strings.Join(got, ",") != "first,second,last" {
		t.Errorf("events = %q, want first,second,last", got)
	}
}

func TestSSEReader_DoneTerminates(t *testing.T) {
	body := "data: x\n\ndata: [DONE]\n\ndata: y\n\n"
	r := NewSSEReader("test", io.NopCloser(strings.NewReader(body)), nil, 0)

	events := readAll(t, r)
	if len(events) != 1 || string(events[0].Data) != "x" {
		t.Fatalf("expected single event x, got %+v", events)
	}
}

type blockingBody struct {
	closed chan struct{}
}

func (b *blockingBody) Read(p []byte) (int, error) {
	<-b.closed
	return 0, io.ErrClosedPipe
}

func (b *blockingBody) Close() error {
	select {
	case <-b.closed:
	default:
		close(b.closed)
	}
	return nil
}

func TestSSEReader_IdleTimeoutCancels(t *testing.T) {
	body := &blockingBody{closed: make(chan struct{})}
	cancelled := make(chan struct{})
	cancel := func() {
		select {
		case <-cancelled:
		default:
			close(cancelled)
			_ = body.Close()
		}
	}
	r := NewSSEReader("test", body, cancel, 20*time.Millisecond)
	defer r.Close()

	_, err := r.Next(context.Background())
	var streamErr *StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("expected StreamError after idle timeout, got %v", err)
	}
	select {
	case <-cancelled:
	default:
		t.Error("expected cancel to be invoked")
	}
}

func TestSSEReader_CloseIdempotent(t *testing.T) {
	r := NewSSEReader("test", io.NopCloser(strings.NewReader("")), nil, 0)
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
}
