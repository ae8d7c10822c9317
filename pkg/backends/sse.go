package backends

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// maxSSELine caps one stream line. Longer lines are discarded and reading
// resumes at the next line.
const maxSSELine = 1 << 20

// SSEReader reads server-sent events from an upstream response body. Every
// "data:" line is yielded as its own RawEvent so a truncated frame never
// swallows the frames after it.
type SSEReader struct {
	backend string
	body    io.ReadCloser
	reader  *bufio.Reader
	line    []byte
	cancel  context.CancelFunc
	logger  *slog.Logger

	idle  time.Duration
	timer *time.Timer

	event     string
	closeOnce sync.Once
	done      bool
}

// NewSSEReader wraps body. cancel aborts the underlying request and is
// invoked on Close or when no line arrives within idle (if idle > 0).
func NewSSEReader(backend string, body io.ReadCloser, cancel context.CancelFunc, idle time.Duration) *SSEReader {
	r := &SSEReader{
		backend: backend,
		body:    body,
		reader:  bufio.NewReaderSize(body, 64*1024),
		cancel:  cancel,
		logger:  slog.Default().With("component", "sse", "backend", backend),
		idle:    idle,
	}
	if idle > 0 && cancel != nil {
		r.timer = time.AfterFunc(idle, cancel)
	}
	return r
}

// Next returns the next data event, or io.EOF at end of stream.
func (r *SSEReader) Next(ctx context.Context) (RawEvent, error) {
	if r.done {
		return RawEvent{}, io.EOF
	}

	for {
		if err := ctx.Err(); err != nil {
			return RawEvent{}, err
		}

		line, skipped, err := r.readLine()
		if err != nil {
			r.done = true
			if errors.Is(err, io.EOF) {
				return RawEvent{}, io.EOF
			}
			if ctx.Err() != nil {
				return RawEvent{}, ctx.Err()
			}
			return RawEvent{}, &StreamError{Backend: r.backend, Message: "failed to read stream", Cause: err}
		}
		if r.timer != nil {
			r.timer.Reset(r.idle)
		}
		if skipped {
			continue
		}

		switch {
		case len(line) == 0:
			r.event = ""
		case bytes.HasPrefix(line, []byte("event:")):
			r.event = string(bytes.TrimSpace(line[len("event:"):]))
		case bytes.HasPrefix(line, []byte("data:")):
			data := bytes.TrimPrefix(line[len("data:"):], []byte(" "))
			if bytes.Equal(data, []byte("[DONE]")) {
				r.done = true
				return RawEvent{}, io.EOF
			}
			return RawEvent{Event: r.event, Data: bytes.Clone(data)}, nil
		}
	}
}

// readLine returns the next line without its terminator. An oversized line
// is consumed and reported as skipped.
func (r *SSEReader) readLine() (line []byte, skipped bool, err error) {
	r.line = r.line[:0]
	oversized := false
	for {
		var chunk []byte
		chunk, err = r.reader.ReadSlice('\n')
		if !oversized {
			if len(r.line)+len(chunk) > maxSSELine {
				oversized = true
				r.line = r.line[:0]
			} else {
				r.line = append(r.line, chunk...)
			}
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && (!errors.Is(err, io.EOF) || oversized || len(r.line) == 0) {
			return nil, false, err
		}
		if oversized {
			r.logger.Warn("discarding oversized stream line", "limit_bytes", maxSSELine)
			return nil, true, nil
		}
		return bytes.TrimRight(r.line, "\r\n"), false, nil
	}
}

// Close releases the connection.
func (r *SSEReader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if r.timer != nil {
			r.timer.Stop()
		}
		err = r.body.Close()
		if r.cancel != nil {
			r.cancel()
		}
	})
	return err
}
