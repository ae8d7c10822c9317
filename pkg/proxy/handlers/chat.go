package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"teclab/bitgate/pkg/orchestrator"
	"teclab/bitgate/pkg/proxy"
	"teclab/bitgate/pkg/proxy/types"
	"teclab/bitgate/pkg/telemetry/logging"
)

// ChatHandler serves POST /v1/chat/completions.
type ChatHandler struct {
	completer       Completer
	maxRequestBytes int64
	logger          *slog.Logger
}

// NewChatHandler creates a chat handler. maxRequestBytes <= 0 selects
// proxy.DefaultMaxRequestBytes.
func NewChatHandler(c Completer, maxRequestBytes int64) *ChatHandler {
	return &ChatHandler{
		completer:       c,
		maxRequestBytes: maxRequestBytes,
		logger:          slog.Default().With("component", "chat_handler"),
	}
}

// ServeHTTP implements http.Handler.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeError(ctx, w, types.NewErrorResponse(
			fmt.Sprintf("Method %s not allowed. Use POST instead.", r.Method),
			types.ErrorTypeInvalidRequest, "method", types.CodeMethodNotAllowed,
		))
		return
	}

	chatReq, err := proxy.ParseChatCompletionRequest(r, h.maxRequestBytes)
	if err != nil {
		h.logger.WarnContext(ctx, "rejected chat request", "error", err)
		h.writeError(ctx, w, proxy.HandleError(err))
		return
	}

	ctx = logging.WithModel(ctx, chatReq.Model)
	req := orchestrator.Request{
		Model:    chatReq.Model,
		Messages: proxy.TurnMessages(chatReq),
	}

	if chatReq.Stream {
		h.stream(ctx, w, req)
		return
	}
	h.complete(ctx, w, req)
}

func (h *ChatHandler) complete(ctx context.Context, w http.ResponseWriter, req orchestrator.Request) {
	res, err := h.completer.Complete(ctx, req)
	if err != nil {
		h.writeError(ctx, w, proxy.HandleError(err))
		return
	}

	resp := proxy.FormatChatCompletionResponse(res, req.Model, proxy.NewCompletionID())
	if err := proxy.WriteJSONResponse(w, http.StatusOK, resp); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// stream forwards fragments as they arrive. Errors found before the first
// byte is written get a regular JSON error; later ones are sent as an SSE
// error event without the [DONE] marker.
func (h *ChatHandler) stream(ctx context.Context, w http.ResponseWriter, req orchestrator.Request) {
	// Cancelling stops the producer if the client goes away mid-stream.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := h.completer.Stream(ctx, req)
	if err != nil {
		h.writeError(ctx, w, proxy.HandleError(err))
		return
	}

	proxy.SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	id := proxy.NewCompletionID()
	start := time.Now()
	chunks := 0

	for ev := range events {
		switch {
		case ev.Err != nil:
			if err := proxy.WriteSSEError(w, proxy.HandleError(ev.Err)); err != nil {
				h.logger.WarnContext(ctx, "failed to write SSE error", "error", err)
			}
			return

		case ev.Done:
			if err := proxy.WriteSSEChunk(w, proxy.FormatFinalChunk(req.Model, id)); err != nil {
				h.logger.WarnContext(ctx, "failed to write final chunk", "error", err)
				return
			}
			if err := proxy.WriteSSEDone(w); err != nil {
				h.logger.WarnContext(ctx, "failed to write SSE done marker", "error", err)
				return
			}
			h.logger.DebugContext(ctx, "stream finished",
				"chunks", chunks,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return

		default:
			if err := proxy.WriteSSEChunk(w, proxy.FormatStreamChunk(ev.Fragment, req.Model, id)); err != nil {
				h.logger.WarnContext(ctx, "client went away during stream",
					"chunks", chunks,
					"error", err,
				)
				return
			}
			chunks++
		}
	}
}

func (h *ChatHandler) writeError(ctx context.Context, w http.ResponseWriter, errResp *types.ErrorResponse) {
	if err := proxy.WriteErrorResponse(w, errResp); err != nil {
		h.logger.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}
