package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/relay/pkg/dispatch"
	"mercator-hq/relay/pkg/proxy"
	"mercator-hq/relay/pkg/telemetry/metrics"
)

// Dispatcher handles one decoded chat message.
// *dispatch.Dispatcher implements it.
type Dispatcher interface {
	HandleMessage(ctx context.Context, message string) dispatch.Reply
}

// ChatHandler serves POST /v1/chat.
type ChatHandler struct {
	dispatcher Dispatcher
	maxBytes   int64
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// NewChatHandler creates a chat handler. Request bodies larger than
// maxRequestBytes are rejected with 400.
func NewChatHandler(d Dispatcher, maxRequestBytes int, collector *metrics.Collector, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{
		dispatcher: d,
		maxBytes:   int64(maxRequestBytes),
		metrics:    collector,
		logger:     logger,
	}
}

// ServeHTTP handles one chat request.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		if err := proxy.MethodNotAllowed(w, http.MethodPost); err != nil {
			h.logger.ErrorContext(ctx, "failed to write error response", "error", err)
		}
		return
	}

	h.metrics.ConnectionOpened("http")
	defer h.metrics.ConnectionClosed("http")

	msg, err := proxy.ParseChatRequest(w, r, h.maxBytes)
	if err != nil {
		reply := dispatch.Failure(dispatch.BadRequest)
		var reqErr *proxy.RequestError
		if errors.As(err, &reqErr) {
			reply = dispatch.Failure(reqErr.Kind)
		}
		h.logger.WarnContext(ctx, "rejected chat request", "error", err)
		h.metrics.RecordDispatch(reply.Kind.String(), 0, 0)
		h.write(ctx, w, reply)
		return
	}

	start := time.Now()
	reply := h.dispatcher.HandleMessage(ctx, msg)

	h.logger.DebugContext(ctx, "chat request handled",
		"result", reply.Kind.String(),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.write(ctx, w, reply)
}

func (h *ChatHandler) write(ctx context.Context, w http.ResponseWriter, reply dispatch.Reply) {
	if err := proxy.WriteReply(w, reply); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response", "error", err)
	}
}
