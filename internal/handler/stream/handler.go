package stream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/z-chat/backend/internal/service/chat"
	"github.com/zhouzirui/z-chat/backend/internal/service/feed"
	"github.com/zhouzirui/z-chat/backend/pkg/utils"
)

const defaultHeartbeat = 15 * time.Second

// Subscriber hands out feed subscriptions.
type Subscriber interface {
	Subscribe() (<-chan feed.Event, func())
}

// Handler pushes transcript changes to the renderer via Server-Sent Events.
type Handler struct {
	controller *chatService.Controller
	feed       Subscriber
	heartbeat  time.Duration
	logger     *zap.Logger
}

// New creates a new stream handler
func New(controller *chatService.Controller, subscriber Subscriber, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		controller: controller,
		feed:       subscriber,
		heartbeat:  defaultHeartbeat,
		logger:     logger,
	}
}

// Snapshot is the first event of every stream so late subscribers can render
// the whole conversation before applying incremental events.
type Snapshot struct {
	Messages []chat.Message `json:"messages"`
	State    chat.TurnState `json:"state"`
}

// ServeHTTP streams a snapshot followed by feed events until the client goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.HandleStreamRequest(r.Context(), w); err != nil {
		h.logger.Warn("stream closed with error", zap.Error(err))
	}
}

// HandleStreamRequest writes the SSE stream to w.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return fmt.Errorf("streaming unsupported")
	}

	// Subscribe before taking the snapshot so no change falls in between.
	events, cancel := h.feed.Subscribe()
	defer cancel()

	utils.SetupSSEHeaders(w)

	if err := utils.SendSSEEvent(w, flusher, "snapshot", Snapshot{
		Messages: h.controller.Messages(),
		State:    h.controller.State(),
	}); err != nil {
		return err
	}

	h.logger.Debug("sse stream opened")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("sse stream closed")
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Type), ev); err != nil {
				return err
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return err
			}
		}
	}
}
