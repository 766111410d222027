package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/z-chat/backend/internal/service/chat"
	"github.com/zhouzirui/z-chat/backend/internal/service/feed"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
)

// Subscriber hands out feed subscriptions.
type Subscriber interface {
	Subscribe() (<-chan feed.Event, func())
}

// Handler WebSocket 对话处理器：推送对话事件，并接受提交与复制指令
type Handler struct {
	controller *chatService.Controller
	feed       Subscriber
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

// New 创建WebSocket处理器
func New(controller *chatService.Controller, subscriber Subscriber, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		controller: controller,
		feed:       subscriber,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SubmitMessage 提交消息
type SubmitMessage struct {
	Text  string         `json:"text"`
	Files []chat.FileRef `json:"files,omitempty"`
}

// CopyMessage 复制消息
type CopyMessage struct {
	MessageID string `json:"messageId"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// connection serializes writes; gorilla allows one concurrent writer.
type connection struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	logger  *zap.Logger
}

func (c *connection) send(msgType string, data interface{}) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(outgoingMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}); err != nil {
		c.logger.Debug("websocket write failed", zap.String("type", msgType), zap.Error(err))
	}
}

func (c *connection) sendError(message string) {
	c.send("error", map[string]string{"message": message})
}

func (c *connection) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	events, cancelSub := h.feed.Subscribe()
	defer cancelSub()

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer wsConn.Close()

	conn := &connection{conn: wsConn, logger: h.logger}
	h.logger.Debug("websocket connected", zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = wsConn.SetReadDeadline(time.Now().Add(readTimeout))
	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	conn.send("snapshot", map[string]any{
		"messages": h.controller.Messages(),
		"state":    h.controller.State(),
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writeLoop(ctx, conn, events)
	}()

	h.readLoop(ctx, conn)
	cancel()
	wg.Wait()
}

func (h *Handler) writeLoop(ctx context.Context, conn *connection, events <-chan feed.Event) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.send(string(ev.Type), ev)
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *connection) {
	for {
		var msg inboundMessage
		if err := conn.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		_ = conn.conn.SetReadDeadline(time.Now().Add(readTimeout))

		h.handleMessage(ctx, conn, &msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, conn *connection, msg *inboundMessage) {
	switch msg.Type {
	case "submit":
		var payload SubmitMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			conn.sendError("invalid submit payload")
			return
		}
		// The turn runs in the background and is not bound to this
		// connection: it completes even after the client leaves, and its
		// messages arrive through the feed.
		go h.submit(ctx, conn, payload)
	case "copy":
		var payload CopyMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			conn.sendError("invalid copy payload")
			return
		}
		if err := h.controller.CopyMessage(ctx, payload.MessageID); err != nil {
			if errors.Is(err, chatService.ErrMessageNotFound) {
				conn.sendError("message not found")
				return
			}
			conn.sendError("failed to copy message")
		}
	default:
		conn.sendError("unsupported message type: " + msg.Type)
	}
}

func (h *Handler) submit(ctx context.Context, conn *connection, payload SubmitMessage) {
	turn, err := h.controller.Submit(ctx, payload.Text, payload.Files)
	if ctx.Err() != nil {
		return
	}

	switch {
	case errors.Is(err, chatService.ErrTurnInProgress):
		conn.sendError(err.Error())
	case err != nil:
		h.logger.Error("websocket submit failed", zap.Error(err))
		conn.sendError("failed to submit message")
	case turn.Skipped:
		conn.send("skipped", nil)
	}
}
