package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/z-chat/backend/internal/service/chat"
	"github.com/zhouzirui/z-chat/backend/internal/service/clipboard"
	"github.com/zhouzirui/z-chat/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	controller *chatService.Controller
	logger     *zap.Logger
}

// New 创建聊天处理器
func New(controller *chatService.Controller, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		controller: controller,
		logger:     logger,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/messages", h.handleListMessages)
	r.Post("/messages", h.handleSubmit)
	r.Post("/messages/{messageID}/copy", h.handleCopy)
	r.Get("/state", h.handleState)
}

type submitRequest struct {
	Text  string         `json:"text"`
	Files []chat.FileRef `json:"files"`
}

// handleListMessages 返回完整的对话记录
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.controller.Messages())
}

// handleSubmit 提交一轮对话，等待助手回复后返回
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload submitRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	turn, err := h.controller.Submit(r.Context(), payload.Text, payload.Files)
	if err != nil {
		if errors.Is(err, chatService.ErrTurnInProgress) {
			utils.RespondError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("submit failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to submit message")
		return
	}

	if turn.Skipped {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, turn)
}

// handleCopy 复制指定消息到系统剪贴板
func (h *Handler) handleCopy(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	err := h.controller.CopyMessage(r.Context(), messageID)
	var clipErr *clipboard.ClipboardError
	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "copied", "messageId": messageID})
	case errors.Is(err, chatService.ErrMessageNotFound):
		utils.RespondError(w, http.StatusNotFound, "message not found")
	case errors.Is(err, chatService.ErrCopyUnavailable):
		utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &clipErr):
		utils.RespondError(w, http.StatusInternalServerError, "failed to copy message")
	default:
		h.logger.Error("copy failed", zap.String("messageId", messageID), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to copy message")
	}
}

// handleState 返回当前回合状态
func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.controller.State())
}
