package chat

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-support/backend/internal/middleware"
	"github.com/zhouzirui/z-support/backend/internal/model/chat"
	"github.com/zhouzirui/z-support/backend/internal/observability"
	chatService "github.com/zhouzirui/z-support/backend/internal/service/chat"
	"github.com/zhouzirui/z-support/backend/pkg/utils"
)

// Handler 会话与消息的HTTP处理器
type Handler struct {
	chatSvc  *chatService.Service
	verifier middleware.TokenVerifier
}

// New 创建聊天处理器。verifier 用于判断请求是否来自管理员。
func New(chatSvc *chatService.Service, verifier middleware.TokenVerifier) *Handler {
	return &Handler{
		chatSvc:  chatSvc,
		verifier: verifier,
	}
}

// RegisterRoutes 注册会话与消息相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions", h.handleFindSessions)
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Get("/sessions/{sessionID}/messages", h.handleListMessages)
	r.Post("/messages", h.handleInsertMessage)
	r.Patch("/messages/{messageID}", h.handleUpdateMessage)
}

// handleFindSessions 按访客查找会话，最新的在前
func (h *Handler) handleFindSessions(w http.ResponseWriter, r *http.Request) {
	visitorID := strings.TrimSpace(r.URL.Query().Get("visitor_id"))
	if visitorID == "" {
		utils.RespondError(w, http.StatusBadRequest, "visitor_id is required")
		return
	}

	sessions, err := h.chatSvc.FindSessionsByVisitor(r.Context(), visitorID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []chat.Session{}
	}
	utils.RespondJSON(w, http.StatusOK, sessions)
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ID        string             `json:"id"`
		VisitorID string             `json:"visitor_id"`
		Status    chat.SessionStatus `json:"status"`
		CreatedAt time.Time          `json:"created_at"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context(), chat.Session{
		ID:        payload.ID,
		VisitorID: payload.VisitorID,
		Status:    payload.Status,
		CreatedAt: payload.CreatedAt,
		UpdatedAt: payload.CreatedAt,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleListMessages 返回会话的全部消息，按创建时间升序
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	messages, err := h.chatSvc.ListMessages(r.Context(), sessionID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, messages)
}

// handleInsertMessage 保存消息。is_admin 为 true 时必须携带管理员令牌。
func (h *Handler) handleInsertMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ID        string             `json:"id"`
		SessionID string             `json:"session_id"`
		Content   *string            `json:"content"`
		ImageURL  *string            `json:"image_url"`
		IsAdmin   bool               `json:"is_admin"`
		Status    chat.MessageStatus `json:"status"`
		CreatedAt time.Time          `json:"created_at"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.SessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if payload.IsAdmin && !h.isAdmin(r) {
		utils.RespondError(w, http.StatusForbidden, "admin token required")
		return
	}

	message, err := h.chatSvc.InsertMessage(r.Context(), chat.Message{
		ID:        payload.ID,
		SessionID: payload.SessionID,
		Content:   payload.Content,
		ImageURL:  payload.ImageURL,
		IsAdmin:   payload.IsAdmin,
		Status:    payload.Status,
		CreatedAt: payload.CreatedAt,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, message)
}

// handleUpdateMessage 更新消息状态（delivered / read）
func (h *Handler) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status chat.MessageStatus `json:"status"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	message, err := h.chatSvc.UpdateMessageStatus(r.Context(), chi.URLParam(r, "messageID"), payload.Status)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, message)
}

func (h *Handler) isAdmin(r *http.Request) bool {
	if h.verifier == nil {
		return false
	}
	token := middleware.BearerToken(r)
	if token == "" {
		return false
	}
	_, err := h.verifier.Verify(token)
	return err == nil
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound), errors.Is(err, chatService.ErrMessageNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrVisitorRequired),
		errors.Is(err, chatService.ErrEmptyMessage),
		errors.Is(err, chatService.ErrInvalidStatus):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		observability.LoggerFromContext(r.Context()).Error("chat request failed", "path", r.URL.Path, "err", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
