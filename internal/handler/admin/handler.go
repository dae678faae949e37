package admin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-support/backend/internal/middleware"
	"github.com/zhouzirui/z-support/backend/internal/model/chat"
	"github.com/zhouzirui/z-support/backend/internal/observability"
	adminService "github.com/zhouzirui/z-support/backend/internal/service/admin"
	chatService "github.com/zhouzirui/z-support/backend/internal/service/chat"
	"github.com/zhouzirui/z-support/backend/pkg/utils"
)

const (
	defaultConversationLimit = 50
	maxConversationLimit     = 200
)

// Handler 管理后台接口，要求管理员令牌
type Handler struct {
	adminSvc *adminService.Service
	chatSvc  *chatService.Service
	verifier middleware.TokenVerifier
}

// New 创建管理后台处理器
func New(adminSvc *adminService.Service, chatSvc *chatService.Service, verifier middleware.TokenVerifier) *Handler {
	return &Handler{adminSvc: adminSvc, chatSvc: chatSvc, verifier: verifier}
}

// RegisterRoutes 注册 /admin 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AdminAuth(h.verifier))

		r.Get("/dashboard", h.handleDashboard)
		r.Get("/conversations", h.handleConversations)
		r.Patch("/sessions/{sessionID}", h.handleUpdateSession)
		r.Delete("/messages/{messageID}", h.handleDeleteMessage)

		r.Post("/presence", h.handlePresence)
		r.Get("/presence", h.handlePeers)

		r.Get("/profile", h.handleGetProfile)
		r.Put("/profile", h.handleUpdateProfile)
	})
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.adminSvc.Dashboard(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, dashboard)
}

// handleConversations 会话列表，附带每个会话的最后一条消息
func (h *Handler) handleConversations(w http.ResponseWriter, r *http.Request) {
	limit := defaultConversationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			utils.RespondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxConversationLimit)
	}

	conversations, err := h.chatSvc.ListConversations(r.Context(), limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if conversations == nil {
		conversations = []chat.Conversation{}
	}
	utils.RespondJSON(w, http.StatusOK, conversations)
}

func (h *Handler) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status chat.SessionStatus `json:"status"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.chatSvc.UpdateSessionStatus(r.Context(), chi.URLParam(r, "sessionID"), payload.Status)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteMessage(r.Context(), chi.URLParam(r, "messageID")); err != nil {
		h.respondError(w, r, err)
		return
	}
	utils.RespondNoContent(w)
}

// handlePresence 心跳；online=false 表示主动下线
func (h *Handler) handlePresence(w http.ResponseWriter, r *http.Request) {
	payload := struct {
		Online *bool `json:"online"`
	}{}
	if r.ContentLength != 0 {
		if err := utils.DecodeJSON(r, &payload); err != nil {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	adminID := subject(r)
	var err error
	if payload.Online != nil && !*payload.Online {
		_, err = h.adminSvc.GoOffline(r.Context(), adminID)
	} else {
		_, err = h.adminSvc.Heartbeat(r.Context(), adminID)
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	utils.RespondNoContent(w)
}

// handlePeers 列出除自己以外的在线管理员
func (h *Handler) handlePeers(w http.ResponseWriter, r *http.Request) {
	peers, err := h.adminSvc.ListPeers(r.Context(), subject(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, peers)
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.adminSvc.Profile(r.Context(), subject(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, user)
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.adminSvc.UpdateProfile(r.Context(), subject(r), payload.Name, payload.Email)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, user)
}

func subject(r *http.Request) string {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return ""
	}
	return claims.Subject
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound),
		errors.Is(err, chatService.ErrMessageNotFound),
		errors.Is(err, adminService.ErrAdminNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chatService.ErrInvalidStatus), errors.Is(err, adminService.ErrInvalidEmail):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		observability.LoggerFromContext(r.Context()).Error("admin request failed", "path", r.URL.Path, "err", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
