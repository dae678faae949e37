package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-support/backend/internal/middleware"
	"github.com/zhouzirui/z-support/backend/internal/observability"
	authService "github.com/zhouzirui/z-support/backend/internal/service/auth"
	"github.com/zhouzirui/z-support/backend/pkg/utils"
)

const eventsHeartbeat = 25 * time.Second

// Handler 管理员登录、登出与找回密码
type Handler struct {
	authSvc *authService.Service
}

// New 创建认证处理器
func New(authSvc *authService.Service) *Handler {
	return &Handler{authSvc: authSvc}
}

// RegisterRoutes 注册认证路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/token", h.handleSignIn)
		r.Post("/recover", h.handleRecover)
		r.Post("/verify", h.handleVerify)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminAuth(h.authSvc))
			r.Post("/logout", h.handleSignOut)
			r.Get("/user", h.handleGetUser)
			r.Put("/user", h.handleUpdateUser)
			r.Get("/events", h.handleEvents)
		})
	})
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.authSvc.SignIn(r.Context(), payload.Email, payload.Password)
	if err != nil {
		h.respondAuthError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.authSvc.SignOut(r.Context(), middleware.BearerToken(r)); err != nil {
		h.respondAuthError(w, r, err)
		return
	}
	utils.RespondNoContent(w)
}

// handleRecover 发送重置密码邮件。邮箱不存在时同样返回成功。
func (h *Handler) handleRecover(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email      string `json:"email"`
		RedirectTo string `json:"redirect_to"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.authSvc.RequestPasswordReset(r.Context(), payload.Email, payload.RedirectTo); err != nil {
		h.respondAuthError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{})
}

// handleVerify 用恢复令牌换取访问令牌
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Token string `json:"token"`
		Type  string `json:"type"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Type != "" && payload.Type != "recovery" {
		utils.RespondError(w, http.StatusBadRequest, "unsupported verification type")
		return
	}

	session, err := h.authSvc.ExchangeRecovery(r.Context(), payload.Token)
	if err != nil {
		h.respondAuthError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	user, err := h.authSvc.User(r.Context(), claims)
	if err != nil {
		h.respondAuthError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, user)
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Password string `json:"password"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	claims, _ := middleware.ClaimsFromContext(r.Context())
	user, err := h.authSvc.UpdatePassword(r.Context(), claims, payload.Password)
	if err != nil {
		h.respondAuthError(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, user)
}

// handleEvents 以 SSE 推送当前管理员的认证状态变化
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	claims, _ := middleware.ClaimsFromContext(r.Context())

	events, unsubscribe := h.authSvc.Subscribe()
	defer unsubscribe()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(eventsHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.UserID != claims.Subject {
				continue
			}
			if err := utils.SendSSEEvent(w, flusher, string(evt.Type), evt); err != nil {
				return
			}
		}
	}
}

func (h *Handler) respondAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authService.ErrInvalidCredentials):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, authService.ErrInvalidToken):
		utils.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, authService.ErrWeakPassword), errors.Is(err, authService.ErrEmailRequired):
		utils.RespondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		observability.LoggerFromContext(r.Context()).Error("auth request failed", "path", r.URL.Path, "err", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
