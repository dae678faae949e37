package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-support/backend/internal/handler/admin"
	"github.com/zhouzirui/z-support/backend/internal/handler/auth"
	"github.com/zhouzirui/z-support/backend/internal/handler/chat"
	"github.com/zhouzirui/z-support/backend/internal/handler/realtime"
	"github.com/zhouzirui/z-support/backend/internal/handler/upload"
	middlewarePkg "github.com/zhouzirui/z-support/backend/internal/middleware"
	adminService "github.com/zhouzirui/z-support/backend/internal/service/admin"
	authService "github.com/zhouzirui/z-support/backend/internal/service/auth"
	chatService "github.com/zhouzirui/z-support/backend/internal/service/chat"
	"github.com/zhouzirui/z-support/backend/internal/storage"
	"github.com/zhouzirui/z-support/backend/pkg/utils"
)

// Deps 路由依赖的服务
type Deps struct {
	AnonKey         string
	Chat            *chatService.Service
	Admin           *adminService.Service
	Auth            *authService.Service
	Uploader        *storage.Uploader
	EventsPerSecond float64
	// LocalStorageDir 非空时在 /storage/ 下提供本地上传的文件
	LocalStorageDir string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.LocalStorageDir != "" {
		fs := http.StripPrefix("/storage/", http.FileServer(http.Dir(deps.LocalStorageDir)))
		r.Handle("/storage/*", fs)
	}

	chatHandler := chat.New(deps.Chat, deps.Auth)
	realtimeHandler := realtime.New(deps.Chat, deps.EventsPerSecond)
	authHandler := auth.New(deps.Auth)
	adminHandler := admin.New(deps.Admin, deps.Chat, deps.Auth)

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.AnonKey(deps.AnonKey))

		// 访客端（聊天组件）
		chatHandler.RegisterRoutes(api)
		realtimeHandler.RegisterRoutes(api)
		if deps.Uploader != nil {
			upload.New(deps.Uploader).RegisterRoutes(api)
		}

		// 管理后台
		authHandler.RegisterRoutes(api)
		adminHandler.RegisterRoutes(api)
	})

	return r
}
