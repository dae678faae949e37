package upload

import (
	"bufio"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-support/backend/internal/observability"
	chatService "github.com/zhouzirui/z-support/backend/internal/service/chat"
	"github.com/zhouzirui/z-support/backend/internal/storage"
	"github.com/zhouzirui/z-support/backend/pkg/utils"
)

// MaxImageBytes 单张图片上限
const MaxImageBytes = 10 << 20

// Handler 处理聊天图片上传
type Handler struct {
	uploader *storage.Uploader
}

// New 创建上传处理器
func New(uploader *storage.Uploader) *Handler {
	return &Handler{uploader: uploader}
}

// RegisterRoutes 注册上传路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions/{sessionID}/images", h.handleUploadImage)
}

// handleUploadImage 接收 multipart 字段 file，返回可公开访问的地址
func (h *Handler) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxImageBytes+1<<20)
	if err := r.ParseMultipartForm(MaxImageBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if header.Size > MaxImageBytes {
		utils.RespondError(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	}

	body := bufio.NewReader(file)
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		head, _ := body.Peek(512)
		contentType = http.DetectContentType(head)
	}

	url, err := h.uploader.UploadImage(r.Context(), chi.URLParam(r, "sessionID"), header.Filename, contentType, body)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotAnImage):
			utils.RespondError(w, http.StatusUnsupportedMediaType, err.Error())
		case errors.Is(err, storage.ErrFilenameRequired):
			utils.RespondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, storage.ErrObjectExists):
			utils.RespondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, chatService.ErrSessionNotFound):
			utils.RespondError(w, http.StatusNotFound, err.Error())
		default:
			observability.LoggerFromContext(r.Context()).Error("image upload failed", "err", err)
			utils.RespondError(w, http.StatusInternalServerError, "upload failed")
		}
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]string{"url": url})
}
