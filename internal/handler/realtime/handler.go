// Package realtime streams change events to widget and dashboard clients
// over a websocket, or over SSE when the client cannot upgrade.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/z-support/backend/internal/model/chat"
	"github.com/zhouzirui/z-support/backend/internal/observability"
	"github.com/zhouzirui/z-support/backend/pkg/utils"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	sseHeartbeat = 25 * time.Second
)

var allowedTables = map[string]bool{
	chat.TableSessions:   true,
	chat.TableMessages:   true,
	chat.TableAdminUsers: true,
}

// Subscriber opens a filtered change feed.
type Subscriber interface {
	Subscribe(ctx context.Context, filter chat.Filter) (chat.Subscription, error)
}

// Handler serves GET /realtime.
type Handler struct {
	subscriber      Subscriber
	eventsPerSecond float64
	upgrader        websocket.Upgrader
}

// New 创建实时推送处理器
func New(subscriber Subscriber, eventsPerSecond float64) *Handler {
	if eventsPerSecond <= 0 {
		eventsPerSecond = 10
	}
	return &Handler{
		subscriber:      subscriber,
		eventsPerSecond: eventsPerSecond,
		upgrader: websocket.Upgrader{
			// 组件嵌入在第三方站点，来源由匿名密钥把关
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes 注册实时路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/realtime", h.handleSubscribe)
}

func (h *Handler) parseFilter(r *http.Request) (chat.Filter, error) {
	q := r.URL.Query()
	table := q.Get("table")
	if table == "" {
		table = chat.TableMessages
	}
	if !allowedTables[table] {
		return chat.Filter{}, errors.New("unknown table " + table)
	}
	return chat.ParseFilter(table, q.Get("filter"))
}

func (h *Handler) newLimiter() *rate.Limiter {
	burst := int(h.eventsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(h.eventsPerSecond), burst)
}

func (h *Handler) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if websocket.IsWebSocketUpgrade(r) {
		h.serveWebSocket(w, r, filter)
		return
	}
	h.serveSSE(w, r, filter)
}

func (h *Handler) serveWebSocket(w http.ResponseWriter, r *http.Request, filter chat.Filter) {
	logger := observability.LoggerFromContext(r.Context()).With("table", filter.Table, "filter", filter.String())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	// r.Context() 在 hijack 之后不再随连接关闭而取消，由读循环负责
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := h.subscriber.Subscribe(ctx, filter)
	if err != nil {
		logger.Error("subscribe failed", "err", err)
		h.writeFrame(conn, chat.Frame{Type: chat.FrameError, Error: "subscribe failed"})
		return
	}
	defer sub.Close()

	logger.Info("realtime subscriber connected")
	defer logger.Info("realtime subscriber disconnected")

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go h.readLoop(conn, cancel, logger)

	if err := h.writeFrame(conn, chat.Frame{Type: chat.FrameSubscribed, Filter: filter.String()}); err != nil {
		return
	}

	limiter := h.newLimiter()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			if err := h.writeFrame(conn, chat.Frame{Type: chat.FrameChange, Event: &evt}); err != nil {
				logger.Debug("write change failed", "err", err)
				return
			}
		}
	}
}

// readLoop 只负责处理 pong 与关闭帧，客户端不会主动发送业务消息
func (h *Handler) readLoop(conn *websocket.Conn, cancel context.CancelFunc, logger *slog.Logger) {
	defer cancel()
	for {
		if _, _, err := conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read error", "err", err)
			}
			return
		}
	}
}

func (h *Handler) writeFrame(conn *websocket.Conn, frame chat.Frame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}

func (h *Handler) serveSSE(w http.ResponseWriter, r *http.Request, filter chat.Filter) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	sub, err := h.subscriber.Subscribe(ctx, filter)
	if err != nil {
		observability.LoggerFromContext(ctx).Error("subscribe failed", "err", err)
		utils.RespondError(w, http.StatusInternalServerError, "subscribe failed")
		return
	}
	defer sub.Close()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEEvent(w, flusher, string(chat.FrameSubscribed), chat.Frame{Type: chat.FrameSubscribed, Filter: filter.String()}); err != nil {
		return
	}

	limiter := h.newLimiter()
	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(chat.FrameChange), chat.Frame{Type: chat.FrameChange, Event: &evt}); err != nil {
				return
			}
		}
	}
}
