package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-support/backend/internal/model/chat"
	"github.com/zhouzirui/z-support/backend/internal/observability"
)

const (
	subscribeTimeout = 10 * time.Second
	pongWait         = 60 * time.Second
)

// Subscribe opens the realtime websocket for filter. The returned
// subscription is live once Subscribe returns.
func (c *Client) Subscribe(ctx context.Context, filter chat.Filter) (chat.Subscription, error) {
	query := url.Values{"table": {filter.Table}}
	if f := filter.String(); f != "" {
		query.Set("filter", f)
	}
	wsURL := *c.baseURL
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path += "/api/realtime"
	wsURL.RawQuery = query.Encode()

	header := http.Header{}
	c.authorize(header)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: subscribeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL.String(), header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: "realtime handshake failed"}
		}
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(subscribeTimeout))
	var ack chat.Frame
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read subscribe ack: %w", err)
	}
	if ack.Type != chat.FrameSubscribed {
		conn.Close()
		return nil, fmt.Errorf("subscribe rejected: %s", ack.Error)
	}

	sub := &subscription{
		conn:   conn,
		events: make(chan chat.Event, 64),
		done:   make(chan struct{}),
		filter: filter,
	}
	go sub.readLoop()
	return sub, nil
}

type subscription struct {
	conn   *websocket.Conn
	events chan chat.Event
	done   chan struct{}
	filter chat.Filter
	once   sync.Once
}

func (s *subscription) Events() <-chan chat.Event {
	return s.events
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}

func (s *subscription) readLoop() {
	defer close(s.events)
	logger := observability.WithFields("component", "realtime-client", "table", s.filter.Table)

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPingHandler(func(data string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	for {
		var frame chat.Frame
		if err := s.conn.ReadJSON(&frame); err != nil {
			select {
			case <-s.done:
			default:
				logger.Warn("realtime connection lost", "err", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch frame.Type {
		case chat.FrameChange:
			if frame.Event == nil {
				continue
			}
			select {
			case s.events <- *frame.Event:
			case <-s.done:
				return
			}
		case chat.FrameError:
			logger.Warn("realtime error frame", "error", frame.Error)
		}
	}
}
