package chatsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/zhouzirui/z-support/backend/internal/model/chat"
)

// ErrSendInFlight is returned while a previous send has not finished.
var ErrSendInFlight = errors.New("a message is already being sent")

// Draft is what the user typed or attached.
type Draft struct {
	Content  string
	ImageURL string
}

// Empty reports whether there is nothing to send after trimming.
func (d Draft) Empty() bool {
	return strings.TrimSpace(d.Content) == "" && strings.TrimSpace(d.ImageURL) == ""
}

// Sender inserts messages for a room. One send may be in flight at a time.
type Sender struct {
	backend Backend
	mode    Mode
	opts    options

	// resolve yields the session to send into, resolving on demand.
	resolve func(ctx context.Context) (*chat.Session, error)
	// appendLocal is set in visitor mode to show the message before its echo.
	appendLocal func(chat.Message) bool

	inFlight atomic.Bool
}

func newSender(backend Backend, mode Mode, opts options,
	resolve func(context.Context) (*chat.Session, error),
	appendLocal func(chat.Message) bool,
) *Sender {
	return &Sender{
		backend:     backend,
		mode:        mode,
		opts:        opts,
		resolve:     resolve,
		appendLocal: appendLocal,
	}
}

// Sending reports whether a send is in flight.
func (s *Sender) Sending() bool {
	return s.inFlight.Load()
}

// Send inserts the draft. An empty draft returns (nil, nil) without touching
// the backend. Visitor messages are appended locally only after the insert
// succeeds; admin messages show up through the change feed.
func (s *Sender) Send(ctx context.Context, d Draft) (*chat.Message, error) {
	if d.Empty() {
		return nil, nil
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrSendInFlight
	}
	defer s.inFlight.Store(false)

	session, err := s.resolve(ctx)
	if err != nil || session == nil {
		if errors.Is(err, ErrClosed) {
			return nil, ErrClosed
		}
		s.opts.logger.Error("send without session", "err", err)
		return nil, ErrSessionUnavailable
	}

	inserted, err := s.backend.InsertMessage(ctx, chat.Message{
		ID:        s.opts.newID(),
		SessionID: session.ID,
		Content:   chat.StringPtr(strings.TrimSpace(d.Content)),
		ImageURL:  chat.StringPtr(strings.TrimSpace(d.ImageURL)),
		IsAdmin:   s.mode == ModeAdmin,
		Status:    chat.MessageSent,
		CreatedAt: s.opts.now().UTC(),
	})
	if err != nil {
		s.opts.logger.Error("error sending message", "session_id", session.ID, "err", err)
		return nil, fmt.Errorf("send message: %w", err)
	}

	if s.appendLocal != nil {
		s.appendLocal(inserted)
	}
	return &inserted, nil
}
