// Package chatsync keeps a chat view in step with the backend: it resolves
// the session once, mirrors its messages from a bulk load plus a change feed,
// and sends new messages with a single-flight guard.
//
// One Room corresponds to one mounted chat view. It is owned by that view;
// nothing here is shared between rooms except the Backend.
package chatsync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/z-support/backend/internal/model/chat"
	"github.com/zhouzirui/z-support/backend/internal/observability"
)

var (
	// ErrClosed is returned once the room has been torn down.
	ErrClosed = errors.New("chat room closed")
	// ErrSessionUnavailable means no session could be resolved for a send.
	ErrSessionUnavailable = errors.New("failed to initialize chat session")
	// ErrSessionNotFound is the admin-side result for an unknown session id.
	ErrSessionNotFound = chat.ErrSessionNotFound
)

// Backend is the hosted store and change feed a room talks to.
type Backend interface {
	FindSessionsByVisitor(ctx context.Context, visitorID string) ([]chat.Session, error)
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
	CreateSession(ctx context.Context, session chat.Session) (chat.Session, error)
	ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error)
	InsertMessage(ctx context.Context, message chat.Message) (chat.Message, error)
	Subscribe(ctx context.Context, filter chat.Filter) (chat.Subscription, error)
}

// Mode selects the visitor or admin flavour of a room.
type Mode int

const (
	ModeVisitor Mode = iota
	ModeAdmin
)

func (m Mode) String() string {
	if m == ModeAdmin {
		return "admin"
	}
	return "visitor"
}

// options are shared by the resolver, synchronizer and sender of a room.
type options struct {
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// Option customises a Room.
type Option func(*options)

// WithLogger sets the logger used for swallowed failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator replaces uuid.NewString for new sessions and messages.
func WithIDGenerator(newID func() string) Option {
	return func(o *options) { o.newID = newID }
}

func buildOptions(mode Mode, opts []Option) options {
	o := options{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = observability.Logger()
	}
	o.logger = o.logger.With("component", "chatsync", "mode", mode.String())
	return o
}

// contextAlive reports whether ctx has not been cancelled yet.
func contextAlive(ctx context.Context) bool {
	return ctx.Err() == nil
}
