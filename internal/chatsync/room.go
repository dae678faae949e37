package chatsync

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/zhouzirui/z-support/backend/internal/model/chat"
)

// Room is the state behind one mounted chat view.
type Room struct {
	mode     Mode
	opts     options
	resolver *Resolver
	sync     *Synchronizer
	sender   *Sender

	loading atomic.Bool
	// attached is set by the first attach attempt. A failed attach is not
	// retried for the lifetime of the room.
	attached atomic.Bool

	mu     sync.Mutex
	closed bool
}

// NewVisitorRoom builds the widget side: the session is found or created
// for visitorID.
func NewVisitorRoom(backend Backend, visitorID string, opts ...Option) *Room {
	return newRoom(backend, ModeVisitor, visitorID, opts)
}

// NewAdminRoom builds the dashboard side for an existing session.
func NewAdminRoom(backend Backend, sessionID string, opts ...Option) *Room {
	return newRoom(backend, ModeAdmin, sessionID, opts)
}

func newRoom(backend Backend, mode Mode, key string, opts []Option) *Room {
	o := buildOptions(mode, opts)
	r := &Room{
		mode:     mode,
		opts:     o,
		resolver: newResolver(backend, mode, key, o),
		sync:     newSynchronizer(backend, mode, o),
	}
	var appendLocal func(chat.Message) bool
	if mode == ModeVisitor {
		appendLocal = r.sync.Append
	}
	r.sender = newSender(backend, mode, o, r.resolver.Resolve, appendLocal)
	return r
}

// Open resolves the session and attaches the synchronizer to it. It is safe
// to call repeatedly; later calls reuse the first resolution.
func (r *Room) Open(ctx context.Context) (*chat.Session, error) {
	r.loading.Store(true)
	defer r.loading.Store(false)
	return r.open(ctx)
}

func (r *Room) open(ctx context.Context) (*chat.Session, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}
	session, err := r.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if r.isClosed() {
		return nil, ErrClosed
	}
	r.attachOnce(ctx, *session)
	return session, nil
}

// attachOnce loads history and subscribes the first time a session is
// available. The session stays usable for sending when this fails.
func (r *Room) attachOnce(ctx context.Context, session chat.Session) {
	if r.isClosed() || !r.attached.CompareAndSwap(false, true) {
		return
	}
	if err := r.sync.Attach(ctx, session); err != nil {
		r.opts.logger.Warn("attach failed", "session_id", session.ID, "err", err)
	}
}

// Send sends a draft into the room's session. A send made before Open
// resolves the session itself; the room then attaches once, after the
// insert, so the history load already contains the new message.
func (r *Room) Send(ctx context.Context, d Draft) (*chat.Message, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}
	sent, err := r.sender.Send(ctx, d)
	if session := r.resolver.Session(); session != nil {
		r.attachOnce(ctx, *session)
	}
	return sent, err
}

// Messages returns the current message list.
func (r *Room) Messages() []chat.Message {
	return r.sync.Messages()
}

// Session returns the resolved session, or nil.
func (r *Room) Session() *chat.Session {
	return r.resolver.Session()
}

// State returns the resolver state.
func (r *Room) State() ResolveState {
	return r.resolver.State()
}

// Mode reports whether this is a visitor or an admin room.
func (r *Room) Mode() Mode {
	return r.mode
}

// Changes signals that Messages may have changed.
func (r *Room) Changes() <-chan struct{} {
	return r.sync.Changes()
}

// Loading reports whether Open is running.
func (r *Room) Loading() bool {
	return r.loading.Load()
}

// Sending reports whether a send is in flight.
func (r *Room) Sending() bool {
	return r.sender.Sending()
}

// Close tears the room down. In-flight resolutions are discarded and the
// subscription is released.
func (r *Room) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.resolver.Cancel()
	return r.sync.Close()
}

func (r *Room) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
