package chatsync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zhouzirui/z-support/backend/internal/model/chat"
)

// ResolveState is the resolver's one-shot lifecycle.
type ResolveState int

const (
	Unresolved ResolveState = iota
	Resolving
	Resolved
	Failed
)

func (s ResolveState) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case Resolving:
		return "resolving"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("ResolveState(%d)", int(s))
	}
}

// Resolver finds or creates the session for a key exactly once.
//
// In visitor mode the key is the visitor id and a missing session is
// created. In admin mode the key is the session id and nothing is created.
// Lookup-then-insert is not atomic: two resolvers racing for the same new
// visitor can both insert.
type Resolver struct {
	backend Backend
	mode    Mode
	key     string
	opts    options

	mu        sync.Mutex
	state     ResolveState
	session   *chat.Session
	err       error
	done      chan struct{}
	cancelled bool
}

// NewResolver creates an unresolved resolver.
func NewResolver(backend Backend, mode Mode, key string, opts ...Option) *Resolver {
	return newResolver(backend, mode, key, buildOptions(mode, opts))
}

func newResolver(backend Backend, mode Mode, key string, opts options) *Resolver {
	return &Resolver{backend: backend, mode: mode, key: key, opts: opts}
}

// State reports the current lifecycle state.
func (r *Resolver) State() ResolveState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Session returns the resolved session, or nil.
func (r *Resolver) Session() *chat.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copySession(r.session)
}

// Resolve returns the session for the key. Only the first call reaches the
// backend; concurrent callers wait for it and later callers get the cached
// outcome, failures included.
func (r *Resolver) Resolve(ctx context.Context) (*chat.Session, error) {
	r.mu.Lock()
	switch r.state {
	case Resolved, Failed:
		defer r.mu.Unlock()
		return copySession(r.session), r.err
	case Resolving:
		done := r.done
		r.mu.Unlock()
		select {
		case <-done:
			r.mu.Lock()
			defer r.mu.Unlock()
			return copySession(r.session), r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.cancelled {
		r.state = Failed
		r.err = ErrClosed
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.state = Resolving
	r.done = make(chan struct{})
	r.mu.Unlock()

	session, err := r.lookup(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	defer close(r.done)

	if r.cancelled {
		// The view went away while we were waiting; drop the result.
		r.state, r.session, r.err = Failed, nil, ErrClosed
		return nil, ErrClosed
	}
	if err != nil {
		r.opts.logger.Error("chat initialization error", "key", r.key, "err", err)
		r.state, r.session, r.err = Failed, nil, err
		return nil, err
	}
	r.state, r.session, r.err = Resolved, session, nil
	return copySession(session), nil
}

// Cancel makes any in-flight or future resolution a no-op.
func (r *Resolver) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = true
}

func (r *Resolver) lookup(ctx context.Context) (*chat.Session, error) {
	if r.mode == ModeAdmin {
		session, err := r.backend.GetSession(ctx, r.key)
		if errors.Is(err, ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, r.key)
		}
		if err != nil {
			return nil, fmt.Errorf("look up session %s: %w", r.key, err)
		}
		return &session, nil
	}

	existing, err := r.backend.FindSessionsByVisitor(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("find sessions for visitor: %w", err)
	}
	if len(existing) > 0 {
		s := existing[0]
		return &s, nil
	}

	now := r.opts.now().UTC()
	inserted, err := r.backend.CreateSession(ctx, chat.Session{
		ID:        r.opts.newID(),
		VisitorID: r.key,
		Status:    chat.SessionActive,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &inserted, nil
}

func copySession(s *chat.Session) *chat.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
