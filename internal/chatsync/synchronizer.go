package chatsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/zhouzirui/z-support/backend/internal/model/chat"
)

// Synchronizer mirrors the messages of one session: a bulk load followed by
// the live change feed. At most one subscription is held at a time.
type Synchronizer struct {
	backend Backend
	mode    Mode
	opts    options

	// attachMu serialises Attach, Detach and Close.
	attachMu sync.Mutex
	sub      chat.Subscription
	stop     context.CancelFunc
	wg       sync.WaitGroup

	mu        sync.RWMutex
	list      MessageList
	sessionID string
	closed    bool

	changes chan struct{}
}

// NewSynchronizer creates a detached synchronizer.
func NewSynchronizer(backend Backend, mode Mode, opts ...Option) *Synchronizer {
	return newSynchronizer(backend, mode, buildOptions(mode, opts))
}

func newSynchronizer(backend Backend, mode Mode, opts options) *Synchronizer {
	return &Synchronizer{
		backend: backend,
		mode:    mode,
		opts:    opts,
		changes: make(chan struct{}, 1),
	}
}

// Attach loads the messages of session and starts following its changes.
// Attaching to the session already followed is a no-op; attaching to another
// one releases the previous subscription first.
func (s *Synchronizer) Attach(ctx context.Context, session chat.Session) error {
	s.attachMu.Lock()
	defer s.attachMu.Unlock()

	if s.isClosed() {
		return ErrClosed
	}
	if s.sub != nil && s.SessionID() == session.ID {
		return nil
	}
	s.detachLocked()

	messages, err := s.backend.ListMessages(ctx, session.ID)
	if err != nil {
		s.opts.logger.Error("error fetching messages", "session_id", session.ID, "err", err)
		return fmt.Errorf("list messages: %w", err)
	}

	s.mu.Lock()
	s.list.Reset(messages)
	s.sessionID = session.ID
	s.mu.Unlock()
	s.notify()

	sub, err := s.backend.Subscribe(ctx, s.filterFor(session.ID))
	if err != nil {
		s.opts.logger.Error("subscribe to message changes", "session_id", session.ID, "err", err)
		return fmt.Errorf("subscribe: %w", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	s.sub = sub
	s.stop = stop
	s.wg.Add(1)
	go s.consume(runCtx, sub, session.ID)
	return nil
}

// Detach releases the current subscription. The message list is kept.
func (s *Synchronizer) Detach() {
	s.attachMu.Lock()
	defer s.attachMu.Unlock()
	s.detachLocked()
}

// Close detaches and refuses further attaches.
func (s *Synchronizer) Close() error {
	s.attachMu.Lock()
	defer s.attachMu.Unlock()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.detachLocked()
	return nil
}

func (s *Synchronizer) detachLocked() {
	if s.sub == nil {
		return
	}
	s.stop()
	if err := s.sub.Close(); err != nil {
		s.opts.logger.Warn("close subscription", "err", err)
	}
	s.wg.Wait()
	s.sub, s.stop = nil, nil

	s.mu.Lock()
	s.sessionID = ""
	s.mu.Unlock()
}

// filterFor picks the server-side filter. Visitors subscribe to their own
// session only; admins follow the whole table and filter locally.
func (s *Synchronizer) filterFor(sessionID string) chat.Filter {
	if s.mode == ModeAdmin {
		return chat.Filter{Table: chat.TableMessages}
	}
	return chat.Filter{Table: chat.TableMessages, Column: "session_id", Value: sessionID}
}

func (s *Synchronizer) consume(ctx context.Context, sub chat.Subscription, sessionID string) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events():
			if !ok {
				if contextAlive(ctx) {
					s.opts.logger.Warn("change feed ended", "session_id", sessionID)
				}
				return
			}
			s.apply(evt, sessionID)
		}
	}
}

func (s *Synchronizer) apply(evt chat.Event, sessionID string) {
	s.mu.Lock()
	changed := s.sessionID == sessionID && s.list.Apply(evt, sessionID)
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// Append adds a locally produced message for the attached session. The
// feed echo of the same id is then dropped as a duplicate.
func (s *Synchronizer) Append(m chat.Message) bool {
	s.mu.Lock()
	changed := s.sessionID != "" && m.SessionID == s.sessionID && s.list.Append(m)
	s.mu.Unlock()
	if changed {
		s.notify()
	}
	return changed
}

// Messages returns a snapshot of the list.
func (s *Synchronizer) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list.Snapshot()
}

// SessionID returns the attached session id, or "".
func (s *Synchronizer) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// Changes signals, coalesced, that the list changed.
func (s *Synchronizer) Changes() <-chan struct{} {
	return s.changes
}

func (s *Synchronizer) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Synchronizer) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
