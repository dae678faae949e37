package chatsync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zhouzirui/z-support/backend/internal/model/chat"
)

// fakeBackend is an in-memory Backend with hooks for delaying and failing
// calls.
type fakeBackend struct {
	mu       sync.Mutex
	sessions []chat.Session
	messages []chat.Message
	subs     []*fakeSub

	findCalls      atomic.Int32
	createCalls    atomic.Int32
	getCalls       atomic.Int32
	listCalls      atomic.Int32
	insertCalls    atomic.Int32
	subscribeCalls atomic.Int32

	// gate, when set, blocks lookups until closed.
	gate         chan struct{}
	insertGate   chan struct{}
	findErr      error
	getErr       error
	listErr      error
	insertErr    error
	subscribeErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{}
}

func (b *fakeBackend) wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *fakeBackend) FindSessionsByVisitor(ctx context.Context, visitorID string) ([]chat.Session, error) {
	b.findCalls.Add(1)
	if err := b.wait(ctx, b.gate); err != nil {
		return nil, err
	}
	if b.findErr != nil {
		return nil, b.findErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []chat.Session
	for _, s := range b.sessions {
		if s.VisitorID == visitorID {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (b *fakeBackend) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	b.getCalls.Add(1)
	if err := b.wait(ctx, b.gate); err != nil {
		return chat.Session{}, err
	}
	if b.getErr != nil {
		return chat.Session{}, b.getErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.sessions {
		if s.ID == sessionID {
			return s, nil
		}
	}
	return chat.Session{}, fmt.Errorf("%w: %s", chat.ErrSessionNotFound, sessionID)
}

func (b *fakeBackend) CreateSession(_ context.Context, session chat.Session) (chat.Session, error) {
	b.createCalls.Add(1)
	b.mu.Lock()
	b.sessions = append(b.sessions, session)
	b.mu.Unlock()
	b.publish(chat.EventInsert, chat.TableSessions, session, nil)
	return session, nil
}

func (b *fakeBackend) ListMessages(_ context.Context, sessionID string) ([]chat.Message, error) {
	b.listCalls.Add(1)
	if b.listErr != nil {
		return nil, b.listErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []chat.Message
	for _, m := range b.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (b *fakeBackend) InsertMessage(ctx context.Context, message chat.Message) (chat.Message, error) {
	b.insertCalls.Add(1)
	if err := b.wait(ctx, b.insertGate); err != nil {
		return chat.Message{}, err
	}
	if b.insertErr != nil {
		return chat.Message{}, b.insertErr
	}
	b.mu.Lock()
	b.messages = append(b.messages, message)
	b.mu.Unlock()
	b.publish(chat.EventInsert, chat.TableMessages, message, nil)
	return message, nil
}

func (b *fakeBackend) Subscribe(_ context.Context, filter chat.Filter) (chat.Subscription, error) {
	b.subscribeCalls.Add(1)
	if b.subscribeErr != nil {
		return nil, b.subscribeErr
	}
	sub := &fakeSub{filter: filter, ch: make(chan chat.Event, 32)}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub, nil
}

// publish fans an event out to every open subscription whose filter matches.
func (b *fakeBackend) publish(typ chat.EventType, table string, newRow, oldRow any) {
	evt, err := chat.NewEvent(typ, table, newRow, oldRow)
	if err != nil {
		panic(fmt.Sprintf("build event: %v", err))
	}
	b.emit(evt)
}

func (b *fakeBackend) emit(evt chat.Event) {
	b.mu.Lock()
	subs := append([]*fakeSub(nil), b.subs...)
	b.mu.Unlock()
	for _, s := range subs {
		if s.filter.Match(evt) {
			s.send(evt)
		}
	}
}

func (b *fakeBackend) openSubs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.subs {
		if !s.isClosed() {
			n++
		}
	}
	return n
}

func (b *fakeBackend) seedSession(id, visitorID string, createdAt time.Time) chat.Session {
	s := chat.Session{ID: id, VisitorID: visitorID, Status: chat.SessionActive, CreatedAt: createdAt, UpdatedAt: createdAt}
	b.mu.Lock()
	b.sessions = append(b.sessions, s)
	b.mu.Unlock()
	return s
}

func (b *fakeBackend) seedMessage(id, sessionID, content string, isAdmin bool, createdAt time.Time) chat.Message {
	m := chat.Message{ID: id, SessionID: sessionID, Content: chat.StringPtr(content), IsAdmin: isAdmin, Status: chat.MessageSent, CreatedAt: createdAt}
	b.mu.Lock()
	b.messages = append(b.messages, m)
	b.mu.Unlock()
	return m
}

type fakeSub struct {
	filter chat.Filter
	mu     sync.Mutex
	ch     chan chat.Event
	closed bool
}

func (s *fakeSub) Events() <-chan chat.Event { return s.ch }

func (s *fakeSub) send(evt chat.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- evt
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func sequentialIDs(prefix string) func() string {
	var n atomic.Int32
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}
