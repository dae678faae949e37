package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-support/backend/internal/model/chat"
	"github.com/zhouzirui/z-support/backend/internal/realtime"
	"github.com/zhouzirui/z-support/backend/internal/store"
	"github.com/zhouzirui/z-support/backend/internal/store/storetest"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestService(t *testing.T) (*Service, *realtime.Broker) {
	t.Helper()
	broker := realtime.NewBroker()
	clock := &fixedClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return NewService(storetest.New(t), broker, WithClock(clock.now)), broker
}

func nextEvent(t *testing.T, sub chat.Subscription) chat.Event {
	t.Helper()
	select {
	case evt := <-sub.Events():
		return evt
	case <-time.After(time.Second):
		t.Fatal("expected a change event")
	}
	return chat.Event{}
}

func TestCreateSessionFillsDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx, chat.Session{VisitorID: "visitor_1"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, chat.SessionActive, created.Status)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	_, err = svc.CreateSession(ctx, chat.Session{VisitorID: "  "})
	assert.ErrorIs(t, err, ErrVisitorRequired)

	_, err = svc.CreateSession(ctx, chat.Session{VisitorID: "v", Status: "archived"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestFindSessionsByVisitorNewestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateSession(ctx, chat.Session{VisitorID: "visitor_1"})
	require.NoError(t, err)
	second, err := svc.CreateSession(ctx, chat.Session{VisitorID: "visitor_1"})
	require.NoError(t, err)
	_, err = svc.CreateSession(ctx, chat.Session{VisitorID: "visitor_2"})
	require.NoError(t, err)

	list, err := svc.FindSessionsByVisitor(ctx, "visitor_1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	_, err = svc.FindSessionsByVisitor(ctx, "")
	assert.ErrorIs(t, err, ErrVisitorRequired)
}

func TestGetSessionNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestInsertMessageValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session, err := svc.CreateSession(ctx, chat.Session{VisitorID: "visitor_1"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		message chat.Message
		wantErr error
	}{
		{
			name:    "blank content and no image",
			message: chat.Message{SessionID: session.ID, Content: chat.StringPtr("   ")},
			wantErr: ErrEmptyMessage,
		},
		{
			name:    "unknown session",
			message: chat.Message{SessionID: "ghost", Content: chat.StringPtr("hi")},
			wantErr: ErrSessionNotFound,
		},
		{
			name:    "missing session",
			message: chat.Message{Content: chat.StringPtr("hi")},
			wantErr: ErrSessionNotFound,
		},
		{
			name:    "bad status",
			message: chat.Message{SessionID: session.ID, Content: chat.StringPtr("hi"), Status: "lost"},
			wantErr: ErrInvalidStatus,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.InsertMessage(ctx, tt.message)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("InsertMessage() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestInsertMessagePublishesEvent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session, err := svc.CreateSession(ctx, chat.Session{VisitorID: "visitor_1"})
	require.NoError(t, err)

	sub, err := svc.Subscribe(ctx, chat.Filter{Table: chat.TableMessages, Column: "session_id", Value: session.ID})
	require.NoError(t, err)
	defer sub.Close()

	created, err := svc.InsertMessage(ctx, chat.Message{
		SessionID: session.ID,
		Content:   chat.StringPtr("  hello  "),
		ImageURL:  chat.StringPtr(" "),
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", created.Text())
	assert.Nil(t, created.ImageURL)
	assert.Equal(t, chat.MessageSent, created.Status)

	evt := nextEvent(t, sub)
	assert.Equal(t, chat.EventInsert, evt.Type)
	got, ok := evt.MessageNew()
	require.True(t, ok)
	assert.Equal(t, created.ID, got.ID)

	list, err := svc.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
}

func TestUpdateAndDeleteMessageEvents(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session, err := svc.CreateSession(ctx, chat.Session{VisitorID: "visitor_1"})
	require.NoError(t, err)
	created, err := svc.InsertMessage(ctx, chat.Message{SessionID: session.ID, Content: chat.StringPtr("hi")})
	require.NoError(t, err)

	sub, err := svc.Subscribe(ctx, chat.Filter{Table: chat.TableMessages})
	require.NoError(t, err)
	defer sub.Close()

	updated, err := svc.UpdateMessageStatus(ctx, created.ID, chat.MessageRead)
	require.NoError(t, err)
	assert.Equal(t, chat.MessageRead, updated.Status)

	evt := nextEvent(t, sub)
	assert.Equal(t, chat.EventUpdate, evt.Type)
	old, ok := evt.MessageOld()
	require.True(t, ok)
	assert.Equal(t, chat.MessageSent, old.Status)

	require.NoError(t, svc.DeleteMessage(ctx, created.ID))
	evt = nextEvent(t, sub)
	assert.Equal(t, chat.EventDelete, evt.Type)
	assert.Equal(t, created.ID, evt.Field("id"))
	assert.Equal(t, session.ID, evt.Field("session_id"))

	assert.ErrorIs(t, svc.DeleteMessage(ctx, created.ID), ErrMessageNotFound)
	_, err = svc.UpdateMessageStatus(ctx, created.ID, "bogus")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestUpdateSessionStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session, err := svc.CreateSession(ctx, chat.Session{VisitorID: "visitor_1"})
	require.NoError(t, err)

	updated, err := svc.UpdateSessionStatus(ctx, session.ID, chat.SessionClosed)
	require.NoError(t, err)
	assert.Equal(t, chat.SessionClosed, updated.Status)

	_, err = svc.UpdateSessionStatus(ctx, "missing", chat.SessionClosed)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListConversations(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	quiet, err := svc.CreateSession(ctx, chat.Session{VisitorID: "visitor_1"})
	require.NoError(t, err)
	busy, err := svc.CreateSession(ctx, chat.Session{VisitorID: "visitor_2"})
	require.NoError(t, err)
	for _, text := range []string{"one", "two", "three"} {
		_, err := svc.InsertMessage(ctx, chat.Message{SessionID: busy.ID, Content: chat.StringPtr(text)})
		require.NoError(t, err)
	}

	convs, err := svc.ListConversations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, busy.ID, convs[0].ID)
	require.NotNil(t, convs[0].LastMessage)
	assert.Equal(t, "three", convs[0].LastMessage.Text())
	assert.Equal(t, quiet.ID, convs[1].ID)
	assert.Nil(t, convs[1].LastMessage)
}

func TestHandleChange(t *testing.T) {
	st := storetest.New(t)
	broker := realtime.NewBroker()
	// Writes are announced by the database, so the service publishes nothing.
	svc := NewService(st, broker, WithPublisher(realtime.NopPublisher{}))
	ctx := context.Background()

	sub := broker.Subscribe(chat.Filter{}, 8)
	defer sub.Close()

	session, err := svc.CreateSession(ctx, chat.Session{VisitorID: "visitor_1"})
	require.NoError(t, err)
	created, err := svc.InsertMessage(ctx, chat.Message{SessionID: session.ID, Content: chat.StringPtr("hi")})
	require.NoError(t, err)
	assert.Empty(t, sub.Events())

	svc.HandleChange(ctx, store.Change{Table: chat.TableMessages, Op: "INSERT", ID: created.ID, SessionID: session.ID})
	evt := nextEvent(t, sub)
	assert.Equal(t, chat.EventInsert, evt.Type)
	got, ok := evt.MessageNew()
	require.True(t, ok)
	assert.Equal(t, "hi", got.Text())

	svc.HandleChange(ctx, store.Change{Table: chat.TableMessages, Op: "DELETE", ID: "gone", SessionID: session.ID})
	evt = nextEvent(t, sub)
	assert.Equal(t, chat.EventDelete, evt.Type)
	assert.Equal(t, session.ID, evt.Field("session_id"))

	// A row that vanished before it could be loaded is skipped.
	svc.HandleChange(ctx, store.Change{Table: chat.TableMessages, Op: "UPDATE", ID: "gone"})
	svc.HandleChange(ctx, store.Change{Table: "unknown", Op: "INSERT", ID: "x"})
	assert.Empty(t, sub.Events())
}
