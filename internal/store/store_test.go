package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-support/backend/internal/model/admin"
	"github.com/zhouzirui/z-support/backend/internal/model/chat"
	"github.com/zhouzirui/z-support/backend/internal/store"
	"github.com/zhouzirui/z-support/backend/internal/store/storetest"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func createSession(t *testing.T, st *store.Store, id, visitor string, at time.Time) *chat.Session {
	t.Helper()
	s, err := st.CreateSession(context.Background(), &chat.Session{
		ID: id, VisitorID: visitor, Status: chat.SessionActive, CreatedAt: at, UpdatedAt: at,
	})
	require.NoError(t, err)
	return s
}

func createMessage(t *testing.T, st *store.Store, id, session, text string, at time.Time) *chat.Message {
	t.Helper()
	m, err := st.CreateMessage(context.Background(), &chat.Message{
		ID: id, SessionID: session, Content: chat.StringPtr(text), Status: chat.MessageSent, CreatedAt: at,
	})
	require.NoError(t, err)
	return m
}

func TestSessionsNewestFirst(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()

	createSession(t, st, "s-old", "visitor_a", base)
	createSession(t, st, "s-new", "visitor_a", base.Add(time.Hour))
	createSession(t, st, "s-other", "visitor_b", base.Add(2*time.Hour))

	visitor := "visitor_a"
	list, err := st.ListSessions(ctx, &store.FindSession{VisitorID: &visitor})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s-new", list[0].ID)
	assert.Equal(t, "s-old", list[1].ID)
	assert.True(t, list[0].CreatedAt.Equal(base.Add(time.Hour)))

	newest, err := st.GetSession(ctx, &store.FindSession{VisitorID: &visitor})
	require.NoError(t, err)
	assert.Equal(t, "s-new", newest.ID)

	missing := "nope"
	got, err := st.GetSession(ctx, &store.FindSession{ID: &missing})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateSessionStatus(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	createSession(t, st, "s1", "visitor_a", base)

	closed := chat.SessionClosed
	updated, err := st.UpdateSession(ctx, &store.UpdateSession{ID: "s1", Status: &closed})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, chat.SessionClosed, updated.Status)
	assert.True(t, updated.UpdatedAt.After(base))

	count, err := st.CountSessions(ctx, &store.FindSession{Status: &closed})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	missing, err := st.UpdateSession(ctx, &store.UpdateSession{ID: "nope", Status: &closed})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMessagesOrderedByCreation(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	createSession(t, st, "s1", "visitor_a", base)

	createMessage(t, st, "m2", "s1", "second", base.Add(2*time.Second))
	createMessage(t, st, "m1", "s1", "first", base.Add(time.Second))
	createMessage(t, st, "m3", "s1", "third", base.Add(3*time.Second))

	session := "s1"
	list, err := st.ListMessages(ctx, &store.FindMessage{SessionID: &session})
	require.NoError(t, err)
	var ids []string
	for _, m := range list {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids)

	last, err := st.LastMessage(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "m3", last.ID)
	assert.Equal(t, "third", last.Text())

	count, err := st.CountMessages(ctx, &store.FindMessage{SessionID: &session})
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestMessageNullableColumns(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	createSession(t, st, "s1", "visitor_a", base)

	_, err := st.CreateMessage(ctx, &chat.Message{
		ID: "img", SessionID: "s1", ImageURL: chat.StringPtr("https://cdn/x.png"),
		IsAdmin: true, Status: chat.MessageSent, CreatedAt: base,
	})
	require.NoError(t, err)

	id := "img"
	got, err := st.GetMessage(ctx, &store.FindMessage{ID: &id})
	require.NoError(t, err)
	assert.Nil(t, got.Content)
	assert.Equal(t, "https://cdn/x.png", got.Image())
	assert.True(t, got.IsAdmin)
}

func TestUpdateAndDeleteMessage(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	createSession(t, st, "s1", "visitor_a", base)
	createMessage(t, st, "m1", "s1", "hello", base)

	read := chat.MessageRead
	updated, err := st.UpdateMessage(ctx, &store.UpdateMessage{ID: "m1", Status: &read})
	require.NoError(t, err)
	assert.Equal(t, chat.MessageRead, updated.Status)

	require.NoError(t, st.DeleteMessage(ctx, "m1"))
	last, err := st.LastMessage(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestMessageRequiresSession(t *testing.T) {
	st := storetest.New(t)
	_, err := st.CreateMessage(context.Background(), &chat.Message{
		ID: "m1", SessionID: "ghost", Content: chat.StringPtr("hi"), Status: chat.MessageSent, CreatedAt: base,
	})
	assert.Error(t, err)
}

func TestAdminUsers(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()

	_, err := st.CreateAdminUser(ctx, &admin.User{
		ID: "u1", Email: "Agent@Example.com", Name: "Agent", PasswordHash: "hash", CreatedAt: base,
	})
	require.NoError(t, err)

	email := "AGENT@example.COM"
	got, err := st.GetAdminUser(ctx, &store.FindAdminUser{Email: &email})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "agent@example.com", got.Email)
	assert.Nil(t, got.LastSeen)

	_, err = st.CreateAdminUser(ctx, &admin.User{
		ID: "u2", Email: "agent@example.com", PasswordHash: "hash", CreatedAt: base,
	})
	assert.Error(t, err, "email is unique")

	online := true
	seen := base.Add(time.Minute)
	updated, err := st.UpdateAdminUser(ctx, &store.UpdateAdminUser{ID: "u1", IsOnline: &online, LastSeen: &seen})
	require.NoError(t, err)
	assert.True(t, updated.IsOnline)
	require.NotNil(t, updated.LastSeen)
	assert.True(t, updated.LastSeen.Equal(seen))

	before := base.Add(2 * time.Minute)
	stale, err := st.ListAdminUsers(ctx, &store.FindAdminUser{IsOnline: &online, SeenBefore: &before})
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	self := "u1"
	others, err := st.ListAdminUsers(ctx, &store.FindAdminUser{ExcludeID: &self})
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestSQLiteConformance(t *testing.T) {
	storetest.Conformance(t, storetest.New(t))
}
