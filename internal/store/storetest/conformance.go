package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-support/backend/internal/model/admin"
	"github.com/zhouzirui/z-support/backend/internal/model/chat"
	"github.com/zhouzirui/z-support/backend/internal/store"
)

// Conformance runs the behaviour every driver must share against a freshly
// migrated, empty store.
func Conformance(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2024, 1, 2, 3, 4, 5, 678000, time.UTC)

	for i, id := range []string{"conf-s1", "conf-s2"} {
		created := at.Add(time.Duration(i) * time.Minute)
		_, err := st.CreateSession(ctx, &chat.Session{
			ID: id, VisitorID: "conf-visitor", Status: chat.SessionActive, CreatedAt: created, UpdatedAt: created,
		})
		require.NoError(t, err)
	}
	visitor := "conf-visitor"
	newest, err := st.GetSession(ctx, &store.FindSession{VisitorID: &visitor})
	require.NoError(t, err)
	require.NotNil(t, newest)
	assert.Equal(t, "conf-s2", newest.ID)
	assert.True(t, newest.CreatedAt.Equal(at.Add(time.Minute)), "timestamps keep microsecond precision")

	_, err = st.CreateMessage(ctx, &chat.Message{
		ID: "conf-m2", SessionID: "conf-s1", ImageURL: chat.StringPtr("https://img"),
		IsAdmin: true, Status: chat.MessageSent, CreatedAt: at.Add(2 * time.Second),
	})
	require.NoError(t, err)
	_, err = st.CreateMessage(ctx, &chat.Message{
		ID: "conf-m1", SessionID: "conf-s1", Content: chat.StringPtr("hello"),
		Status: chat.MessageSent, CreatedAt: at.Add(time.Second),
	})
	require.NoError(t, err)

	session := "conf-s1"
	list, err := st.ListMessages(ctx, &store.FindMessage{SessionID: &session})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "conf-m1", list[0].ID)
	assert.Equal(t, "hello", list[0].Text())
	assert.Nil(t, list[1].Content)
	assert.True(t, list[1].IsAdmin)

	read := chat.MessageRead
	updated, err := st.UpdateMessage(ctx, &store.UpdateMessage{ID: "conf-m1", Status: &read})
	require.NoError(t, err)
	assert.Equal(t, chat.MessageRead, updated.Status)

	require.NoError(t, st.DeleteMessage(ctx, "conf-m2"))
	count, err := st.CountMessages(ctx, &store.FindMessage{SessionID: &session})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	_, err = st.CreateAdminUser(ctx, &admin.User{
		ID: "conf-a1", Email: "Conf@Example.com", Name: "Conf", PasswordHash: "h", CreatedAt: at,
	})
	require.NoError(t, err)
	online := true
	u, err := st.UpdateAdminUser(ctx, &store.UpdateAdminUser{ID: "conf-a1", IsOnline: &online, LastSeen: &at})
	require.NoError(t, err)
	assert.Equal(t, "conf@example.com", u.Email)
	assert.True(t, u.IsOnline)
	require.NotNil(t, u.LastSeen)
	assert.True(t, u.LastSeen.Equal(at))
}
