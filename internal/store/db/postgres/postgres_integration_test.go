//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/zhouzirui/z-support/backend/internal/model/chat"
	"github.com/zhouzirui/z-support/backend/internal/store"
	"github.com/zhouzirui/z-support/backend/internal/store/storetest"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("zsupport"),
		tcpostgres.WithUsername("zsupport"),
		tcpostgres.WithPassword("zsupport"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPostgresStore(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	driver, err := NewDB(ctx, dsn)
	require.NoError(t, err)
	st := store.New(driver)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))
	// Migrations must be re-runnable.
	require.NoError(t, st.Migrate(ctx))

	storetest.Conformance(t, st)
}

func TestPostgresListen(t *testing.T) {
	dsn := startPostgres(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	driver, err := NewDB(ctx, dsn)
	require.NoError(t, err)
	st := store.New(driver)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))

	changes := make(chan store.Change, 8)
	go func() {
		_ = Listen(ctx, dsn, func(_ context.Context, c store.Change) { changes <- c })
	}()

	// The listener connects asynchronously; keep writing sessions until one
	// is reported.
	var (
		n         int
		sessionID string
	)
	require.Eventually(t, func() bool {
		n++
		sessionID = fmt.Sprintf("s-%d", n)
		now := time.Now()
		if _, err := st.CreateSession(ctx, &chat.Session{
			ID: sessionID, VisitorID: "v", Status: chat.SessionActive, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			return false
		}
		select {
		case c := <-changes:
			return c.Table == chat.TableSessions && c.Op == "INSERT"
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 50*time.Millisecond)

	_, err = st.CreateMessage(ctx, &chat.Message{
		ID: "m1", SessionID: sessionID, Content: chat.StringPtr("hi"), Status: chat.MessageSent, CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, st.DeleteMessage(ctx, "m1"))

	var got []store.Change
	for len(got) < 2 {
		select {
		case c := <-changes:
			if c.Table == chat.TableMessages {
				got = append(got, c)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("received %d message changes, want 2", len(got))
		}
	}
	assert.Equal(t, "INSERT", got[0].Op)
	assert.Equal(t, "DELETE", got[1].Op)
	assert.Equal(t, "m1", got[1].ID)
	assert.Equal(t, sessionID, got[1].SessionID)
}
