package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-support/backend/internal/model/chat"
)

func messageEvent(t *testing.T, id, session string) chat.Event {
	t.Helper()
	evt, err := chat.NewEvent(chat.EventInsert, chat.TableMessages, chat.Message{ID: id, SessionID: session}, nil)
	require.NoError(t, err)
	return evt
}

func receive(t *testing.T, sub *Subscription) chat.Event {
	t.Helper()
	select {
	case evt, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return evt
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
	return chat.Event{}
}

func TestBrokerFiltersByTableAndColumn(t *testing.T) {
	b := NewBroker()
	all := b.Subscribe(chat.Filter{Table: chat.TableMessages}, 4)
	one := b.Subscribe(chat.Filter{Table: chat.TableMessages, Column: "session_id", Value: "s1"}, 4)
	sessions := b.Subscribe(chat.Filter{Table: chat.TableSessions}, 4)
	defer all.Close()
	defer one.Close()
	defer sessions.Close()

	b.Publish(messageEvent(t, "m1", "s1"))
	b.Publish(messageEvent(t, "m2", "s2"))

	assert.Equal(t, "m1", receive(t, all).Field("id"))
	assert.Equal(t, "m2", receive(t, all).Field("id"))
	assert.Equal(t, "m1", receive(t, one).Field("id"))

	assert.Empty(t, one.Events())
	assert.Empty(t, sessions.Events())
}

func TestBrokerDropsWhenBufferFull(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe(chat.Filter{}, 1)
	defer sub.Close()

	b.Publish(messageEvent(t, "m1", "s1"))
	b.Publish(messageEvent(t, "m2", "s1"))
	b.Publish(messageEvent(t, "m3", "s1"))

	assert.EqualValues(t, 2, sub.Dropped())
	assert.Equal(t, "m1", receive(t, sub).Field("id"))
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe(chat.Filter{}, 0)
	require.Equal(t, 1, b.Len())
	assert.Equal(t, defaultBuffer, cap(sub.events))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, 0, b.Len())

	_, ok := <-sub.Events()
	assert.False(t, ok)

	// Publishing after close must not panic on the closed channel.
	b.Publish(messageEvent(t, "m1", "s1"))
}
