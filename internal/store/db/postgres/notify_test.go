package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeChange(t *testing.T) {
	change, err := decodeChange(`{"table":"messages","type":"DELETE","id":"m1","session_id":"s1"}`)
	require.NoError(t, err)
	assert.Equal(t, "messages", change.Table)
	assert.Equal(t, "DELETE", change.Op)
	assert.Equal(t, "m1", change.ID)
	assert.Equal(t, "s1", change.SessionID)

	change, err = decodeChange(`{"table":"chat_sessions","type":"INSERT","id":"s1","session_id":null}`)
	require.NoError(t, err)
	assert.Empty(t, change.SessionID)

	for _, payload := range []string{`not json`, `{"table":"messages"}`, `{"id":"x"}`} {
		_, err := decodeChange(payload)
		assert.Error(t, err, payload)
	}
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "$1", placeholder(1))
	assert.Equal(t, "$12", placeholder(12))
}
