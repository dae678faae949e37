package chat

import (
	"errors"
	"time"
)

// ErrSessionNotFound is returned by every session lookup, local or remote,
// when the id matches no row.
var ErrSessionNotFound = errors.New("session not found")

// SessionStatus 会话生命周期状态，只由管理后台切换，访客端不会修改
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionWaiting SessionStatus = "waiting"
	SessionClosed  SessionStatus = "closed"
)

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionWaiting, SessionClosed:
		return true
	}
	return false
}

// Session captures a single visitor's conversation.
type Session struct {
	ID        string        `json:"id"`
	VisitorID string        `json:"visitor_id"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Conversation 会话及其最新一条消息
type Conversation struct {
	Session
	LastMessage *Message `json:"lastMessage"`
}
