package chat

import (
	"strings"
	"time"
)

// MessageStatus 消息送达状态
type MessageStatus string

const (
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
)

// Valid reports whether s is one of the known statuses.
func (s MessageStatus) Valid() bool {
	switch s {
	case MessageSent, MessageDelivered, MessageRead:
		return true
	}
	return false
}

// Message is a single turn in a session. Content is nil when only an image
// was attached.
type Message struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	Content   *string       `json:"content"`
	ImageURL  *string       `json:"image_url"`
	IsAdmin   bool          `json:"is_admin"`
	Status    MessageStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// Text returns the message content or "" when there is none.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// Image returns the image reference or "" when there is none.
func (m Message) Image() string {
	if m.ImageURL == nil {
		return ""
	}
	return *m.ImageURL
}

// Empty reports whether the message carries neither text nor an image.
func (m Message) Empty() bool {
	return strings.TrimSpace(m.Text()) == "" && strings.TrimSpace(m.Image()) == ""
}

// StringPtr 空白字符串返回 nil，否则返回 s 的指针
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
