package main

import (
	"github.com/zhouzirui/z-support/backend/internal/model/chat"
)

const previewLength = 60

// lastText summarises a conversation's last message for list views.
func lastText(m *chat.Message) string {
	if m == nil {
		return ""
	}
	text := m.Text()
	if text == "" && m.Image() != "" {
		return "[image]"
	}
	runes := []rune(text)
	if len(runes) > previewLength {
		return string(runes[:previewLength-1]) + "…"
	}
	return text
}
