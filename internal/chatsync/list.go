package chatsync

import (
	"github.com/zhouzirui/z-support/backend/internal/model/chat"
)

// MessageList is the ordered, id-unique message sequence shown by one view.
// The bulk load is ordered by creation time; later inserts are appended in
// arrival order and never re-sorted. It is not safe for concurrent use.
type MessageList struct {
	items []chat.Message
	index map[string]int
}

// Reset replaces the contents with a freshly loaded page. Duplicate ids in
// the page keep their first occurrence.
func (l *MessageList) Reset(messages []chat.Message) {
	l.items = make([]chat.Message, 0, len(messages))
	l.index = make(map[string]int, len(messages))
	for _, m := range messages {
		l.Append(m)
	}
}

// Append adds m at the end unless a message with the same id is present.
func (l *MessageList) Append(m chat.Message) bool {
	if l.index == nil {
		l.index = make(map[string]int)
	}
	if _, ok := l.index[m.ID]; ok {
		return false
	}
	l.index[m.ID] = len(l.items)
	l.items = append(l.items, m)
	return true
}

// Replace swaps the message with m.ID in place.
func (l *MessageList) Replace(m chat.Message) bool {
	i, ok := l.index[m.ID]
	if !ok {
		return false
	}
	l.items[i] = m
	return true
}

// Remove drops the message with the given id.
func (l *MessageList) Remove(id string) bool {
	i, ok := l.index[id]
	if !ok {
		return false
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	delete(l.index, id)
	for j := i; j < len(l.items); j++ {
		l.index[l.items[j].ID] = j
	}
	return true
}

// Apply folds one change event for sessionID into the list and reports
// whether the list changed. Events from other tables or sessions are ignored.
func (l *MessageList) Apply(evt chat.Event, sessionID string) bool {
	if evt.Table != chat.TableMessages {
		return false
	}
	switch evt.Type {
	case chat.EventInsert:
		m, ok := evt.MessageNew()
		if !ok || m.SessionID != sessionID {
			return false
		}
		return l.Append(m)
	case chat.EventUpdate:
		m, ok := evt.MessageNew()
		if !ok || m.SessionID != sessionID {
			return false
		}
		return l.Replace(m)
	case chat.EventDelete:
		old, ok := evt.MessageOld()
		if !ok || old.ID == "" {
			return false
		}
		// Delete payloads may carry only the primary key.
		if old.SessionID != "" && old.SessionID != sessionID {
			return false
		}
		return l.Remove(old.ID)
	}
	return false
}

// Len returns the number of messages.
func (l *MessageList) Len() int {
	return len(l.items)
}

// Snapshot returns a copy of the messages in display order.
func (l *MessageList) Snapshot() []chat.Message {
	out := make([]chat.Message, len(l.items))
	copy(out, l.items)
	return out
}
