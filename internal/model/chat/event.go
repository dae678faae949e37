package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventType names the row-level change carried by an Event.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

const (
	TableSessions   = "chat_sessions"
	TableMessages   = "messages"
	TableAdminUsers = "admin_users"
)

// Event is a change notification for one row. New is set for inserts and
// updates, Old for updates and deletes.
type Event struct {
	Type  EventType       `json:"eventType"`
	Table string          `json:"table"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
}

// NewEvent marshals the row images into an Event.
func NewEvent(typ EventType, table string, newRow, oldRow any) (Event, error) {
	evt := Event{Type: typ, Table: table}
	if newRow != nil {
		raw, err := json.Marshal(newRow)
		if err != nil {
			return Event{}, fmt.Errorf("marshal new row: %w", err)
		}
		evt.New = raw
	}
	if oldRow != nil {
		raw, err := json.Marshal(oldRow)
		if err != nil {
			return Event{}, fmt.Errorf("marshal old row: %w", err)
		}
		evt.Old = raw
	}
	return evt, nil
}

// MessageNew decodes the new row image as a Message.
func (e Event) MessageNew() (Message, bool) {
	return decodeRow[Message](e.New)
}

// MessageOld decodes the old row image as a Message.
func (e Event) MessageOld() (Message, bool) {
	return decodeRow[Message](e.Old)
}

// SessionNew decodes the new row image as a Session.
func (e Event) SessionNew() (Session, bool) {
	return decodeRow[Session](e.New)
}

// Field returns a top-level string field from the new row, falling back to
// the old row for deletes.
func (e Event) Field(name string) string {
	for _, raw := range []json.RawMessage{e.New, e.Old} {
		if len(raw) == 0 {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal(raw, &row); err != nil {
			continue
		}
		if v, ok := row[name]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return ""
}

func decodeRow[T any](raw json.RawMessage) (T, bool) {
	var out T
	if len(raw) == 0 {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false
	}
	return out, true
}

// Filter restricts a subscription to one table and, optionally, to rows whose
// column equals a value.
type Filter struct {
	Table  string
	Column string
	Value  string
}

// ParseFilter builds a Filter from a table name and an optional
// "column=eq.value" predicate.
func ParseFilter(table, predicate string) (Filter, error) {
	f := Filter{Table: strings.TrimSpace(table)}
	predicate = strings.TrimSpace(predicate)
	if predicate == "" {
		return f, nil
	}
	column, rest, ok := strings.Cut(predicate, "=")
	if !ok || column == "" {
		return Filter{}, fmt.Errorf("invalid filter %q", predicate)
	}
	value, ok := strings.CutPrefix(rest, "eq.")
	if !ok || value == "" {
		return Filter{}, fmt.Errorf("unsupported filter operator in %q", predicate)
	}
	f.Column = column
	f.Value = value
	return f, nil
}

// String renders the predicate part in "column=eq.value" form.
func (f Filter) String() string {
	if f.Column == "" {
		return ""
	}
	return f.Column + "=eq." + f.Value
}

// Match reports whether evt passes the filter. An empty table matches every
// table.
func (f Filter) Match(evt Event) bool {
	if f.Table != "" && f.Table != evt.Table {
		return false
	}
	if f.Column == "" {
		return true
	}
	return evt.Field(f.Column) == f.Value
}

// Subscription delivers change events until closed.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// FrameType 实时通道的帧类型
type FrameType string

const (
	FrameSubscribed FrameType = "subscribed"
	FrameChange     FrameType = "change"
	FrameError      FrameType = "error"
)

// Frame 推送给实时订阅者的一帧
type Frame struct {
	Type   FrameType `json:"type"`
	Filter string    `json:"filter,omitempty"`
	Event  *Event    `json:"event,omitempty"`
	Error  string    `json:"error,omitempty"`
}
