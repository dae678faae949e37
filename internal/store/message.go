package store

import (
	"context"

	"github.com/zhouzirui/z-support/backend/internal/model/chat"
)

// FindMessage filters for ListMessages. Results are ordered oldest first
// unless Descending is set.
type FindMessage struct {
	ID         *string
	SessionID  *string
	Limit      int
	Descending bool
}

// UpdateMessage carries fields accepted by UpdateMessage.
type UpdateMessage struct {
	ID     string
	Status *chat.MessageStatus
}

// CreateMessage inserts a message row.
func (s *Store) CreateMessage(ctx context.Context, create *chat.Message) (*chat.Message, error) {
	return s.driver.CreateMessage(ctx, create)
}

// ListMessages lists messages matching the filter.
func (s *Store) ListMessages(ctx context.Context, find *FindMessage) ([]*chat.Message, error) {
	return s.driver.ListMessages(ctx, find)
}

// GetMessage returns the first message matching the filter, or nil.
func (s *Store) GetMessage(ctx context.Context, find *FindMessage) (*chat.Message, error) {
	find.Limit = 1
	list, err := s.driver.ListMessages(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// LastMessage returns the newest message of a session, or nil.
func (s *Store) LastMessage(ctx context.Context, sessionID string) (*chat.Message, error) {
	return s.GetMessage(ctx, &FindMessage{SessionID: &sessionID, Descending: true})
}

// UpdateMessage updates a message's mutable fields.
func (s *Store) UpdateMessage(ctx context.Context, update *UpdateMessage) (*chat.Message, error) {
	return s.driver.UpdateMessage(ctx, update)
}

// DeleteMessage removes a message.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	return s.driver.DeleteMessage(ctx, id)
}

// CountMessages counts messages matching the filter.
func (s *Store) CountMessages(ctx context.Context, find *FindMessage) (int64, error) {
	return s.driver.CountMessages(ctx, find)
}
