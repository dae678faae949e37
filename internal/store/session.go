package store

import (
	"context"

	"github.com/zhouzirui/z-support/backend/internal/model/chat"
)

// FindSession filters for ListSessions. Results are ordered newest first.
type FindSession struct {
	ID        *string
	VisitorID *string
	Status    *chat.SessionStatus
	Limit     int
}

// UpdateSession carries fields accepted by UpdateSession.
type UpdateSession struct {
	ID     string
	Status *chat.SessionStatus
}

// CreateSession inserts a session row.
func (s *Store) CreateSession(ctx context.Context, create *chat.Session) (*chat.Session, error) {
	return s.driver.CreateSession(ctx, create)
}

// ListSessions lists sessions matching the filter.
func (s *Store) ListSessions(ctx context.Context, find *FindSession) ([]*chat.Session, error) {
	return s.driver.ListSessions(ctx, find)
}

// GetSession returns the first session matching the filter, or nil.
func (s *Store) GetSession(ctx context.Context, find *FindSession) (*chat.Session, error) {
	find.Limit = 1
	list, err := s.driver.ListSessions(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// UpdateSession updates a session's mutable fields and bumps updated_at.
func (s *Store) UpdateSession(ctx context.Context, update *UpdateSession) (*chat.Session, error) {
	return s.driver.UpdateSession(ctx, update)
}

// CountSessions counts sessions matching the filter.
func (s *Store) CountSessions(ctx context.Context, find *FindSession) (int64, error) {
	return s.driver.CountSessions(ctx, find)
}
