package store

import (
	"context"

	"github.com/zhouzirui/z-support/backend/internal/model/admin"
	"github.com/zhouzirui/z-support/backend/internal/model/chat"
)

// Driver is implemented once per SQL dialect.
type Driver interface {
	Migrate(ctx context.Context) error
	Close() error

	CreateSession(ctx context.Context, create *chat.Session) (*chat.Session, error)
	ListSessions(ctx context.Context, find *FindSession) ([]*chat.Session, error)
	UpdateSession(ctx context.Context, update *UpdateSession) (*chat.Session, error)
	CountSessions(ctx context.Context, find *FindSession) (int64, error)

	CreateMessage(ctx context.Context, create *chat.Message) (*chat.Message, error)
	ListMessages(ctx context.Context, find *FindMessage) ([]*chat.Message, error)
	UpdateMessage(ctx context.Context, update *UpdateMessage) (*chat.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	CountMessages(ctx context.Context, find *FindMessage) (int64, error)

	CreateAdminUser(ctx context.Context, create *admin.User) (*admin.User, error)
	ListAdminUsers(ctx context.Context, find *FindAdminUser) ([]*admin.User, error)
	UpdateAdminUser(ctx context.Context, update *UpdateAdminUser) (*admin.User, error)
}

// Store is the persistence entry point shared by every service.
type Store struct {
	driver Driver
}

// New wraps a driver.
func New(driver Driver) *Store {
	return &Store{driver: driver}
}

// Migrate creates the tables if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.driver.Close()
}
