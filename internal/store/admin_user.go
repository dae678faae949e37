package store

import (
	"context"
	"time"

	"github.com/zhouzirui/z-support/backend/internal/model/admin"
)

// FindAdminUser filters for ListAdminUsers.
type FindAdminUser struct {
	ID        *string
	Email     *string
	IsOnline  *bool
	ExcludeID *string
	// SeenBefore matches online users whose last_seen is older than the value.
	SeenBefore *time.Time
}

// UpdateAdminUser carries fields accepted by UpdateAdminUser.
type UpdateAdminUser struct {
	ID           string
	Name         *string
	Email        *string
	PasswordHash *string
	IsOnline     *bool
	LastSeen     *time.Time
}

// CreateAdminUser inserts an admin user row.
func (s *Store) CreateAdminUser(ctx context.Context, create *admin.User) (*admin.User, error) {
	return s.driver.CreateAdminUser(ctx, create)
}

// ListAdminUsers lists admin users matching the filter, ordered by name.
func (s *Store) ListAdminUsers(ctx context.Context, find *FindAdminUser) ([]*admin.User, error) {
	return s.driver.ListAdminUsers(ctx, find)
}

// GetAdminUser returns the first admin user matching the filter, or nil.
func (s *Store) GetAdminUser(ctx context.Context, find *FindAdminUser) (*admin.User, error) {
	list, err := s.driver.ListAdminUsers(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// UpdateAdminUser updates an admin user's mutable fields.
func (s *Store) UpdateAdminUser(ctx context.Context, update *UpdateAdminUser) (*admin.User, error) {
	return s.driver.UpdateAdminUser(ctx, update)
}
