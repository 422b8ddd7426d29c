package auth

import (
	"context"
)

// UserRepository defines persistence operations for credential records.
//
// Create must enforce email uniqueness itself and report a duplicate as
// ErrEmailExists; callers rely on it as the only conflict check. Lookups
// report a missing record as ErrUserNotFound.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
}
