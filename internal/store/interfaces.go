package store

import (
	"context"
	"errors"

	"basegraph.app/roster/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness constraint
var ErrConflict = errors.New("conflict")

// UserStore defines the contract for user data access
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	Update(ctx context.Context, user *model.User) error
}

// ModelStore defines the contract for model profile data access
type ModelStore interface {
	GetByID(ctx context.Context, id int64) (*model.ModelProfile, error)
	// FindByEmail matches case-insensitively and prefers an unlinked profile.
	FindByEmail(ctx context.Context, email string) (*model.ModelProfile, error)
	Create(ctx context.Context, m *model.ModelProfile) error
	Update(ctx context.Context, m *model.ModelProfile) error
	// LinkUser sets user_id on an unlinked profile. It reports false when
	// the profile was already linked.
	LinkUser(ctx context.Context, modelID, userID int64) (bool, error)
}
