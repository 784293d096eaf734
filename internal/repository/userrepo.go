// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/tasktracker/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides access to registered users.
type UserRepository interface {
	// Create inserts a new user; a username or email collision yields errs.ErrAlreadyExists.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail loads a user by its normalized email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}
