// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/tasklist/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides access to auth accounts.
type UserRepository interface {
	// Create inserts a new account.
	Create(ctx context.Context, a *model.Account) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail loads an account (with credentials) by email.
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
}

// RefreshTokenRepository stores hashed refresh tokens.
type RefreshTokenRepository interface {
	// Create stores a new refresh token hash.
	Create(ctx context.Context, t model.RefreshToken) error
	// Consume deletes the token and returns it; ErrNotFound if absent.
	Consume(ctx context.Context, hash []byte) (*model.RefreshToken, error)
	// DeleteByUser revokes all tokens of a user.
	DeleteByUser(ctx context.Context, userID uuid.UUID) error
}
