package repository

import (
	"context"

	"github.com/and161185/tasklist/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ProfileRepository provides access to the profiles table.
type ProfileRepository interface {
	// Get returns the profile with the given id.
	Get(ctx context.Context, id uuid.UUID) (*model.Profile, error)
	// Insert creates a profile row.
	Insert(ctx context.Context, p model.Profile) (*model.Profile, error)
}

// TodoRepository provides user-scoped access to the todos table.
type TodoRepository interface {
	// ListByUser returns all todos of a user, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Task, error)
	// Insert creates a todo and returns the stored row.
	Insert(ctx context.Context, t model.NewTask) (*model.Task, error)
	// Update applies a partial update to a user's todo and returns the stored row.
	Update(ctx context.Context, userID uuid.UUID, id int64, p model.TaskPatch) (*model.Task, error)
	// Delete removes a user's todo; deleting a missing row is not an error.
	Delete(ctx context.Context, userID uuid.UUID, id int64) error
}
