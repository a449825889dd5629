// Package backend declares the contracts the client core consumes from the hosted
// auth provider and data table store. Implementations translate backend-specific
// error codes into the sentinels in package errs.
package backend

import (
	"context"
	"fmt"

	"github.com/and161185/tasklist/internal/model"
	"github.com/gofrs/uuid/v5"
)

// AuthStateHandler receives auth-state notifications. session is nil after sign-out.
type AuthStateHandler func(event model.AuthEvent, session *model.Session)

// Subscription is a registered AuthStateHandler.
type Subscription interface {
	// Unsubscribe stops deliveries and returns once queued ones were handled.
	// Safe to call more than once, but not from inside the handler.
	Unsubscribe()
}

// AuthProvider is the auth capability provider.
type AuthProvider interface {
	// GetUser returns the currently signed-in user, or nil when anonymous.
	GetUser(ctx context.Context) (*model.User, error)
	// OnAuthStateChange registers h for sign-in, sign-out and token refresh events.
	OnAuthStateChange(h AuthStateHandler) Subscription
	// SignInWithPassword authenticates with email and password.
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	// SignUp creates an account.
	SignUp(ctx context.Context, email, password string) (*model.Session, error)
	// SignOut ends the current session.
	SignOut(ctx context.Context) error
}

// ProfileTable is the profiles table.
type ProfileTable interface {
	// Get returns the profile row; errs.ErrNotFound when there is none.
	Get(ctx context.Context, id uuid.UUID) (*model.Profile, error)
	// Insert creates a profile row.
	Insert(ctx context.Context, p model.Profile) error
}

// TodoTable is the todos table.
type TodoTable interface {
	// ListByUser returns the user's todos ordered by inserted_at descending.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Task, error)
	// Insert creates a todo and returns the stored row.
	Insert(ctx context.Context, t model.NewTask) (*model.Task, error)
	// Update applies a partial update and returns the stored row.
	Update(ctx context.Context, id int64, p model.TaskPatch) (*model.Task, error)
	// Delete removes the todo.
	Delete(ctx context.Context, id int64) error
}

// AuthError is a provider error passed through unchanged to callers of sign-in/up/out.
type AuthError struct {
	Status  int    // HTTP status
	Code    string // provider error code, e.g. "invalid_credentials"
	Message string
	Err     error // matching sentinel from package errs, if any
}

func (e *AuthError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth: %s: %s", e.Code, e.Message)
	}
	return "auth: " + e.Message
}

// Unwrap exposes the sentinel for errors.Is.
func (e *AuthError) Unwrap() error { return e.Err }
