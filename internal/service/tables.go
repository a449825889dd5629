package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/and161185/tasklist/internal/errs"
	"github.com/and161185/tasklist/internal/model"
	"github.com/and161185/tasklist/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// TableService exposes the profiles and todos tables with row-level access control:
// every operation is evaluated on behalf of the calling user.
type TableService interface {
	// GetProfile returns the caller's profile. Other users' rows are invisible.
	GetProfile(ctx context.Context, caller, id uuid.UUID) (*model.Profile, error)
	// InsertProfile creates the caller's profile.
	InsertProfile(ctx context.Context, caller uuid.UUID, p model.Profile) (*model.Profile, error)
	// ListTodos returns the caller's todos, newest first.
	ListTodos(ctx context.Context, caller uuid.UUID) ([]model.Task, error)
	// InsertTodo creates a todo owned by the caller.
	InsertTodo(ctx context.Context, caller uuid.UUID, nt model.NewTask) (*model.Task, error)
	// UpdateTodo partially updates one of the caller's todos.
	UpdateTodo(ctx context.Context, caller uuid.UUID, id int64, p model.TaskPatch) (*model.Task, error)
	// DeleteTodo deletes one of the caller's todos.
	DeleteTodo(ctx context.Context, caller uuid.UUID, id int64) error
}

type TableServiceImpl struct {
	profiles repository.ProfileRepository
	todos    repository.TodoRepository
}

// NewTableService constructs TableService.
func NewTableService(profiles repository.ProfileRepository, todos repository.TodoRepository) *TableServiceImpl {
	return &TableServiceImpl{profiles: profiles, todos: todos}
}

// GetProfile hides rows not owned by the caller as not found.
func (s *TableServiceImpl) GetProfile(ctx context.Context, caller, id uuid.UUID) (*model.Profile, error) {
	if caller == uuid.Nil {
		return nil, errs.ErrUnauthorized
	}
	if id != caller {
		return nil, errs.ErrNotFound
	}
	return s.profiles.Get(ctx, id)
}

// InsertProfile rejects rows whose id is not the caller.
func (s *TableServiceImpl) InsertProfile(ctx context.Context, caller uuid.UUID, p model.Profile) (*model.Profile, error) {
	if caller == uuid.Nil {
		return nil, errs.ErrUnauthorized
	}
	if p.ID == uuid.Nil {
		p.ID = caller
	}
	if p.ID != caller {
		return nil, errs.ErrForbidden
	}
	return s.profiles.Insert(ctx, p)
}

// ListTodos returns the caller's rows.
func (s *TableServiceImpl) ListTodos(ctx context.Context, caller uuid.UUID) ([]model.Task, error) {
	if caller == uuid.Nil {
		return nil, errs.ErrUnauthorized
	}
	return s.todos.ListByUser(ctx, caller)
}

// InsertTodo validates non-empty text and ownership.
func (s *TableServiceImpl) InsertTodo(ctx context.Context, caller uuid.UUID, nt model.NewTask) (*model.Task, error) {
	if caller == uuid.Nil {
		return nil, errs.ErrUnauthorized
	}
	if nt.UserID == uuid.Nil {
		nt.UserID = caller
	}
	if nt.UserID != caller {
		return nil, errs.ErrForbidden
	}
	nt.Task = strings.TrimSpace(nt.Task)
	if nt.Task == "" {
		return nil, fmt.Errorf("%w: empty task", errs.ErrInvalidInput)
	}
	return s.todos.Insert(ctx, nt)
}

// UpdateTodo validates the patch and applies it to the caller's row.
func (s *TableServiceImpl) UpdateTodo(ctx context.Context, caller uuid.UUID, id int64, p model.TaskPatch) (*model.Task, error) {
	if caller == uuid.Nil {
		return nil, errs.ErrUnauthorized
	}
	if p.Empty() {
		return nil, fmt.Errorf("%w: empty patch", errs.ErrInvalidInput)
	}
	if p.Task != nil {
		text := strings.TrimSpace(*p.Task)
		if text == "" {
			return nil, fmt.Errorf("%w: empty task", errs.ErrInvalidInput)
		}
		p.Task = &text
	}
	return s.todos.Update(ctx, caller, id, p)
}

// DeleteTodo removes the caller's row if present.
func (s *TableServiceImpl) DeleteTodo(ctx context.Context, caller uuid.UUID, id int64) error {
	if caller == uuid.Nil {
		return errs.ErrUnauthorized
	}
	return s.todos.Delete(ctx, caller, id)
}
