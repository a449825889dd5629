package postgres

import (
	"context"
	"errors"

	"github.com/and161185/tasklist/internal/errs"
	"github.com/and161185/tasklist/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// TodoRepo implements TodoRepository using PostgreSQL. Every statement is scoped by user_id.
type TodoRepo struct{ db *DB }

// NewTodoRepo constructs a todo repository.
func NewTodoRepo(db *DB) *TodoRepo { return &TodoRepo{db: db} }

// ListByUser returns the user's todos ordered by inserted_at descending.
func (r *TodoRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Task, error) {
	const q = `
SELECT id, user_id, task, is_complete, inserted_at
FROM todos
WHERE user_id=$1
ORDER BY inserted_at DESC, id DESC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Task{}
	for rows.Next() {
		var t model.Task
		if err = rows.Scan(&t.ID, &t.UserID, &t.Task, &t.IsComplete, &t.InsertedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Insert creates a todo and returns it with server-assigned id and timestamp.
func (r *TodoRepo) Insert(ctx context.Context, nt model.NewTask) (*model.Task, error) {
	const q = `
INSERT INTO todos (user_id, task, is_complete)
VALUES ($1, $2, $3)
RETURNING id, user_id, task, is_complete, inserted_at`
	var t model.Task
	err := r.db.Pool.QueryRow(ctx, q, nt.UserID, nt.Task, nt.IsComplete).
		Scan(&t.ID, &t.UserID, &t.Task, &t.IsComplete, &t.InsertedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, errs.ErrForbidden
		}
		return nil, err
	}
	return &t, nil
}

// Update applies the non-nil patch fields to the user's todo.
func (r *TodoRepo) Update(ctx context.Context, userID uuid.UUID, id int64, p model.TaskPatch) (*model.Task, error) {
	const q = `
UPDATE todos
SET task = COALESCE($3::text, task), is_complete = COALESCE($4::boolean, is_complete)
WHERE id=$1 AND user_id=$2
RETURNING id, user_id, task, is_complete, inserted_at`
	var task, done any
	if p.Task != nil {
		task = *p.Task
	}
	if p.IsComplete != nil {
		done = *p.IsComplete
	}
	var t model.Task
	err := r.db.Pool.QueryRow(ctx, q, id, userID, task, done).
		Scan(&t.ID, &t.UserID, &t.Task, &t.IsComplete, &t.InsertedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Delete removes the user's todo. A missing row is not an error.
func (r *TodoRepo) Delete(ctx context.Context, userID uuid.UUID, id int64) error {
	const q = `DELETE FROM todos WHERE id=$1 AND user_id=$2`
	_, err := r.db.Pool.Exec(ctx, q, id, userID)
	return err
}
