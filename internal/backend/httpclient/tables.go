package httpclient

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/tasklist/internal/backend"
	"github.com/and161185/tasklist/internal/model"
)

// Profiles is the profiles table.
type Profiles struct{ c *Client }

var _ backend.ProfileTable = (*Profiles)(nil)

func (p *Profiles) Get(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	var out model.Profile
	if err := p.c.tableCall(ctx, http.MethodGet, "/rest/v1/profiles/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *Profiles) Insert(ctx context.Context, row model.Profile) error {
	return p.c.tableCall(ctx, http.MethodPost, "/rest/v1/profiles", row, nil)
}

// Todos is the todos table.
type Todos struct{ c *Client }

var _ backend.TodoTable = (*Todos)(nil)

// ListByUser lists userID's todos. The server only ever returns the caller's rows,
// so a userID other than the session user yields nothing.
func (t *Todos) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Task, error) {
	var out []model.Task
	if err := t.c.tableCall(ctx, http.MethodGet, "/rest/v1/todos", nil, &out); err != nil {
		return nil, err
	}
	res := make([]model.Task, 0, len(out))
	for _, row := range out {
		if row.UserID == userID {
			res = append(res, row)
		}
	}
	return res, nil
}

func (t *Todos) Insert(ctx context.Context, nt model.NewTask) (*model.Task, error) {
	var out model.Task
	if err := t.c.tableCall(ctx, http.MethodPost, "/rest/v1/todos", nt, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *Todos) Update(ctx context.Context, id int64, p model.TaskPatch) (*model.Task, error) {
	var out model.Task
	if err := t.c.tableCall(ctx, http.MethodPatch, "/rest/v1/todos/"+strconv.FormatInt(id, 10), p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (t *Todos) Delete(ctx context.Context, id int64) error {
	return t.c.tableCall(ctx, http.MethodDelete, "/rest/v1/todos/"+strconv.FormatInt(id, 10), nil, nil)
}
