package postgres

import (
	"context"
	"errors"

	"github.com/and161185/tasklist/internal/errs"
	"github.com/and161185/tasklist/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// ProfileRepo implements ProfileRepository using PostgreSQL.
type ProfileRepo struct{ db *DB }

// NewProfileRepo constructs a profile repository.
func NewProfileRepo(db *DB) *ProfileRepo { return &ProfileRepo{db: db} }

// Get selects a profile by id.
func (r *ProfileRepo) Get(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	const q = `SELECT id, username FROM profiles WHERE id=$1`
	var p model.Profile
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&p.ID, &p.Username); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Insert creates a profile and returns the stored row.
func (r *ProfileRepo) Insert(ctx context.Context, p model.Profile) (*model.Profile, error) {
	const q = `
INSERT INTO profiles (id, username)
VALUES ($1, $2)
RETURNING id, username`
	var out model.Profile
	err := r.db.Pool.QueryRow(ctx, q, p.ID, p.Username).Scan(&out.ID, &out.Username)
	switch {
	case err == nil:
		return &out, nil
	case isUniqueViolation(err):
		return nil, errs.ErrAlreadyExists
	case isForeignKeyViolation(err):
		return nil, errs.ErrForbidden
	default:
		return nil, err
	}
}
