package postgres

import (
	"context"
	"errors"

	"github.com/and161185/tasklist/internal/errs"
	"github.com/and161185/tasklist/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new account row.
func (r *UserRepo) Create(ctx context.Context, a *model.Account) error {
	const q = `
INSERT INTO users (id, email, pwd_hash, salt)
VALUES ($1, $2, $3, $4)
RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q, a.ID, a.Email, a.PwdHash, a.Salt).Scan(&a.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	const q = `SELECT id, email, created_at FROM users WHERE id=$1`
	var u model.User
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Email, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByEmail selects an account with credentials by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	const q = `
SELECT id, email, created_at, pwd_hash, salt
FROM users WHERE email=$1`
	var a model.Account
	if err := r.db.Pool.QueryRow(ctx, q, email).Scan(&a.ID, &a.Email, &a.CreatedAt, &a.PwdHash, &a.Salt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}
