package postgres

import (
	"context"
	"errors"

	"github.com/and161185/tasklist/internal/errs"
	"github.com/and161185/tasklist/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// RefreshTokenRepo stores refresh token hashes in PostgreSQL.
type RefreshTokenRepo struct{ db *DB }

// NewRefreshTokenRepo constructs a refresh token repository.
func NewRefreshTokenRepo(db *DB) *RefreshTokenRepo { return &RefreshTokenRepo{db: db} }

// Create stores a token hash.
func (r *RefreshTokenRepo) Create(ctx context.Context, t model.RefreshToken) error {
	const q = `INSERT INTO refresh_tokens (token_hash, user_id, expires_at) VALUES ($1, $2, $3)`
	_, err := r.db.Pool.Exec(ctx, q, t.Hash, t.UserID, t.ExpiresAt)
	return err
}

// Consume deletes a token by hash and returns it. Single use.
func (r *RefreshTokenRepo) Consume(ctx context.Context, hash []byte) (*model.RefreshToken, error) {
	const q = `DELETE FROM refresh_tokens WHERE token_hash=$1 RETURNING user_id, expires_at`
	t := model.RefreshToken{Hash: hash}
	if err := r.db.Pool.QueryRow(ctx, q, hash).Scan(&t.UserID, &t.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// DeleteByUser revokes every token of the user.
func (r *RefreshTokenRepo) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	const q = `DELETE FROM refresh_tokens WHERE user_id=$1`
	_, err := r.db.Pool.Exec(ctx, q, userID)
	return err
}
