package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/civicdesk/civicdesk/internal/apperrors"
	"github.com/civicdesk/civicdesk/internal/models"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const lockPair = `-- name: LockPair advisory lock for owner and role
SELECT pg_advisory_xact_lock(hashtextextended($1, 0))
`

// Serialize rotation per (owner, role) pair
// Postgres releases the lock when the transaction commits or rolls back
func (r *RefreshTokenRepo) LockPair(ctx context.Context, ownerID int64, role models.Role) error {
	_, err := r.DB.Exec(ctx, lockPair, fmt.Sprintf("%d:%s", ownerID, role))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const saveToken = `-- name: Save refresh token
INSERT INTO refresh_tokens (id, owner_id, role, token, created_at, expires_at, revoked)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, owner_id, role, token, created_at, expires_at, revoked
`

func (r *RefreshTokenRepo) Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, saveToken,
		token.ID, token.OwnerID, token.Role, token.Token, token.CreatedAt, token.ExpiresAt, token.Revoked)
	saved, err := pgx.CollectOneRow(rows, rowToRefreshToken)
	if err != nil {
		return saved, fmt.Errorf("db error: %w", err)
	}
	return saved, nil
}

const getActiveToken = `-- name: GetActive by token string
SELECT id, owner_id, role, token, created_at, expires_at, revoked
FROM refresh_tokens
WHERE token = $1 AND NOT revoked
`

// Get a not revoked token by its string
// Revoked and absent tokens look identical to the caller
func (r *RefreshTokenRepo) GetActive(ctx context.Context, tokenString string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getActiveToken, tokenString)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, apperrors.ErrRefreshTokenNotFound
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const revokeByToken = `-- name: RevokeByToken
UPDATE refresh_tokens
SET revoked = TRUE
WHERE token = $1
`

// Idempotent: revoking an already revoked or unknown token is a no-op
func (r *RefreshTokenRepo) RevokeByToken(ctx context.Context, tokenString string) error {
	_, err := r.DB.Exec(ctx, revokeByToken, tokenString)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const revokeAllFor = `-- name: RevokeAllFor owner and role
UPDATE refresh_tokens
SET revoked = TRUE
WHERE owner_id = $1 AND role = $2 AND NOT revoked
`

func (r *RefreshTokenRepo) RevokeAllFor(ctx context.Context, ownerID int64, role models.Role) (int64, error) {
	tag, err := r.DB.Exec(ctx, revokeAllFor, ownerID, role)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

const deleteExpiredBefore = `-- name: DeleteExpiredBefore
DELETE FROM refresh_tokens
WHERE expires_at < $1
`

// Rows with expiry exactly at ts stay untouched
func (r *RefreshTokenRepo) DeleteExpiredBefore(ctx context.Context, ts time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteExpiredBefore, ts)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

func rowToRefreshToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(&t.ID, &t.OwnerID, &t.Role, &t.Token, &t.CreatedAt, &t.ExpiresAt, &t.Revoked)
	return t, err
}
