package repository

import (
	"context"
	"time"

	"github.com/civicdesk/civicdesk/internal/models"
)

type CreatePrincipalParams struct {
	Role         models.Role
	Email        string
	PasswordHash string
	FullName     string
}

// Principal repository interface
type PrincipalRepo interface {
	// Create principal
	// If a principal with the same (email, role) exists must return apperrors.ErrPrincipalExists
	CreatePrincipal(ctx context.Context, arg CreatePrincipalParams) (models.Principal, error)

	// Get principal by compound login key or by id
	// If not found must return apperrors.ErrPrincipalNotFound
	GetByEmailAndRole(ctx context.Context, email string, role models.Role) (models.Principal, error)
	GetByID(ctx context.Context, id int64, role models.Role) (models.Principal, error)

	// Soft delete: flips active to false, one way
	Deactivate(ctx context.Context, id int64, role models.Role) error
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Take a lock serializing token mutations for the pair
	// Held until the surrounding transaction ends, so it is only meaningful
	// inside Storage.InTx
	LockPair(ctx context.Context, ownerID int64, role models.Role) error

	// Persist token
	Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return the token only if it exists and is not revoked
	// Revoked and absent tokens are both apperrors.ErrRefreshTokenNotFound:
	// no revoked-token existence signal leaks from this layer
	GetActive(ctx context.Context, tokenString string) (models.RefreshToken, error)

	// Flip revoked flag, no-op if already revoked or absent
	RevokeByToken(ctx context.Context, tokenString string) error

	// Revoke every active token for the pair, returns the number revoked
	RevokeAllFor(ctx context.Context, ownerID int64, role models.Role) (int64, error)

	// Delete rows whose expiry is strictly before ts, returns the number deleted
	DeleteExpiredBefore(ctx context.Context, ts time.Time) (int64, error)
}

// Storage combines repositories and gives transactional boundaries
type Storage interface {
	Principal() PrincipalRepo
	Refresh() RefreshTokenRepo

	// Run fn within a database transaction
	// The storage passed to fn shares one transaction for all its repos
	InTx(ctx context.Context, fn func(Storage) error) error
}
