package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/civicdesk/civicdesk/internal/apperrors"
	"github.com/civicdesk/civicdesk/internal/models"
	"github.com/civicdesk/civicdesk/internal/repository"
)

const defaultRefreshTokenTTL = 7 * 24 * time.Hour

type RefreshConfig struct {
	// Refresh token lifetime
	// If not set than default is used
	RefreshTTL time.Duration
}

// RefreshManager owns the refresh token lifecycle: create with rotation,
// lookup, expiry checks, revocation and the expired rows sweep
// Rows live in the store only; nothing is cached between calls
type RefreshManager struct {
	refreshTTL time.Duration
	storage    repository.Storage
}

func NewRefreshManager(cfg RefreshConfig, storage repository.Storage) (*RefreshManager, error) {
	if storage == nil {
		return nil, errors.New("storage must not be nil")
	}

	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = defaultRefreshTokenTTL
	}

	return &RefreshManager{
		refreshTTL: cfg.RefreshTTL,
		storage:    storage,
	}, nil
}

// Create issues a fresh token for (ownerID, role) and revokes every other
// active token for the pair in the same transaction
// Plain revoke-then-insert is not enough under READ COMMITTED: two racing
// transactions can each miss the other's insert and both commit active rows,
// so the pair is serialized with a transaction scoped advisory lock first
func (m *RefreshManager) Create(ctx context.Context, ownerID int64, role models.Role) (models.RefreshToken, error) {
	now := time.Now().Truncate(time.Second)

	token := models.RefreshToken{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Role:      role,
		Token:     newOpaqueToken(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.refreshTTL),
		Revoked:   false,
	}

	var saved models.RefreshToken
	err := m.storage.InTx(ctx, func(s repository.Storage) error {
		if err := s.Refresh().LockPair(ctx, ownerID, role); err != nil {
			return fmt.Errorf("error while locking token pair. Err: %w", err)
		}

		if _, err := s.Refresh().RevokeAllFor(ctx, ownerID, role); err != nil {
			return fmt.Errorf("error while revoking previous tokens. Err: %w", err)
		}

		var err error
		saved, err = s.Refresh().Save(ctx, token)
		if err != nil {
			return fmt.Errorf("error while saving refresh token. Err: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.RefreshToken{}, err
	}

	return saved, nil
}

// FindActive returns the token only if it exists and is not revoked
func (m *RefreshManager) FindActive(ctx context.Context, tokenString string) (models.RefreshToken, error) {
	return m.storage.Refresh().GetActive(ctx, tokenString)
}

// VerifyNotExpired passes an unexpired token through
// A token found expired is revoked on the spot so a later clock hiccup can
// never make it look valid again
func (m *RefreshManager) VerifyNotExpired(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	if token.Active(time.Now()) {
		return token, nil
	}

	if err := m.storage.Refresh().RevokeByToken(ctx, token.Token); err != nil {
		return token, fmt.Errorf("error while revoking expired token. Err: %w", err)
	}

	return token, apperrors.ErrRefreshTokenExpired
}

// Revoke flips the revoked flag, no-op for unknown tokens
func (m *RefreshManager) Revoke(ctx context.Context, tokenString string) error {
	return m.storage.Refresh().RevokeByToken(ctx, tokenString)
}

// RevokeAll revokes every active token for (ownerID, role), used on logout
func (m *RefreshManager) RevokeAll(ctx context.Context, ownerID int64, role models.Role) error {
	_, err := m.storage.Refresh().RevokeAllFor(ctx, ownerID, role)
	return err
}

// SweepExpired deletes rows whose expiry is strictly before now
// Maintenance only; never runs on the request path
func (m *RefreshManager) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	return m.storage.Refresh().DeleteExpiredBefore(ctx, now)
}

// Opaque unguessable token: two concatenated random 128 bit identifiers
func newOpaqueToken() string {
	return uuid.NewString() + uuid.NewString()
}
