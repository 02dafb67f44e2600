package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/civicdesk/civicdesk/internal/apperrors"
	"github.com/civicdesk/civicdesk/internal/models"
	"github.com/civicdesk/civicdesk/internal/repository"
	"github.com/civicdesk/civicdesk/internal/repository/postgres"
	"github.com/civicdesk/civicdesk/internal/testutil"
)

func createPrincipal(t *testing.T, storage repository.Storage, email string, role models.Role) models.Principal {
	t.Helper()

	principal, err := storage.Principal().CreatePrincipal(t.Context(), repository.CreatePrincipalParams{
		Role:         role,
		Email:        email,
		PasswordHash: "hash",
		FullName:     "Test Principal",
	})
	require.NoError(t, err)
	return principal
}

func Test_RefreshManager(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("create token ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			manager, err := NewRefreshManager(RefreshConfig{}, storage)
			require.NoError(t, err)
			owner := createPrincipal(t, storage, "owner@example.com", models.RoleUser)

			token, err := manager.Create(t.Context(), owner.ID, owner.Role)

			require.NoError(t, err)
			require.NotEmpty(t, token.Token)
			require.Len(t, token.Token, 72, "two uuid strings concatenated")
			require.Equal(t, owner.ID, token.OwnerID)
			require.Equal(t, owner.Role, token.Role)
			require.False(t, token.Revoked)
			require.WithinDuration(t, time.Now().Add(7*24*time.Hour), token.ExpiresAt, 2*time.Second, "default lifetime is 7 days")
		})
	})

	t.Run("create rotates previous tokens", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			manager, err := NewRefreshManager(RefreshConfig{}, storage)
			require.NoError(t, err)
			owner := createPrincipal(t, storage, "owner@example.com", models.RoleUser)

			first, err := manager.Create(t.Context(), owner.ID, owner.Role)
			require.NoError(t, err)
			second, err := manager.Create(t.Context(), owner.ID, owner.Role)
			require.NoError(t, err)

			_, err = manager.FindActive(t.Context(), first.Token)
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound, "first token must be revoked by the second create")

			got, err := manager.FindActive(t.Context(), second.Token)
			require.NoError(t, err)
			require.Equal(t, second.Token, got.Token)
		})
	})

	t.Run("concurrent creates keep exactly one active token", func(t *testing.T) {
		// Racing transactions need separate connections, so this subtest
		// works on the pool with its own principal instead of a rolled
		// back tx
		storage := postgres.NewStorage(pg.Pool)
		manager, err := NewRefreshManager(RefreshConfig{}, storage)
		require.NoError(t, err)
		owner := createPrincipal(t, storage, "racing-owner@example.com", models.RoleUser)

		const creates = 8
		errs := make(chan error, creates)
		var wg sync.WaitGroup
		for i := 0; i < creates; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := manager.Create(context.Background(), owner.ID, owner.Role)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		var active int
		err = pg.Pool.QueryRow(t.Context(),
			"SELECT COUNT(*) FROM refresh_tokens WHERE owner_id = $1 AND role = $2 AND NOT revoked",
			owner.ID, owner.Role,
		).Scan(&active)
		require.NoError(t, err)
		require.Equal(t, 1, active, "racing creates must leave a single active token")
	})

	t.Run("rotation is scoped to the owner and role pair", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			manager, err := NewRefreshManager(RefreshConfig{}, storage)
			require.NoError(t, err)
			resident := createPrincipal(t, storage, "same@example.com", models.RoleUser)
			authority := createPrincipal(t, storage, "same@example.com", models.RoleAuthority)

			residentToken, err := manager.Create(t.Context(), resident.ID, resident.Role)
			require.NoError(t, err)
			_, err = manager.Create(t.Context(), authority.ID, authority.Role)
			require.NoError(t, err)

			_, err = manager.FindActive(t.Context(), residentToken.Token)
			require.NoError(t, err, "tokens of other roles must not be rotated away")
		})
	})

	t.Run("verify not expired", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			manager, err := NewRefreshManager(RefreshConfig{}, storage)
			require.NoError(t, err)
			owner := createPrincipal(t, storage, "owner@example.com", models.RoleUser)

			token, err := manager.Create(t.Context(), owner.ID, owner.Role)
			require.NoError(t, err)

			got, err := manager.VerifyNotExpired(t.Context(), token)
			require.NoError(t, err)
			require.Equal(t, token.Token, got.Token)
		})
	})

	t.Run("expired token is revoked on detection", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			// Negative lifetime makes every new token already expired
			manager, err := NewRefreshManager(RefreshConfig{RefreshTTL: -time.Minute}, storage)
			require.NoError(t, err)
			owner := createPrincipal(t, storage, "owner@example.com", models.RoleUser)

			token, err := manager.Create(t.Context(), owner.ID, owner.Role)
			require.NoError(t, err)

			_, err = manager.VerifyNotExpired(t.Context(), token)
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenExpired)

			_, err = manager.FindActive(t.Context(), token.Token)
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound, "detected expiry must revoke the token")
		})
	})

	t.Run("revoke all", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			manager, err := NewRefreshManager(RefreshConfig{}, storage)
			require.NoError(t, err)
			owner := createPrincipal(t, storage, "owner@example.com", models.RoleUser)

			token, err := manager.Create(t.Context(), owner.ID, owner.Role)
			require.NoError(t, err)

			require.NoError(t, manager.RevokeAll(t.Context(), owner.ID, owner.Role))

			_, err = manager.FindActive(t.Context(), token.Token)
			require.ErrorIs(t, err, apperrors.ErrRefreshTokenNotFound)
		})
	})

	t.Run("sweep deletes only rows past expiry", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			expiring, err := NewRefreshManager(RefreshConfig{RefreshTTL: -time.Hour}, storage)
			require.NoError(t, err)
			alive, err := NewRefreshManager(RefreshConfig{}, storage)
			require.NoError(t, err)
			owner := createPrincipal(t, storage, "owner@example.com", models.RoleUser)
			other := createPrincipal(t, storage, "other@example.com", models.RoleUser)

			_, err = expiring.Create(t.Context(), owner.ID, owner.Role)
			require.NoError(t, err)
			kept, err := alive.Create(t.Context(), other.ID, other.Role)
			require.NoError(t, err)

			deleted, err := alive.SweepExpired(t.Context(), time.Now())
			require.NoError(t, err)
			require.EqualValues(t, 1, deleted)

			_, err = alive.FindActive(t.Context(), kept.Token)
			require.NoError(t, err, "unexpired token must survive the sweep")
		})
	})
}
