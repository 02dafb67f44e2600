package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civicdesk/civicdesk/internal/apperrors"
	"github.com/civicdesk/civicdesk/internal/models"
	"github.com/civicdesk/civicdesk/internal/repository/postgres"
	"github.com/civicdesk/civicdesk/internal/testutil"
)

func Test_Sweeper(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Sweeper runs its own goroutine, so work on the pool instead of a tx
	storage := postgres.NewStorage(pg.Pool)
	owner := createPrincipal(t, storage, "sweep-owner@example.com", models.RoleUser)

	expiring, err := NewRefreshManager(RefreshConfig{RefreshTTL: -time.Hour}, storage)
	require.NoError(t, err)

	token, err := expiring.Create(t.Context(), owner.ID, owner.Role)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	sweeper := NewSweeper(50*time.Millisecond, expiring, nil)
	stopped := sweeper.Run(ctx)

	require.Eventually(t, func() bool {
		_, err := storage.Refresh().GetActive(ctx, token.Token)
		return errors.Is(err, apperrors.ErrRefreshTokenNotFound)
	}, 5*time.Second, 20*time.Millisecond, "sweeper should delete the expired token row")

	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}
