package integration

import (
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/civicdesk/civicdesk/internal/handlers"
	"github.com/civicdesk/civicdesk/internal/models"
	"github.com/civicdesk/civicdesk/internal/repository"
	"github.com/civicdesk/civicdesk/internal/repository/postgres"
	"github.com/civicdesk/civicdesk/internal/service/auth"
	"github.com/civicdesk/civicdesk/internal/testutil"
)

type Services struct {
	Sessions *auth.SessionService
	Storage  repository.Storage
}

// Build the whole http stack over one db transaction and serve it
// The transaction is rolled back at test end, so db state never leaks
// between tests
func RunTx(dbpool *pgxpool.Pool, t *testing.T, fn func(srvURL string, s Services)) {
	testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
		storage := postgres.NewStorage(tx)

		signer, err := auth.NewSigner(auth.SignerConfig{SecretKey: "test-secret"})
		require.NoError(t, err, "token signer should be created without errors")

		refresh, err := auth.NewRefreshManager(auth.RefreshConfig{}, storage)
		require.NoError(t, err, "refresh manager should be created without errors")

		sessions, err := auth.NewSessionService(auth.SessionConfig{}, signer, refresh, storage.Principal(), nil, nil)
		require.NoError(t, err, "session service should be created without errors")

		router := handlers.NewRouter(sessions, nil)

		srv := httptest.NewServer(router)
		defer srv.Close()

		fn(srv.URL, Services{
			Sessions: sessions,
			Storage:  storage,
		})
	})
}

// Register an active principal with the given password
func CreatePrincipal(t *testing.T, storage repository.Storage, email string, password string, role models.Role) models.Principal {
	t.Helper()

	hash, err := auth.DefaultHasher.Hash(password)
	require.NoError(t, err, "password should hash without errors")

	principal, err := storage.Principal().CreatePrincipal(t.Context(), repository.CreatePrincipalParams{
		Role:         role,
		Email:        email,
		PasswordHash: hash,
		FullName:     "Integration Principal",
	})
	require.NoError(t, err, "principal should be created without errors")

	return principal
}
