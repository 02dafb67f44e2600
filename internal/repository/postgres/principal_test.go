package postgres

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/civicdesk/civicdesk/internal/apperrors"
	"github.com/civicdesk/civicdesk/internal/models"
	"github.com/civicdesk/civicdesk/internal/repository"
	"github.com/civicdesk/civicdesk/internal/testutil"
)

func Test_PrincipalRepo(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	params := repository.CreatePrincipalParams{
		Role:         models.RoleUser,
		Email:        "resident@example.com",
		PasswordHash: "supposed-to-be-bcrypt",
		FullName:     "First Resident",
	}

	t.Run("create principal ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := PrincipalRepo{DB: tx}

			got, err := repo.CreatePrincipal(t.Context(), params)

			require.NoError(t, err)
			require.NotZero(t, got.ID, "db should assign an id")
			require.Equal(t, models.RoleUser, got.Role)
			require.Equal(t, "resident@example.com", got.Email)
			require.Equal(t, "supposed-to-be-bcrypt", got.HashedPassword)
			require.Equal(t, "First Resident", got.FullName)
			require.True(t, got.Active, "new principals must start active")
			require.NotZero(t, got.CreatedAt)
		})
	})

	t.Run("duplicate email and role pair", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := PrincipalRepo{DB: tx}

			_, err := repo.CreatePrincipal(t.Context(), params)
			require.NoError(t, err)

			_, err = repo.CreatePrincipal(t.Context(), params)
			require.ErrorIs(t, err, apperrors.ErrPrincipalExists)
		})
	})

	t.Run("same email allowed under different role", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := PrincipalRepo{DB: tx}

			_, err := repo.CreatePrincipal(t.Context(), params)
			require.NoError(t, err)

			asAuthority := params
			asAuthority.Role = models.RoleAuthority
			_, err = repo.CreatePrincipal(t.Context(), asAuthority)
			require.NoError(t, err, "uniqueness is per (email, role), not per email")
		})
	})

	t.Run("get by email and role", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := PrincipalRepo{DB: tx}

			created, err := repo.CreatePrincipal(t.Context(), params)
			require.NoError(t, err)

			got, err := repo.GetByEmailAndRole(t.Context(), "resident@example.com", models.RoleUser)
			require.NoError(t, err)
			require.Equal(t, created.ID, got.ID)

			// Role is an explicit selector, not a hint
			_, err = repo.GetByEmailAndRole(t.Context(), "resident@example.com", models.RoleAuthority)
			require.ErrorIs(t, err, apperrors.ErrPrincipalNotFound)
		})
	})

	t.Run("get by id", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := PrincipalRepo{DB: tx}

			created, err := repo.CreatePrincipal(t.Context(), params)
			require.NoError(t, err)

			got, err := repo.GetByID(t.Context(), created.ID, models.RoleUser)
			require.NoError(t, err)
			require.Equal(t, created.Email, got.Email)

			_, err = repo.GetByID(t.Context(), created.ID+1000, models.RoleUser)
			require.ErrorIs(t, err, apperrors.ErrPrincipalNotFound)
		})
	})

	t.Run("deactivate", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := PrincipalRepo{DB: tx}

			created, err := repo.CreatePrincipal(t.Context(), params)
			require.NoError(t, err)

			err = repo.Deactivate(t.Context(), created.ID, created.Role)
			require.NoError(t, err)

			got, err := repo.GetByID(t.Context(), created.ID, created.Role)
			require.NoError(t, err)
			require.False(t, got.Active)

			err = repo.Deactivate(t.Context(), created.ID+1000, created.Role)
			require.ErrorIs(t, err, apperrors.ErrPrincipalNotFound)
		})
	})
}
