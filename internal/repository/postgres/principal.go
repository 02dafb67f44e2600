package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/civicdesk/civicdesk/internal/apperrors"
	"github.com/civicdesk/civicdesk/internal/models"
	"github.com/civicdesk/civicdesk/internal/repository"
)

type PrincipalRepo struct {
	DB DBTX
}

const createPrincipal = `-- name: CreatePrincipal
INSERT INTO principals (role, email, password_hash, full_name)
VALUES ($1, $2, $3, $4)
RETURNING id, role, email, password_hash, full_name, active, created_at
`

func (r *PrincipalRepo) CreatePrincipal(ctx context.Context, arg repository.CreatePrincipalParams) (models.Principal, error) {
	rows, _ := r.DB.Query(ctx, createPrincipal, arg.Role, arg.Email, arg.PasswordHash, arg.FullName)
	principal, err := pgx.CollectOneRow(rows, rowToPrincipal)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return principal, apperrors.ErrPrincipalExists
		}

		return principal, fmt.Errorf("db error: %w", err)
	}

	return principal, nil
}

const getByEmailAndRole = `-- name: GetByEmailAndRole
SELECT id, role, email, password_hash, full_name, active, created_at
FROM principals
WHERE email = $1 AND role = $2
`

// Get principal by the compound login key
// Role is an explicit selector, never inferred: the same email may exist under
// a different role and must not be found through it
func (r *PrincipalRepo) GetByEmailAndRole(ctx context.Context, email string, role models.Role) (models.Principal, error) {
	rows, _ := r.DB.Query(ctx, getByEmailAndRole, email, role)
	principal, err := pgx.CollectOneRow(rows, rowToPrincipal)

	switch {
	case err == nil:
		return principal, nil
	case errors.Is(err, pgx.ErrNoRows):
		return principal, apperrors.ErrPrincipalNotFound
	default:
		return principal, fmt.Errorf("db error: %w", err)
	}
}

const getByID = `-- name: GetByID
SELECT id, role, email, password_hash, full_name, active, created_at
FROM principals
WHERE id = $1 AND role = $2
`

func (r *PrincipalRepo) GetByID(ctx context.Context, id int64, role models.Role) (models.Principal, error) {
	rows, _ := r.DB.Query(ctx, getByID, id, role)
	principal, err := pgx.CollectOneRow(rows, rowToPrincipal)

	switch {
	case err == nil:
		return principal, nil
	case errors.Is(err, pgx.ErrNoRows):
		return principal, apperrors.ErrPrincipalNotFound
	default:
		return principal, fmt.Errorf("db error: %w", err)
	}
}

const deactivatePrincipal = `-- name: Deactivate
UPDATE principals
SET active = FALSE
WHERE id = $1 AND role = $2
`

// One way transition: deactivated principals are never reactivated here
func (r *PrincipalRepo) Deactivate(ctx context.Context, id int64, role models.Role) error {
	tag, err := r.DB.Exec(ctx, deactivatePrincipal, id, role)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrPrincipalNotFound
	}
	return nil
}

func rowToPrincipal(row pgx.CollectableRow) (models.Principal, error) {
	var p models.Principal
	err := row.Scan(&p.ID, &p.Role, &p.Email, &p.HashedPassword, &p.FullName, &p.Active, &p.CreatedAt)
	return p, err
}
