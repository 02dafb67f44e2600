package handlers

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/civicdesk/civicdesk/internal/handlers/middleware"
	"github.com/civicdesk/civicdesk/internal/logger"
	"github.com/civicdesk/civicdesk/internal/service/auth"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(sessions sessionService, l logger.Logger) http.Handler {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	authMiddleware := middleware.AuthMiddleware(sessions)
	withAuth := func(h http.Handler) http.Handler {
		return authMiddleware(h)
	}

	apiauth := http.NewServeMux()

	apiauth.Handle("POST /login", handleLogin(sessions, l))
	apiauth.Handle("POST /refresh", handleRefresh(sessions, l))
	apiauth.Handle("POST /revoke", handleRevoke(sessions, l))
	apiauth.Handle("POST /validate", handleValidate(sessions, l))

	apiauth.Handle("POST /logout", withAuth(handleLogout(sessions, l)))
	apiauth.Handle("GET /me", withAuth(handleMe()))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))
	root.Handle("GET /metrics", promhttp.Handler())

	handler := chain(root,
		middleware.LoggerMiddleware(l),
	)

	return handler
}

type sessionService interface {
	// Login principal with email, password and requested role
	// Unknown account, wrong password and unknown role all map to apperrors.ErrInvalidCredentials
	// or apperrors.ErrInvalidRole so callers can reject them uniformly.
	// Deactivated account with a correct password returns apperrors.ErrAccountDeactivated
	Login(ctx context.Context, email string, password string, role string) (auth.Session, error)

	// Refresh rotates the refresh token and mints a new access token.
	// Expired token: apperrors.ErrRefreshTokenExpired
	// Unknown or revoked token: apperrors.ErrRefreshTokenNotFound
	Refresh(ctx context.Context, refresh string) (auth.Session, error)

	// Logout revokes every active refresh token for the principal and role
	Logout(ctx context.Context, principalID int64, role string) error

	// Revoke revokes a single refresh token, quietly succeeding if it is unknown
	Revoke(ctx context.Context, refresh string) error

	// Validate parses and verifies an access token
	Validate(ctx context.Context, access string) (auth.AccessTokenClaims, error)
}
