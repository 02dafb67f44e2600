package handlers

import (
	"errors"
	"net/http"

	"github.com/civicdesk/civicdesk/internal/apperrors"
	"github.com/civicdesk/civicdesk/internal/handlers/principalctx"
	"github.com/civicdesk/civicdesk/internal/handlers/render"
	"github.com/civicdesk/civicdesk/internal/logger"
)

// Token pair response shared by login and refresh
type sessionResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
	Role         string `json:"role"`
}

func handleLogin(sessions sessionService, l logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
		Role     string `json:"role" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		session, err := sessions.Login(r.Context(), data.Email, data.Password, data.Role)
		switch {
		case err == nil:
			render.JSON(w, sessionResponse{
				AccessToken:  session.Tokens.Access.Value,
				RefreshToken: session.Tokens.Refresh.Value,
				ExpiresIn:    int64(session.AccessTTL.Seconds()),
				Role:         session.Principal.Role.String(),
			})

		case errors.Is(err, apperrors.ErrInvalidCredentials), errors.Is(err, apperrors.ErrInvalidRole):
			// Uniform rejection: no account existence or cross role signal
			render.ServiceError(w, "Invalid credentials", http.StatusUnauthorized)

		case errors.Is(err, apperrors.ErrAccountDeactivated):
			render.ServiceError(w, "Account is deactivated", http.StatusForbidden)

		default:
			l.Error("Login failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleRefresh(sessions sessionService, l logger.Logger) http.Handler {
	type request struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		session, err := sessions.Refresh(r.Context(), data.RefreshToken)
		switch {
		case err == nil:
			render.JSON(w, sessionResponse{
				AccessToken:  session.Tokens.Access.Value,
				RefreshToken: session.Tokens.Refresh.Value,
				ExpiresIn:    int64(session.AccessTTL.Seconds()),
				Role:         session.Principal.Role.String(),
			})

		case errors.Is(err, apperrors.ErrRefreshTokenExpired):
			l.Info("Refresh rejected, token expired")
			render.ServiceError(w, "Refresh token expired", http.StatusUnauthorized)

		case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
			l.Info("Refresh rejected, token not found or revoked")
			render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)

		case errors.Is(err, apperrors.ErrAccountDeactivated):
			render.ServiceError(w, "Account is deactivated", http.StatusForbidden)

		default:
			l.Error("Refresh failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleLogout(sessions sessionService, l logger.Logger) http.Handler {
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := principalctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		err := sessions.Logout(r.Context(), claims.PrincipalID, claims.Role.String())
		if err != nil {
			l.Error("Logout failed", "error", err, "principal_id", claims.PrincipalID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{Message: "Logged out successfully"})
	})
}

func handleRevoke(sessions sessionService, l logger.Logger) http.Handler {
	type request struct {
		RefreshToken string `json:"refreshToken" validate:"required"`
	}
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		// Idempotent: revoking an unknown token succeeds quietly
		if err := sessions.Revoke(r.Context(), data.RefreshToken); err != nil {
			l.Error("Revoke failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{Message: "Token revoked"})
	})
}

func handleValidate(sessions sessionService, l logger.Logger) http.Handler {
	type request struct {
		AccessToken string `json:"accessToken" validate:"required"`
	}
	type response struct {
		Valid bool `json:"valid"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		_, err = sessions.Validate(r.Context(), data.AccessToken)
		if err != nil {
			// Failure kinds map to the same answer but log differently
			switch {
			case errors.Is(err, apperrors.ErrAccessTokenExpired):
				l.Info("Access token validation failed, token expired")
			case errors.Is(err, apperrors.ErrAccessTokenUnsupportedAlg):
				l.Warn("Access token validation failed, unsupported algorithm")
			default:
				l.Info("Access token validation failed, token invalid")
			}
			render.JSON(w, response{Valid: false})
			return
		}

		render.JSON(w, response{Valid: true})
	})
}

func handleMe() http.Handler {
	type response struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := principalctx.FromContext(r.Context())
		render.JSON(w, response{ID: claims.PrincipalID, Email: claims.Subject, Role: claims.Role.String()})
	})
}
