package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/civicdesk/civicdesk/internal/handlers/principalctx"
	"github.com/civicdesk/civicdesk/internal/handlers/render"
	"github.com/civicdesk/civicdesk/internal/service/auth"
)

const authScheme = "Bearer"

var errNoAuthHeader = errors.New("authorization header missing or malformed")

type sessionService interface {
	Validate(ctx context.Context, access string) (auth.AccessTokenClaims, error)
}

// AuthMiddleware verifies the bearer access token and puts its claims
// into the request context
func AuthMiddleware(sessions sessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, err := bearerToken(r)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := sessions.Validate(r.Context(), access)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := principalctx.New(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || scheme != authScheme || token == "" {
		return "", errNoAuthHeader
	}
	return token, nil
}
