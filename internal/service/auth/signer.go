package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/civicdesk/civicdesk/internal/apperrors"
	"github.com/civicdesk/civicdesk/internal/models"
)

const (
	defaultAccessTokenTTL = 15 * time.Minute
	defaultSigningMethod  = "HS256"
)

// Claims embedded into every access token
// Subject carries the principal email as the primary identity string
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	PrincipalID int64       `json:"id"`
	Role        models.Role `json:"role"`
}

type SignerConfig struct {
	// Secret key to sign access token payload
	// Required to be set, loaded once at process start and never rotated
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access token lifetime
	// If not set than default is used
	AccessTTL time.Duration
}

// TokenSigner mints and verifies signed access tokens
// Stateless given its key; safe for concurrent use
type TokenSigner struct {
	key       string
	alg       jwt.SigningMethod
	accessTTL time.Duration
}

func NewSigner(cfg SignerConfig) (*TokenSigner, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = defaultAccessTokenTTL
	}

	return &TokenSigner{
		key:       cfg.SecretKey,
		alg:       jwt.GetSigningMethod(cfg.Alg),
		accessTTL: cfg.AccessTTL,
	}, nil
}

// AccessTTL reports the configured access token lifetime
func (s *TokenSigner) AccessTTL() time.Duration {
	return s.accessTTL
}

// Mint a signed access token for the principal
func (s *TokenSigner) Mint(principal models.Principal) (models.IssuedToken, error) {
	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(s.accessTTL)

	token := jwt.NewWithClaims(
		s.alg,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   principal.Email,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			PrincipalID: principal.ID,
			Role:        principal.Role,
		},
	)
	signed, err := token.SignedString([]byte(s.key))
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// Parse and validate access token
// Failure kind is wrapped so callers can log expired, unsupported alg and
// plainly invalid tokens differently
func (s *TokenSigner) Verify(access string) (AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}

	_, err := jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) {
			if t.Method.Alg() != s.alg.Alg() {
				return nil, apperrors.ErrAccessTokenUnsupportedAlg
			}
			return []byte(s.key), nil
		},
	)

	switch {
	case err == nil:
		return *claims, nil
	case errors.Is(err, apperrors.ErrAccessTokenUnsupportedAlg):
		return AccessTokenClaims{}, fmt.Errorf("%w. Err: %s", apperrors.ErrAccessTokenUnsupportedAlg, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return AccessTokenClaims{}, fmt.Errorf("%w. Err: %s", apperrors.ErrAccessTokenExpired, err)
	default:
		return AccessTokenClaims{}, fmt.Errorf("%w. Err: %s", apperrors.ErrAccessTokenInvalid, err)
	}
}
