package apperrors

import (
	"errors"
)

var (
	// Login failures
	// ErrInvalidCredentials is deliberately uniform: an unknown email and a wrong
	// password are indistinguishable to the caller
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account is deactivated")
	ErrInvalidRole        = errors.New("unknown principal role")

	ErrPrincipalExists   = errors.New("principal already exists")
	ErrPrincipalNotFound = errors.New("principal not found")

	// Refresh token failures
	// A revoked token and an absent token both surface as not found outside the store
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")

	// Access token verification failures
	// All three map to 401 but are logged with different detail
	ErrAccessTokenExpired        = errors.New("access token is expired")
	ErrAccessTokenInvalid        = errors.New("access token is invalid")
	ErrAccessTokenUnsupportedAlg = errors.New("access token signed with unsupported algorithm")
)
