package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken as persisted by the refresh token store
// Token is an opaque random string and must never be parsed as a structured token
type RefreshToken struct {
	ID        uuid.UUID
	OwnerID   int64
	Role      Role
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// Active reports whether the token may still be exchanged
func (t RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && t.ExpiresAt.After(now)
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued by SessionService on login or refresh
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}
