package models

import (
	"time"

	"github.com/civicdesk/civicdesk/internal/apperrors"
)

// Role selects one of the principal kinds
// A login request always names the role explicitly: (email, role) is the real lookup key
type Role string

const (
	RoleUser      Role = "USER"
	RoleAuthority Role = "AUTHORITY"
	RoleAdmin     Role = "ADMIN"
)

// Parse role from user provided string
// Returns apperrors.ErrInvalidRole for anything but the three known tags
func ParseRole(value string) (Role, error) {
	switch Role(value) {
	case RoleUser, RoleAuthority, RoleAdmin:
		return Role(value), nil
	default:
		return "", apperrors.ErrInvalidRole
	}
}

func (r Role) String() string {
	return string(r)
}

// Principal is any authenticable identity: citizen user, field authority or administrator
// Deactivation is one way: Active flips to false and never back in this core
type Principal struct {
	ID             int64
	Role           Role
	Email          string
	HashedPassword string
	FullName       string
	Active         bool
	CreatedAt      time.Time
}
