package store

import (
	"context"
	"time"
)

// Role is a coarse permission level.
type Role string

// Known roles.
const (
	RoleAdmin        Role = "admin"
	RoleColaborador  Role = "colaborador"
	RoleLector       Role = "lector"
	roleUnknownLabel      = "anonymous"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleColaborador, RoleLector:
		return Role(s), true
	default:
		return "", false
	}
}

// User is a registered account.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	// VerifiedAt is nil until the email link is followed.
	VerifiedAt *time.Time
	Role       Role
	IsActive   bool
	CreatedAt  time.Time
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// RoleName returns the role label used for authorization subjects.
func (u *User) RoleName() string {
	if u == nil || u.Role == "" {
		return roleUnknownLabel
	}
	return string(u.Role)
}

// UserRepository persists accounts.
type UserRepository interface {
	// CreateUser inserts u, setting ID and CreatedAt. Returns ErrConflict on duplicate email.
	CreateUser(ctx context.Context, u *User) error
	// GetUser loads a user by id or returns ErrNotFound.
	GetUser(ctx context.Context, id int64) (User, error)
	// GetUserByEmail loads a user by lower-cased email or returns ErrNotFound.
	GetUserByEmail(ctx context.Context, email string) (User, error)
	// UpdatePassword stores a new hash.
	UpdatePassword(ctx context.Context, id int64, hash string) error
	// MarkVerified sets verified_at.
	MarkVerified(ctx context.Context, id int64, at time.Time) error
	// UpdateRole changes the role.
	UpdateRole(ctx context.Context, id int64, role Role) error
}
