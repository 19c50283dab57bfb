// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is the stored authorization label of a user.
type Role string

// Known roles.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// DefaultRole is assigned when sign-up omits a role.
const DefaultRole = RoleUser

// Roles lists every accepted role.
func Roles() []Role {
	return []Role{RoleUser, RoleAdmin}
}

// ParseRole validates a role string. An empty string yields DefaultRole.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return DefaultRole, nil
	}
	for _, r := range Roles() {
		if string(r) == s {
			return r, nil
		}
	}
	return "", oops.Code("AUTH_INVALID_ROLE").With("role", s).Errorf("unknown role %q", s)
}

// User is a persisted account.
type User struct {
	ID           ulid.ULID
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SafeUser is a User without its password hash.
type SafeUser struct {
	ID        ulid.ULID
	Name      string
	Email     string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Safe returns the projection of u that excludes the password hash.
func (u *User) Safe() SafeUser {
	return SafeUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// NewUser holds the fields required to insert a user.
// The repository assigns ID and timestamps.
type NewUser struct {
	Name         string
	Email        string
	PasswordHash string
	Role         Role
}

// UserRepository manages user persistence.
type UserRepository interface {
	// FindByEmail retrieves a user by email (case-insensitive).
	// Returns ErrNotFound if no user has the given email.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByID retrieves a user by ID.
	// Returns ErrNotFound if the user does not exist.
	FindByID(ctx context.Context, id ulid.ULID) (*User, error)

	// Insert stores a new user and returns the stored record.
	// Returns ErrEmailTaken if the email is already registered, including
	// when a concurrent insert wins the race.
	Insert(ctx context.Context, user NewUser) (*User, error)
}
