// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

// Package authtest provides in-memory auth collaborators for tests.
package authtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
)

// MemoryUserRepository is a concurrency-safe auth.UserRepository that
// enforces the same case-insensitive email uniqueness as the database.
type MemoryUserRepository struct {
	mu      sync.Mutex
	byID    map[ulid.ULID]*auth.User
	byEmail map[string]ulid.ULID
	inserts int
}

// NewMemoryUserRepository creates an empty repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[ulid.ULID]*auth.User),
		byEmail: make(map[string]ulid.ULID),
	}
}

// FindByEmail retrieves a user by email.
func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, oops.Code(auth.CodeUserNotFound).With("email", email).Wrap(auth.ErrNotFound)
	}
	u := *r.byID[id]
	return &u, nil
}

// FindByID retrieves a user by ID.
func (r *MemoryUserRepository) FindByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, oops.Code(auth.CodeUserNotFound).With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

// Insert stores a new user.
func (r *MemoryUserRepository) Insert(_ context.Context, nu auth.NewUser) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(nu.Email)
	if _, exists := r.byEmail[key]; exists {
		return nil, oops.Code(auth.CodeEmailTaken).With("email", nu.Email).Wrap(auth.ErrEmailTaken)
	}

	now := time.Now().UTC()
	u := &auth.User{
		ID:           ulid.Make(),
		Name:         nu.Name,
		Email:        nu.Email,
		PasswordHash: nu.PasswordHash,
		Role:         nu.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.byID[u.ID] = u
	r.byEmail[key] = u.ID
	r.inserts++

	cp := *u
	return &cp, nil
}

// Inserts returns the number of successful inserts.
func (r *MemoryUserRepository) Inserts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inserts
}

// Compile-time interface check.
var _ auth.UserRepository = (*MemoryUserRepository)(nil)
