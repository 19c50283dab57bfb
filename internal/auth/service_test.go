// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package auth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/auth/authtest"
	"github.com/authgate/authgate/internal/auth/mocks"
	"github.com/authgate/authgate/pkg/errutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMockedService(t *testing.T) (*auth.Service, *mocks.MockUserRepository, *mocks.MockPasswordHasher) {
	t.Helper()
	users := mocks.NewMockUserRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)
	svc, err := auth.NewServiceWithLogger(users, hasher, discardLogger())
	require.NoError(t, err)
	return svc, users, hasher
}

func storedUser(email, hash string) *auth.User {
	now := time.Now().UTC()
	return &auth.User{
		ID:           ulid.Make(),
		Name:         "Ada",
		Email:        email,
		PasswordHash: hash,
		Role:         auth.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestNewService_RequiresDependencies(t *testing.T) {
	users := mocks.NewMockUserRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)

	tests := []struct {
		name   string
		users  auth.UserRepository
		hasher auth.PasswordHasher
		logger *slog.Logger
		msg    string
	}{
		{name: "nil users", hasher: hasher, logger: discardLogger(), msg: "users repository is required"},
		{name: "nil hasher", users: users, logger: discardLogger(), msg: "password hasher is required"},
		{name: "nil logger", users: users, hasher: hasher, msg: "logger is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := auth.NewServiceWithLogger(tt.users, tt.hasher, tt.logger)
			assert.Nil(t, svc)
			errutil.AssertErrorCode(t, err, "AUTH_SERVICE_INVALID")
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	svc, err := auth.NewService(users, hasher)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestService_CreateUser(t *testing.T) {
	ctx := context.Background()
	input := auth.NewUserInput{Name: "Ada", Email: "ada@example.com", Password: "secret123"}

	t.Run("stores hashed password with default role", func(t *testing.T) {
		svc, users, hasher := newMockedService(t)
		users.EXPECT().FindByEmail(mock.Anything, "ada@example.com").Return(nil, auth.ErrNotFound)
		hasher.EXPECT().Hash("secret123").Return("$2a$10$hash", nil)
		users.EXPECT().Insert(mock.Anything, auth.NewUser{
			Name:         "Ada",
			Email:        "ada@example.com",
			PasswordHash: "$2a$10$hash",
			Role:         auth.RoleUser,
		}).Return(storedUser("ada@example.com", "$2a$10$hash"), nil)

		got, err := svc.CreateUser(ctx, input)
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", got.Email)
		assert.Equal(t, auth.RoleUser, got.Role)
		assert.False(t, got.ID.IsZero())
	})

	t.Run("explicit admin role is kept", func(t *testing.T) {
		svc, users, hasher := newMockedService(t)
		users.EXPECT().FindByEmail(mock.Anything, mock.Anything).Return(nil, auth.ErrNotFound)
		hasher.EXPECT().Hash(mock.Anything).Return("$2a$10$hash", nil)
		users.EXPECT().Insert(mock.Anything, mock.MatchedBy(func(u auth.NewUser) bool {
			return u.Role == auth.RoleAdmin
		})).RunAndReturn(func(_ context.Context, u auth.NewUser) (*auth.User, error) {
			stored := storedUser(u.Email, u.PasswordHash)
			stored.Role = u.Role
			return stored, nil
		})

		in := input
		in.Role = auth.RoleAdmin
		got, err := svc.CreateUser(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, auth.RoleAdmin, got.Role)
	})

	t.Run("unknown role is rejected before lookup", func(t *testing.T) {
		svc, _, _ := newMockedService(t)
		in := input
		in.Role = "root"
		_, err := svc.CreateUser(ctx, in)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_ROLE")
	})

	t.Run("existing email never hashes or inserts", func(t *testing.T) {
		svc, users, _ := newMockedService(t)
		users.EXPECT().FindByEmail(mock.Anything, "ada@example.com").
			Return(storedUser("ada@example.com", "$2a$10$x"), nil)

		_, err := svc.CreateUser(ctx, input)
		errutil.AssertErrorKind(t, err, auth.ErrEmailTaken, auth.CodeEmailTaken)
		errutil.AssertErrorContext(t, err, "email", "ada@example.com")
	})

	t.Run("insert losing the uniqueness race reports email taken", func(t *testing.T) {
		svc, users, hasher := newMockedService(t)
		users.EXPECT().FindByEmail(mock.Anything, mock.Anything).Return(nil, auth.ErrNotFound)
		hasher.EXPECT().Hash(mock.Anything).Return("$2a$10$hash", nil)
		users.EXPECT().Insert(mock.Anything, mock.Anything).
			Return(nil, oops.Code(auth.CodeEmailTaken).Wrap(auth.ErrEmailTaken))

		_, err := svc.CreateUser(ctx, input)
		errutil.AssertErrorKind(t, err, auth.ErrEmailTaken, auth.CodeEmailTaken)
	})

	t.Run("lookup failure", func(t *testing.T) {
		svc, users, _ := newMockedService(t)
		users.EXPECT().FindByEmail(mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

		_, err := svc.CreateUser(ctx, input)
		errutil.AssertErrorCode(t, err, "AUTH_CREATE_FAILED")
		errutil.AssertErrorContext(t, err, "operation", "find user by email")
	})

	t.Run("hash failure", func(t *testing.T) {
		svc, users, hasher := newMockedService(t)
		users.EXPECT().FindByEmail(mock.Anything, mock.Anything).Return(nil, auth.ErrNotFound)
		hasher.EXPECT().Hash(mock.Anything).Return("", errors.New("entropy exhausted"))

		_, err := svc.CreateUser(ctx, input)
		errutil.AssertErrorCode(t, err, "AUTH_CREATE_FAILED")
		errutil.AssertErrorContext(t, err, "operation", "hash password")
	})

	t.Run("insert failure", func(t *testing.T) {
		svc, users, hasher := newMockedService(t)
		users.EXPECT().FindByEmail(mock.Anything, mock.Anything).Return(nil, auth.ErrNotFound)
		hasher.EXPECT().Hash(mock.Anything).Return("$2a$10$hash", nil)
		users.EXPECT().Insert(mock.Anything, mock.Anything).Return(nil, errors.New("disk full"))

		_, err := svc.CreateUser(ctx, input)
		errutil.AssertErrorCode(t, err, "AUTH_CREATE_FAILED")
		errutil.AssertErrorContext(t, err, "operation", "insert user")
	})
}

func TestService_AuthenticateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("valid credentials", func(t *testing.T) {
		svc, users, hasher := newMockedService(t)
		stored := storedUser("ada@example.com", "$2a$10$stored")
		users.EXPECT().FindByEmail(mock.Anything, "ada@example.com").Return(stored, nil)
		hasher.EXPECT().Verify("secret123", "$2a$10$stored").Return(true, nil)

		got, err := svc.AuthenticateUser(ctx, "ada@example.com", "secret123")
		require.NoError(t, err)
		assert.Equal(t, stored.ID, got.ID)
	})

	t.Run("unknown email still runs a hash comparison", func(t *testing.T) {
		svc, users, hasher := newMockedService(t)
		users.EXPECT().FindByEmail(mock.Anything, "ghost@example.com").Return(nil, auth.ErrNotFound)
		hasher.EXPECT().Verify("secret123", mock.MatchedBy(func(h string) bool {
			return strings.HasPrefix(h, "$2a$10$") && len(h) == 60
		})).Return(false, nil).Once()

		_, err := svc.AuthenticateUser(ctx, "ghost@example.com", "secret123")
		errutil.AssertErrorKind(t, err, auth.ErrUserNotFound, auth.CodeUserNotFound)
		assert.True(t, auth.IsAuthenticationFailure(err))
	})

	t.Run("wrong password", func(t *testing.T) {
		svc, users, hasher := newMockedService(t)
		users.EXPECT().FindByEmail(mock.Anything, mock.Anything).Return(storedUser("ada@example.com", "$2a$10$stored"), nil)
		hasher.EXPECT().Verify("nope", "$2a$10$stored").Return(false, nil)

		_, err := svc.AuthenticateUser(ctx, "ada@example.com", "nope")
		errutil.AssertErrorKind(t, err, auth.ErrInvalidCredentials, auth.CodeInvalidCredentials)
		assert.True(t, auth.IsAuthenticationFailure(err))
	})

	t.Run("lookup failure is not an authentication failure", func(t *testing.T) {
		svc, users, _ := newMockedService(t)
		users.EXPECT().FindByEmail(mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

		_, err := svc.AuthenticateUser(ctx, "ada@example.com", "secret123")
		errutil.AssertErrorCode(t, err, "AUTH_LOGIN_FAILED")
		assert.False(t, auth.IsAuthenticationFailure(err))
	})

	t.Run("corrupt stored hash", func(t *testing.T) {
		svc, users, hasher := newMockedService(t)
		users.EXPECT().FindByEmail(mock.Anything, mock.Anything).Return(storedUser("ada@example.com", "garbage"), nil)
		hasher.EXPECT().Verify(mock.Anything, "garbage").Return(false, errors.New("hash too short"))

		_, err := svc.AuthenticateUser(ctx, "ada@example.com", "secret123")
		errutil.AssertErrorCode(t, err, "AUTH_LOGIN_FAILED")
		errutil.AssertErrorContext(t, err, "operation", "verify password")
	})
}

func TestService_GetUser(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		svc, users, _ := newMockedService(t)
		stored := storedUser("ada@example.com", "$2a$10$x")
		users.EXPECT().FindByID(mock.Anything, stored.ID).Return(stored, nil)

		got, err := svc.GetUser(ctx, stored.ID)
		require.NoError(t, err)
		assert.Equal(t, stored.Safe(), got)
	})

	t.Run("missing", func(t *testing.T) {
		svc, users, _ := newMockedService(t)
		users.EXPECT().FindByID(mock.Anything, mock.Anything).Return(nil, auth.ErrNotFound)

		_, err := svc.GetUser(ctx, ulid.Make())
		errutil.AssertErrorKind(t, err, auth.ErrUserNotFound, auth.CodeUserNotFound)
	})

	t.Run("store failure", func(t *testing.T) {
		svc, users, _ := newMockedService(t)
		users.EXPECT().FindByID(mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

		_, err := svc.GetUser(ctx, ulid.Make())
		errutil.AssertErrorCode(t, err, "AUTH_GET_USER_FAILED")
	})
}

// Exercises the real hasher against the in-memory store end to end.
func TestService_SignUpThenSignIn(t *testing.T) {
	ctx := context.Background()
	repo := authtest.NewMemoryUserRepository()
	hasher, err := auth.NewBcryptHasherWithCost(4)
	require.NoError(t, err)
	svc, err := auth.NewServiceWithLogger(repo, hasher, discardLogger())
	require.NoError(t, err)

	created, err := svc.CreateUser(ctx, auth.NewUserInput{Name: "Ada", Email: "a@x.com", Password: "secret123"})
	require.NoError(t, err)

	stored, err := repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", stored.PasswordHash)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$2a$"))

	got, err := svc.AuthenticateUser(ctx, "a@x.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.AuthenticateUser(ctx, "a@x.com", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.CreateUser(ctx, auth.NewUserInput{Name: "Ada", Email: "a@x.com", Password: "other123"})
	assert.ErrorIs(t, err, auth.ErrEmailTaken)
	assert.Equal(t, 1, repo.Inserts())
}
