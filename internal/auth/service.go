// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("authgate/auth")

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// dummyPasswordHash is verified when a user doesn't exist so that the
// not-found path costs the same as a wrong password.
//
//nolint:gosec // G101: intentionally fake hash for timing equalization, not a credential.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIvNq.Uf3hE9tQALNP1Qn9sNp5x5x5x5"

// NewUserInput is a validated sign-up request.
type NewUserInput struct {
	Name     string
	Email    string
	Password string
	Role     Role
}

// Service provides the credential lifecycle operations.
type Service struct {
	users  UserRepository
	hasher PasswordHasher
	logger *slog.Logger
}

// NewService creates a new Service using the default logger.
func NewService(users UserRepository, hasher PasswordHasher) (*Service, error) {
	return NewServiceWithLogger(users, hasher, slog.Default())
}

// NewServiceWithLogger creates a new Service with an explicit logger.
func NewServiceWithLogger(users UserRepository, hasher PasswordHasher, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("users repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("logger is required")
	}
	return &Service{users: users, hasher: hasher, logger: logger}, nil
}

// CreateUser registers a new account.
// Returns an error wrapping ErrEmailTaken when the email is already registered;
// nothing is inserted on any error path.
func (s *Service) CreateUser(ctx context.Context, in NewUserInput) (_ SafeUser, err error) {
	ctx, span := tracer.Start(ctx, "auth.create_user",
		trace.WithAttributes(attribute.String("user.role", string(in.Role))))
	defer func() { endSpan(span, err) }()

	role, err := ParseRole(string(in.Role))
	if err != nil {
		return SafeUser{}, err
	}

	_, err = s.users.FindByEmail(ctx, in.Email)
	switch {
	case err == nil:
		s.logger.WarnContext(ctx, "sign-up rejected", "email", in.Email, "reason", CodeEmailTaken)
		return SafeUser{}, oops.Code(CodeEmailTaken).With("email", in.Email).Wrap(ErrEmailTaken)
	case !errors.Is(err, ErrNotFound):
		return SafeUser{}, oops.Code("AUTH_CREATE_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return SafeUser{}, oops.Code("AUTH_CREATE_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := s.users.Insert(ctx, NewUser{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			s.logger.WarnContext(ctx, "sign-up lost uniqueness race", "email", in.Email, "reason", CodeEmailTaken)
			return SafeUser{}, oops.With("email", in.Email).Wrap(err)
		}
		return SafeUser{}, oops.Code("AUTH_CREATE_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user created", "user_id", user.ID.String(), "email", user.Email, "role", string(user.Role))
	return user.Safe(), nil
}

// AuthenticateUser checks credentials and returns the account on success.
// Failures wrap ErrUserNotFound or ErrInvalidCredentials; both take the
// same time so responses cannot be used to enumerate accounts.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (_ SafeUser, err error) {
	ctx, span := tracer.Start(ctx, "auth.authenticate_user")
	defer func() { endSpan(span, err) }()

	user, lookupErr := s.users.FindByEmail(ctx, email)
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		return SafeUser{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "find user by email").
			Wrap(lookupErr)
	}

	if lookupErr != nil {
		//nolint:errcheck // result is discarded; only the elapsed time matters
		_, _ = s.hasher.Verify(password, dummyPasswordHash)
		s.logger.WarnContext(ctx, "sign-in rejected", "email", email, "reason", CodeUserNotFound)
		return SafeUser{}, oops.Code(CodeUserNotFound).With("email", email).Wrap(ErrUserNotFound)
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return SafeUser{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	if !valid {
		s.logger.WarnContext(ctx, "sign-in rejected", "email", email, "user_id", user.ID.String(), "reason", CodeInvalidCredentials)
		return SafeUser{}, oops.Code(CodeInvalidCredentials).
			With("user_id", user.ID.String()).
			Wrap(ErrInvalidCredentials)
	}

	s.logger.InfoContext(ctx, "user authenticated", "user_id", user.ID.String())
	return user.Safe(), nil
}

// GetUser returns the account with the given ID.
func (s *Service) GetUser(ctx context.Context, id ulid.ULID) (SafeUser, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return SafeUser{}, oops.Code(CodeUserNotFound).With("user_id", id.String()).Wrap(ErrUserNotFound)
		}
		return SafeUser{}, oops.Code("AUTH_GET_USER_FAILED").
			With("operation", "find user by id").
			With("user_id", id.String()).
			Wrap(err)
	}
	return user.Safe(), nil
}
