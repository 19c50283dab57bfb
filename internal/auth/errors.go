// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package auth

import "errors"

// Error codes attached to auth failures.
const (
	CodeEmailTaken         = "EMAIL_TAKEN"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
)

var (
	// ErrNotFound is returned by repositories when a requested user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmailTaken is returned when an email is already registered.
	ErrEmailTaken = errors.New("user with this email already exists")

	// ErrUserNotFound is returned by authentication when no account matches the email.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidCredentials is returned when the password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrPasswordTooLong is returned when a password exceeds MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password too long")

	// ErrHashing is returned when the hash primitive fails or a stored hash is malformed.
	ErrHashing = errors.New("password hashing failed")
)

// IsAuthenticationFailure reports whether err means the presented credentials
// were rejected. Not-found and wrong-password both qualify.
func IsAuthenticationFailure(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrInvalidCredentials)
}
