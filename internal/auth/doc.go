// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

// Package auth provides the credential lifecycle for AuthGate.
//
// # Domain Types
//
//   - User - a persisted account, including its password hash
//   - SafeUser - the projection of a User returned to every caller; it has
//     no password field, so it cannot leak one
//   - TokenClaims - the identity asserted by a signed session token
//
// # Services
//
//   - Service - CreateUser, AuthenticateUser, GetUser
//   - BcryptHasher - password hashing and verification
//   - TokenIssuer - signing and verification of session tokens
//
// Services are created with New* constructors that validate dependencies.
// Failures carry an oops code and wrap one of the sentinel errors in
// errors.go so callers can branch with errors.Is.
package auth
