// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package web

import (
	"encoding/json"
	"net/http"

	"github.com/authgate/authgate/internal/auth"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string       `json:"error"`
	Message string       `json:"message,omitempty"`
	Details []FieldError `json:"details,omitempty"`
}

// UserBody is the public shape of a user.
type UserBody struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// UserResponse wraps a user with an optional status message.
type UserResponse struct {
	Message string   `json:"message,omitempty"`
	User    UserBody `json:"user"`
}

// MessageResponse is a bare status message.
type MessageResponse struct {
	Message string `json:"message"`
}

func userBody(u auth.SafeUser) UserBody {
	return UserBody{
		ID:    u.ID.String(),
		Name:  u.Name,
		Email: u.Email,
		Role:  string(u.Role),
	}
}

var (
	errInternal         = ErrorResponse{Error: "Internal server error", Message: "Something went wrong"}
	errBadCredentials   = ErrorResponse{Error: "Invalid email or password"}
	errEmailTaken       = ErrorResponse{Error: "Email already exists"}
	errAuthRequired     = ErrorResponse{Error: "Authentication required"}
	errSessionInvalid   = ErrorResponse{Error: "Invalid or expired session"}
	errRouteNotFound    = ErrorResponse{Error: "Not found"}
	errMethodNotAllowed = ErrorResponse{Error: "Method not allowed"}
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(body)
}
