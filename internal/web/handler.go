// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/pkg/errutil"
)

// AuthService is the credential lifecycle used by the handlers.
type AuthService interface {
	CreateUser(ctx context.Context, in auth.NewUserInput) (auth.SafeUser, error)
	AuthenticateUser(ctx context.Context, email, password string) (auth.SafeUser, error)
	GetUser(ctx context.Context, id ulid.ULID) (auth.SafeUser, error)
}

// Tokens signs and verifies session tokens.
type Tokens interface {
	Sign(claims auth.TokenClaims) (string, error)
	Verify(token string) (*auth.TokenClaims, error)
}

// AttemptRecorder receives one observation per auth attempt.
type AttemptRecorder interface {
	RecordAuthAttempt(operation, outcome string)
}

// Attempt outcomes.
const (
	OutcomeSuccess         = "success"
	OutcomeInvalid         = "invalid"
	OutcomeConflict        = "conflict"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeError           = "error"
)

// HandlerConfig holds the dependencies of a Handler.
type HandlerConfig struct {
	Service   AuthService
	Tokens    Tokens
	Cookies   *SessionCookies
	Validator *Validator
	Logger    *slog.Logger
	Recorder  AttemptRecorder
}

// Handler serves the /api/auth routes.
type Handler struct {
	service   AuthService
	tokens    Tokens
	cookies   *SessionCookies
	validator *Validator
	logger    *slog.Logger
	recorder  AttemptRecorder
}

// NewHandler creates a Handler. Logger defaults to slog.Default and the
// validator is compiled when not supplied.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Service == nil {
		return nil, oops.Code("WEB_HANDLER_INVALID").Errorf("auth service is required")
	}
	if cfg.Tokens == nil {
		return nil, oops.Code("WEB_HANDLER_INVALID").Errorf("token issuer is required")
	}
	if cfg.Cookies == nil {
		return nil, oops.Code("WEB_HANDLER_INVALID").Errorf("session cookies are required")
	}
	if cfg.Validator == nil {
		v, err := NewValidator()
		if err != nil {
			return nil, err
		}
		cfg.Validator = v
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		service:   cfg.Service,
		tokens:    cfg.Tokens,
		cookies:   cfg.Cookies,
		validator: cfg.Validator,
		logger:    cfg.Logger,
		recorder:  cfg.Recorder,
	}, nil
}

func (h *Handler) record(operation, outcome string) {
	if h.recorder != nil {
		h.recorder.RecordAuthAttempt(operation, outcome)
	}
}

// SignUp registers an account and starts a session for it.
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	req, err := h.validator.SignUp(r.Body)
	if err != nil {
		h.record("sign-up", OutcomeInvalid)
		h.fail(w, r, "sign-up failed", err)
		return
	}

	user, err := h.service.CreateUser(r.Context(), auth.NewUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     auth.Role(req.Role),
	})
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			h.record("sign-up", OutcomeConflict)
			writeJSON(w, http.StatusConflict, errEmailTaken)
			return
		}
		if errors.Is(err, auth.ErrPasswordTooLong) {
			h.record("sign-up", OutcomeInvalid)
			h.fail(w, r, "sign-up failed", &ValidationError{Details: []FieldError{passwordTooLong()}})
			return
		}
		h.record("sign-up", OutcomeError)
		h.fail(w, r, "sign-up failed", err)
		return
	}

	if !h.startSession(w, r, "sign-up", user) {
		return
	}
	h.record("sign-up", OutcomeSuccess)
	writeJSON(w, http.StatusCreated, UserResponse{Message: "User registered", User: userBody(user)})
}

// SignIn authenticates credentials and starts a session.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	req, err := h.validator.SignIn(r.Body)
	if err != nil {
		h.record("sign-in", OutcomeInvalid)
		h.fail(w, r, "sign-in failed", err)
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if auth.IsAuthenticationFailure(err) {
			h.record("sign-in", OutcomeUnauthenticated)
			h.logger.InfoContext(r.Context(), "sign-in denied", "code", errutil.Code(err))
			writeJSON(w, http.StatusUnauthorized, errBadCredentials)
			return
		}
		h.record("sign-in", OutcomeError)
		h.fail(w, r, "sign-in failed", err)
		return
	}

	if !h.startSession(w, r, "sign-in", user) {
		return
	}
	h.record("sign-in", OutcomeSuccess)
	writeJSON(w, http.StatusOK, UserResponse{Message: "User logged in", User: userBody(user)})
}

// SignOut clears the session cookie.
func (h *Handler) SignOut(w http.ResponseWriter, _ *http.Request) {
	h.cookies.Clear(w, SessionCookieName)
	h.record("sign-out", OutcomeSuccess)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "User logged out"})
}

// Me returns the user behind the current session. It must be mounted
// behind RequireAuth.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errAuthRequired)
		return
	}
	id, err := ulid.Parse(claims.ID)
	if err != nil {
		h.cookies.Clear(w, SessionCookieName)
		writeJSON(w, http.StatusUnauthorized, errSessionInvalid)
		return
	}

	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			h.cookies.Clear(w, SessionCookieName)
			writeJSON(w, http.StatusUnauthorized, errSessionInvalid)
			return
		}
		h.fail(w, r, "session lookup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{User: userBody(user)})
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, operation string, user auth.SafeUser) bool {
	token, err := h.tokens.Sign(auth.ClaimsFor(user))
	if err != nil {
		h.record(operation, OutcomeError)
		h.fail(w, r, operation+" failed", err)
		return false
	}
	h.cookies.Set(w, SessionCookieName, token)
	return true
}

// fail answers err. Validation failures are reported field by field;
// anything else is logged and hidden behind a generic 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: ve.Details})
		return
	}
	errutil.LogError(r.Context(), h.logger, msg, err, "path", r.URL.Path)
	writeJSON(w, http.StatusInternalServerError, errInternal)
}
