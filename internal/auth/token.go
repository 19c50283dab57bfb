// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Token configuration.
const (
	DefaultTokenTTL    = 24 * time.Hour
	MinTokenSecretSize = 32
	tokenIssuer        = "authgate"
)

// Token failure kinds. Callers treat all of them as "unauthenticated".
var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenSecret    = errors.New("token signing secret invalid")
)

// TokenClaims is the identity carried by a session token.
// TokenID is assigned on signing and unique per token.
type TokenClaims struct {
	ID        string
	Email     string
	Role      Role
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ClaimsFor builds the claims asserted for a user.
func ClaimsFor(u SafeUser) TokenClaims {
	return TokenClaims{ID: u.ID.String(), Email: u.Email, Role: u.Role}
}

type jwtClaims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// TokenOption configures a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithTokenClock overrides the time source used for issuing and validating.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(i *TokenIssuer) {
		i.now = now
	}
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates a TokenIssuer. The secret must be at least
// MinTokenSecretSize bytes; a zero ttl selects DefaultTokenTTL.
func NewTokenIssuer(secret string, ttl time.Duration, opts ...TokenOption) (*TokenIssuer, error) {
	if len(secret) < MinTokenSecretSize {
		return nil, oops.Code("TOKEN_SECRET_INVALID").
			With("min_length", MinTokenSecretSize).
			With("length", len(secret)).
			Wrapf(ErrTokenSecret, "signing secret must be at least %d bytes", MinTokenSecretSize)
	}
	if ttl < 0 {
		return nil, oops.Code("TOKEN_TTL_INVALID").With("ttl", ttl.String()).Errorf("token ttl cannot be negative")
	}
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}

	i := &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// TTL returns the lifetime of issued tokens.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Sign issues a token for the claims, expiring TTL from now.
func (i *TokenIssuer) Sign(claims TokenClaims) (string, error) {
	if claims.ID == "" {
		return "", oops.Code("TOKEN_SIGN_FAILED").Errorf("token subject id cannot be empty")
	}

	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		UserID: claims.ID,
		Email:  claims.Email,
		Role:   claims.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   claims.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").With("user_id", claims.ID).Wrap(err)
	}
	return signed, nil
}

// Verify parses and validates a token.
// Failures wrap ErrTokenExpired, ErrTokenSignature or ErrTokenMalformed.
func (i *TokenIssuer) Verify(token string) (*TokenClaims, error) {
	var parsed jwtClaims
	_, err := jwt.ParseWithClaims(token, &parsed,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, oops.Code("TOKEN_EXPIRED").Wrap(errors.Join(ErrTokenExpired, err))
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, oops.Code("TOKEN_BAD_SIGNATURE").Wrap(errors.Join(ErrTokenSignature, err))
		default:
			return nil, oops.Code("TOKEN_MALFORMED").Wrap(errors.Join(ErrTokenMalformed, err))
		}
	}

	if parsed.UserID == "" {
		return nil, oops.Code("TOKEN_MALFORMED").Wrapf(ErrTokenMalformed, "token carries no user id")
	}

	claims := &TokenClaims{
		ID:        parsed.UserID,
		Email:     parsed.Email,
		Role:      parsed.Role,
		TokenID:   parsed.ID,
		ExpiresAt: parsed.ExpiresAt.Time,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	return claims, nil
}
