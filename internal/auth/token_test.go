// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/pkg/errutil"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newIssuer(t *testing.T, opts ...auth.TokenOption) *auth.TokenIssuer {
	t.Helper()
	issuer, err := auth.NewTokenIssuer(testSecret, 0, opts...)
	require.NoError(t, err)
	return issuer
}

func TestNewTokenIssuer(t *testing.T) {
	t.Run("missing secret fails fast", func(t *testing.T) {
		_, err := auth.NewTokenIssuer("", time.Hour)
		errutil.AssertErrorKind(t, err, auth.ErrTokenSecret, "TOKEN_SECRET_INVALID")
	})

	t.Run("short secret fails fast", func(t *testing.T) {
		_, err := auth.NewTokenIssuer("too-short", time.Hour)
		errutil.AssertErrorKind(t, err, auth.ErrTokenSecret, "TOKEN_SECRET_INVALID")
	})

	t.Run("negative ttl rejected", func(t *testing.T) {
		_, err := auth.NewTokenIssuer(testSecret, -time.Second)
		errutil.AssertErrorCode(t, err, "TOKEN_TTL_INVALID")
	})

	t.Run("zero ttl selects default", func(t *testing.T) {
		assert.Equal(t, auth.DefaultTokenTTL, newIssuer(t).TTL())
		assert.Equal(t, 24*time.Hour, auth.DefaultTokenTTL)
	})
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := newIssuer(t)
	claims := auth.TokenClaims{ID: ulid.Make().String(), Email: "a@x.com", Role: auth.RoleAdmin}

	before := time.Now().Truncate(time.Second)
	token, err := issuer.Sign(claims)
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)

	got, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, claims.ID, got.ID)
	assert.Equal(t, claims.Email, got.Email)
	assert.Equal(t, claims.Role, got.Role)
	assert.WithinDuration(t, before.Add(auth.DefaultTokenTTL), got.ExpiresAt, 2*time.Second)
	assert.False(t, got.IssuedAt.IsZero())
}

func TestTokenIssuer_UniqueTokenIDs(t *testing.T) {
	issuer := newIssuer(t)
	claims := auth.TokenClaims{ID: ulid.Make().String(), Email: "a@x.com", Role: auth.RoleUser}

	first, err := issuer.Sign(claims)
	require.NoError(t, err)
	second, err := issuer.Sign(claims)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	a, err := issuer.Verify(first)
	require.NoError(t, err)
	b, err := issuer.Verify(second)
	require.NoError(t, err)
	assert.NotEmpty(t, a.TokenID)
	assert.NotEqual(t, a.TokenID, b.TokenID)
}

func TestTokenIssuer_SignRequiresID(t *testing.T) {
	_, err := newIssuer(t).Sign(auth.TokenClaims{Email: "a@x.com"})
	errutil.AssertErrorCode(t, err, "TOKEN_SIGN_FAILED")
}

func TestTokenIssuer_VerifyFailures(t *testing.T) {
	issuer := newIssuer(t)
	claims := auth.TokenClaims{ID: ulid.Make().String(), Email: "a@x.com", Role: auth.RoleUser}

	t.Run("expired token", func(t *testing.T) {
		past := newIssuer(t, auth.WithTokenClock(func() time.Time {
			return time.Now().Add(-25 * time.Hour)
		}))
		token, err := past.Sign(claims)
		require.NoError(t, err)

		_, err = issuer.Verify(token)
		errutil.AssertErrorKind(t, err, auth.ErrTokenExpired, "TOKEN_EXPIRED")
	})

	t.Run("token from another secret", func(t *testing.T) {
		other, err := auth.NewTokenIssuer(strings.Repeat("z", 40), 0)
		require.NoError(t, err)
		token, err := other.Sign(claims)
		require.NoError(t, err)

		_, err = issuer.Verify(token)
		errutil.AssertErrorKind(t, err, auth.ErrTokenSignature, "TOKEN_BAD_SIGNATURE")
	})

	t.Run("tampered claims", func(t *testing.T) {
		mine, err := issuer.Sign(claims)
		require.NoError(t, err)
		elevated, err := issuer.Sign(auth.TokenClaims{ID: claims.ID, Email: claims.Email, Role: auth.RoleAdmin})
		require.NoError(t, err)

		m := strings.Split(mine, ".")
		e := strings.Split(elevated, ".")
		forged := strings.Join([]string{m[0], e[1], m[2]}, ".")

		_, err = issuer.Verify(forged)
		errutil.AssertErrorKind(t, err, auth.ErrTokenSignature, "TOKEN_BAD_SIGNATURE")
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := issuer.Verify("not.a.jwt")
		errutil.AssertErrorKind(t, err, auth.ErrTokenMalformed, "TOKEN_MALFORMED")
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := issuer.Verify("")
		errutil.AssertErrorKind(t, err, auth.ErrTokenMalformed, "TOKEN_MALFORMED")
	})
}

func TestClaimsFor(t *testing.T) {
	u := auth.SafeUser{ID: ulid.Make(), Name: "A", Email: "a@x.com", Role: auth.RoleUser}
	c := auth.ClaimsFor(u)
	assert.Equal(t, u.ID.String(), c.ID)
	assert.Equal(t, u.Email, c.Email)
	assert.Equal(t, u.Role, c.Role)
}
