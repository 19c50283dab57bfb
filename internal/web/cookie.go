// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package web

import (
	"net/http"
	"time"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "token"

// SessionCookies writes the session cookie. Set and Clear share one
// attribute builder so a cleared cookie always matches the one it replaces.
type SessionCookies struct {
	Secure bool
	Domain string
	TTL    time.Duration

	now func() time.Time
}

// NewSessionCookies creates a SessionCookies.
func NewSessionCookies(secure bool, domain string, ttl time.Duration) *SessionCookies {
	return &SessionCookies{Secure: secure, Domain: domain, TTL: ttl, now: time.Now}
}

func (c *SessionCookies) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// Set binds token to the named cookie for TTL.
func (c *SessionCookies) Set(w http.ResponseWriter, name, token string) {
	ck := c.cookie(name, token)
	ck.MaxAge = int(c.TTL.Seconds())
	ck.Expires = c.now().Add(c.TTL).UTC()
	http.SetCookie(w, ck)
}

// Clear overwrites the named cookie with an empty, already-expired value.
func (c *SessionCookies) Clear(w http.ResponseWriter, name string) {
	ck := c.cookie(name, "")
	ck.MaxAge = -1
	ck.Expires = time.Unix(0, 0).UTC()
	http.SetCookie(w, ck)
}

// readSessionCookie returns the session token from r, or "" if absent.
func readSessionCookie(r *http.Request) string {
	ck, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return ck.Value
}
