// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package web

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	proxies := []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("::1/128"),
	}

	tests := []struct {
		name       string
		trusted    []netip.Prefix
		remoteAddr string
		forwarded  []string
		realIP     string
		want       string
	}{
		{
			name:       "no trusted proxies ignores headers",
			remoteAddr: "198.51.100.7:40000",
			forwarded:  []string{"203.0.113.1"},
			realIP:     "203.0.113.2",
			want:       "198.51.100.7:40000",
		},
		{
			name:       "untrusted peer ignores headers",
			trusted:    proxies,
			remoteAddr: "198.51.100.7:40000",
			forwarded:  []string{"203.0.113.1"},
			want:       "198.51.100.7:40000",
		},
		{
			name:       "trusted peer forwards client",
			trusted:    proxies,
			remoteAddr: "10.0.0.2:5000",
			forwarded:  []string{"203.0.113.1"},
			want:       "203.0.113.1",
		},
		{
			name:       "rightmost untrusted hop wins",
			trusted:    proxies,
			remoteAddr: "10.0.0.2:5000",
			forwarded:  []string{"1.1.1.1, 203.0.113.1, 10.0.0.5"},
			want:       "203.0.113.1",
		},
		{
			name:       "repeated headers are one chain",
			trusted:    proxies,
			remoteAddr: "10.0.0.2:5000",
			forwarded:  []string{"203.0.113.1", "10.0.0.5"},
			want:       "203.0.113.1",
		},
		{
			name:       "real ip fallback",
			trusted:    proxies,
			remoteAddr: "10.0.0.2:5000",
			realIP:     "203.0.113.9",
			want:       "203.0.113.9",
		},
		{
			name:       "malformed hop keeps socket address",
			trusted:    proxies,
			remoteAddr: "10.0.0.2:5000",
			forwarded:  []string{"203.0.113.1, not-an-ip"},
			want:       "10.0.0.2:5000",
		},
		{
			name:       "ipv6 loopback proxy",
			trusted:    proxies,
			remoteAddr: "[::1]:8080",
			forwarded:  []string{"2001:db8::1"},
			want:       "2001:db8::1",
		},
		{
			name:       "all hops trusted keeps socket address",
			trusted:    proxies,
			remoteAddr: "10.0.0.2:5000",
			forwarded:  []string{"10.0.0.3, 10.0.0.4"},
			want:       "10.0.0.2:5000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := ClientIP(tt.trusted)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for _, v := range tt.forwarded {
				req.Header.Add("X-Forwarded-For", v)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.want, got)
		})
	}
}
