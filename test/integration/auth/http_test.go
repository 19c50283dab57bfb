// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

//go:build integration

package auth_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/gate"
	"github.com/authgate/authgate/internal/web"
)

type apiResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	User    struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
}

var _ = Describe("HTTP auth flow", func() {
	var (
		server *httptest.Server
		client *http.Client
	)

	BeforeEach(func() {
		env.truncate()

		logger := slog.New(slog.NewTextHandler(GinkgoWriter, nil))

		hasher, err := auth.NewBcryptHasherWithCost(4)
		Expect(err).NotTo(HaveOccurred())
		service, err := auth.NewServiceWithLogger(env.Users, hasher, logger)
		Expect(err).NotTo(HaveOccurred())
		tokens, err := auth.NewTokenIssuer("integration-secret-that-is-long-enough", time.Hour)
		Expect(err).NotTo(HaveOccurred())
		cookies := web.NewSessionCookies(false, "", tokens.TTL())

		shield, err := gate.NewShieldRule(gate.Live, gate.DefaultSignatures())
		Expect(err).NotTo(HaveOccurred())
		engine, err := gate.NewRuleEngine(logger, shield)
		Expect(err).NotTo(HaveOccurred())

		handler, err := web.NewHandler(web.HandlerConfig{
			Service: service,
			Tokens:  tokens,
			Cookies: cookies,
			Logger:  logger,
		})
		Expect(err).NotTo(HaveOccurred())

		router, err := web.NewRouter(web.RouterConfig{
			Handler: handler,
			Tokens:  tokens,
			Cookies: cookies,
			Gate:    engine,
			Logger:  logger,
		})
		Expect(err).NotTo(HaveOccurred())

		server = httptest.NewServer(router)
		jar, err := cookiejar.New(nil)
		Expect(err).NotTo(HaveOccurred())
		client = &http.Client{Jar: jar}
	})

	AfterEach(func() {
		server.Close()
	})

	do := func(method, path, body string) (int, apiResponse) {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(env.ctx, method, server.URL+path, reader)
		Expect(err).NotTo(HaveOccurred())
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := client.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = resp.Body.Close() }()

		var out apiResponse
		raw, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		if len(raw) > 0 {
			Expect(json.Unmarshal(raw, &out)).To(Succeed())
		}
		return resp.StatusCode, out
	}

	It("registers, logs in, reads the session, and logs out", func() {
		status, body := do(http.MethodPost, "/api/auth/sign-up",
			`{"name":"Ada","email":"Ada@Example.com","password":"secret1"}`)
		Expect(status).To(Equal(http.StatusCreated))
		Expect(body.Message).To(Equal("User registered"))
		Expect(body.User.Email).To(Equal("ada@example.com"))
		Expect(body.User.Role).To(Equal("user"))

		status, body = do(http.MethodPost, "/api/auth/sign-up",
			`{"name":"Ada Again","email":"ada@example.com","password":"secret2"}`)
		Expect(status).To(Equal(http.StatusConflict))
		Expect(body.Error).To(Equal("Email already exists"))

		status, body = do(http.MethodPost, "/api/auth/sign-in",
			`{"email":"ada@example.com","password":"wrong-password"}`)
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(body.Error).To(Equal("Invalid email or password"))

		status, body = do(http.MethodPost, "/api/auth/sign-in",
			`{"email":"ADA@example.com","password":"secret1"}`)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body.Message).To(Equal("User logged in"))

		status, body = do(http.MethodGet, "/api/auth/me", "")
		Expect(status).To(Equal(http.StatusOK))
		Expect(body.User.Name).To(Equal("Ada"))

		status, body = do(http.MethodPost, "/api/auth/sign-out", "")
		Expect(status).To(Equal(http.StatusOK))
		Expect(body.Message).To(Equal("User logged out"))

		status, body = do(http.MethodGet, "/api/auth/me", "")
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(body.Error).To(Equal("Authentication required"))
	})

	It("answers unknown and wrong-password sign-ins identically", func() {
		status, _ := do(http.MethodPost, "/api/auth/sign-up",
			`{"name":"Grace","email":"grace@example.com","password":"secret1"}`)
		Expect(status).To(Equal(http.StatusCreated))

		unknownStatus, unknown := do(http.MethodPost, "/api/auth/sign-in",
			`{"email":"nobody@example.com","password":"secret1"}`)
		wrongStatus, wrong := do(http.MethodPost, "/api/auth/sign-in",
			`{"email":"grace@example.com","password":"not-it"}`)

		Expect(unknownStatus).To(Equal(wrongStatus))
		Expect(unknown).To(Equal(wrong))
	})

	It("blocks shielded paths before routing", func() {
		status, body := do(http.MethodGet, "/.env", "")
		Expect(status).To(Equal(http.StatusForbidden))
		Expect(body.Error).NotTo(BeEmpty())
	})
})
