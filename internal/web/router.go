// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package web

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/gate"
)

// RouterConfig holds the dependencies of the HTTP surface.
type RouterConfig struct {
	Handler     *Handler
	Tokens      Tokens
	Cookies     *SessionCookies
	Gate        gate.Engine
	GateOptions gate.Options
	CORSOrigins []string
	Logger      *slog.Logger

	// TrustedProxies are the peers whose forwarding headers are believed.
	// Empty means the socket address is always the client address.
	TrustedProxies []netip.Prefix

	// Instrument, when set, wraps every request for metrics.
	Instrument func(http.Handler) http.Handler

	// Now is the clock behind /health. Defaults to time.Now.
	Now func() time.Time
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string  `json:"status"`
	Timestamp string  `json:"timestamp"`
	Uptime    float64 `json:"uptime"`
}

// NewRouter builds the application router. The security gate runs ahead
// of CORS handling and every route.
func NewRouter(cfg RouterConfig) (http.Handler, error) {
	if cfg.Handler == nil || cfg.Tokens == nil || cfg.Cookies == nil {
		return nil, oops.Code("WEB_ROUTER_INVALID").Errorf("handler, tokens and cookies are required")
	}
	if cfg.Gate == nil {
		return nil, oops.Code("WEB_ROUTER_INVALID").Errorf("security gate is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	started := now()

	gateOpts := cfg.GateOptions
	if gateOpts.Logger == nil {
		gateOpts.Logger = logger
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(ClientIP(cfg.TrustedProxies))
	r.Use(RequestLogger(logger))
	if cfg.Instrument != nil {
		r.Use(cfg.Instrument)
	}
	r.Use(chimw.Recoverer)
	r.Use(gate.Middleware(cfg.Gate, gateOpts))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
	})

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // client may have gone away
		w.Write([]byte("Hello from AuthGate!"))
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		t := now()
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:    "OK",
			Timestamp: t.UTC().Format(time.RFC3339),
			Uptime:    t.Sub(started).Seconds(),
		})
	})
	r.Get("/api", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, MessageResponse{Message: "AuthGate API is running!"})
	})

	h := cfg.Handler
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/sign-up", h.SignUp)
		r.Post("/sign-in", h.SignIn)
		r.Post("/sign-out", h.SignOut)
		r.With(RequireAuth(cfg.Tokens, cfg.Cookies, logger)).Get("/me", h.Me)
	})

	return r, nil
}
