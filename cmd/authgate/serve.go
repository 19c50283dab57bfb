// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/auth/postgres"
	"github.com/authgate/authgate/internal/config"
	"github.com/authgate/authgate/internal/gate"
	"github.com/authgate/authgate/internal/logging"
	"github.com/authgate/authgate/internal/observability"
	"github.com/authgate/authgate/internal/store"
	certs "github.com/authgate/authgate/internal/tls"
	"github.com/authgate/authgate/internal/web"
	"github.com/authgate/authgate/pkg/errutil"
)

const (
	serviceName     = "authgate"
	shutdownTimeout = 10 * time.Second
	redisKeyPrefix  = "authgate:ratelimit:"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API. The process stops gracefully on SIGINT or SIGTERM,
draining in-flight requests for up to 10 seconds.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cfg, cmd, nil)
		},
	}
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	if d == nil {
		d = &ServeDeps{}
	}
	if d.DatabaseFactory == nil {
		d.DatabaseFactory = func(ctx context.Context, url string, logger *slog.Logger) (Database, error) {
			pool, err := store.OpenPool(ctx, url, store.ConnectOptions{Logger: logger})
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
	if d.RedisFactory == nil {
		d.RedisFactory = func(ctx context.Context, url string, logger *slog.Logger) (RedisClient, error) {
			client, err := store.OpenRedis(ctx, url, store.ConnectOptions{Logger: logger})
			if err != nil {
				return nil, err
			}
			return client, nil
		}
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, checker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, checker)
		}
	}
	if d.Listen == nil {
		d.Listen = net.Listen
	}
	if d.BcryptCost == 0 {
		d.BcryptCost = auth.BcryptCost
	}
	return d
}

// runServeWithDeps starts the API and blocks until ctx is cancelled or the
// server fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	if err := cfg.Validate(); err != nil {
		return oops.With("operation", "validate configuration").Wrap(err)
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.SetDefault(serviceName, version, cfg.LogFormat, level, deps.LogWriter)

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return oops.With("operation", "create token issuer").Wrap(err)
	}

	if cfg.GateKey == "" {
		logger.Warn("gate-key is not set: the decision engine runs without a key, configure AUTHGATE_GATE_KEY",
			"env", cfg.Env,
			"gate_endpoint", cfg.GateEndpoint)
	}

	logger.Info("starting authgate",
		"env", cfg.Env,
		"listen_addr", cfg.ListenAddr,
		"log_format", cfg.LogFormat)

	db, err := deps.DatabaseFactory(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return oops.With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()
	logger.Info("connected to database")

	hasher, err := auth.NewBcryptHasherWithCost(deps.BcryptCost)
	if err != nil {
		return oops.With("operation", "create password hasher").Wrap(err)
	}
	service, err := auth.NewServiceWithLogger(postgres.NewUserRepository(db), hasher, logger)
	if err != nil {
		return oops.With("operation", "create auth service").Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var metrics *observability.Metrics
	var obsServer ObservabilityServer
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, db.Ping)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metrics = obsServer.Metrics()
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	limiter, closeLimiter, err := newLimiter(ctx, cfg, deps, logger)
	if err != nil {
		stopObservability(obsServer, logger)
		return err
	}
	defer closeLimiter()

	engine, err := newGateEngine(cfg, limiter, logger)
	if err != nil {
		stopObservability(obsServer, logger)
		return err
	}

	cookies := web.NewSessionCookies(cfg.SecureCookies(), cfg.CookieDomain, tokens.TTL())
	handler, err := web.NewHandler(web.HandlerConfig{
		Service:  service,
		Tokens:   tokens,
		Cookies:  cookies,
		Logger:   logger,
		Recorder: metrics,
	})
	if err != nil {
		stopObservability(obsServer, logger)
		return oops.With("operation", "create handler").Wrap(err)
	}
	trusted, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		stopObservability(obsServer, logger)
		return err
	}
	if len(trusted) > 0 {
		logger.Info("honouring forwarded client addresses", "trusted_proxies", cfg.TrustedProxies)
	}
	router, err := web.NewRouter(web.RouterConfig{
		Handler: handler,
		Tokens:  tokens,
		Cookies: cookies,
		Gate:    engine,
		GateOptions: gate.Options{
			Timeout:  cfg.GateTimeout,
			Logger:   logger,
			Recorder: metrics,
		},
		CORSOrigins:    cfg.CORSOrigins,
		TrustedProxies: trusted,
		Logger:         logger,
		Instrument:     metrics.Instrument,
	})
	if err != nil {
		stopObservability(obsServer, logger)
		return oops.With("operation", "create router").Wrap(err)
	}

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.TLSEnabled() {
		tlsConfig, err := certs.LoadServerConfig(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			stopObservability(obsServer, logger)
			return oops.With("operation", "load tls key pair").Wrap(err)
		}
		srv.TLSConfig = tlsConfig
	}

	listener, err := deps.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		stopObservability(obsServer, logger)
		return oops.Code("LISTEN_FAILED").With("addr", cfg.ListenAddr).Wrap(err)
	}

	errChan := make(chan error, 1)
	go func() {
		var serveErr error
		if srv.TLSConfig != nil {
			serveErr = srv.ServeTLS(listener, "", "")
		} else {
			serveErr = srv.Serve(listener)
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	addr := listener.Addr().String()
	cmd.Printf("AuthGate listening on %s\n", addr)
	logger.Info("authgate ready", "addr", addr, "tls", srv.TLSConfig != nil)
	if deps.OnListening != nil {
		deps.OnListening(addr)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errChan:
		serveErr = oops.Code("SERVE_FAILED").With("addr", addr).Wrap(err)
		errutil.LogError(ctx, logger, "http server failed", serveErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error draining http server", "error", err)
	}
	stopObservability(obsServer, logger)

	logger.Info("shutdown complete")
	return serveErr
}

// newLimiter picks the Redis limiter when redis-url is set and the
// in-process limiter otherwise. The returned func releases it.
func newLimiter(ctx context.Context, cfg *config.Config, deps *ServeDeps, logger *slog.Logger) (gate.Limiter, func(), error) {
	if cfg.RedisURL == "" {
		limiter, err := gate.NewMemoryLimiter(cfg.RateLimitWindow, cfg.RateLimitMax)
		if err != nil {
			return nil, nil, oops.With("operation", "create rate limiter").Wrap(err)
		}
		logger.Info("rate limiting in process", "window", cfg.RateLimitWindow.String(), "max", cfg.RateLimitMax)
		return limiter, limiter.Stop, nil
	}

	client, err := deps.RedisFactory(ctx, cfg.RedisURL, logger)
	if err != nil {
		return nil, nil, oops.With("operation", "connect to redis").Wrap(err)
	}
	closeClient := func() {
		if err := client.Close(); err != nil {
			logger.Warn("error closing redis client", "error", err)
		}
	}
	limiter, err := gate.NewRedisLimiter(client, redisKeyPrefix, cfg.RateLimitWindow, cfg.RateLimitMax)
	if err != nil {
		closeClient()
		return nil, nil, oops.With("operation", "create rate limiter").Wrap(err)
	}
	logger.Info("rate limiting in redis", "window", cfg.RateLimitWindow.String(), "max", cfg.RateLimitMax)
	return limiter, closeClient, nil
}

// newGateEngine builds the remote engine when gate-endpoint is set, and the
// built-in rules otherwise. Bot detection is only enforced in production.
func newGateEngine(cfg *config.Config, limiter gate.Limiter, logger *slog.Logger) (gate.Engine, error) {
	if cfg.GateEndpoint != "" {
		var opts []gate.RemoteOption
		if cfg.GateRemoteRPS > 0 {
			burst := max(int(cfg.GateRemoteRPS), 1)
			opts = append(opts, gate.WithCallRate(cfg.GateRemoteRPS, burst))
		}
		engine, err := gate.NewRemoteEngine(cfg.GateEndpoint, cfg.GateKey, opts...)
		if err != nil {
			return nil, oops.With("operation", "create remote gate").Wrap(err)
		}
		logger.Info("security gate uses remote decision engine", "endpoint", cfg.GateEndpoint)
		return engine, nil
	}

	shield, err := gate.NewShieldRule(gate.Live, gate.DefaultSignatures())
	if err != nil {
		return nil, oops.With("operation", "create shield rule").Wrap(err)
	}
	botMode := gate.DryRun
	if cfg.IsProduction() {
		botMode = gate.Live
	}
	bot, err := gate.NewBotRule(botMode, gate.DefaultBotCatalog(), gate.DefaultAllowedBots())
	if err != nil {
		return nil, oops.With("operation", "create bot rule").Wrap(err)
	}
	window, err := gate.NewSlidingWindowRule(gate.Live, limiter)
	if err != nil {
		return nil, oops.With("operation", "create rate limit rule").Wrap(err)
	}

	engine, err := gate.NewRuleEngine(logger, shield, bot, window)
	if err != nil {
		return nil, oops.With("operation", "create rule engine").Wrap(err)
	}
	logger.Info("security gate uses built-in rules", "bot_mode", string(botMode))
	return engine, nil
}

func stopObservability(obsServer ObservabilityServer, logger *slog.Logger) {
	if obsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := obsServer.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels ctx when a background server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, name string) {
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			slog.Error("server failed", "server", name, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
