// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/authgate/authgate/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// DatabaseFactory opens the PostgreSQL pool.
	// Default: store.OpenPool
	DatabaseFactory func(ctx context.Context, url string, logger *slog.Logger) (Database, error)

	// RedisFactory opens the Redis client used for rate limiting.
	// Default: store.OpenRedis
	RedisFactory func(ctx context.Context, url string, logger *slog.Logger) (RedisClient, error)

	// ObservabilityServerFactory creates the metrics/health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, checker observability.ReadinessChecker) ObservabilityServer

	// Listen opens the API listener.
	// Default: net.Listen
	Listen func(network, address string) (net.Listener, error)

	// OnListening is called with the bound API address once serving starts.
	OnListening func(addr string)

	// LogWriter receives log output.
	// Default: os.Stderr
	LogWriter io.Writer

	// BcryptCost overrides the password hashing cost. Zero uses auth.BcryptCost.
	BcryptCost int
}

// Database wraps the methods used from *pgxpool.Pool.
type Database interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// RedisClient wraps the methods used from *redis.Client.
type RedisClient interface {
	redis.Scripter
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}
