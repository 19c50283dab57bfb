// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

package store

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err() //nolint:wrapcheck // wrapped by OpenRedis
}

// OpenRedis connects to the Redis instance at redisURL (redis:// or rediss://)
// and waits until it answers a ping.
func OpenRedis(ctx context.Context, redisURL string, opts ConnectOptions) (*redis.Client, error) {
	if redisURL == "" {
		return nil, oops.Code("REDIS_URL_MISSING").Errorf("redis url is required")
	}

	ropts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, oops.Code("REDIS_URL_INVALID").With("operation", "parse redis url").Wrap(err)
	}

	client := redis.NewClient(ropts)
	if err := waitReady(ctx, redisPinger{client: client}, "redis", opts.withDefaults()); err != nil {
		_ = client.Close() //nolint:errcheck // connect error takes precedence
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", ropts.Addr).Wrap(err)
	}
	return client, nil
}
