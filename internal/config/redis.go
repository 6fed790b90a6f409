package config

// Redis backs presence tracking, the vote endpoint rate limiter and the
// public response cache.  Presence is the only feature that needs it to be
// reachable; the other two degrade to pass-through when the client is nil.

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient instantiates a Redis client from environment variables:
//
//	REDIS_URL             – redis://[:password@]host:port/db (takes precedence)
//	REDIS_HOST/REDIS_PORT – host and port, or REDIS_ADDR as host:port
//	REDIS_PASSWORD        – optional password
//	REDIS_DB              – database number (default 0)
//	REDIS_TLS             – enable TLS when "true" or "1"
//
// The client is pinged with a short timeout; a failed ping returns the error
// together with a nil client.
func NewRedisClient(ctx context.Context) (*redis.Client, error) {
	var opts *redis.Options
	if raw := envStr("REDIS_URL", ""); raw != "" {
		parsed, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		opts = parsed
	} else {
		addr := envStr("REDIS_ADDR", "localhost:6379")
		if host, port := envStr("REDIS_HOST", ""), envStr("REDIS_PORT", ""); host != "" && port != "" {
			addr = host + ":" + port
		}
		opts = &redis.Options{
			Addr:     addr,
			Password: envStr("REDIS_PASSWORD", ""),
			DB:       envInt("REDIS_DB", 0),
		}
		if t := envStr("REDIS_TLS", ""); strings.EqualFold(t, "true") || t == "1" {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return client, nil
}
