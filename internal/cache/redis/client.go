// Package redis backs the shared price store, distributed rate limiter and
// event bus with go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const dialTimeout = 5 * time.Second

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	// Namespace is prepended to every key; empty means no prefix.
	Namespace string
}

// Client is a connected go-redis client plus the key namespace shared by the
// price store, rate limiter and event history.
type Client struct {
	rdb       *redis.Client
	namespace string
}

// New dials Redis and verifies the connection with a PING. A scanner that
// cannot reach its configured Redis refuses to start rather than silently
// falling back to per-process state.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: dialTimeout,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	c := &Client{
		rdb:       redis.NewClient(opts),
		namespace: strings.Trim(cfg.Namespace, ":"),
	}
	if err := c.Ping(ctx); err != nil {
		_ = c.rdb.Close()
		return nil, err
	}
	return c, nil
}

// key joins parts under the client namespace, e.g. "arbscan:price:jupiter:SOL/USDC".
func (c *Client) key(parts ...string) string {
	joined := strings.Join(parts, ":")
	if c.namespace == "" {
		return joined
	}
	return c.namespace + ":" + joined
}

// Ping is used as the readiness check for /api/health.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping %s: %w", c.rdb.Options().Addr, err)
	}
	return nil
}

// PoolStats reports connection pool usage.
func (c *Client) PoolStats() *redis.PoolStats {
	return c.rdb.PoolStats()
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis: close: %w", err)
	}
	return nil
}
