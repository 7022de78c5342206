// Package redisstore wraps the Redis client operations used by the backend.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/suggestkit/weather-backend/internal/core/observability"
)

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithMinIdleConns(n int) Option {
	return func(o *redis.Options) { o.MinIdleConns = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.WriteTimeout = d }
}

type Client struct {
	rdb     *redis.Client
	scripts map[string]*redis.Script
}

func New(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     32,
		MinIdleConns: 4,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)

	start := time.Now()
	err := rdb.Ping(ctx).Err()
	observability.ObserveCacheOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb, scripts: map[string]*redis.Script{}}, nil
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	val, err := c.rdb.Get(ctx, key).Bytes()
	observability.ObserveCacheOp("get", ignoreNil(err), time.Since(start).Seconds())
	if errors.Is(err, redis.Nil) {
		observability.AddCacheMisses(1)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, readErr("GET", err)
	}
	observability.AddCacheHits(1)
	return val, nil
}

func (c *Client) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.rdb.Set(ctx, key, val, ttl).Err()
	observability.ObserveCacheOp("set", err, time.Since(start).Seconds())
	if err != nil {
		return writeErr("SET", err)
	}
	return nil
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := c.rdb.Del(ctx, keys...).Err()
	observability.ObserveCacheOp("del", err, time.Since(start).Seconds())
	if err != nil {
		return writeErr("DEL", err)
	}
	return nil
}

// RegisterScript makes a Lua script runnable under the given id.
func (c *Client) RegisterScript(id, src string) {
	c.scripts[id] = redis.NewScript(src)
}

// RunScript executes a registered script in one round trip. go-redis tries
// EVALSHA first and falls back to EVAL on NOSCRIPT, so the script cache being
// flushed on the server is handled transparently.
func (c *Client) RunScript(ctx context.Context, id string, keys []string, args ...interface{}) (interface{}, error) {
	script, ok := c.scripts[id]
	if !ok {
		return nil, readErr("EVALSHA", fmt.Errorf("unknown script %q", id))
	}
	start := time.Now()
	res, err := script.Run(ctx, c.rdb, keys, args...).Result()
	observability.ObserveCacheOp("script:"+id, err, time.Since(start).Seconds())
	if err != nil {
		return nil, readErr("EVALSHA "+id, err)
	}
	return res, nil
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

func ignoreNil(err error) error {
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
