// Package redis implements the shared cache tier on Redis. Values are stored
// as opaque bytes under a namespace prefix so several deployments can share
// one database.
package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unigrade/grade-analytics/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	Host     string
	Port     int
	Password string

	// DB is the Redis database number (0-15).
	DB int

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration

	// Namespace prefixes every key written by this backend.
	Namespace string

	// ScanBatch is the COUNT hint and delete batch size for pattern
	// invalidation.
	ScanBatch int64
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
		Namespace:    "grades:",
		ScanBatch:    100,
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// BACKEND
// ══════════════════════════════════════════════════════════════════════════════

// Backend stores cache entries in Redis.
type Backend struct {
	client    *redis.Client
	namespace string
	scanBatch int64
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, shared.WrapError("redis", "New", shared.ErrBackendUnavailable, "ping "+cfg.Addr(), err)
	}

	return NewFromClient(client, cfg), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client, cfg Config) *Backend {
	batch := cfg.ScanBatch
	if batch <= 0 {
		batch = 100
	}
	return &Backend{
		client:    client,
		namespace: cfg.Namespace,
		scanBatch: batch,
	}
}

// Close closes the Redis connection.
func (b *Backend) Close() error {
	return b.client.Close()
}

// Ping checks if Redis is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Get returns the stored bytes and their remaining TTL. A key without expiry
// reports a zero TTL. Missing keys return shared.ErrCacheMiss.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, time.Duration, error) {
	k := b.namespace + key

	var get *redis.StringCmd
	var pttl *redis.DurationCmd
	_, err := b.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, k)
		pttl = pipe.PTTL(ctx, k)
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, 0, shared.ErrCacheMiss
	}
	if err != nil {
		return nil, 0, fmt.Errorf("redis get %s: %w", key, err)
	}

	data, err := get.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, 0, shared.ErrCacheMiss
	}
	if err != nil {
		return nil, 0, fmt.Errorf("redis get %s: %w", key, err)
	}

	// PTTL is negative for keys without expiry.
	return data, max(pttl.Val(), 0), nil
}

// Set stores value under key. A non-positive ttl stores without expiry.
func (b *Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := b.client.Set(ctx, b.namespace+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// DeleteByPattern deletes every key matching pattern using SCAN, so it never
// blocks the server the way KEYS would. Keys are collected before any DEL so
// the cursor walks an unchanged keyspace.
func (b *Backend) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	if pattern == "" {
		return 0, shared.NewDomainError("redis", "DeleteByPattern", shared.ErrInvalidInput, "pattern cannot be empty")
	}

	var keys []string
	iter := b.client.Scan(ctx, 0, b.namespace+pattern, b.scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan %s: %w", pattern, err)
	}

	var deleted int64
	for chunk := range slices.Chunk(keys, int(b.scanBatch)) {
		n, err := b.client.Del(ctx, chunk...).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis del: %w", err)
		}
		deleted += n
	}
	return deleted, nil
}
