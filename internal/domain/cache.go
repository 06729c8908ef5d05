package domain

import (
	"context"
	"time"
)

// Cache defines the caching boundary for rule-set snapshots and velocity
// counters. Supports local LRU or Redis-backed operation. All methods take a
// tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value; nil, nil when the key is absent.
	Get(ctx context.Context, tenantID, key string) ([]byte, error)

	// Set stores a value with an expiration.
	Set(ctx context.Context, tenantID, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, tenantID, key string) error

	// IncrementCounter atomically increments a windowed counter and returns
	// the new value. Used as the velocity fast path.
	IncrementCounter(ctx context.Context, tenantID, key string, window time.Duration) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is "memory" or "redis".
	Type string

	// Local LRU settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase: check local first, then Redis.
	EnableTwoPhase bool

	// ConfigTTL bounds staleness of cached rule/watchlist snapshots when an
	// invalidation is missed.
	ConfigTTL time.Duration
}
