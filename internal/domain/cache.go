package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations. The pipeline uses it to
// cache per-card history lookups between the repository and the risk engine.
type Cache interface {
	// Get retrieves a value from cache. Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetHistory retrieves a cached per-card transaction history.
	// Returns nil, nil on a miss.
	GetHistory(ctx context.Context, cardNumber string) (History, error)

	// SetHistory caches a per-card transaction history.
	SetHistory(ctx context.Context, cardNumber string, h History, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
