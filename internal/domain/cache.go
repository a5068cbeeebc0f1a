package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching recipient profiles and other
// derived read models. Supports two-phase caching: local LRU
// (Community) + Redis (Pro).
type Cache interface {
	// Get retrieves a raw value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a raw value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetProfile retrieves a cached recipient profile.
	// Returns nil, nil on a cache miss.
	GetProfile(ctx context.Context, recipient string) (*RecipientProfile, error)

	// SetProfile caches a recomputed recipient profile.
	SetProfile(ctx context.Context, recipient string, profile *RecipientProfile, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
