package domain

import (
	"context"
	"time"
)

// Cache defines the interface for the short-TTL read-through caches: the
// per-account transaction history snapshot and the decision memo.
// Implementations are safe for concurrent use; read/write races are
// acceptable because entries are idempotent snapshots with a TTL.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

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

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// HistoryTTL bounds how stale a cached history snapshot may be. Kept
	// short so the pattern rule sees near-real-time risk state.
	HistoryTTL time.Duration

	// DecisionTTL bounds the decision memo written after each evaluation.
	DecisionTTL time.Duration
}
