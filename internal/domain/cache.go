package domain

import (
	"context"
	"time"
)

// Cache defines the interface for time-bounded key-value caching.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
//
// Counter operations back rate limiting and fast-path velocity counts;
// both are explicit-expiry windows rather than process-global state.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetContext retrieves a cached risk context snapshot for an account.
	GetContext(ctx context.Context, tenantID string, accountID string) (*RiskContext, error)

	// SetContext caches a risk context snapshot so repeated evaluations
	// for the same account skip the repository lookups.
	SetContext(ctx context.Context, tenantID string, accountID string, rc *RiskContext, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns the new
	// value. The window starts on first increment and the counter expires
	// when it ends.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

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
