package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is implemented by the memory and Redis backends.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePattern removes keys matching a glob with * wildcards.
	DeletePattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Increment adds delta to the integer stored at key, creating it at zero.
	// Counters never expire.
	Increment(ctx context.Context, key string, delta int64) (int64, error)
	Close() error
	Stats() Stats
}

// Stats provides cache performance statistics
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRatio  float64 `json:"hit_ratio"`
	Keys      int64   `json:"keys"`
	Evictions int64   `json:"evictions"`
}

func newStats(hits, misses, keys, evictions int64) Stats {
	s := Stats{Hits: hits, Misses: misses, Keys: keys, Evictions: evictions}
	if total := hits + misses; total > 0 {
		s.HitRatio = float64(hits) / float64(total)
	}
	return s
}

var (
	ErrKeyNotFound           = errors.New("key not found")
	ErrCacheUnavailable      = errors.New("cache unavailable")
	ErrCacheDisabled         = errors.New("cache disabled")
	ErrInvalidCacheType      = errors.New("invalid cache type")
	ErrSerializationFailed   = errors.New("serialization failed")
	ErrDeserializationFailed = errors.New("deserialization failed")
	ErrInvalidKey            = errors.New("invalid cache key")
	ErrNotCounter            = errors.New("value is not an integer")
)

// Type names a cache backend.
type Type string

const (
	TypeMemory Type = "memory"
	TypeRedis  Type = "redis"
)
