package cache

import (
	"fmt"

	"github.com/nimbleforge/forge/internal/platform/config"
)

// New builds the backend selected by cfg.Backend. A disabled cache yields nil.
func New(cfg *config.CacheConfig) (Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch Type(cfg.Backend) {
	case TypeMemory, "":
		return NewMemoryCache(cfg.MaxMemory, cfg.CleanupInterval), nil
	case TypeRedis:
		return NewRedisCache(cfg.Redis)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidCacheType, cfg.Backend)
	}
}

// NewServiceFromConfig builds the backend and wraps it in a Service.
func NewServiceFromConfig(cfg *config.CacheConfig) (*Service, error) {
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return NewService(c, cfg.Prefix, cfg.TTL), nil
}
