package cache

import (
	"context"
	"errors"
	"time"
)

// FiberStorage exposes a Cache as fiber.Storage under a key prefix, so
// middleware state such as rate-limit counters lives in the shared backend.
type FiberStorage struct {
	cache  Cache
	prefix string
}

// NewFiberStorage wraps c. Close is a no-op; the owner of c closes it.
func NewFiberStorage(c Cache, prefix string) *FiberStorage {
	return &FiberStorage{cache: c, prefix: prefix}
}

// Get returns nil without error for missing keys.
func (s *FiberStorage) Get(key string) ([]byte, error) {
	v, err := s.cache.Get(context.Background(), s.prefix+key)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	return v, err
}

func (s *FiberStorage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	return s.cache.Set(context.Background(), s.prefix+key, val, exp)
}

func (s *FiberStorage) Delete(key string) error {
	return s.cache.Delete(context.Background(), s.prefix+key)
}

// Reset drops every key under the prefix.
func (s *FiberStorage) Reset() error {
	return s.cache.DeletePattern(context.Background(), s.prefix+"*")
}

func (s *FiberStorage) Close() error {
	return nil
}
