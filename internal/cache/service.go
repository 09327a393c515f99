package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nimbleforge/forge/internal/pkg/log"
)

// Service stores JSON values under a key prefix with a default TTL.
type Service struct {
	cache   Cache
	prefix  string
	ttl     time.Duration
	enabled bool
}

// NewService wraps c. A nil cache behaves as disabled.
func NewService(c Cache, prefix string, ttl time.Duration) *Service {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &Service{cache: c, prefix: prefix, ttl: ttl, enabled: c != nil}
}

// Enabled reports whether a backend is attached.
func (s *Service) Enabled() bool {
	return s != nil && s.enabled
}

// GetCached unmarshals the value at key into target.
func (s *Service) GetCached(ctx context.Context, key string, target interface{}) error {
	if !s.Enabled() {
		return ErrCacheDisabled
	}
	fullKey := s.buildKey(key)
	data, err := s.cache.Get(ctx, fullKey)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			log.ErrorWithContext(ctx, "cache get error for key %s: %v", fullKey, err)
		}
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrDeserializationFailed, err)
	}
	return nil
}

// CacheData marshals data and stores it; ttl overrides the default when positive.
func (s *Service) CacheData(ctx context.Context, key string, data interface{}, ttl ...time.Duration) error {
	if !s.Enabled() {
		return ErrCacheDisabled
	}
	if err := validateKey(key); err != nil {
		return err
	}
	expiry := s.ttl
	if len(ttl) > 0 && ttl[0] > 0 {
		expiry = ttl[0]
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	fullKey := s.buildKey(key)
	if err := s.cache.Set(ctx, fullKey, payload, expiry); err != nil {
		log.ErrorWithContext(ctx, "cache set error for key %s: %v", fullKey, err)
		return err
	}
	return nil
}

func (s *Service) InvalidateKey(ctx context.Context, key string) error {
	if !s.Enabled() {
		return ErrCacheDisabled
	}
	return s.cache.Delete(ctx, s.buildKey(key))
}

func (s *Service) InvalidatePattern(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return ErrCacheDisabled
	}
	return s.cache.DeletePattern(ctx, s.buildKey(pattern))
}

// Increment bumps the counter at key.
func (s *Service) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	if !s.Enabled() {
		return 0, ErrCacheDisabled
	}
	if err := validateKey(key); err != nil {
		return 0, err
	}
	return s.cache.Increment(ctx, s.buildKey(key), delta)
}

func (s *Service) Stats() Stats {
	if !s.Enabled() {
		return Stats{}
	}
	return s.cache.Stats()
}

func (s *Service) Close() error {
	if !s.Enabled() {
		return nil
	}
	return s.cache.Close()
}

// Remember returns the cached value at key, or loads, caches and returns it.
// Cache failures fall through to load.
func Remember[T any](ctx context.Context, s *Service, key string, load func(ctx context.Context) (T, error)) (T, error) {
	var cached T
	if err := s.GetCached(ctx, key, &cached); err == nil {
		return cached, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if s.Enabled() {
		if err := s.CacheData(ctx, key, v); err != nil {
			log.WarnWithContext(ctx, "cache fill for %s failed: %v", key, err)
		}
	}
	return v, nil
}

// HashKey derives a stable key from prefix and params, e.g. for caching the
// result of a compiled query.
func HashKey(prefix string, params map[string]interface{}) string {
	h := sha256.New()
	h.Write([]byte(prefix + ":"))

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var value string
		switch v := params[k].(type) {
		case string:
			value = v
		case nil:
			value = "nil"
		default:
			if b, err := json.Marshal(v); err == nil {
				value = string(b)
			} else {
				value = fmt.Sprintf("%v", v)
			}
		}
		fmt.Fprintf(h, "%s=%s;", k, value)
	}
	return prefix + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

func (s *Service) buildKey(key string) string {
	return s.prefix + key
}

func validateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	for _, r := range key {
		if r <= 32 || r >= 127 {
			return fmt.Errorf("%w: contains invalid character", ErrInvalidKey)
		}
	}
	if len(key) > 250 {
		return fmt.Errorf("%w: key too long (max 250 characters)", ErrInvalidKey)
	}
	return nil
}
