package cache

import (
	"context"
	"path"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type memoryItem struct {
	value []byte
	// zero means no expiry
	expiresAt time.Time
}

func (i *memoryItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && now.After(i.expiresAt)
}

// MemoryCache is a process-local Cache bounded by total value bytes.
type MemoryCache struct {
	mu        sync.RWMutex
	items     map[string]*memoryItem
	used      int64
	maxMemory int64

	hits, misses, evictions int64

	stop      chan struct{}
	closeOnce sync.Once
}

// NewMemoryCache starts a cache; cleanupInterval <= 0 disables the janitor.
func NewMemoryCache(maxMemory int64, cleanupInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		items:     make(map[string]*memoryItem),
		maxMemory: maxMemory,
		stop:      make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.janitor(cleanupInterval)
	}
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()

	if !ok || item.expired(time.Now()) {
		atomic.AddInt64(&c.misses, 1)
		return nil, ErrKeyNotFound
	}
	atomic.AddInt64(&c.hits, 1)
	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	item := &memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, item)
	return nil
}

func (c *MemoryCache) put(key string, item *memoryItem) {
	if old, ok := c.items[key]; ok {
		c.used -= int64(len(key) + len(old.value))
	}
	c.items[key] = item
	c.used += int64(len(key) + len(item.value))
	c.evict(key)
}

// evict drops expired items, then the items closest to expiry, until the
// cache fits. keep is never evicted.
func (c *MemoryCache) evict(keep string) {
	if c.maxMemory <= 0 || c.used <= c.maxMemory {
		return
	}
	now := time.Now()
	type candidate struct {
		key string
		at  time.Time
	}
	var order []candidate
	for k, it := range c.items {
		if k == keep || it.expiresAt.IsZero() {
			continue
		}
		if it.expired(now) {
			c.remove(k)
			continue
		}
		order = append(order, candidate{k, it.expiresAt})
	}
	sort.Slice(order, func(i, j int) bool { return order[i].at.Before(order[j].at) })
	for _, cand := range order {
		if c.used <= c.maxMemory {
			return
		}
		c.remove(cand.key)
		c.evictions++
	}
}

func (c *MemoryCache) remove(key string) {
	if it, ok := c.items[key]; ok {
		c.used -= int64(len(key) + len(it.value))
		delete(c.items, key)
	}
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(key)
	return nil
}

func (c *MemoryCache) DeletePattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.items {
		if ok, _ := path.Match(pattern, k); ok {
			c.remove(k)
		}
	}
	return nil
}

func (c *MemoryCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[key]
	return ok && !item.expired(time.Now()), nil
}

func (c *MemoryCache) Increment(_ context.Context, key string, delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var current int64
	item, ok := c.items[key]
	if ok && !item.expired(time.Now()) {
		n, err := strconv.ParseInt(string(item.value), 10, 64)
		if err != nil {
			return 0, ErrNotCounter
		}
		current = n
	}
	next := current + delta
	c.put(key, &memoryItem{value: []byte(strconv.FormatInt(next, 10))})
	return next, nil
}

func (c *MemoryCache) Close() error {
	c.closeOnce.Do(func() { close(c.stop) })
	return nil
}

func (c *MemoryCache) Stats() Stats {
	c.mu.RLock()
	keys, evictions := int64(len(c.items)), c.evictions
	c.mu.RUnlock()
	return newStats(atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses), keys, evictions)
}

func (c *MemoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for k, it := range c.items {
				if it.expired(now) {
					c.remove(k)
				}
			}
			c.mu.Unlock()
		}
	}
}
