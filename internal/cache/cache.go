// Package cache holds a small in-memory cache with per-entry expiry.
package cache

import (
	"sync"
	"time"
)

type entry[T any] struct {
	val T
	exp time.Time
}

// TTL maps keys to values that expire ttl after they were set. Expired
// entries are dropped lazily on lookup and when the cache is full.
type TTL[T any] struct {
	mu  sync.Mutex
	ttl time.Duration
	max int
	m   map[string]entry[T]
	now func() time.Time
}

// New returns a cache keeping at most max live entries; max <= 0 means no
// limit.
func New[T any](ttl time.Duration, max int) *TTL[T] {
	return &TTL[T]{ttl: ttl, max: max, m: make(map[string]entry[T]), now: time.Now}
}

func (c *TTL[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	ent, ok := c.m[key]
	if !ok {
		return zero, false
	}
	if c.now().After(ent.exp) {
		delete(c.m, key)
		return zero, false
	}
	return ent.val, true
}

func (c *TTL[T]) Set(key string, val T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if _, ok := c.m[key]; !ok && c.max > 0 && len(c.m) >= c.max {
		c.evictLocked(now)
	}
	c.m[key] = entry[T]{val: val, exp: now.Add(c.ttl)}
}

func (c *TTL[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

// evictLocked drops expired entries, or the one closest to expiry when
// none has expired.
func (c *TTL[T]) evictLocked(now time.Time) {
	var oldest string
	var oldestExp time.Time
	for k, e := range c.m {
		if now.After(e.exp) {
			delete(c.m, k)
			continue
		}
		if oldest == "" || e.exp.Before(oldestExp) {
			oldest, oldestExp = k, e.exp
		}
	}
	if len(c.m) >= c.max && oldest != "" {
		delete(c.m, oldest)
	}
}
