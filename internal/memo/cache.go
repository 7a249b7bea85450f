// Package memo provides an in-process memoization cache with per-call TTLs
// and single-flight fetch semantics. It bounds the read rate against the
// ledger: quantities with different volatility are cached under different
// expiry tiers, and concurrent misses on one key share a single fetch instead
// of issuing duplicates against a rate-limited endpoint.
package memo

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchFunc loads the value for a key on a cache miss.
type FetchFunc[V any] func(ctx context.Context) (V, error)

// Bypass, passed as the ttl of a Get call, skips the cached entry and forces
// a fresh fetch. The result is stored under the cache's default TTL.
const Bypass time.Duration = -1

// Options configures a Cache.
type Options struct {
	// DefaultTTL applies when a Get call passes a zero TTL.
	DefaultTTL time.Duration

	// SweepInterval controls how often expired entries are collected.
	// Zero disables the background sweeper; entries then expire lazily on
	// the next read.
	SweepInterval time.Duration

	// OnExpire, when set, is invoked with the key of every entry removed
	// by the sweeper.
	OnExpire func(key string)

	// Refresh switches the sweeper from eviction to proactive warming: an
	// expired entry is refetched in the background with the entry's last
	// fetch function and re-armed. The refetched value is never returned
	// to a waiting caller.
	Refresh bool

	// RefreshTimeout bounds a single background warming fetch.
	RefreshTimeout time.Duration
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
	ttl       time.Duration
	fetch     FetchFunc[V]
}

// Cache is a TTL key/value cache safe for concurrent use. Within a TTL
// window a cached value is returned without re-invoking the fetch function,
// and at most one fetch per key is in flight at any time.
type Cache[V any] struct {
	name   string
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]entry[V]
	group   singleflight.Group

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Cache and registers it with the given service for lifecycle
// management. The service owns shutdown; callers never stop a cache directly.
func New[V any](svc *Service, name string, opts Options, logger *slog.Logger) *Cache[V] {
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 30 * time.Second
	}
	c := &Cache[V]{
		name:    name,
		opts:    opts,
		logger:  logger.With(slog.String("cache", name)),
		entries: make(map[string]entry[V]),
		done:    make(chan struct{}),
	}
	if opts.SweepInterval > 0 {
		go c.sweep()
	}
	svc.register(name, c.stop)
	return c
}

// Get returns the cached value for key, fetching it when absent or expired.
// A ttl of zero uses the cache's default; a negative ttl (Bypass) ignores any
// cached entry and fetches fresh. Concurrent callers missing on the same key
// await one shared fetch; the fetch error, if any, is delivered to every
// waiter unchanged.
func (c *Cache[V]) Get(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc[V]) (V, error) {
	if ttl < 0 {
		// Bypass: fetch outside the flight so the caller can never be
		// handed a value another caller found in the cache.
		v, err := fetch(ctx)
		if err != nil {
			var zero V
			return zero, err
		}
		c.store(key, v, c.opts.DefaultTTL, fetch)
		return v, nil
	}

	if v, ok := c.lookup(key); ok {
		return v, nil
	}
	if ttl == 0 {
		ttl = c.opts.DefaultTTL
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// Re-check under the flight: a concurrent caller may have stored
		// the value between our miss and this callback running.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, v, ttl, fetch)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Peek returns the cached value without fetching on a miss.
func (c *Cache[V]) Peek(key string) (V, bool) {
	return c.lookup(key)
}

// Invalidate removes a key immediately.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of live (non-expired) entries.
func (c *Cache[V]) Len() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}

func (c *Cache[V]) lookup(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) store(key string, v V, ttl time.Duration, fetch FetchFunc[V]) {
	c.mu.Lock()
	c.entries[key] = entry[V]{
		value:     v,
		expiresAt: time.Now().Add(ttl),
		ttl:       ttl,
		fetch:     fetch,
	}
	c.mu.Unlock()
}

// sweep periodically collects expired entries, notifying OnExpire or warming
// them depending on configuration.
func (c *Cache[V]) sweep() {
	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweepOnce()
		}
	}
}

func (c *Cache[V]) sweepOnce() {
	now := time.Now()

	c.mu.Lock()
	expired := make(map[string]entry[V])
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			expired[k] = e
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()

	for k, e := range expired {
		switch {
		case c.opts.Refresh && e.fetch != nil:
			go c.warm(k, e)
		case c.opts.OnExpire != nil:
			c.opts.OnExpire(k)
		}
	}
}

// warm refetches an expired entry in the background and re-arms it. The
// result is cache warming only; it is never handed to a caller.
func (c *Cache[V]) warm(key string, e entry[V]) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.RefreshTimeout)
	defer cancel()

	v, err := e.fetch(ctx)
	if err != nil {
		c.logger.Debug("cache warm fetch failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	c.store(key, v, e.ttl, e.fetch)
}

func (c *Cache[V]) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}
