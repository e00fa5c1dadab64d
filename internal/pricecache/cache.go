// Package pricecache provides a TTL price cache with single-flight fetch
// coalescing. Concurrent requests for the same key share one upstream call.
package pricecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// Supplier produces a fresh PricePoint on a cache miss. It usually wraps a
// rate-limiter admission and a SourceAdapter call.
type Supplier func(ctx context.Context) (domain.PricePoint, error)

// Stats counts cache outcomes since start.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Shared  int64 `json:"shared"`
	Entries int   `json:"entries"`
}

// Option customises a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithStore attaches a shared second-level store consulted before the
// supplier and written after it.
func WithStore(store domain.PriceStore) Option {
	return func(c *Cache) { c.l2 = store }
}

// WithSink reports cache misses as events.
func WithSink(sink domain.EventSink) Option {
	return func(c *Cache) { c.sink = sink }
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[domain.CacheKey]domain.CacheEntry
	group   singleflight.Group
	now     func() time.Time
	l2      domain.PriceStore
	sink    domain.EventSink
	logger  *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
	shared atomic.Int64
}

// New creates an empty Cache.
func New(logger *slog.Logger, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[domain.CacheKey]domain.CacheEntry),
		now:     time.Now,
		logger:  logger.With(slog.String("component", "pricecache")),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GetOrFetch returns the cached PricePoint for key if it is still fresh.
// Otherwise it invokes supplier once for all concurrent callers of key and
// caches a successful result for ttl. Errors are shared with waiting callers
// but never cached.
//
// The supplier runs detached from the caller's cancellation so that a
// cancelled leader still completes the fetch for followers; the caller itself
// returns as soon as ctx is done.
func (c *Cache) GetOrFetch(ctx context.Context, key domain.CacheKey, supplier Supplier, ttl time.Duration) (domain.PricePoint, error) {
	if ttl <= 0 {
		return domain.PricePoint{}, fmt.Errorf("pricecache: ttl for %s must be positive: %w", key, domain.ErrInvariant)
	}

	if pp, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return pp, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key.String(), func() (any, error) {
		// A previous flight may have filled the entry between our lookup
		// and acquiring the flight.
		if pp, ok := c.lookup(key); ok {
			return pp, nil
		}

		c.misses.Add(1)
		if c.sink != nil {
			c.sink.Emit(detached, domain.Event{
				Kind:  domain.EventCacheMiss,
				Time:  c.now(),
				Pair:  key.Pair,
				Venue: key.Venue,
				Key:   key.String(),
			})
		}

		if pp, ok := c.lookupStore(detached, key); ok {
			return pp, nil
		}

		pp, err := supplier(detached)
		if err != nil {
			return domain.PricePoint{}, err
		}
		c.store(detached, key, pp, ttl)
		return pp, nil
	})

	select {
	case <-ctx.Done():
		return domain.PricePoint{}, fmt.Errorf("pricecache: get %s: %w", key, ctx.Err())
	case res := <-ch:
		if res.Shared {
			c.shared.Add(1)
		}
		if res.Err != nil {
			return domain.PricePoint{}, res.Err
		}
		return res.Val.(domain.PricePoint), nil
	}
}

// Peek returns a fresh cached value without fetching.
func (c *Cache) Peek(key domain.CacheKey) (domain.PricePoint, bool) {
	return c.lookup(key)
}

// Invalidate drops key from the local cache.
func (c *Cache) Invalidate(key domain.CacheKey) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Sweep removes expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if !e.Fresh(now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Shared:  c.shared.Load(),
		Entries: n,
	}
}

func (c *Cache) lookup(key domain.CacheKey) (domain.PricePoint, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !e.Fresh(c.now()) {
		return domain.PricePoint{}, false
	}
	return e.Value, true
}

func (c *Cache) lookupStore(ctx context.Context, key domain.CacheKey) (domain.PricePoint, bool) {
	if c.l2 == nil {
		return domain.PricePoint{}, false
	}
	e, err := c.l2.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.logger.WarnContext(ctx, "pricecache: shared store get failed",
				slog.String("key", key.String()),
				slog.String("error", err.Error()),
			)
		}
		return domain.PricePoint{}, false
	}
	if !e.Fresh(c.now()) {
		return domain.PricePoint{}, false
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return e.Value, true
}

func (c *Cache) store(ctx context.Context, key domain.CacheKey, pp domain.PricePoint, ttl time.Duration) {
	e := domain.CacheEntry{Key: key, Value: pp, ExpiresAt: c.now().Add(ttl)}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()

	if c.l2 != nil {
		if err := c.l2.Put(ctx, e); err != nil {
			c.logger.WarnContext(ctx, "pricecache: shared store put failed",
				slog.String("key", key.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}
