package resolve

import (
	"context"
	"sync"
	"time"

	"capstan/pkg/logging"

	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	endpoint Endpoint
	expires  time.Time
}

// CachedResolver wraps another resolver with a bounded-TTL cache.
// Concurrent misses for the same capability coalesce into a single
// upstream resolution; a connection failure reported through
// Invalidate drops the entry immediately so the next attempt resolves
// fresh.
type CachedResolver struct {
	inner Resolver
	ttl   time.Duration
	now   func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
	flight  singleflight.Group
}

// NewCachedResolver wraps inner with a TTL cache. A non-positive TTL
// disables caching and returns inner unchanged.
func NewCachedResolver(inner Resolver, ttl time.Duration) Resolver {
	if ttl <= 0 {
		return inner
	}
	return &CachedResolver{
		inner:   inner,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *CachedResolver) Resolve(ctx context.Context, id string) (Endpoint, error) {
	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expires) {
		return entry.endpoint, nil
	}

	// Coalesce concurrent misses for the same id into one upstream
	// resolution.
	v, err, _ := c.flight.Do(id, func() (interface{}, error) {
		endpoint, err := c.inner.Resolve(ctx, id)
		if err != nil {
			return Endpoint{}, err
		}
		c.mu.Lock()
		c.entries[id] = cacheEntry{endpoint: endpoint, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return endpoint, nil
	})
	if err != nil {
		return Endpoint{}, err
	}
	return v.(Endpoint), nil
}

// Invalidate drops the cached endpoint for the capability and forwards
// the invalidation to the wrapped resolver.
func (c *CachedResolver) Invalidate(id string) {
	c.mu.Lock()
	_, had := c.entries[id]
	delete(c.entries, id)
	c.mu.Unlock()
	if had {
		logging.Debug("Resolver", "Invalidated cached endpoint for %s", id)
	}
	c.inner.Invalidate(id)
}
