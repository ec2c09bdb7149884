package resolve

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingResolver counts upstream resolutions per capability id.
type countingResolver struct {
	mu           sync.Mutex
	calls        map[string]int
	invalidated  []string
	err          error
	blockResolve chan struct{} // when set, Resolve waits on it
}

func newCountingResolver() *countingResolver {
	return &countingResolver{calls: map[string]int{}}
}

func (f *countingResolver) Resolve(_ context.Context, id string) (Endpoint, error) {
	if f.blockResolve != nil {
		<-f.blockResolve
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if f.err != nil {
		return Endpoint{}, f.err
	}
	return Endpoint{Host: fmt.Sprintf("%s-%d", id, f.calls[id]), Port: 8080}, nil
}

func (f *countingResolver) Invalidate(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, id)
}

func (f *countingResolver) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func newTestCache(inner Resolver, ttl time.Duration, now *time.Time) *CachedResolver {
	return &CachedResolver{
		inner:   inner,
		ttl:     ttl,
		now:     func() time.Time { return *now },
		entries: make(map[string]cacheEntry),
	}
}

func TestCachedResolver_HitWithinTTL(t *testing.T) {
	inner := newCountingResolver()
	now := time.Now()
	c := newTestCache(inner, 30*time.Second, &now)

	first, err := c.Resolve(context.Background(), "calc")
	require.NoError(t, err)
	second, err := c.Resolve(context.Background(), "calc")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.callCount("calc"))
}

func TestCachedResolver_ExpiryTriggersReResolve(t *testing.T) {
	inner := newCountingResolver()
	now := time.Now()
	c := newTestCache(inner, 30*time.Second, &now)

	_, err := c.Resolve(context.Background(), "calc")
	require.NoError(t, err)

	now = now.Add(31 * time.Second)
	_, err = c.Resolve(context.Background(), "calc")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.callCount("calc"))
}

func TestCachedResolver_InvalidateDropsOnlyThatEntry(t *testing.T) {
	inner := newCountingResolver()
	now := time.Now()
	c := newTestCache(inner, time.Minute, &now)

	_, err := c.Resolve(context.Background(), "a")
	require.NoError(t, err)
	b1, err := c.Resolve(context.Background(), "b")
	require.NoError(t, err)

	c.Invalidate("a")

	// b stays cached, a resolves fresh.
	b2, err := c.Resolve(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
	assert.Equal(t, 1, inner.callCount("b"))

	_, err = c.Resolve(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.callCount("a"))

	// Invalidation is forwarded downstream.
	assert.Equal(t, []string{"a"}, inner.invalidated)
}

func TestCachedResolver_FailedResolutionNotCached(t *testing.T) {
	inner := newCountingResolver()
	inner.err = ErrNoEndpoints
	now := time.Now()
	c := newTestCache(inner, time.Minute, &now)

	_, err := c.Resolve(context.Background(), "calc")
	assert.ErrorIs(t, err, ErrNoEndpoints)

	inner.mu.Lock()
	inner.err = nil
	inner.mu.Unlock()

	_, err = c.Resolve(context.Background(), "calc")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.callCount("calc"))
}

func TestCachedResolver_ConcurrentMissesCoalesce(t *testing.T) {
	inner := newCountingResolver()
	inner.blockResolve = make(chan struct{})
	now := time.Now()
	c := newTestCache(inner, time.Minute, &now)

	var started, done sync.WaitGroup
	var errCount atomic.Int32
	for i := 0; i < 8; i++ {
		started.Add(1)
		done.Add(1)
		go func() {
			started.Done()
			defer done.Done()
			if _, err := c.Resolve(context.Background(), "calc"); err != nil {
				errCount.Add(1)
			}
		}()
	}
	started.Wait()
	close(inner.blockResolve)
	done.Wait()

	assert.Equal(t, int32(0), errCount.Load())
	// All eight misses share one upstream resolution.
	assert.Equal(t, 1, inner.callCount("calc"))
}

func TestNewCachedResolver_ZeroTTLPassesThrough(t *testing.T) {
	inner := newCountingResolver()
	r := NewCachedResolver(inner, 0)
	assert.Same(t, Resolver(inner), r)
}
