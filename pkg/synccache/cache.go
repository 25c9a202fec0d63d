// Package synccache is the shared read cache behind the POS views. Entries
// are keyed by entity id and dropped by change notifications. Concurrent
// loads for one key share a single call, and a load that started before an
// invalidation is never stored.
package synccache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/tablepos-backend/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// Loader fetches the authoritative value for one key.
type Loader[V any] func(ctx context.Context) (V, error)

// BatchLoader fetches several keys at once. Keys missing from the result
// are treated as absent and not cached.
type BatchLoader[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

type Options struct {
	// Name labels metrics.
	Name string
	// TTL bounds how long an entry is served without a notification. Zero
	// keeps entries until invalidated.
	TTL     time.Duration
	Metrics *metrics.CacheMetrics
}

type generation struct {
	global uint64
	key    uint64
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

type Cache[K comparable, V any] struct {
	name    string
	ttl     time.Duration
	metrics *metrics.CacheMetrics
	now     func() time.Time

	mu      sync.RWMutex
	entries map[K]entry[V]
	keyGens map[K]uint64
	global  uint64

	group singleflight.Group
}

func New[K comparable, V any](opts Options) *Cache[K, V] {
	name := opts.Name
	if name == "" {
		name = "default"
	}
	return &Cache[K, V]{
		name:    name,
		ttl:     opts.TTL,
		metrics: opts.Metrics,
		now:     time.Now,
		entries: make(map[K]entry[V]),
		keyGens: make(map[K]uint64),
	}
}

// Get returns the cached value or runs loader once for all concurrent
// callers of the same key and generation.
func (c *Cache[K, V]) Get(ctx context.Context, key K, loader Loader[V]) (V, error) {
	if v, ok := c.fresh(key); ok {
		c.metrics.Hit(c.name)
		return v, nil
	}
	c.metrics.Miss(c.name)

	gen := c.generationOf(key)
	flightKey := fmt.Sprintf("%v#%d.%d", key, gen.global, gen.key)
	res, err, _ := c.group.Do(flightKey, func() (any, error) {
		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		c.storeIfCurrent(key, v, gen)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	v, _ := res.(V)
	return v, nil
}

// GetMany serves hits from memory and loads the rest with one batch call.
func (c *Cache[K, V]) GetMany(ctx context.Context, keys []K, loader BatchLoader[K, V]) (map[K]V, error) {
	out := make(map[K]V, len(keys))
	var missing []K
	gens := make(map[K]generation)
	for _, key := range keys {
		if _, seen := out[key]; seen {
			continue
		}
		if _, queued := gens[key]; queued {
			continue
		}
		if v, ok := c.fresh(key); ok {
			c.metrics.Hit(c.name)
			out[key] = v
			continue
		}
		c.metrics.Miss(c.name)
		gens[key] = c.generationOf(key)
		missing = append(missing, key)
	}
	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := loader(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, key := range missing {
		v, ok := loaded[key]
		if !ok {
			continue
		}
		c.storeIfCurrent(key, v, gens[key])
		out[key] = v
	}
	return out, nil
}

// Peek returns the cached value without loading.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	return c.fresh(key)
}

// Set stores an authoritative value. Loads already in flight for key will
// not overwrite it.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keyGens[key]++
	c.entries[key] = entry[V]{value: value, storedAt: c.now()}
}

// Update replaces a cached value with fn(old) and returns a restore func
// that puts the old value back, unless the entry changed again in the
// meantime. fn must not mutate its argument. ok is false when key is not
// cached; restore is then a no-op.
func (c *Cache[K, V]) Update(key K, fn func(V) V) (restore func(), ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, found := c.entries[key]
	if !found {
		return func() {}, false
	}
	c.keyGens[key]++
	applied := c.currentLocked(key)
	c.entries[key] = entry[V]{value: fn(prev.value), storedAt: c.now()}

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.currentLocked(key) != applied {
			return
		}
		c.keyGens[key]++
		c.entries[key] = prev
	}, true
}

// Invalidate drops key and fences off loads that started before the call.
func (c *Cache[K, V]) Invalidate(keys ...K) {
	c.mu.Lock()
	for _, key := range keys {
		c.keyGens[key]++
		delete(c.entries, key)
	}
	c.mu.Unlock()
	c.metrics.Invalidated(c.name, len(keys))
}

// InvalidateAll drops every entry.
func (c *Cache[K, V]) InvalidateAll() {
	c.mu.Lock()
	n := len(c.entries)
	c.global++
	c.entries = make(map[K]entry[V])
	c.keyGens = make(map[K]uint64)
	c.mu.Unlock()
	c.metrics.Invalidated(c.name, n)
}

func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache[K, V]) fresh(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || (c.ttl > 0 && c.now().Sub(e.storedAt) >= c.ttl) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[K, V]) generationOf(key K) generation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentLocked(key)
}

func (c *Cache[K, V]) currentLocked(key K) generation {
	return generation{global: c.global, key: c.keyGens[key]}
}

func (c *Cache[K, V]) storeIfCurrent(key K, value V, gen generation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentLocked(key) != gen {
		c.metrics.StaleLoad(c.name)
		return
	}
	c.entries[key] = entry[V]{value: value, storedAt: c.now()}
}
