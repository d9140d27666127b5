package loadcache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Loader fetches the value for a key. It is invoked at most once per key per
// miss, no matter how many callers ask for the key concurrently.
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Config controls cache behavior.
type Config struct {
	// MaxEntries bounds the number of settled entries; the least recently used
	// entry is evicted on overflow. <= 0 means unbounded.
	MaxEntries int

	// TTL treats a settled entry older than this as absent on the next Get.
	// <= 0 means entries never expire.
	TTL time.Duration

	// CancelAbandonedLoad cancels an in-flight loader when the last waiting
	// caller gives up. Default is to let the load finish and keep the result.
	CancelAbandonedLoad bool

	// Observer receives operation events when set.
	Observer Observer
}

// Option mutates Config when constructing a cache.
type Option func(Config) Config

// WithMaxEntries bounds settled entries with LRU eviction.
func WithMaxEntries(n int) Option {
	return func(cfg Config) Config {
		cfg.MaxEntries = n
		return cfg
	}
}

// WithTTL expires settled entries after ttl.
func WithTTL(ttl time.Duration) Option {
	return func(cfg Config) Config {
		cfg.TTL = ttl
		return cfg
	}
}

// WithCancelAbandonedLoad cancels in-flight loads once no caller is waiting.
func WithCancelAbandonedLoad() Option {
	return func(cfg Config) Config {
		cfg.CancelAbandonedLoad = true
		return cfg
	}
}

// WithObserver attaches an observer to receive operation events.
func WithObserver(o Observer) Option {
	return func(cfg Config) Config {
		cfg.Observer = o
		return cfg
	}
}

// Cache memoizes the results of an expensive, possibly failing lookup keyed by
// a comparable identifier. Concurrent misses for the same key are coalesced
// into a single loader call; every waiting caller receives the same outcome.
// Failed loads are never kept, so a transient failure cannot poison a key.
//
// The zero value is not usable; construct with New or NewWithConfig.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	ready   readyIndex[K, V]
	flights map[K]*flight[V]
	cfg     Config

	// now is swapped in tests exercising TTL expiry.
	now func() time.Time
}

// New creates a cache with functional options.
// @group Cache
//
// Example: coalesced lookup
//
//	c := loadcache.New[string, string]()
//	v, err := c.Get("user:42", func(ctx context.Context, key string) (string, error) {
//		return "Ada", nil
//	})
//	fmt.Println(err == nil, v) // true Ada
func New[K comparable, V any](opts ...Option) *Cache[K, V] {
	cfg := Config{}
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return NewWithConfig[K, V](cfg)
}

// NewWithConfig creates a cache from an explicit Config.
// @group Cache
func NewWithConfig[K comparable, V any](cfg Config) *Cache[K, V] {
	var idx readyIndex[K, V]
	if cfg.MaxEntries > 0 {
		idx = newLRUIndex[K, V](cfg.MaxEntries)
	} else {
		idx = newMapIndex[K, V]()
	}
	return &Cache[K, V]{
		ready:   idx,
		flights: make(map[K]*flight[V]),
		cfg:     cfg,
		now:     time.Now,
	}
}

// Get returns the value for key, invoking loader at most once per miss.
// @group Cache
//
// Example: repeated gets hit the cache
//
//	c := loadcache.New[string, int]()
//	calls := 0
//	load := func(ctx context.Context, key string) (int, error) { calls++; return 7, nil }
//	a, _ := c.Get("answers", load)
//	b, _ := c.Get("answers", load)
//	fmt.Println(a, b, calls) // 7 7 1
func (c *Cache[K, V]) Get(key K, loader Loader[K, V]) (V, error) {
	return c.GetCtx(context.Background(), key, loader)
}

// GetCtx is the context-aware variant of Get.
//
// A settled entry returns immediately. When another caller is already loading
// the key, GetCtx blocks until that load settles and returns the identical
// outcome. Cancelling ctx detaches only this caller; the load keeps running for
// the others unless CancelAbandonedLoad is set and this was the last waiter.
// Loader failures are returned as *LoadError and are not cached.
func (c *Cache[K, V]) GetCtx(ctx context.Context, key K, loader Loader[K, V]) (V, error) {
	var zero V
	if loader == nil {
		return zero, ErrNilLoader
	}

	expired := false
	c.mu.Lock()
	if e, ok := c.ready.get(key); ok {
		if !c.stale(e) {
			c.mu.Unlock()
			c.observe(ctx, "get", key, true, nil, 0)
			return e.val, nil
		}
		c.ready.remove(key)
		expired = true
	}
	if f, ok := c.flights[key]; ok {
		f.waiters++
		c.mu.Unlock()
		if expired {
			c.observe(ctx, "expire", key, false, nil, 0)
		}
		c.observe(ctx, "coalesced", key, false, nil, 0)
		return c.wait(ctx, f)
	}

	// First caller for the key: start the load on a context detached from this
	// caller so one cancelled waiter cannot fail the whole batch.
	loadCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f := newFlight[V](cancel)
	c.flights[key] = f
	c.mu.Unlock()

	if expired {
		c.observe(ctx, "expire", key, false, nil, 0)
	}
	c.observe(ctx, "get", key, false, nil, 0)
	go c.load(loadCtx, key, f, loader)
	return c.wait(ctx, f)
}

// GetMany fetches several keys concurrently. Each key goes through the same
// coalescing path as Get, so overlapping GetMany calls still load each key at
// most once. The first failing key aborts the batch and its error is returned.
func (c *Cache[K, V]) GetMany(ctx context.Context, keys []K, loader Loader[K, V]) (map[K]V, error) {
	g, gctx := errgroup.WithContext(ctx)
	results := make([]V, len(keys))
	for i, key := range keys {
		g.Go(func() error {
			v, err := c.GetCtx(gctx, key, loader)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[K]V, len(keys))
	for i, key := range keys {
		out[key] = results[i]
	}
	return out, nil
}

// Peek returns the settled value for key without invoking any loader and
// without refreshing its recency.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.ready.peek(key)
	if !ok || c.stale(e) {
		var zero V
		return zero, false
	}
	return e.val, true
}

// Invalidate removes the entry for key. When a load for key is in flight, the
// in-flight waiters still receive its result but the result is not kept, so the
// next Get after it settles re-invokes the loader. Absent keys are a no-op.
// @group Cache
//
// Example: force a refetch
//
//	c := loadcache.New[string, string]()
//	_, _ = c.Get("cfg", load)
//	c.Invalidate("cfg")
//	_, _ = c.Get("cfg", load) // load runs again
func (c *Cache[K, V]) Invalidate(key K) {
	c.InvalidateCtx(context.Background(), key)
}

// InvalidateCtx is the context-aware variant of Invalidate. The context is only
// used for observer events.
func (c *Cache[K, V]) InvalidateCtx(ctx context.Context, key K) {
	c.mu.Lock()
	if f, ok := c.flights[key]; ok && !f.settled() {
		f.forgotten = true
	}
	removed := c.ready.remove(key)
	c.mu.Unlock()
	c.observe(ctx, "invalidate", key, removed, nil, 0)
}

// InvalidateFunc removes every settled entry whose key matches pred and
// returns how many were removed. In-flight loads matching pred are marked so
// their results are not kept.
func (c *Cache[K, V]) InvalidateFunc(pred func(K) bool) int {
	c.mu.Lock()
	for key, f := range c.flights {
		if !f.settled() && pred(key) {
			f.forgotten = true
		}
	}
	removed := c.ready.removeFunc(pred)
	c.mu.Unlock()
	return removed
}

// Clear removes all settled entries. In-flight loads are unaffected: their
// waiters are still served and their results are kept.
// @group Cache
func (c *Cache[K, V]) Clear() {
	c.ClearCtx(context.Background())
}

// ClearCtx is the context-aware variant of Clear. The context is only used for
// observer events.
func (c *Cache[K, V]) ClearCtx(ctx context.Context) {
	c.mu.Lock()
	c.ready.clear()
	c.mu.Unlock()
	c.observe(ctx, "clear", nil, false, nil, 0)
}

// Len reports the number of settled entries, including ones not yet noticed as
// expired.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready.len()
}

func (c *Cache[K, V]) load(ctx context.Context, key K, f *flight[V], loader Loader[K, V]) {
	start := c.now()
	val, err := loader(ctx, key)

	c.mu.Lock()
	delete(c.flights, key)
	var evictedKey K
	evicted := false
	if err != nil {
		f.err = &LoadError{Key: key, Err: err}
	} else {
		f.val = val
		if !f.forgotten {
			evictedKey, evicted = c.ready.add(key, entry[V]{val: val, storedAt: c.now()})
		}
	}
	c.mu.Unlock()

	f.cancel()
	close(f.done)

	c.observe(ctx, "load", key, err == nil, err, time.Since(start))
	if evicted {
		c.observe(ctx, "evict", evictedKey, false, nil, 0)
	}
}

func (c *Cache[K, V]) wait(ctx context.Context, f *flight[V]) (V, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		// Prefer a settled outcome over the cancellation when both raced.
		select {
		case <-f.done:
		default:
			c.mu.Lock()
			f.waiters--
			abandoned := f.waiters == 0
			c.mu.Unlock()
			if abandoned && c.cfg.CancelAbandonedLoad {
				f.cancel()
			}
			var zero V
			return zero, ctx.Err()
		}
	}
	if f.err != nil {
		var zero V
		return zero, f.err
	}
	return f.val, nil
}

func (c *Cache[K, V]) stale(e entry[V]) bool {
	return c.cfg.TTL > 0 && c.now().Sub(e.storedAt) > c.cfg.TTL
}

func (c *Cache[K, V]) observe(ctx context.Context, op string, key any, hit bool, err error, dur time.Duration) {
	if c.cfg.Observer == nil {
		return
	}
	c.cfg.Observer.OnCacheOp(ctx, op, key, hit, err, dur)
}
