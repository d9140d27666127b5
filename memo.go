package loadcache

import (
	"context"
	"encoding/json"
	"time"
)

// Memo is a string-keyed read-through memoizer over a Store. A miss consults
// the store before invoking the loader, and loader results are written through
// with the configured TTL. Coalescing comes from an embedded Cache, so a cold
// key reaches the backend and the loader once even under concurrent callers.
type Memo struct {
	cache *Cache[string, []byte]
	store Store
	ttl   time.Duration
}

// NewMemo creates a memoizer bound to a concrete store.
// @group Memo
//
// Example: read-through over the memory store
//
//	ctx := context.Background()
//	m := loadcache.NewMemo(loadcache.NewMemoryStore(ctx))
//	body, err := m.Get("user:42", func(ctx context.Context, key string) ([]byte, error) {
//		return []byte(`{"name":"Ada"}`), nil
//	})
//	fmt.Println(err == nil, string(body)) // true {"name":"Ada"}
func NewMemo(store Store, opts ...Option) *Memo {
	cfg := Config{}
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return &Memo{
		cache: NewWithConfig[string, []byte](cfg),
		store: store,
		ttl:   cfg.TTL,
	}
}

// Store returns the underlying store implementation.
func (m *Memo) Store() Store { return m.store }

// Driver reports the underlying store driver.
func (m *Memo) Driver() Driver { return m.store.Driver() }

// Get returns the bytes for key, consulting the in-process layer, then the
// store, then the loader.
// @group Memo
func (m *Memo) Get(key string, loader Loader[string, []byte]) ([]byte, error) {
	return m.GetCtx(context.Background(), key, loader)
}

// GetCtx is the context-aware variant of Get. An empty key is rejected with
// ErrInvalidKey. Loader results are written through to the store; store write
// failures surface to the caller rather than silently dropping persistence.
func (m *Memo) GetCtx(ctx context.Context, key string, loader Loader[string, []byte]) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	if loader == nil {
		return nil, ErrNilLoader
	}
	return m.cache.GetCtx(ctx, key, func(ctx context.Context, key string) ([]byte, error) {
		body, ok, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return body, nil
		}
		body, err = loader(ctx, key)
		if err != nil {
			return nil, err
		}
		if err := m.store.Set(ctx, key, body, m.ttl); err != nil {
			return nil, err
		}
		return body, nil
	})
}

// Invalidate removes key from the in-process layer and the store.
// @group Memo
func (m *Memo) Invalidate(key string) error {
	return m.InvalidateCtx(context.Background(), key)
}

// InvalidateCtx is the context-aware variant of Invalidate.
func (m *Memo) InvalidateCtx(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	m.cache.InvalidateCtx(ctx, key)
	return m.store.Delete(ctx, key)
}

// InvalidateMany removes several keys from both layers.
func (m *Memo) InvalidateMany(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		m.cache.InvalidateCtx(ctx, key)
	}
	return m.store.DeleteMany(ctx, keys...)
}

// Clear removes every settled entry from the in-process layer and flushes the
// store scope. In-flight loads still serve their waiters.
// @group Memo
func (m *Memo) Clear() error {
	return m.ClearCtx(context.Background())
}

// ClearCtx is the context-aware variant of Clear.
func (m *Memo) ClearCtx(ctx context.Context) error {
	m.cache.ClearCtx(ctx)
	return m.store.Flush(ctx)
}

// ValueCodec defines how typed values are encoded for the store.
type ValueCodec[T any] struct {
	Encode func(T) ([]byte, error)
	Decode func([]byte) (T, error)
}

// defaultValueCodec uses JSON.
func defaultValueCodec[T any]() ValueCodec[T] {
	return ValueCodec[T]{
		Encode: func(v T) ([]byte, error) { return json.Marshal(v) },
		Decode: func(b []byte) (T, error) {
			var out T
			err := json.Unmarshal(b, &out)
			return out, err
		},
	}
}

// GetJSON returns a typed value for key, loading and JSON-encoding it on miss.
// @group Memo JSON
//
// Example: typed read-through
//
//	type User struct{ Name string `json:"name"` }
//	ctx := context.Background()
//	m := loadcache.NewMemo(loadcache.NewMemoryStore(ctx))
//	u, err := loadcache.GetJSON(ctx, m, "user:42", func(ctx context.Context, key string) (User, error) {
//		return User{Name: "Ada"}, nil
//	})
//	fmt.Println(err == nil, u.Name) // true Ada
func GetJSON[T any](ctx context.Context, m *Memo, key string, loader Loader[string, T]) (T, error) {
	return GetValue(ctx, m, key, loader, defaultValueCodec[T]())
}

// GetValue is GetJSON with a caller-supplied codec.
func GetValue[T any](ctx context.Context, m *Memo, key string, loader Loader[string, T], codec ValueCodec[T]) (T, error) {
	var zero T
	if loader == nil {
		return zero, ErrNilLoader
	}
	body, err := m.GetCtx(ctx, key, func(ctx context.Context, key string) ([]byte, error) {
		val, err := loader(ctx, key)
		if err != nil {
			return nil, err
		}
		return codec.Encode(val)
	})
	if err != nil {
		return zero, err
	}
	return codec.Decode(body)
}
