package loadcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func memoLoader(body string, calls *atomic.Int64) Loader[string, []byte] {
	return func(ctx context.Context, key string) ([]byte, error) {
		calls.Add(1)
		return []byte(body), nil
	}
}

func TestMemoReadThrough(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(ctx)
	m := NewMemo(store)
	var calls atomic.Int64

	body, err := m.Get("user:1", memoLoader("ada", &calls))
	if err != nil || string(body) != "ada" {
		t.Fatalf("unexpected first get: body=%s err=%v", body, err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one loader call, got %d", calls.Load())
	}

	// the result was written through
	stored, ok, err := store.Get(ctx, "user:1")
	if err != nil || !ok || string(stored) != "ada" {
		t.Fatalf("expected write-through: ok=%v err=%v body=%s", ok, err, stored)
	}

	// in-process hit, loader and store untouched
	body, err = m.Get("user:1", memoLoader("ada", &calls))
	if err != nil || string(body) != "ada" {
		t.Fatalf("unexpected cached get: body=%s err=%v", body, err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected no further loader calls, got %d", calls.Load())
	}
}

func TestMemoStoreHitSkipsLoader(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(ctx)
	if err := store.Set(ctx, "warm", []byte("from-store"), time.Minute); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	m := NewMemo(store)
	body, err := m.GetCtx(ctx, "warm", func(ctx context.Context, key string) ([]byte, error) {
		t.Fatalf("loader must not run when the store has the key")
		return nil, nil
	})
	if err != nil || string(body) != "from-store" {
		t.Fatalf("unexpected result: body=%s err=%v", body, err)
	}
}

func TestMemoRejectsEmptyKeyAndNilLoader(t *testing.T) {
	ctx := context.Background()
	m := NewMemo(NewMemoryStore(ctx))

	if _, err := m.GetCtx(ctx, "", memoLoader("x", new(atomic.Int64))); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if _, err := m.GetCtx(ctx, "k", nil); !errors.Is(err, ErrNilLoader) {
		t.Fatalf("expected ErrNilLoader, got %v", err)
	}
	if err := m.InvalidateCtx(ctx, ""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey from invalidate, got %v", err)
	}
}

func TestMemoLoaderFailureIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(ctx)
	m := NewMemo(store)
	boom := errors.New("boom")

	_, err := m.GetCtx(ctx, "flaky", func(ctx context.Context, key string) ([]byte, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected loader failure, got %v", err)
	}
	var le *LoadError
	if !errors.As(err, &le) || le.Key != "flaky" {
		t.Fatalf("expected key-tagged error, got %v", err)
	}
	if _, ok, _ := store.Get(ctx, "flaky"); ok {
		t.Fatalf("failures must not be written through")
	}

	// the key recovers
	body, err := m.GetCtx(ctx, "flaky", memoLoader("ok", new(atomic.Int64)))
	if err != nil || string(body) != "ok" {
		t.Fatalf("expected recovery: body=%s err=%v", body, err)
	}
}

func TestMemoStoreWriteFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("backend down")
	m := NewMemo(newErrorStore(DriverRedis, boom))

	_, err := m.GetCtx(ctx, "k", memoLoader("v", new(atomic.Int64)))
	if !errors.Is(err, boom) {
		t.Fatalf("expected store failure to surface, got %v", err)
	}
}

func TestMemoInvalidateRemovesBothLayers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(ctx)
	m := NewMemo(store)
	var calls atomic.Int64

	if _, err := m.Get("k", memoLoader("v", &calls)); err != nil {
		t.Fatalf("seed get failed: %v", err)
	}
	if err := m.Invalidate("k"); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatalf("expected store entry to be deleted")
	}
	if _, err := m.Get("k", memoLoader("v", &calls)); err != nil {
		t.Fatalf("refetch failed: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected refetch to reload, calls=%d", calls.Load())
	}
}

func TestMemoInvalidateMany(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(ctx)
	m := NewMemo(store)
	var calls atomic.Int64

	_, _ = m.Get("a", memoLoader("1", &calls))
	_, _ = m.Get("b", memoLoader("2", &calls))
	if err := m.InvalidateMany(ctx, "a", "b"); err != nil {
		t.Fatalf("invalidate many failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "a"); ok {
		t.Fatalf("expected a to be deleted from the store")
	}
	_, _ = m.Get("a", memoLoader("1", &calls))
	if calls.Load() != 3 {
		t.Fatalf("expected reload after invalidate many, calls=%d", calls.Load())
	}
}

func TestMemoClearFlushesStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(ctx)
	m := NewMemo(store)
	var calls atomic.Int64

	_, _ = m.Get("a", memoLoader("1", &calls))
	_, _ = m.Get("b", memoLoader("2", &calls))
	if err := m.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "a"); ok {
		t.Fatalf("expected flush to empty the store")
	}
	_, _ = m.Get("a", memoLoader("1", &calls))
	if calls.Load() != 3 {
		t.Fatalf("expected reload after clear, calls=%d", calls.Load())
	}
}

func TestMemoCoalescesColdKeyToOneBackendRead(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(ctx)
	m := NewMemo(store)

	var calls atomic.Int64
	release := make(chan struct{})
	load := func(ctx context.Context, key string) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("shared"), nil
	}

	const n = 16
	bodies := make([][]byte, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bodies[i], errs[i] = m.GetCtx(ctx, "cold", load)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected one loader call, got %d", calls.Load())
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil || string(bodies[i]) != "shared" {
			t.Fatalf("waiter %d: body=%s err=%v", i, bodies[i], errs[i])
		}
	}
}

func TestMemoDriverAndStoreAccessors(t *testing.T) {
	ctx := context.Background()
	store := NewNullStore(ctx)
	m := NewMemo(store)
	if m.Driver() != DriverNull {
		t.Fatalf("unexpected driver: %s", m.Driver())
	}
	if m.Store() != store {
		t.Fatalf("expected store accessor to return the bound store")
	}
}

func TestGetJSONRoundTrip(t *testing.T) {
	type user struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	ctx := context.Background()
	m := NewMemo(NewMemoryStore(ctx))
	var calls atomic.Int64

	load := func(ctx context.Context, key string) (user, error) {
		calls.Add(1)
		return user{Name: "Ada", Age: 36}, nil
	}
	u, err := GetJSON(ctx, m, "user:42", load)
	if err != nil || u.Name != "Ada" || u.Age != 36 {
		t.Fatalf("unexpected first result: %+v err=%v", u, err)
	}
	u, err = GetJSON(ctx, m, "user:42", load)
	if err != nil || u.Name != "Ada" {
		t.Fatalf("unexpected cached result: %+v err=%v", u, err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one loader call, got %d", calls.Load())
	}
}

func TestGetValueCustomCodec(t *testing.T) {
	ctx := context.Background()
	m := NewMemo(NewMemoryStore(ctx))

	codec := ValueCodec[int]{
		Encode: func(v int) ([]byte, error) { return []byte{byte(v)}, nil },
		Decode: func(b []byte) (int, error) {
			if len(b) != 1 {
				return 0, errors.New("bad record")
			}
			return int(b[0]), nil
		},
	}
	v, err := GetValue(ctx, m, "n", func(ctx context.Context, key string) (int, error) {
		return 42, nil
	}, codec)
	if err != nil || v != 42 {
		t.Fatalf("unexpected result: v=%d err=%v", v, err)
	}

	if _, err := GetValue[int](ctx, m, "n", nil, codec); !errors.Is(err, ErrNilLoader) {
		t.Fatalf("expected ErrNilLoader, got %v", err)
	}
}
