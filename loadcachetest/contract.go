package loadcachetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goforj/loadcache"
)

// Options configures the shared contract checks.
type Options struct {
	// CaseName is used to namespace keys. Defaults to t.Name().
	CaseName string
	// NullSemantics enables relaxed expectations for the null store.
	NullSemantics bool
	// SkipCloneCheck disables the "get returns a cloned value" assertion.
	SkipCloneCheck bool
	// TTL controls the expiry duration used in TTL tests.
	TTL time.Duration
	// TTLWait is how long the harness waits for expiry to occur.
	TTLWait time.Duration
	// SkipFlush disables the flush assertion for backends where it is expensive.
	SkipFlush bool
}

// Store is the minimal contract required by RunStoreContract.
type Store = loadcache.Store

// RunCacheContract verifies the memoizing contract against a fresh cache:
// exactly-once loading under concurrency, hit short-circuiting, failure
// fan-out without poisoning, and invalidate/clear forcing a refetch.
func RunCacheContract(t *testing.T, c *loadcache.Cache[string, string]) {
	t.Helper()
	ctx := context.Background()

	// Concurrent misses for one key coalesce into a single load.
	var calls atomic.Int32
	release := make(chan struct{})
	loader := func(ctx context.Context, key string) (string, error) {
		calls.Add(1)
		<-release
		return "v:" + key, nil
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetCtx(ctx, "coalesce", loader)
		}(i)
	}
	// Give every goroutine a chance to attach before the load settles.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: unexpected error: %v", i, errs[i])
		}
		if results[i] != "v:coalesce" {
			t.Fatalf("caller %d: got %q, want %q", i, results[i], "v:coalesce")
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("loader called %d times, want 1", got)
	}

	// A settled entry never invokes a different loader.
	poison := func(ctx context.Context, key string) (string, error) {
		t.Fatalf("loader invoked for cached key %q", key)
		return "", nil
	}
	if v, err := c.GetCtx(ctx, "coalesce", poison); err != nil || v != "v:coalesce" {
		t.Fatalf("cached get: v=%q err=%v", v, err)
	}

	// Failures fan out to every waiter and are not kept.
	boom := errors.New("upstream down")
	var failCalls atomic.Int32
	failing := func(ctx context.Context, key string) (string, error) {
		failCalls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return "", boom
	}
	wg.Add(4)
	failErrs := make([]error, 4)
	for i := 0; i < 4; i++ {
		go func(i int) {
			defer wg.Done()
			_, failErrs[i] = c.GetCtx(ctx, "flaky", failing)
		}(i)
	}
	wg.Wait()
	for i, err := range failErrs {
		if !errors.Is(err, boom) {
			t.Fatalf("waiter %d: got %v, want wrapped %v", i, err, boom)
		}
		var le *loadcache.LoadError
		if !errors.As(err, &le) || le.Key != "flaky" {
			t.Fatalf("waiter %d: expected LoadError tagged with key, got %v", i, err)
		}
	}
	if got := failCalls.Load(); got != 1 {
		t.Fatalf("failing loader called %d times, want 1", got)
	}
	// The failed key is not poisoned: the next get loads fresh.
	recovered, err := c.GetCtx(ctx, "flaky", func(ctx context.Context, key string) (string, error) {
		return "recovered", nil
	})
	if err != nil || recovered != "recovered" {
		t.Fatalf("post-failure get: v=%q err=%v", recovered, err)
	}

	// Invalidate forces a refetch.
	c.Invalidate("coalesce")
	var refetched atomic.Int32
	v, err := c.GetCtx(ctx, "coalesce", func(ctx context.Context, key string) (string, error) {
		refetched.Add(1)
		return "fresh", nil
	})
	if err != nil || v != "fresh" || refetched.Load() != 1 {
		t.Fatalf("post-invalidate get: v=%q err=%v calls=%d", v, err, refetched.Load())
	}

	// Clear forces a refetch for every previously settled key.
	c.Clear()
	if got := c.Len(); got != 0 {
		t.Fatalf("expected empty cache after clear, got %d entries", got)
	}
	v, err = c.GetCtx(ctx, "coalesce", func(ctx context.Context, key string) (string, error) {
		return "after-clear", nil
	})
	if err != nil || v != "after-clear" {
		t.Fatalf("post-clear get: v=%q err=%v", v, err)
	}
}

// RunStoreContract runs a backend-agnostic store contract suite.
func RunStoreContract(t *testing.T, store Store, opts Options) {
	t.Helper()

	caseName := opts.CaseName
	if caseName == "" {
		caseName = t.Name()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 50 * time.Millisecond
	}
	wait := opts.TTLWait
	if wait <= 0 {
		wait = 120 * time.Millisecond
	}

	ctx := context.Background()
	key := func(s string) string {
		return sanitize(caseName) + ":" + s
	}

	// Set/Get round-trip.
	if err := store.Set(ctx, key("alpha"), []byte("value"), time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	body, ok, err := store.Get(ctx, key("alpha"))
	if err != nil {
		t.Fatalf("get failed: ok=%v err=%v", ok, err)
	}
	if opts.NullSemantics {
		if ok {
			t.Fatalf("expected miss for null semantics")
		}
	} else {
		if !ok || string(body) != "value" {
			t.Fatalf("unexpected get result: ok=%v body=%q err=%v", ok, string(body), err)
		}
		if !opts.SkipCloneCheck {
			body[0] = 'X'
			body2, ok2, err2 := store.Get(ctx, key("alpha"))
			if err2 != nil || !ok2 || string(body2) != "value" {
				t.Fatalf("expected stored value unchanged, got ok=%v body=%q err=%v", ok2, string(body2), err2)
			}
		}
	}

	// TTL expiry.
	if err := store.Set(ctx, key("ttl"), []byte("v"), ttl); err != nil {
		t.Fatalf("set ttl failed: %v", err)
	}
	if err := waitForMiss(ctx, store, key("ttl"), wait); err != nil {
		t.Fatalf("expected ttl expiry: %v", err)
	}

	// Delete and DeleteMany.
	if err := store.Set(ctx, key("a"), []byte("1"), time.Second); err != nil {
		t.Fatalf("set a failed: %v", err)
	}
	if err := store.Set(ctx, key("b"), []byte("2"), time.Second); err != nil {
		t.Fatalf("set b failed: %v", err)
	}
	if err := store.Delete(ctx, key("a")); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := store.DeleteMany(ctx, key("b")); err != nil {
		t.Fatalf("delete many failed: %v", err)
	}
	if _, ok, err := store.Get(ctx, key("a")); err != nil || ok {
		t.Fatalf("expected key a deleted; ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.Get(ctx, key("b")); err != nil || ok {
		t.Fatalf("expected key b deleted; ok=%v err=%v", ok, err)
	}

	// Flush.
	if !opts.SkipFlush {
		if err := store.Set(ctx, key("flush"), []byte("x"), time.Second); err != nil {
			t.Fatalf("set flush failed: %v", err)
		}
		if err := store.Flush(ctx); err != nil {
			t.Fatalf("flush failed: %v", err)
		}
		if _, ok, err := store.Get(ctx, key("flush")); err != nil || ok {
			t.Fatalf("expected flush to clear key; ok=%v err=%v", ok, err)
		}
	}
}

func waitForMiss(ctx context.Context, store Store, key string, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		_, ok, err := store.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	_, ok, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("key %q still present after %s", key, wait)
	}
	return nil
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
