package loadcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// observerSpy records every event it sees.
type observerSpy struct {
	mu     sync.Mutex
	events []observedEvent
}

type observedEvent struct {
	op  string
	key any
	hit bool
	err error
}

func (s *observerSpy) OnCacheOp(_ context.Context, op string, key any, hit bool, err error, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, observedEvent{op: op, key: key, hit: hit, err: err})
}

func (s *observerSpy) ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.op)
	}
	return out
}

func (s *observerSpy) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.op == op {
			n++
		}
	}
	return n
}

func (s *observerSpy) last(op string) (observedEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].op == op {
			return s.events[i], true
		}
	}
	return observedEvent{}, false
}

func TestObserverSeesGetLoadAndHit(t *testing.T) {
	spy := &observerSpy{}
	c := New[string, string](WithObserver(spy))
	load := func(ctx context.Context, key string) (string, error) { return "v", nil }

	_, _ = c.Get("k", load)
	_, _ = c.Get("k", load)

	if spy.count("load") != 1 {
		t.Fatalf("expected one load event, got %v", spy.ops())
	}
	miss, ok := spy.last("load")
	if !ok || !miss.hit || miss.err != nil {
		t.Fatalf("load event should report success: %+v", miss)
	}
	if spy.count("get") != 2 {
		t.Fatalf("expected two get events, got %v", spy.ops())
	}
	hit, _ := spy.last("get")
	if !hit.hit {
		t.Fatalf("second get should be a hit: %+v", hit)
	}
}

func TestObserverSeesLoadFailure(t *testing.T) {
	spy := &observerSpy{}
	c := New[string, string](WithObserver(spy))
	boom := errors.New("boom")
	_, _ = c.Get("k", func(ctx context.Context, key string) (string, error) {
		return "", boom
	})

	ev, ok := spy.last("load")
	if !ok {
		t.Fatalf("missing load event: %v", spy.ops())
	}
	if ev.hit || !errors.Is(ev.err, boom) {
		t.Fatalf("load event should carry the failure: %+v", ev)
	}
}

func TestObserverSeesInvalidateAndClear(t *testing.T) {
	spy := &observerSpy{}
	c := New[string, string](WithObserver(spy))
	_, _ = c.Get("k", func(ctx context.Context, key string) (string, error) { return "v", nil })

	c.Invalidate("k")
	ev, ok := spy.last("invalidate")
	if !ok || !ev.hit || ev.key != "k" {
		t.Fatalf("invalidate of a present key should report removal: %+v", ev)
	}
	c.Invalidate("missing")
	ev, _ = spy.last("invalidate")
	if ev.hit {
		t.Fatalf("invalidate of an absent key should report no removal: %+v", ev)
	}

	c.Clear()
	if spy.count("clear") != 1 {
		t.Fatalf("expected clear event, got %v", spy.ops())
	}
}

func TestObserverSeesEviction(t *testing.T) {
	spy := &observerSpy{}
	c := New[string, string](WithMaxEntries(1), WithObserver(spy))
	load := func(ctx context.Context, key string) (string, error) { return key, nil }

	_, _ = c.Get("a", load)
	_, _ = c.Get("b", load) // evicts a

	ev, ok := spy.last("evict")
	if !ok || ev.key != "a" {
		t.Fatalf("expected eviction of a, got %+v (%v)", ev, spy.ops())
	}
}

func TestObserverSeesExpiry(t *testing.T) {
	spy := &observerSpy{}
	c := New[string, string](WithTTL(time.Minute), WithObserver(spy))
	current := time.Now()
	c.now = func() time.Time { return current }
	load := func(ctx context.Context, key string) (string, error) { return "v", nil }

	_, _ = c.Get("k", load)
	current = current.Add(2 * time.Minute)
	_, _ = c.Get("k", load)

	if spy.count("expire") != 1 {
		t.Fatalf("expected one expire event, got %v", spy.ops())
	}
}

func TestObserverFuncNilIsSafe(t *testing.T) {
	var f ObserverFunc
	f.OnCacheOp(context.Background(), "get", "k", true, nil, 0)

	called := false
	g := ObserverFunc(func(ctx context.Context, op string, key any, hit bool, err error, dur time.Duration) {
		called = true
	})
	g.OnCacheOp(context.Background(), "get", "k", true, nil, 0)
	if !called {
		t.Fatalf("expected adapter to forward the call")
	}
}
