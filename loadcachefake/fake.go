// Package loadcachefake provides a deterministic fake lookup source with
// per-key call counting and assertion helpers, so tests can verify how often a
// cache actually reached upstream.
package loadcachefake

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// Source is a fake upstream. Configure values or failures per key, then hand
// its Load method to the cache under test as the loader.
type Source[K comparable, V any] struct {
	mu      sync.Mutex
	values  map[K]V
	errs    map[K]error
	counts  map[K]int
	latency time.Duration
}

// New creates an empty fake source.
func New[K comparable, V any]() *Source[K, V] {
	return &Source[K, V]{
		values: make(map[K]V),
		errs:   make(map[K]error),
		counts: make(map[K]int),
	}
}

// SetValue makes key resolve to value.
func (s *Source[K, V]) SetValue(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	delete(s.errs, key)
}

// SetError makes key fail with err.
func (s *Source[K, V]) SetError(key K, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[key] = err
	delete(s.values, key)
}

// SetLatency delays every Load, useful to widen coalescing windows in tests.
func (s *Source[K, V]) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Load resolves key per the configured values and errors, counting the call.
// Unconfigured keys fail.
func (s *Source[K, V]) Load(ctx context.Context, key K) (V, error) {
	s.mu.Lock()
	s.counts[key]++
	latency := s.latency
	err, failed := s.errs[key]
	value, ok := s.values[key]
	s.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}
	if failed {
		var zero V
		return zero, err
	}
	if !ok {
		var zero V
		return zero, fmt.Errorf("loadcachefake: no value configured for key %v", key)
	}
	return value, nil
}

// Count returns how many times key was loaded.
func (s *Source[K, V]) Count(key K) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key]
}

// Total returns load calls across all keys.
func (s *Source[K, V]) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := 0
	for _, n := range s.counts {
		sum += n
	}
	return sum
}

// Reset clears recorded counts but keeps configured values.
func (s *Source[K, V]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[K]int)
}

// AssertLoaded verifies key was loaded the expected number of times.
func (s *Source[K, V]) AssertLoaded(t *testing.T, key K, times int) {
	t.Helper()
	if got := s.Count(key); got != times {
		t.Fatalf("expected key %v loaded %d times, got %d", key, times, got)
	}
}

// AssertNotLoaded ensures key never reached the source.
func (s *Source[K, V]) AssertNotLoaded(t *testing.T, key K) {
	t.Helper()
	if got := s.Count(key); got != 0 {
		t.Fatalf("expected key %v not loaded, got %d", key, got)
	}
}

// AssertTotal ensures the total load count matches times.
func (s *Source[K, V]) AssertTotal(t *testing.T, times int) {
	t.Helper()
	if got := s.Total(); got != times {
		t.Fatalf("expected %d total loads, got %d", times, got)
	}
}
