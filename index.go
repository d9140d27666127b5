package loadcache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

type entry[V any] struct {
	val      V
	storedAt time.Time
}

// readyIndex holds settled values. Implementations are not safe for concurrent
// use; the cache mutex serializes all access.
type readyIndex[K comparable, V any] interface {
	// get returns the entry for key and records a use for recency-aware
	// implementations.
	get(key K) (entry[V], bool)
	// peek returns the entry without affecting recency.
	peek(key K) (entry[V], bool)
	// add stores the entry and returns the key evicted to make room, if any.
	add(key K, e entry[V]) (K, bool)
	remove(key K) bool
	removeFunc(pred func(K) bool) int
	clear()
	len() int
}

// mapIndex is the unbounded default.
type mapIndex[K comparable, V any] struct {
	items map[K]entry[V]
}

func newMapIndex[K comparable, V any]() *mapIndex[K, V] {
	return &mapIndex[K, V]{items: make(map[K]entry[V])}
}

func (m *mapIndex[K, V]) get(key K) (entry[V], bool)  { e, ok := m.items[key]; return e, ok }
func (m *mapIndex[K, V]) peek(key K) (entry[V], bool) { return m.get(key) }

func (m *mapIndex[K, V]) add(key K, e entry[V]) (K, bool) {
	var zero K
	m.items[key] = e
	return zero, false
}

func (m *mapIndex[K, V]) remove(key K) bool {
	_, ok := m.items[key]
	delete(m.items, key)
	return ok
}

func (m *mapIndex[K, V]) removeFunc(pred func(K) bool) int {
	removed := 0
	for key := range m.items {
		if pred(key) {
			delete(m.items, key)
			removed++
		}
	}
	return removed
}

func (m *mapIndex[K, V]) clear() { m.items = make(map[K]entry[V]) }
func (m *mapIndex[K, V]) len() int { return len(m.items) }

// lruIndex bounds the number of settled entries, evicting the least recently
// used one on overflow.
type lruIndex[K comparable, V any] struct {
	lru     *simplelru.LRU[K, entry[V]]
	evicted *K
}

func newLRUIndex[K comparable, V any](size int) *lruIndex[K, V] {
	idx := &lruIndex[K, V]{}
	// simplelru only returns an error for size <= 0, which the config guards.
	idx.lru, _ = simplelru.NewLRU(size, func(key K, _ entry[V]) {
		idx.evicted = &key
	})
	return idx
}

func (l *lruIndex[K, V]) get(key K) (entry[V], bool)  { return l.lru.Get(key) }
func (l *lruIndex[K, V]) peek(key K) (entry[V], bool) { return l.lru.Peek(key) }

func (l *lruIndex[K, V]) add(key K, e entry[V]) (K, bool) {
	l.evicted = nil
	l.lru.Add(key, e)
	if l.evicted == nil {
		var zero K
		return zero, false
	}
	out := *l.evicted
	l.evicted = nil
	return out, true
}

func (l *lruIndex[K, V]) remove(key K) bool {
	// Remove triggers the evict callback; clear the capture so a removal is
	// not mistaken for an overflow eviction.
	ok := l.lru.Remove(key)
	l.evicted = nil
	return ok
}

func (l *lruIndex[K, V]) removeFunc(pred func(K) bool) int {
	removed := 0
	for _, key := range l.lru.Keys() {
		if pred(key) {
			l.lru.Remove(key)
			removed++
		}
	}
	l.evicted = nil
	return removed
}

func (l *lruIndex[K, V]) clear() {
	l.lru.Purge()
	l.evicted = nil
}

func (l *lruIndex[K, V]) len() int { return l.lru.Len() }
