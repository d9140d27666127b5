// Package loadcachetest provides reusable contract tests for the memoizing
// cache and for Store implementations.
//
// RunCacheContract is the behavioral suite: exactly-once loading under
// concurrent misses, failure fan-out without poisoning, and invalidate/clear
// semantics. RunStoreContract is backend-agnostic and can be pointed at any
// Store, in-process or networked:
//
//	func TestRedisStoreContract(t *testing.T) {
//		client := newTestRedisClient(t)
//		store := loadcache.NewRedisStore(context.Background(), client,
//			loadcache.WithPrefix("test"))
//
//		loadcachetest.RunStoreContract(t, store, loadcachetest.Options{
//			CaseName: t.Name(),
//			TTL:      time.Second,
//			TTLWait:  1500 * time.Millisecond,
//		})
//	}
package loadcachetest
