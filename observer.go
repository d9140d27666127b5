package loadcache

import (
	"context"
	"time"
)

// Observer receives events for cache operations.
// It is called after each operation completes and must be safe for concurrent use.
//
// Emitted ops: "get" (hit reports a settled entry), "coalesced" (a caller joined
// an in-flight load), "load" (hit reports success, dur covers the loader call),
// "invalidate", "clear", "evict" and "expire".
type Observer interface {
	OnCacheOp(ctx context.Context, op string, key any, hit bool, err error, dur time.Duration)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, op string, key any, hit bool, err error, dur time.Duration)

// OnCacheOp implements Observer.
func (f ObserverFunc) OnCacheOp(ctx context.Context, op string, key any, hit bool, err error, dur time.Duration) {
	if f == nil {
		return
	}
	f(ctx, op, key, hit, err, dur)
}
