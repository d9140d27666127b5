package loadcache

import "context"

// flight is an in-flight or settled loader call.
//
// val and err are written once before done is closed and are only read after
// done is closed. waiters and forgotten are guarded by the owning cache mutex.
type flight[V any] struct {
	done chan struct{}
	val  V
	err  error

	// waiters counts callers currently blocked on done. It is used to decide
	// whether an abandoned load should be cancelled.
	waiters int

	// forgotten is set when Invalidate runs while the load is still in flight;
	// the result is delivered to waiters but not kept.
	forgotten bool

	cancel context.CancelFunc
}

func newFlight[V any](cancel context.CancelFunc) *flight[V] {
	return &flight[V]{
		done:    make(chan struct{}),
		waiters: 1,
		cancel:  cancel,
	}
}

// settled reports whether the loader has finished without blocking.
func (f *flight[V]) settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
