package loadcache

import (
	"errors"
	"fmt"
)

var (
	// ErrNilLoader is returned when a Get variant is called without a loader.
	ErrNilLoader = errors.New("loadcache: loader must not be nil")

	// ErrInvalidKey is returned by store-backed helpers when the key is unusable,
	// e.g. an empty string.
	ErrInvalidKey = errors.New("loadcache: invalid key")
)

// LoadError wraps a loader failure with the key that triggered it.
// The underlying error is preserved unchanged; use errors.Is/errors.As to
// inspect it.
type LoadError struct {
	Key any
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loadcache: load %v: %v", e.Key, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
