package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrLoadFailed wraps every error produced by a Source.
	ErrLoadFailed = errors.New("cache: load failed")
	// ErrTimeout is returned when a caller gave up waiting for a load.
	// The load itself keeps running.
	ErrTimeout = errors.New("cache: timeout")
	// ErrClosed is returned by every operation on a closed cache.
	ErrClosed = errors.New("cache: closed")
	// ErrNoSource is returned by Get on a miss when no Source is configured.
	ErrNoSource = errors.New("cache: no source configured")
	// ErrIncompleteLoad is the load error for a key a bulk source left out
	// of its result.
	ErrIncompleteLoad = errors.New("cache: source returned no value for key")
)

// KeyErrors is returned by a bulk source next to a partial result to give
// the cause for keys it could not load. Those keys fail with
// ErrIncompleteLoad wrapping their cause.
type KeyErrors[K comparable] map[K]error

func (e KeyErrors[K]) Error() string {
	return fmt.Sprintf("cache: %d keys failed to load", len(e))
}

// KeyError is the error returned to callers; it carries the operation and
// the key it failed for. Use errors.Is with the sentinels above.
type KeyError struct {
	Op  string
	Key any
	Err error
}

func (e *KeyError) Error() string { return fmt.Sprintf("cache: %s %v: %v", e.Op, e.Key, e.Err) }

func (e *KeyError) Unwrap() error { return e.Err }

func keyErr[K comparable](op string, k K, err error) error {
	if err == nil {
		return nil
	}
	return &KeyError{Op: op, Key: k, Err: err}
}

// ConfigError reports an invalid configuration at construction time.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("cache: invalid config %s: %s", e.Field, e.Reason)
}
