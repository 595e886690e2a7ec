package cache

import "context"

// Cache is an in-process key/value cache with bounded size, expiry and
// single-flight loading. All methods are safe for concurrent use by
// multiple goroutines.
//
// After Close every method except Close, Len, Name and Stats fails with
// an error matching ErrClosed. Errors carry the key they relate to
// (*KeyError).
type Cache[K comparable, V any] interface {
	// Get returns the value for k. On a miss, or when the entry expired,
	// the Source loads it; concurrent callers share that load. The wait is
	// bounded by ctx and OperationTimeout; a timed out caller gets
	// ErrTimeout while the load continues.
	Get(ctx context.Context, k K) (V, error)

	// GetAll is Get for many keys. A bulk source is called once for all
	// keys this call has to load. Keys that failed are absent from the map
	// and reported in the joined error.
	GetAll(ctx context.Context, keys []K) (map[K]V, error)

	// Put installs k→v, replacing any value or in-flight load.
	Put(k K, v V) error

	// Peek returns the cached value for k without loading. It reports
	// false for missing, loading and expired entries.
	Peek(k K) (V, bool, error)

	// Remove deletes k and reports whether an entry was removed.
	Remove(k K) (bool, error)

	// ContainsKey reports whether an unexpired value is cached for k.
	ContainsKey(k K) (bool, error)

	// Clear removes all entries and resets the statistics except lifetime
	// totals.
	Clear() error

	// Close releases the cache. Waiters on in-flight loads return
	// ErrClosed. Close is idempotent.
	Close() error

	// Len returns the number of entries, loads in flight included.
	Len() int

	// Name returns the cache name.
	Name() string

	// Stats returns a snapshot of the counters.
	Stats() Stats

	// Range calls fn for each cached value in a snapshot of the cache
	// until fn returns false.
	Range(fn func(k K, v V) bool) error
}
