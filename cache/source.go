package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// LoadInfo describes the entry being (re)loaded.
type LoadInfo[V any] struct {
	// Previous is the value being replaced; valid when HasPrevious is set.
	Previous    V
	HasPrevious bool
	// LoadedAt is when Previous was loaded.
	LoadedAt time.Time
	// Now is the cache clock at the start of the load.
	Now time.Time
}

type sourceKind uint8

const (
	sourceSingle sourceKind = iota + 1
	sourceMeta
	sourceBulk
)

// Source is the loader of a cache. It is one of three shapes, built with
// SingleSource, MetaSource or BulkSource; the cache dispatches on the
// shape once at construction.
type Source[K comparable, V any] struct {
	kind   sourceKind
	single func(context.Context, K) (V, error)
	meta   func(context.Context, K, LoadInfo[V]) (V, error)
	bulk   func(context.Context, []K) (map[K]V, error)
}

// SingleSource loads one key at a time.
func SingleSource[K comparable, V any](fn func(ctx context.Context, k K) (V, error)) *Source[K, V] {
	return &Source[K, V]{kind: sourceSingle, single: fn}
}

// MetaSource loads one key and sees the previous value on reloads and
// refreshes.
func MetaSource[K comparable, V any](fn func(ctx context.Context, k K, info LoadInfo[V]) (V, error)) *Source[K, V] {
	return &Source[K, V]{kind: sourceMeta, meta: fn}
}

// BulkSource loads many keys in one call. Keys missing from the result
// fail with ErrIncompleteLoad. To report why individual keys failed,
// return the partial result with a KeyErrors error.
func BulkSource[K comparable, V any](fn func(ctx context.Context, keys []K) (map[K]V, error)) *Source[K, V] {
	return &Source[K, V]{kind: sourceBulk, bulk: fn}
}

// Bulk reports whether the source loads keys in batches.
func (s *Source[K, V]) Bulk() bool { return s.kind == sourceBulk }

func (s *Source[K, V]) valid() bool {
	switch s.kind {
	case sourceSingle:
		return s.single != nil
	case sourceMeta:
		return s.meta != nil
	case sourceBulk:
		return s.bulk != nil
	}
	return false
}

// loadOne loads a single key. Panics in user code become errors.
func (s *Source[K, V]) loadOne(ctx context.Context, k K, info LoadInfo[V]) (v V, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("source panicked: %v", p)
		}
	}()
	switch s.kind {
	case sourceSingle:
		return s.single(ctx, k)
	case sourceMeta:
		return s.meta(ctx, k, info)
	default:
		m, err := s.bulk(ctx, []K{k})
		perKey, err := splitKeyErrors[K](err)
		if err != nil {
			return v, err
		}
		return bulkValue(m, perKey, k)
	}
}

// splitKeyErrors separates per-key failures from an error that fails the
// whole batch.
func splitKeyErrors[K comparable](err error) (KeyErrors[K], error) {
	var perKey KeyErrors[K]
	if errors.As(err, &perKey) {
		return perKey, nil
	}
	return nil, err
}

func bulkValue[K comparable, V any](m map[K]V, perKey KeyErrors[K], k K) (V, error) {
	if v, ok := m[k]; ok {
		return v, nil
	}
	var zero V
	if cause, ok := perKey[k]; ok && cause != nil {
		return zero, fmt.Errorf("%w: %w", ErrIncompleteLoad, cause)
	}
	return zero, ErrIncompleteLoad
}

// loadMany loads keys and returns one result per key, in order.
func (s *Source[K, V]) loadMany(ctx context.Context, keys []K) (vals []V, errs []error) {
	vals = make([]V, len(keys))
	errs = make([]error, len(keys))
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("source panicked: %v", p)
			for i := range errs {
				errs[i] = err
			}
		}
	}()
	m, err := s.bulk(ctx, keys)
	perKey, err := splitKeyErrors[K](err)
	for i, k := range keys {
		if err != nil {
			errs[i] = err
			continue
		}
		vals[i], errs[i] = bulkValue(m, perKey, k)
	}
	return vals, errs
}
