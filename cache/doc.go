// Package cache provides a generic, in-process heap cache with bounded
// size, time-based expiry, single-flight loading with refresh-ahead and
// asynchronous eviction.
//
// Design
//
//   - Index: a chained hash table split into lock stripes. Lookups are
//     lock-free; a stripe grows by publishing a freshly built table, so
//     readers never wait on a resize.
//
//   - Eviction: policy updates (inserts, accesses, removals) are queued
//     on a bounded per-cache submission queue (127 entries) and applied by
//     the cache's job on a shared worker pool. When the queue is full the
//     producer applies its update and evicts on its own goroutine. Crossing
//     MaxSizeHighBound forces the producer to drain and evict before it
//     returns.
//
//   - Policies: CLOCK-Pro (default, scan resistant), LRU and 2Q, chosen by
//     Config.Implementation or injected through Options.Policy.
//
//   - Loading: a miss installs a LOADING placeholder; the goroutine that
//     installed it starts the load and every caller waits on the same
//     completion signal. Loads run detached from callers and are cancelled
//     by Close.
//
//   - Expiry: a hierarchical timer wheel expires entries; an expired entry
//     is reloaded on its next access or swept after SweepGrace.
//
// Basic usage
//
//	c, err := cache.New[string, []byte](cache.Options[string, []byte]{
//	    Config: cache.Config{MaxSize: 10_000, ExpirySeconds: 60},
//	    Source: cache.SingleSource(func(ctx context.Context, k string) ([]byte, error) {
//	        return fetch(ctx, k)
//	    }),
//	})
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//	v, err := c.Get(ctx, "a")
//
// Refresh-ahead
//
//	c, _ := cache.New[string, string](cache.Options[string, string]{
//	    Config:            cache.Config{ExpirySeconds: 60},
//	    Source:            src,
//	    RefreshController: cache.RefreshWindow(0.2), // reload during the last 12s
//	})
//
// Exporting metrics
//
//	m := prom.New(nil, "app", "cache", nil) // implements cache.Metrics
//	c, _ := cache.New[string, []byte](cache.Options[string, []byte]{Metrics: m})
package cache
