package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/heapcache/internal/singleflight"
)

// maxLoadFanout bounds concurrent single-key loads started by one GetAll.
const maxLoadFanout = 16

// ticket is a caller's stake in a load: the signal to wait on and, when
// owned, the duty to start the load.
type ticket[K comparable, V any] struct {
	e     *entry[K, V]
	call  *singleflight.Call[V]
	owned bool
	info  LoadInfo[V]
}

// acquire resolves k to a served value (hit) or to a load ticket. The
// returned error is a cached load failure.
func (c *cache[K, V]) acquire(k K, h uint64) (v V, t ticket[K, V], hit bool, err error) {
	for {
		now := c.now()
		e := c.idx.Lookup(k, h)
		if e != nil {
			switch st := e.state(); {
			case st.servable():
				p := e.data.Load()
				if !p.expired(now) {
					c.recordHit(e, now)
					if c.refresh != nil {
						c.maybeRefresh(e, p, now)
					}
					return p.val, t, true, p.err
				}
				if t, ok := c.beginReload(e, now); ok {
					return v, t, false, nil
				}
				continue
			case st == stateExpired:
				if t, ok := c.beginReload(e, now); ok {
					return v, t, false, nil
				}
				continue
			case st == stateLoading:
				if call := e.flight.Load(); call != nil && e.state() == stateLoading {
					return v, ticket[K, V]{e: e, call: call}, false, nil
				}
				continue
			}
			// terminal: the index drops it; a new placeholder replaces it
		}

		ne := newEntry[K, V](k, h, stateLoading)
		call := singleflight.NewCall[V]()
		ne.flight.Store(call)
		if _, ok := c.idx.InsertIfAbsent(k, h, ne); !ok {
			continue
		}
		c.observeSize()
		return v, ticket[K, V]{e: ne, call: call, owned: true, info: LoadInfo[V]{Now: time.Unix(0, now)}}, false, nil
	}
}

// beginReload moves an expired entry back to LOADING. When another caller
// already did, it joins that load instead.
func (c *cache[K, V]) beginReload(e *entry[K, V], now int64) (ticket[K, V], bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch st := e.state(); {
	case st == stateLoading:
		return ticket[K, V]{e: e, call: e.flight.Load()}, true
	case st == stateRefreshing:
		// the refresh in flight doubles as the reload
		if p := e.data.Load(); p.expired(now) {
			return ticket[K, V]{e: e, call: e.flight.Load()}, true
		}
		return ticket[K, V]{}, false
	case st == stateValid && !e.data.Load().expired(now):
		return ticket[K, V]{}, false
	case st == stateValid || st == stateExpired:
	default:
		return ticket[K, V]{}, false
	}

	p := e.data.Load()
	info := LoadInfo[V]{Now: time.Unix(0, now)}
	if p != nil && p.err == nil {
		info.Previous, info.HasPrevious, info.LoadedAt = p.val, true, time.Unix(0, p.created)
	}
	call := singleflight.NewCall[V]()
	e.flight.Store(call)
	e.setState(stateLoading)
	c.cancelTimerLocked(e)
	return ticket[K, V]{e: e, call: call, owned: true, info: info}, true
}

// loadContext returns the context a load runs under: detached from any
// caller, cancelled by Close and bounded by LoadTimeout.
func (c *cache[K, V]) loadContext() (context.Context, context.CancelFunc) {
	if c.cfg.LoadTimeout > 0 {
		return context.WithTimeout(c.lifetime, c.cfg.LoadTimeout)
	}
	return context.WithCancel(c.lifetime)
}

// startLoad runs the owned ticket's load in the background.
func (c *cache[K, V]) startLoad(t ticket[K, V]) {
	go func() {
		ctx, cancel := c.loadContext()
		defer cancel()
		start := time.Now()
		v, err := c.src.loadOne(ctx, t.e.key, t.info)
		c.completeLoad(t.e, t.call, v, err, time.Since(start))
	}()
}

// startBulkLoad loads all owned tickets with one source call.
func (c *cache[K, V]) startBulkLoad(ts []ticket[K, V]) {
	if len(ts) == 0 {
		return
	}
	go func() {
		ctx, cancel := c.loadContext()
		defer cancel()
		keys := make([]K, len(ts))
		for i, t := range ts {
			keys[i] = t.e.key
		}
		start := time.Now()
		vals, errs := c.src.loadMany(ctx, keys)
		d := time.Since(start) / time.Duration(len(ts))
		for i, t := range ts {
			c.completeLoad(t.e, t.call, vals[i], errs[i], d)
		}
	}()
}

// completeLoad publishes a load result: VALID on success; on failure
// REMOVED, or VALID holding the error when negative caching is on. If the
// entry was removed or replaced meanwhile it stays gone; waiters still
// receive the result.
func (c *cache[K, V]) completeLoad(e *entry[K, V], call *singleflight.Call[V], v V, err error, d time.Duration) {
	c.stats.loads.Add(1)
	c.stats.loadNanos.Add(int64(d))
	c.metrics.Load(d, err)
	if err != nil {
		c.stats.loadFailures.Add(1)
		err = wrapLoadErr(err)
	}

	now := c.now()
	e.mu.Lock()
	if e.state() != stateLoading || e.flight.Load() != call {
		e.mu.Unlock()
		call.Complete(v, err)
		return
	}
	e.access.Store(now)
	switch {
	case err == nil:
		p := c.newPayload(v, now)
		e.data.Store(p)
		e.setState(stateValid)
		c.scheduleLocked(e, phaseExpire, p.expires)
	case c.cfg.NegativeTTL > 0:
		var zero V
		e.data.Store(&payload[V]{val: zero, err: err, created: now, expires: now + int64(c.cfg.NegativeTTL)})
		e.setState(stateValid)
		c.scheduleLocked(e, phaseExpire, now+int64(c.cfg.NegativeTTL))
	default:
		e.setState(stateRemoved)
		e.mu.Unlock()
		c.idx.Remove(e.key, e.hash, e)
		call.Complete(v, err)
		c.ev.offer(e)
		return
	}
	e.mu.Unlock()

	c.admit(e)
	call.Complete(v, err)
}

func wrapLoadErr(err error) error { return fmt.Errorf("%w: %w", ErrLoadFailed, err) }

// await waits for a ticket's load on behalf of op.
func (c *cache[K, V]) await(ctx context.Context, op string, t ticket[K, V]) (V, error) {
	v, err := t.call.Wait(ctx, c.closing)
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, singleflight.ErrAborted):
		err = ErrClosed
	case errors.Is(err, context.DeadlineExceeded):
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return v, keyErr(op, t.e.key, err)
}

// Get returns the value for k, loading it on a miss. Concurrent misses for
// one key share a single load.
func (c *cache[K, V]) Get(ctx context.Context, k K) (V, error) {
	var zero V
	if c.closed.Load() {
		return zero, keyErr("get", k, ErrClosed)
	}
	v, t, hit, err := c.acquire(k, c.hash(k))
	if hit {
		return v, keyErr("get", k, err)
	}
	c.recordMiss()
	if t.owned {
		if c.src == nil {
			c.abandon(t, ErrNoSource)
			return zero, keyErr("get", k, ErrNoSource)
		}
		c.startLoad(t)
	}
	ctx, cancel := c.opContext(ctx)
	defer cancel()
	return c.await(ctx, "get", t)
}

// GetAll returns the values for keys. Keys that fail to load are left out
// and reported in the joined error.
func (c *cache[K, V]) GetAll(ctx context.Context, keys []K) (map[K]V, error) {
	if c.closed.Load() {
		return nil, &KeyError{Op: "getAll", Key: keys, Err: ErrClosed}
	}
	out := make(map[K]V, len(keys))
	var (
		waits []ticket[K, V]
		owned []ticket[K, V]
		errs  []error
	)
	seen := make(map[K]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		v, t, hit, err := c.acquire(k, c.hash(k))
		if hit {
			if err != nil {
				errs = append(errs, keyErr("getAll", k, err))
			} else {
				out[k] = v
			}
			continue
		}
		c.recordMiss()
		if t.owned {
			if c.src == nil {
				c.abandon(t, ErrNoSource)
				errs = append(errs, keyErr("getAll", k, ErrNoSource))
				continue
			}
			owned = append(owned, t)
		}
		waits = append(waits, t)
	}

	if c.src != nil && c.src.Bulk() {
		c.startBulkLoad(owned)
	} else if len(owned) > 0 {
		go func() {
			var g errgroup.Group
			g.SetLimit(maxLoadFanout)
			for _, t := range owned {
				g.Go(func() error {
					ctx, cancel := c.loadContext()
					defer cancel()
					start := time.Now()
					v, err := c.src.loadOne(ctx, t.e.key, t.info)
					c.completeLoad(t.e, t.call, v, err, time.Since(start))
					return nil
				})
			}
			_ = g.Wait()
		}()
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()
	for _, t := range waits {
		v, err := c.await(ctx, "getAll", t)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return out, err
			}
			errs = append(errs, err)
			continue
		}
		out[t.e.key] = v
	}
	return out, errors.Join(errs...)
}

// abandon resolves an owned ticket that will never load.
func (c *cache[K, V]) abandon(t ticket[K, V], err error) {
	var zero V
	t.e.mu.Lock()
	owner := t.e.state() == stateLoading && t.e.flight.Load() == t.call
	if owner {
		t.e.setState(stateRemoved)
	}
	t.e.mu.Unlock()
	if owner {
		c.idx.Remove(t.e.key, t.e.hash, t.e)
		c.ev.offer(t.e)
	}
	t.call.Complete(zero, err)
}

// opContext applies OperationTimeout to a caller's context.
func (c *cache[K, V]) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.cfg.OperationTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.OperationTimeout)
	}
	return ctx, func() {}
}
