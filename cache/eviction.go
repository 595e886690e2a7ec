package cache

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/heapcache/internal/logattr"
	"github.com/IvanBrykalov/heapcache/policy"
	"github.com/IvanBrykalov/heapcache/worker"
)

// queuedEviction feeds policy updates through a bounded queue to the
// cache's job on the worker pool. Policy state is only touched under mu,
// which in steady state is only taken by the owning worker.
type queuedEviction[K comparable, V any] struct {
	c *cache[K, V]

	mu  sync.Mutex
	pol policy.Evictor[K]

	queue    chan *entry[K, V]
	pending  atomic.Int64
	maxPolls int

	reg *worker.Registration
}

func newQueuedEviction[K comparable, V any](c *cache[K, V], pol policy.Evictor[K], queueCap, maxPolls int) *queuedEviction[K, V] {
	return &queuedEviction[K, V]{
		c:        c,
		pol:      pol,
		queue:    make(chan *entry[K, V], queueCap),
		maxPolls: maxPolls,
	}
}

// submitWithoutEviction tries to hand e to the worker. It returns true when
// the queue rejected e and the caller has to evict synchronously.
func (q *queuedEviction[K, V]) submitWithoutEviction(e *entry[K, V]) bool {
	if q.reg == nil || q.reg.Dropped() {
		return true
	}
	select {
	case q.queue <- e:
		if q.pending.Add(1) == 1 {
			q.reg.Wake()
		}
		return false
	default:
		return true
	}
}

// victim is an entry evicted under mu, notified after mu is released.
type victim[K comparable, V any] struct {
	e      *entry[K, V]
	reason EvictReason
}

// submit applies e and evicts down to MaxSize on the calling goroutine.
func (q *queuedEviction[K, V]) submit(e *entry[K, V]) {
	q.notify(q.locked(func() []victim[K, V] {
		q.apply(e)
		return q.evictLocked(q.c.cfg.MaxSize, EvictPolicy)
	}))
}

// locked runs fn under mu and returns its victims for notify.
func (q *queuedEviction[K, V]) locked(fn func() []victim[K, V]) []victim[K, V] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return fn()
}

// offer submits e, falling back to a synchronous submit when the queue is
// full.
func (q *queuedEviction[K, V]) offer(e *entry[K, V]) {
	if q.submitWithoutEviction(e) {
		q.submit(e)
	}
}

// Run implements worker.Job: poll up to maxPolls entries, apply them and
// evict while over capacity. It reports whether anything was polled.
func (q *queuedEviction[K, V]) Run() bool {
	n := 0
	q.notify(q.locked(func() []victim[K, V] {
		for n < q.maxPolls {
			e, ok := q.poll()
			if !ok {
				break
			}
			q.apply(e)
			n++
		}
		return q.evictLocked(q.c.cfg.MaxSize, EvictPolicy)
	}))
	return n > 0
}

// OnDropped implements worker.DropNotifier. Producers evict synchronously
// from now on.
func (q *queuedEviction[K, V]) OnDropped(err error) {
	q.c.integrityViolation("eviction job dropped", err)
}

// drain empties the queue, registering entries without evicting.
func (q *queuedEviction[K, V]) drain() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drainLocked() > 0
}

func (q *queuedEviction[K, V]) drainLocked() int {
	n := 0
	for {
		e, ok := q.poll()
		if !ok {
			return n
		}
		q.apply(e)
		n++
	}
}

// runLocked runs fn with exclusive access to the policy.
func (q *queuedEviction[K, V]) runLocked(fn func(pol policy.Evictor[K])) {
	q.mu.Lock()
	defer q.mu.Unlock()
	fn(q.pol)
}

// forceEvict brings the cache back to MaxSize after it crossed the high
// bound.
func (q *queuedEviction[K, V]) forceEvict() {
	q.notify(q.locked(func() []victim[K, V] {
		q.drainLocked()
		return q.evictLocked(q.c.cfg.MaxSize, EvictCapacity)
	}))
}

func (q *queuedEviction[K, V]) poll() (*entry[K, V], bool) {
	select {
	case e := <-q.queue:
		q.pending.Add(-1)
		return e, true
	default:
		return nil, false
	}
}

// apply registers one submission with the policy. A panic is contained to
// the entry: it is logged, counted and the entry is dropped from the cache.
func (q *queuedEviction[K, V]) apply(e *entry[K, V]) {
	defer func() {
		if p := recover(); p != nil {
			q.c.integrityViolation("policy update panicked", fmt.Errorf("%v", p), logattr.Key(e.key))
			q.c.unlink(e, stateRemoved)
			q.forget(e)
		}
	}()
	switch {
	case e.state().terminal():
		q.pol.OnRemove(e)
	case !e.meta.Tracked():
		q.pol.OnInsert(e)
	default:
		q.pol.OnAccess(e)
	}
}

// forget calls OnRemove, swallowing a second panic.
func (q *queuedEviction[K, V]) forget(e *entry[K, V]) {
	defer func() { _ = recover() }()
	q.pol.OnRemove(e)
}

// evictLocked removes victims until the policy tracks at most limit
// entries and returns the ones it unlinked. Caller holds mu.
func (q *queuedEviction[K, V]) evictLocked(limit int, reason EvictReason) []victim[K, V] {
	var out []victim[K, V]
	for budget := q.pol.Len(); q.pol.Len() > limit && budget >= 0; budget-- {
		v := q.pol.SelectVictim()
		if v == nil {
			return out
		}
		e, ok := v.(*entry[K, V])
		if !ok {
			q.c.integrityViolation("policy returned a foreign node", nil, slog.Any("node", v))
			q.pol.OnRemove(v)
			continue
		}
		evicted, unlinked := q.c.evict(e)
		if unlinked {
			out = append(out, victim[K, V]{e: e, reason: reason})
		}
		if evicted || e.state().terminal() {
			q.pol.OnRemove(e)
		}
	}
	return out
}

// notify reports evictions. Called without mu so OnEvict may re-enter the
// cache.
func (q *queuedEviction[K, V]) notify(out []victim[K, V]) {
	for _, v := range out {
		q.c.notifyEvict(v.e, v.reason)
	}
}

// len returns the number of entries the policy tracks.
func (q *queuedEviction[K, V]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pol.Len()
}
