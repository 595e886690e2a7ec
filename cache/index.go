package cache

import (
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/heapcache/internal/util"
)

// maxLoad is the average chain length that triggers a stripe resize.
const maxLoad = 2

// hnode is a bucket chain link. Links are immutable once published: writers
// splice by copying the prefix of a chain, so lock-free readers always walk
// a consistent chain.
type hnode[K comparable, V any] struct {
	hash uint64
	key  K
	e    *entry[K, V]
	next *hnode[K, V]
}

type table[K comparable, V any] struct {
	buckets []atomic.Pointer[hnode[K, V]]
	mask    uint64
}

func newTable[K comparable, V any](size int) *table[K, V] {
	n := util.NextPow2(uint64(size))
	return &table[K, V]{buckets: make([]atomic.Pointer[hnode[K, V]], n), mask: n - 1}
}

func (t *table[K, V]) bucket(h uint64) *atomic.Pointer[hnode[K, V]] {
	return &t.buckets[h&t.mask]
}

type stripe[K comparable, V any] struct {
	mu  sync.Mutex
	tbl atomic.Pointer[table[K, V]]
	n   int // guarded by mu
	_   util.CacheLinePad
}

// index maps keys to live entries. Lookups never lock; writers lock one
// stripe. A stripe grows by building a new table out of fresh links and
// publishing it with one atomic store, so readers are never blocked.
type index[K comparable, V any] struct {
	stripes    []stripe[K, V]
	count      util.PaddedCounter
	collisions util.PaddedCounter
}

func newIndex[K comparable, V any](capacity int) *index[K, V] {
	ns := util.StripeCount(capacity)
	ix := &index[K, V]{stripes: make([]stripe[K, V], ns)}
	per := capacity/ns + 1
	for i := range ix.stripes {
		ix.stripes[i].tbl.Store(newTable[K, V](per))
	}
	return ix
}

func (ix *index[K, V]) stripe(h uint64) *stripe[K, V] {
	return &ix.stripes[util.StripeIndex(h, len(ix.stripes))]
}

// Lookup returns the entry for k in whatever state it is, or nil.
func (ix *index[K, V]) Lookup(k K, h uint64) *entry[K, V] {
	t := ix.stripe(h).tbl.Load()
	for n := t.bucket(h).Load(); n != nil; n = n.next {
		if n.hash == h && n.key == k {
			return n.e
		}
	}
	return nil
}

// InsertIfAbsent installs e unless a live entry for k exists, in which case
// that entry is returned with false. A terminal entry still linked (its
// owner is about to unlink it) is replaced.
func (ix *index[K, V]) InsertIfAbsent(k K, h uint64, e *entry[K, V]) (*entry[K, V], bool) {
	s := ix.stripe(h)
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tbl.Load()
	b := t.bucket(h)
	head := b.Load()
	for n := head; n != nil; n = n.next {
		if n.hash == h && n.key == k {
			if !n.e.state().terminal() {
				return n.e, false
			}
			b.Store(splice(head, n, &hnode[K, V]{hash: h, key: k, e: e}))
			return e, true
		}
	}
	if head != nil {
		ix.collisions.Add(1)
	}
	b.Store(&hnode[K, V]{hash: h, key: k, e: e, next: head})
	s.n++
	ix.count.Add(1)
	if s.n > maxLoad*len(t.buckets) {
		s.grow(t)
	}
	return e, true
}

// Replace swaps old for e if old is still the entry for k.
func (ix *index[K, V]) Replace(k K, h uint64, old, e *entry[K, V]) bool {
	s := ix.stripe(h)
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.tbl.Load().bucket(h)
	head := b.Load()
	for n := head; n != nil; n = n.next {
		if n.hash == h && n.key == k {
			if n.e != old {
				return false
			}
			b.Store(splice(head, n, &hnode[K, V]{hash: h, key: k, e: e}))
			return true
		}
	}
	return false
}

// Remove unlinks e if it is still the entry for k. A different entry under
// the same key is left alone.
func (ix *index[K, V]) Remove(k K, h uint64, e *entry[K, V]) bool {
	s := ix.stripe(h)
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.tbl.Load().bucket(h)
	head := b.Load()
	for n := head; n != nil; n = n.next {
		if n.hash == h && n.key == k {
			if n.e != e {
				return false
			}
			b.Store(splice(head, n, nil))
			s.n--
			ix.count.Add(-1)
			return true
		}
	}
	return false
}

// Len returns the number of linked entries.
func (ix *index[K, V]) Len() int { return int(ix.count.Load()) }

// Collisions returns how many inserts landed in a non-empty bucket.
func (ix *index[K, V]) Collisions() int64 { return ix.collisions.Load() }

// Snapshot returns the entries linked when each stripe was visited.
func (ix *index[K, V]) Snapshot() []*entry[K, V] {
	out := make([]*entry[K, V], 0, ix.Len())
	for i := range ix.stripes {
		t := ix.stripes[i].tbl.Load()
		for j := range t.buckets {
			for n := t.buckets[j].Load(); n != nil; n = n.next {
				out = append(out, n.e)
			}
		}
	}
	return out
}

// grow doubles the stripe's table. Caller holds s.mu.
func (s *stripe[K, V]) grow(old *table[K, V]) {
	nt := newTable[K, V](2 * len(old.buckets))
	for i := range old.buckets {
		for n := old.buckets[i].Load(); n != nil; n = n.next {
			b := nt.bucket(n.hash)
			b.Store(&hnode[K, V]{hash: n.hash, key: n.key, e: n.e, next: b.Load()})
		}
	}
	s.tbl.Store(nt)
}

// splice returns a chain equal to head with target replaced by repl (or
// dropped when repl is nil). Links before target are copied; links after
// it are shared.
func splice[K comparable, V any](head, target, repl *hnode[K, V]) *hnode[K, V] {
	tail := target.next
	if repl != nil {
		repl.next = tail
		tail = repl
	}
	var prefix []*hnode[K, V]
	for n := head; n != target; n = n.next {
		prefix = append(prefix, n)
	}
	for i := len(prefix) - 1; i >= 0; i-- {
		p := prefix[i]
		tail = &hnode[K, V]{hash: p.hash, key: p.key, e: p.e, next: tail}
	}
	return tail
}
