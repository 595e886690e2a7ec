// Package twoq implements the 2Q eviction policy.
package twoq

import (
	"github.com/IvanBrykalov/heapcache/internal/arena"
	"github.com/IvanBrykalov/heapcache/policy"
)

// twoQ keeps two resident queues:
//   - A1in (young): first-time admissions, FIFO.
//   - Am (mature): entries that were hit while in A1in, LRU.
//
// A1out holds hashes of entries evicted from A1in. A key found there on
// re-admission skips A1in and goes straight to Am.
//
// Both queues share one arena; the list front is the eviction end.
type twoQ[K comparable] struct {
	a     *arena.Arena[policy.Node[K]]
	in    *arena.List[policy.Node[K]]
	am    *arena.List[policy.Node[K]]
	out   *policy.Ghosts
	capIn int
	seq   uint64
	// victim is the slot last returned by SelectVictim; only its removal
	// is an eviction.
	victim arena.Handle
}

type twoQPolicy[K comparable] struct {
	inFrac    float64
	ghostFrac float64
}

// New returns a 2Q factory with A1in at 25% and A1out at 50% of maxSize.
func New[K comparable]() policy.Policy[K] {
	return twoQPolicy[K]{inFrac: 0.25, ghostFrac: 0.5}
}

// NewWithRatios lets callers size A1in and A1out as fractions of maxSize.
func NewWithRatios[K comparable](inFrac, ghostFrac float64) policy.Policy[K] {
	return twoQPolicy[K]{inFrac: inFrac, ghostFrac: ghostFrac}
}

// New implements policy.Policy.
func (p twoQPolicy[K]) New(maxSize int) policy.Evictor[K] {
	capIn := int(float64(maxSize) * p.inFrac)
	if capIn < 1 {
		capIn = 1
	}
	capGhost := int(float64(maxSize) * p.ghostFrac)
	a := arena.New[policy.Node[K]](maxSize)
	return &twoQ[K]{
		a:     a,
		in:    a.NewList(),
		am:    a.NewList(),
		out:   policy.NewGhosts(capGhost),
		capIn: capIn,
	}
}

// OnInsert admits into A1in, or into Am when the key is a recent ghost.
func (q *twoQ[K]) OnInsert(n policy.Node[K]) {
	m := n.Meta()
	if m.Tracked() && q.a.Valid(m.Slot) {
		q.OnAccess(n)
		return
	}
	q.seq++
	m.Seq = q.seq
	m.Slot = q.a.Alloc(n)
	if q.out.Take(n.Hash()) {
		q.am.PushBack(m.Slot)
		return
	}
	q.in.PushBack(m.Slot)
}

// OnAccess promotes A1in entries to Am and refreshes Am entries.
func (q *twoQ[K]) OnAccess(n policy.Node[K]) {
	h := n.Meta().Slot
	switch {
	case q.in.Contains(h):
		q.am.PushBack(h)
	case q.am.Contains(h):
		q.am.MoveToBack(h)
	}
}

// OnRemove forgets the entry. A victim evicted from A1in is remembered in
// A1out; explicit removals leave no ghost.
func (q *twoQ[K]) OnRemove(n policy.Node[K]) {
	m := n.Meta()
	if !m.Tracked() {
		return
	}
	if m.Slot == q.victim {
		if q.in.Contains(m.Slot) {
			q.out.Add(n.Hash())
		}
		q.victim = arena.Handle{}
	}
	q.a.Free(m.Slot)
	m.Reset()
}

// SelectVictim takes from A1in while it is over its share, otherwise from
// the LRU end of Am. Pinned entries are skipped.
func (q *twoQ[K]) SelectVictim() policy.Node[K] {
	q.victim = arena.Handle{}
	first, second := q.am, q.in
	if q.in.Len() > q.capIn || q.am.Len() == 0 {
		first, second = q.in, q.am
	}
	if v := q.firstUnpinned(first); v != nil {
		return v
	}
	return q.firstUnpinned(second)
}

func (q *twoQ[K]) firstUnpinned(l *arena.List[policy.Node[K]]) policy.Node[K] {
	for h := l.Front(); !h.IsZero(); h = l.Next(h) {
		n, _ := q.a.Get(h)
		if !(*n).Pinned() {
			q.victim = h
			return *n
		}
	}
	return nil
}

// Len returns the number of resident entries tracked.
func (q *twoQ[K]) Len() int { return q.in.Len() + q.am.Len() }
