// Package lru implements the LRU eviction policy.
package lru

import (
	"github.com/IvanBrykalov/heapcache/internal/arena"
	"github.com/IvanBrykalov/heapcache/policy"
)

// lru is a classic "move-to-back" Least-Recently-Used policy.
// The list front is the LRU end and is where victims come from.
type lru[K comparable] struct {
	a     *arena.Arena[policy.Node[K]]
	order *arena.List[policy.Node[K]]
	seq   uint64
}

type lruPolicy[K comparable] struct{}

// New returns a Policy factory that constructs LRU instances.
func New[K comparable]() policy.Policy[K] { return lruPolicy[K]{} }

// New implements policy.Policy.
func (lruPolicy[K]) New(maxSize int) policy.Evictor[K] {
	a := arena.New[policy.Node[K]](maxSize)
	return &lru[K]{a: a, order: a.NewList()}
}

// OnInsert places the new entry at MRU. Re-inserting a tracked entry
// counts as use.
func (p *lru[K]) OnInsert(n policy.Node[K]) {
	m := n.Meta()
	if m.Tracked() && p.a.Valid(m.Slot) {
		p.order.MoveToBack(m.Slot)
		return
	}
	p.seq++
	m.Seq = p.seq
	m.Slot = p.a.Alloc(n)
	p.order.PushBack(m.Slot)
}

// OnAccess promotes the entry to MRU.
func (p *lru[K]) OnAccess(n policy.Node[K]) { p.order.MoveToBack(n.Meta().Slot) }

// OnRemove forgets the entry.
func (p *lru[K]) OnRemove(n policy.Node[K]) {
	m := n.Meta()
	if m.Tracked() {
		p.a.Free(m.Slot)
		m.Reset()
	}
}

// SelectVictim returns the least recently used unpinned entry.
func (p *lru[K]) SelectVictim() policy.Node[K] {
	for h := p.order.Front(); !h.IsZero(); h = p.order.Next(h) {
		n, _ := p.a.Get(h)
		if !(*n).Pinned() {
			return *n
		}
	}
	return nil
}

// Len returns the number of tracked entries.
func (p *lru[K]) Len() int { return p.order.Len() }
