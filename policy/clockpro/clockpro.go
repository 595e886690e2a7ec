// Package clockpro implements a CLOCK-Pro-like eviction policy.
//
// Resident pages are split between a hot and a cold clock. New pages start
// cold; a cold page that is referenced when the cold hand reaches it is
// promoted to hot. The hot hand only runs while the hot clock holds more
// than its share and demotes pages that were not referenced since its last
// pass. Victims always come from the cold clock, so a one-shot scan cycles
// through cold pages and leaves a referenced working set of up to half the
// capacity untouched.
//
// Evicted cold pages leave their key hash in a non-resident history. A page
// re-admitted while still remembered starts hot and grows the cold share,
// since it was evicted too early.
package clockpro

import (
	"github.com/IvanBrykalov/heapcache/internal/arena"
	"github.com/IvanBrykalov/heapcache/policy"
)

// tieWindow is how many unreferenced cold pages compete for eviction.
const tieWindow = 4

type page[K comparable] struct {
	n   policy.Node[K]
	ref bool
}

type clockPro[K comparable] struct {
	a     *arena.Arena[page[K]]
	hot   *arena.List[page[K]] // front is the hot hand
	cold  *arena.List[page[K]] // front is the cold hand
	ghost *policy.Ghosts

	maxSize    int
	coldTarget int
	coldMin    int
	coldMax    int

	victim arena.Handle
	seq    uint64
}

type clockProPolicy[K comparable] struct{}

// New returns the CLOCK-Pro policy factory.
func New[K comparable]() policy.Policy[K] { return clockProPolicy[K]{} }

// New implements policy.Policy.
func (clockProPolicy[K]) New(maxSize int) policy.Evictor[K] {
	if maxSize < 1 {
		maxSize = 1
	}
	a := arena.New[page[K]](maxSize)
	coldMin := max(1, maxSize/4)
	coldMax := max(coldMin, maxSize/2)
	return &clockPro[K]{
		a:          a,
		hot:        a.NewList(),
		cold:       a.NewList(),
		ghost:      policy.NewGhosts(maxSize),
		maxSize:    maxSize,
		coldTarget: coldMin,
		coldMin:    coldMin,
		coldMax:    coldMax,
	}
}

// OnInsert admits n as a cold page, or as a hot page when its key was
// evicted recently.
func (c *clockPro[K]) OnInsert(n policy.Node[K]) {
	m := n.Meta()
	if m.Tracked() && c.a.Valid(m.Slot) {
		c.OnAccess(n)
		return
	}
	c.seq++
	m.Seq = c.seq
	m.Slot = c.a.Alloc(page[K]{n: n})
	if c.ghost.Take(n.Hash()) {
		c.coldTarget = min(c.coldMax, c.coldTarget+1)
		c.hot.PushBack(m.Slot)
		return
	}
	c.cold.PushBack(m.Slot)
}

// OnAccess sets the reference bit.
func (c *clockPro[K]) OnAccess(n policy.Node[K]) {
	if p, ok := c.a.Get(n.Meta().Slot); ok {
		p.ref = true
	}
}

// OnRemove forgets n. A page removed right after being chosen as victim is
// remembered as non-resident.
func (c *clockPro[K]) OnRemove(n policy.Node[K]) {
	m := n.Meta()
	if !m.Tracked() {
		return
	}
	if m.Slot == c.victim {
		c.ghost.Add(n.Hash())
		c.victim = arena.Handle{}
	}
	c.a.Free(m.Slot)
	m.Reset()
}

// Len returns the number of resident pages.
func (c *clockPro[K]) Len() int { return c.hot.Len() + c.cold.Len() }

// SelectVictim runs the hands until an unreferenced, unpinned cold page is
// found. It returns nil when every page is pinned.
func (c *clockPro[K]) SelectVictim() policy.Node[K] {
	c.victim = arena.Handle{}
	c.balanceHot()

	budget := 2*c.Len() + 2
	for ; budget > 0; budget-- {
		if c.cold.Len() == 0 {
			if !c.demoteOne(true) {
				return nil
			}
			continue
		}
		h := c.cold.Front()
		p, _ := c.a.Get(h)
		switch {
		case p.n.Pinned():
			c.cold.MoveToBack(h)
		case p.ref:
			p.ref = false
			c.hot.PushBack(h)
			c.coldTarget = max(c.coldMin, c.coldTarget-1)
			c.balanceHot()
		default:
			c.victim = c.pickOldest(h)
			v, _ := c.a.Get(c.victim)
			return v.n
		}
	}
	return nil
}

// pickOldest compares up to tieWindow unreferenced, unpinned cold pages
// starting at h and returns the one to evict first.
func (c *clockPro[K]) pickOldest(h arena.Handle) arena.Handle {
	best := h
	bp, _ := c.a.Get(h)
	bestNode := bp.n
	seen := 1
	for cur := c.cold.Next(h); !cur.IsZero() && seen < tieWindow; cur = c.cold.Next(cur) {
		p, _ := c.a.Get(cur)
		if p.ref || p.n.Pinned() {
			continue
		}
		seen++
		if policy.Older(p.n, bestNode) {
			best, bestNode = cur, p.n
		}
	}
	return best
}

// balanceHot demotes hot pages while the hot clock exceeds its share.
func (c *clockPro[K]) balanceHot() {
	hotMax := c.maxSize - c.coldTarget
	for budget := 2*c.hot.Len() + 1; c.hot.Len() > hotMax && budget > 0; budget-- {
		if !c.demoteOne(false) {
			return
		}
	}
}

// demoteOne advances the hot hand by one page. Referenced or pinned pages
// get another round; otherwise the page moves to the back of the cold
// clock. With force set, a referenced page is demoted anyway after its bit
// is cleared. It reports whether the hot clock was non-empty.
func (c *clockPro[K]) demoteOne(force bool) bool {
	h := c.hot.Front()
	if h.IsZero() {
		return false
	}
	p, _ := c.a.Get(h)
	if p.n.Pinned() || (p.ref && !force) {
		p.ref = false
		c.hot.MoveToBack(h)
		return true
	}
	p.ref = false
	c.cold.PushBack(h)
	return true
}
