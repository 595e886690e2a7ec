// Package arena stores policy bookkeeping in a dense slice addressed by
// indices. Handles carry a generation counter so a handle to a freed slot
// is detected instead of aliasing whatever reused the slot.
//
// Lists built on top of an arena link slots by index, which keeps the
// eviction structures free of owning pointers back into the cache.
//
// An Arena is not safe for concurrent use; callers serialize access
// (the cache does so under its eviction lock).
package arena

// Handle addresses one slot. The zero Handle is never valid.
type Handle struct {
	idx uint32
	gen uint32
}

// IsZero reports whether h is the zero (nil) handle.
func (h Handle) IsZero() bool { return h.idx == 0 }

type slot[T any] struct {
	val   T
	gen   uint32
	live  bool
	prev  uint32
	next  uint32
	owner *List[T]
}

// Arena is a growable pool of T values with O(1) alloc/free.
// Slot 0 is reserved so that index 0 means "none" in list links.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	live  int
}

// New returns an arena with room for capacity values before growing.
func New[T any](capacity int) *Arena[T] {
	if capacity < 0 {
		capacity = 0
	}
	a := &Arena[T]{slots: make([]slot[T], 1, capacity+1)}
	return a
}

// Alloc stores v in a free slot and returns its handle.
func (a *Arena[T]) Alloc(v T) Handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, slot[T]{})
		idx = uint32(len(a.slots) - 1)
	}
	s := &a.slots[idx]
	s.gen++
	if s.gen == 0 { // 0 marks never-used slots
		s.gen = 1
	}
	s.val = v
	s.live = true
	s.prev, s.next, s.owner = 0, 0, nil
	a.live++
	return Handle{idx: idx, gen: s.gen}
}

// Get returns a pointer to the value behind h, or false if h is stale.
// The pointer is only valid until the next Alloc.
func (a *Arena[T]) Get(h Handle) (*T, bool) {
	s := a.lookup(h)
	if s == nil {
		return nil, false
	}
	return &s.val, true
}

// Valid reports whether h still addresses a live slot.
func (a *Arena[T]) Valid(h Handle) bool { return a.lookup(h) != nil }

// Free releases the slot behind h, unlinking it from its list first.
// It returns false for stale handles, which makes Free idempotent.
func (a *Arena[T]) Free(h Handle) bool {
	s := a.lookup(h)
	if s == nil {
		return false
	}
	if s.owner != nil {
		s.owner.unlink(h.idx)
	}
	var zero T
	s.val = zero
	s.live = false
	a.free = append(a.free, h.idx)
	a.live--
	return true
}

// Len returns the number of live slots.
func (a *Arena[T]) Len() int { return a.live }

func (a *Arena[T]) lookup(h Handle) *slot[T] {
	if h.idx == 0 || int(h.idx) >= len(a.slots) {
		return nil
	}
	s := &a.slots[h.idx]
	if !s.live || s.gen != h.gen {
		return nil
	}
	return s
}

func (a *Arena[T]) handle(idx uint32) Handle {
	if idx == 0 {
		return Handle{}
	}
	return Handle{idx: idx, gen: a.slots[idx].gen}
}
