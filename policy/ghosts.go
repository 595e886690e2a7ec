package policy

type ghost struct {
	hash uint64
	seq  uint64
}

// Ghosts is a bounded FIFO history of key hashes for entries that were
// recently evicted (non-resident pages). Re-admitting a key found here is
// a signal that it was evicted too early.
type Ghosts struct {
	ring  []ghost
	head  int // oldest
	n     int
	seq   uint64
	index map[uint64]uint64 // hash -> seq of its newest ring slot
}

// NewGhosts returns a history holding at most capacity hashes.
func NewGhosts(capacity int) *Ghosts {
	if capacity < 1 {
		capacity = 1
	}
	return &Ghosts{
		ring:  make([]ghost, capacity),
		index: make(map[uint64]uint64, capacity),
	}
}

// Add records h, dropping the oldest hash when full.
func (g *Ghosts) Add(h uint64) {
	if g.n == len(g.ring) {
		old := g.ring[g.head]
		if g.index[old.hash] == old.seq {
			delete(g.index, old.hash)
		}
		g.head = (g.head + 1) % len(g.ring)
		g.n--
	}
	g.seq++
	g.ring[(g.head+g.n)%len(g.ring)] = ghost{hash: h, seq: g.seq}
	g.n++
	g.index[h] = g.seq
}

// Take reports whether h is in the history and forgets it.
func (g *Ghosts) Take(h uint64) bool {
	if _, ok := g.index[h]; !ok {
		return false
	}
	delete(g.index, h)
	return true
}

// Contains reports whether h is in the history.
func (g *Ghosts) Contains(h uint64) bool {
	_, ok := g.index[h]
	return ok
}

// Len returns the number of distinct remembered hashes.
func (g *Ghosts) Len() int { return len(g.index) }
