// Package policy defines the contract between the cache and its eviction
// policies.
//
// A policy orders resident entries by estimated future utility and picks
// victims when the cache is over capacity. All Evictor methods are invoked
// by a single goroutine at a time (the cache serializes them under its
// eviction lock), so implementations need no internal locking.
package policy

import "github.com/IvanBrykalov/heapcache/internal/arena"

// Names of the built-in policy variants.
const (
	ClockPro = "clockpro"
	LRU      = "lru"
	TwoQ     = "twoq"
)

// Node is the view of a cache entry a policy works with.
type Node[K comparable] interface {
	Key() K
	// Hash is the entry's cached 64-bit key hash.
	Hash() uint64
	// Pinned reports whether the entry must not be evicted right now
	// (an in-flight load).
	Pinned() bool
	// AccessTime and CreateTime are UnixNano timestamps used for tie-breaks.
	AccessTime() int64
	CreateTime() int64
	// Meta returns the policy-private bookkeeping stored inside the entry.
	Meta() *Meta
}

// Meta is per-entry policy state. Only the policy reads or writes it.
type Meta struct {
	// Slot addresses the policy's record for this entry; zero when the
	// entry is not tracked.
	Slot arena.Handle
	// Seq is the arrival order assigned on insert.
	Seq uint64
}

// Tracked reports whether a policy currently tracks the entry.
func (m *Meta) Tracked() bool { return !m.Slot.IsZero() }

// Reset clears the bookkeeping after the policy forgets the entry.
func (m *Meta) Reset() { *m = Meta{} }

// Evictor is a policy instance bound to one cache.
//
// Semantics:
//   - OnInsert records a newly loaded entry at the policy's "hot" position.
//     Inserting an already tracked entry counts as an access.
//   - OnAccess marks the entry as recently used. O(1) amortized.
//   - OnRemove forgets the entry. Idempotent.
//   - SelectVictim recommends an unpinned entry for removal, or nil.
//     The caller removes the entry and then calls OnRemove for it.
type Evictor[K comparable] interface {
	OnInsert(Node[K])
	OnAccess(Node[K])
	OnRemove(Node[K])
	SelectVictim() Node[K]
	// Len returns the number of tracked entries.
	Len() int
}

// Policy is a factory that creates an Evictor sized for maxSize entries.
type Policy[K comparable] interface {
	New(maxSize int) Evictor[K]
}

// Func adapts a plain constructor to Policy.
type Func[K comparable] func(maxSize int) Evictor[K]

// New implements Policy.
func (f Func[K]) New(maxSize int) Evictor[K] { return f(maxSize) }

// Older reports whether a should be evicted before b when both have the
// same policy rank: older access first, then older creation, then arrival.
func Older[K comparable](a, b Node[K]) bool {
	if at, bt := a.AccessTime(), b.AccessTime(); at != bt {
		return at < bt
	}
	if at, bt := a.CreateTime(), b.CreateTime(); at != bt {
		return at < bt
	}
	return a.Meta().Seq < b.Meta().Seq
}
