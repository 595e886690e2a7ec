package cache

import (
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/heapcache/internal/singleflight"
	"github.com/IvanBrykalov/heapcache/internal/timerwheel"
	"github.com/IvanBrykalov/heapcache/policy"
)

// state is the lifecycle state of an entry.
//
//	LOADING    -> VALID | EVICTED | REMOVED
//	VALID      -> REFRESHING | EXPIRED | REMOVED | EVICTED
//	REFRESHING -> VALID
//	EXPIRED    -> LOADING | REMOVED
//
// EVICTED and REMOVED are terminal.
type state uint32

const (
	stateLoading state = iota + 1
	stateValid
	stateRefreshing
	stateExpired
	stateEvicted
	stateRemoved
)

func (s state) String() string {
	switch s {
	case stateLoading:
		return "LOADING"
	case stateValid:
		return "VALID"
	case stateRefreshing:
		return "REFRESHING"
	case stateExpired:
		return "EXPIRED"
	case stateEvicted:
		return "EVICTED"
	case stateRemoved:
		return "REMOVED"
	default:
		return "INVALID"
	}
}

// terminal reports whether s admits no further transitions.
func (s state) terminal() bool { return s == stateEvicted || s == stateRemoved }

// servable reports whether an entry in s may answer reads.
func (s state) servable() bool { return s == stateValid || s == stateRefreshing }

// payload is the immutable value snapshot of an entry. A new payload is
// published on every load, refresh or put.
type payload[V any] struct {
	val V
	// err is set for negatively cached load failures.
	err       error
	created   int64
	expires   int64 // eternal when the entry never expires
	refreshAt int64 // 0 disables refresh-ahead
}

func (p *payload[V]) expired(now int64) bool { return now >= p.expires }

type timerPhase uint8

const (
	phaseExpire timerPhase = iota
	phaseSweep
)

// entry is the cached record. Readers use the atomics without locking;
// every state transition happens under mu.
type entry[K comparable, V any] struct {
	key  K
	hash uint64

	data   atomic.Pointer[payload[V]]
	access atomic.Int64
	st     atomic.Uint32

	mu sync.Mutex
	// flight is the completion signal of the load or refresh in progress.
	// It is stored before the LOADING/REFRESHING state is published.
	flight atomic.Pointer[singleflight.Call[V]]

	// guarded by mu; the wheel itself is guarded by the cache's wheel lock
	timer timerwheel.Timer[*entry[K, V]]
	phase timerPhase

	// guarded by the eviction lock
	meta policy.Meta
}

func newEntry[K comparable, V any](k K, h uint64, s state) *entry[K, V] {
	e := &entry[K, V]{key: k, hash: h}
	e.timer.Value = e
	e.st.Store(uint32(s))
	return e
}

func (e *entry[K, V]) state() state     { return state(e.st.Load()) }
func (e *entry[K, V]) setState(s state) { e.st.Store(uint32(s)) }

// policy.Node

func (e *entry[K, V]) Key() K             { return e.key }
func (e *entry[K, V]) Hash() uint64       { return e.hash }
func (e *entry[K, V]) Pinned() bool       { return e.state() == stateLoading }
func (e *entry[K, V]) AccessTime() int64  { return e.access.Load() }
func (e *entry[K, V]) Meta() *policy.Meta { return &e.meta }

func (e *entry[K, V]) CreateTime() int64 {
	if p := e.data.Load(); p != nil {
		return p.created
	}
	return 0
}

var _ policy.Node[string] = (*entry[string, int])(nil)
