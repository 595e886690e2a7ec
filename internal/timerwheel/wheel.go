// Package timerwheel implements a hierarchical hashed timer wheel.
//
// The wheel has 4 levels of 64 slots. Level 0 slots are one tick wide,
// level n slots are 64^n ticks wide. Timers due far in the future sit in a
// coarse level and cascade towards level 0 as time advances, so scheduling
// and cancelling are O(1) and advancing costs O(ticks + fired timers).
//
// A Wheel is not safe for concurrent use.
package timerwheel

import "time"

const (
	levels     = 4
	slotBits   = 6
	slots      = 1 << slotBits
	slotMask   = slots - 1
	maxDelta   = 1<<(levels*slotBits) - 1
	noDeadline = -1
)

// Timer is an intrusive wheel node carrying a value. The zero Timer is
// unscheduled and ready to use.
type Timer[T any] struct {
	Value T

	when       int64 // deadline, UnixNano
	exp        uint64
	prev, next *Timer[T]
	bucket     *bucket[T]
}

// Scheduled reports whether t is pending in a wheel.
func (t *Timer[T]) Scheduled() bool { return t.bucket != nil }

// When returns the deadline (UnixNano) of a pending timer.
func (t *Timer[T]) When() int64 {
	if t.bucket == nil {
		return noDeadline
	}
	return t.when
}

type bucket[T any] struct {
	head *Timer[T]
}

func (b *bucket[T]) push(t *Timer[T]) {
	t.bucket = b
	t.prev = nil
	t.next = b.head
	if b.head != nil {
		b.head.prev = t
	}
	b.head = t
}

func (b *bucket[T]) remove(t *Timer[T]) {
	if t.prev != nil {
		t.prev.next = t.next
	} else {
		b.head = t.next
	}
	if t.next != nil {
		t.next.prev = t.prev
	}
	t.prev, t.next, t.bucket = nil, nil, nil
}

// take detaches and returns the whole chain.
func (b *bucket[T]) take() *Timer[T] {
	h := b.head
	b.head = nil
	return h
}

// Wheel schedules timers on a fixed tick.
type Wheel[T any] struct {
	tick  int64
	cur   uint64 // ticks elapsed since epoch
	n     int
	wheel [levels][slots]bucket[T]
}

// New returns a wheel with the given tick whose current time is now
// (UnixNano).
func New[T any](tick time.Duration, now int64) *Wheel[T] {
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	w := &Wheel[T]{tick: int64(tick)}
	w.cur = w.ticks(now)
	return w
}

// Len returns the number of pending timers.
func (w *Wheel[T]) Len() int { return w.n }

// Schedule arms t to fire at when (UnixNano), rescheduling it if pending.
// Deadlines in the past fire on the next Advance.
func (w *Wheel[T]) Schedule(t *Timer[T], when int64) {
	if t.bucket != nil {
		t.bucket.remove(t)
		w.n--
	}
	t.when = when
	// Round up so a timer never fires before its deadline.
	t.exp = w.ticks(when + w.tick - 1)
	if t.exp <= w.cur {
		t.exp = w.cur + 1
	}
	w.place(t)
	w.n++
}

// Cancel disarms t. It reports whether t was pending.
func (w *Wheel[T]) Cancel(t *Timer[T]) bool {
	if t.bucket == nil {
		return false
	}
	t.bucket.remove(t)
	w.n--
	return true
}

// Advance moves the wheel to now (UnixNano) and appends the values of all
// timers that came due to fired. Timers due in the same tick fire in no
// particular order.
func (w *Wheel[T]) Advance(now int64, fired []T) []T {
	target := w.ticks(now)
	for w.cur < target {
		if w.n == 0 {
			w.cur = target
			break
		}
		w.cur++
		w.cascade()
		chain := w.wheel[0][w.cur&slotMask].take()
		for t := chain; t != nil; {
			next := t.next
			t.prev, t.next, t.bucket = nil, nil, nil
			w.n--
			fired = append(fired, t.Value)
			t = next
		}
	}
	return fired
}

func (w *Wheel[T]) ticks(ns int64) uint64 {
	if ns < 0 {
		return 0
	}
	return uint64(ns / w.tick)
}

func (w *Wheel[T]) place(t *Timer[T]) {
	var delta uint64
	if t.exp > w.cur {
		delta = t.exp - w.cur
	}
	if delta > maxDelta {
		delta = maxDelta
	}
	lvl := 0
	for lvl < levels-1 && delta >= 1<<((lvl+1)*slotBits) {
		lvl++
	}
	exp := w.cur + delta
	idx := (exp >> (lvl * slotBits)) & slotMask
	w.wheel[lvl][idx].push(t)
}

// cascade redistributes the coarse slot that became current on every level
// whose lower levels just wrapped.
func (w *Wheel[T]) cascade() {
	for lvl := 1; lvl < levels; lvl++ {
		if w.cur&(1<<(lvl*slotBits)-1) != 0 {
			return
		}
		idx := (w.cur >> (lvl * slotBits)) & slotMask
		for t := w.wheel[lvl][idx].take(); t != nil; {
			next := t.next
			t.prev, t.next, t.bucket = nil, nil, nil
			w.place(t)
			t = next
		}
	}
}
