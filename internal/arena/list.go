package arena

// List is a doubly linked list of arena slots, front = oldest.
// A slot belongs to at most one list at a time.
type List[T any] struct {
	a    *Arena[T]
	head uint32
	tail uint32
	n    int
}

// NewList returns an empty list whose elements live in a.
func (a *Arena[T]) NewList() *List[T] { return &List[T]{a: a} }

// Len returns the number of linked slots.
func (l *List[T]) Len() int { return l.n }

// Contains reports whether h is live and linked into l.
func (l *List[T]) Contains(h Handle) bool {
	s := l.a.lookup(h)
	return s != nil && s.owner == l
}

// Front returns the oldest element or the zero handle.
func (l *List[T]) Front() Handle { return l.a.handle(l.head) }

// Back returns the newest element or the zero handle.
func (l *List[T]) Back() Handle { return l.a.handle(l.tail) }

// Next returns the element after h (towards the back) or the zero handle.
func (l *List[T]) Next(h Handle) Handle {
	s := l.a.lookup(h)
	if s == nil || s.owner != l {
		return Handle{}
	}
	return l.a.handle(s.next)
}

// PushBack links h at the back. A slot linked elsewhere is moved.
func (l *List[T]) PushBack(h Handle) bool {
	s := l.a.lookup(h)
	if s == nil {
		return false
	}
	if s.owner != nil {
		s.owner.unlink(h.idx)
	}
	s.owner = l
	s.prev = l.tail
	s.next = 0
	if l.tail != 0 {
		l.a.slots[l.tail].next = h.idx
	} else {
		l.head = h.idx
	}
	l.tail = h.idx
	l.n++
	return true
}

// PushFront links h at the front. A slot linked elsewhere is moved.
func (l *List[T]) PushFront(h Handle) bool {
	s := l.a.lookup(h)
	if s == nil {
		return false
	}
	if s.owner != nil {
		s.owner.unlink(h.idx)
	}
	s.owner = l
	s.prev = 0
	s.next = l.head
	if l.head != 0 {
		l.a.slots[l.head].prev = h.idx
	} else {
		l.tail = h.idx
	}
	l.head = h.idx
	l.n++
	return true
}

// MoveToBack moves h, which must be in l, to the back.
func (l *List[T]) MoveToBack(h Handle) {
	if !l.Contains(h) || l.tail == h.idx {
		return
	}
	l.PushBack(h)
}

// Remove unlinks h from l without freeing it.
func (l *List[T]) Remove(h Handle) bool {
	if !l.Contains(h) {
		return false
	}
	l.unlink(h.idx)
	return true
}

func (l *List[T]) unlink(idx uint32) {
	s := &l.a.slots[idx]
	if s.prev != 0 {
		l.a.slots[s.prev].next = s.next
	} else {
		l.head = s.next
	}
	if s.next != 0 {
		l.a.slots[s.next].prev = s.prev
	} else {
		l.tail = s.prev
	}
	s.prev, s.next, s.owner = 0, 0, nil
	l.n--
}
