// Package singleflight provides the completion signal shared by every
// caller waiting on one in-flight load.
package singleflight

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrAborted is returned by Wait when the abort channel closes first.
var ErrAborted = errors.New("singleflight: aborted")

// Call is a one-shot result slot.
//
// Concurrency notes:
//   - Exactly one Complete wins; later calls are ignored.
//   - Publishing (val, err) happens-before close(done), so reads after
//     <-Done() observe the final values.
//   - A waiter giving up (ctx, abort) never affects the producer.
type Call[V any] struct {
	done     chan struct{}
	finished atomic.Bool
	val      V
	err      error
}

// NewCall returns a pending call.
func NewCall[V any]() *Call[V] {
	return &Call[V]{done: make(chan struct{})}
}

// Complete publishes the result and wakes all waiters. It reports whether
// this call set the result.
func (c *Call[V]) Complete(v V, err error) bool {
	if !c.finished.CompareAndSwap(false, true) {
		return false
	}
	c.val, c.err = v, err
	close(c.done)
	return true
}

// Done is closed once the result is published.
func (c *Call[V]) Done() <-chan struct{} { return c.done }

// Result returns the published result. It must only be called after Done
// is closed.
func (c *Call[V]) Result() (V, error) { return c.val, c.err }

// Wait blocks until the result is published, ctx is done or abort is
// closed. A nil abort never fires. The published result wins when both
// are ready.
func (c *Call[V]) Wait(ctx context.Context, abort <-chan struct{}) (V, error) {
	select {
	case <-c.done:
		return c.val, c.err
	default:
	}
	var zero V
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-abort:
		return zero, ErrAborted
	}
}
