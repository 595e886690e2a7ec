package cache

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/heapcache/worker"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeClock struct{ t atomic.Int64 }

func newFakeClock() *fakeClock {
	f := &fakeClock{}
	f.t.Store(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())
	return f
}

func (f *fakeClock) NowUnixNano() int64  { return f.t.Load() }
func (f *fakeClock) add(d time.Duration) { f.t.Add(int64(d)) }

// newTest builds a cache and returns its implementation for white-box
// assertions. It is closed on cleanup.
func newTest[K comparable, V any](t *testing.T, opt Options[K, V]) *cache[K, V] {
	t.Helper()
	if opt.Logger == nil {
		opt.Logger = quiet
	}
	c, err := New(opt)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c.(*cache[K, V])
}

// blockJob occupies its worker until released.
type blockJob struct{ release chan struct{} }

func (b *blockJob) Run() bool {
	<-b.release
	return false
}

// stalledPool returns a one-worker pool whose worker is stuck, so queued
// submissions are never consumed.
func stalledPool(t *testing.T) *worker.Pool {
	t.Helper()
	p := worker.NewPool(worker.Options{Size: 1, Logger: quiet})
	t.Cleanup(p.Close)

	b := &blockJob{release: make(chan struct{})}
	r, err := p.Register("blocker", b)
	require.NoError(t, err)
	t.Cleanup(func() { close(b.release) })
	r.Wake()
	// give the worker a moment to enter the blocking job
	time.Sleep(5 * time.Millisecond)
	return p
}

// counter is a source that counts its invocations.
type counter struct{ n atomic.Int64 }

func (c *counter) calls() int64 { return c.n.Load() }
