// Package worker runs the eviction jobs of many caches on a small, fixed
// set of goroutines.
//
// Each registered job is pinned to one worker (round-robin at Register time)
// for its whole life, so the state a job touches is only ever mutated from
// that worker. Workers park when every job they own reports no work and are
// woken through Registration.Wake.
package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/heapcache/internal/logattr"
)

// ErrPoolClosed is returned by Register after Close.
var ErrPoolClosed = errors.New("worker: pool closed")

// DefaultMaxFailures is the number of consecutive panics after which a job
// is dropped from its worker.
const DefaultMaxFailures = 3

// Job is one unit of recurring work, typically a cache's eviction job.
type Job interface {
	// Run processes a bounded batch and reports whether more work may be
	// pending. Returning false lets the worker park.
	Run() bool
}

// DropNotifier is implemented by jobs that want to know they were dropped
// after repeated failures.
type DropNotifier interface {
	OnDropped(err error)
}

// Options configure a Pool. Zero values select the defaults.
type Options struct {
	// Size is the number of worker goroutines (default GOMAXPROCS).
	Size int
	// MaxFailures is the consecutive-panic limit per job.
	MaxFailures int
	Logger      *slog.Logger
	// OnJobDropped is called (from the worker goroutine) when a job is
	// unregistered after MaxFailures consecutive panics.
	OnJobDropped func(name string, err error)
}

// Pool is a fixed set of workers.
type Pool struct {
	opts    Options
	log     *slog.Logger
	workers []*worker
	next    atomic.Uint64

	closed atomic.Bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewPool starts a pool.
func NewPool(opts Options) *Pool {
	if opts.Size <= 0 {
		opts.Size = runtime.GOMAXPROCS(0)
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	p := &Pool{
		opts: opts,
		log:  opts.Logger.With(logattr.Component("worker")),
		stop: make(chan struct{}),
	}
	p.workers = make([]*worker, opts.Size)
	for i := range p.workers {
		w := &worker{id: i, pool: p, wake: make(chan struct{}, 1)}
		w.jobs.Store(&[]*Registration{})
		p.workers[i] = w
		p.wg.Add(1)
		go w.loop()
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Jobs returns the number of registered jobs.
func (p *Pool) Jobs() int {
	n := 0
	for _, w := range p.workers {
		n += len(*w.jobs.Load())
	}
	return n
}

// Register assigns job to the next worker in round-robin order. The
// assignment never changes.
func (p *Pool) Register(name string, job Job) (*Registration, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	idx := (p.next.Add(1) - 1) % uint64(len(p.workers))
	w := p.workers[idx]
	r := &Registration{name: name, job: job, w: w}
	w.add(r)
	return r, nil
}

// Close stops all workers and waits for them to exit. Registered jobs are
// not run again. Close is idempotent.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	close(p.stop)
	p.wg.Wait()
}

// Registration is a job's handle on its worker.
type Registration struct {
	name     string
	job      Job
	w        *worker
	failures int // worker goroutine only
	gone     atomic.Bool
	dropped  atomic.Bool
}

// Worker returns the index of the worker the job is pinned to.
func (r *Registration) Worker() int { return r.w.id }

// Wake unparks the job's worker. It never blocks.
func (r *Registration) Wake() {
	select {
	case r.w.wake <- struct{}{}:
	default:
	}
}

// Unregister removes the job. A Run already in progress completes.
func (r *Registration) Unregister() {
	if r.gone.CompareAndSwap(false, true) {
		r.w.remove(r)
	}
}

// Dropped reports whether the pool gave up on the job after repeated
// failures.
func (r *Registration) Dropped() bool { return r.dropped.Load() }

type worker struct {
	id   int
	pool *Pool
	mu   sync.Mutex // serializes writers of jobs
	jobs atomic.Pointer[[]*Registration]
	wake chan struct{}
}

func (w *worker) add(r *Registration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cur := *w.jobs.Load()
	next := make([]*Registration, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, r)
	w.jobs.Store(&next)
}

func (w *worker) remove(r *Registration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cur := *w.jobs.Load()
	next := make([]*Registration, 0, len(cur))
	for _, x := range cur {
		if x != r {
			next = append(next, x)
		}
	}
	w.jobs.Store(&next)
}

func (w *worker) loop() {
	defer w.pool.wg.Done()
	for {
		select {
		case <-w.pool.stop:
			return
		default:
		}

		busy := false
		for _, r := range *w.jobs.Load() {
			if r.gone.Load() {
				continue
			}
			if w.run(r) {
				busy = true
			}
		}
		if busy {
			continue
		}

		select {
		case <-w.wake:
		case <-w.pool.stop:
			return
		}
	}
}

// run executes one batch of r, containing panics.
func (w *worker) run(r *Registration) (more bool) {
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		more = false
		r.failures++
		err := fmt.Errorf("worker: job %q panicked: %v", r.name, p)
		w.pool.log.Error("eviction job panicked",
			logattr.Worker(w.id),
			slog.String("job", r.name),
			slog.Int("consecutive", r.failures),
			logattr.Panic(p),
		)
		if r.failures >= w.pool.opts.MaxFailures {
			w.drop(r, err)
		}
	}()

	more = r.job.Run()
	r.failures = 0
	return more
}

func (w *worker) drop(r *Registration, err error) {
	r.Unregister()
	w.pool.log.Error("eviction job dropped", logattr.Worker(w.id), slog.String("job", r.name), logattr.Error(err))
	if n, ok := r.job.(DropNotifier); ok {
		n.OnDropped(err)
	}
	if f := w.pool.opts.OnJobDropped; f != nil {
		f(r.name, err)
	}
	r.dropped.Store(true)
}
