package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/heapcache/internal/logattr"
	"github.com/IvanBrykalov/heapcache/internal/timerwheel"
	"github.com/IvanBrykalov/heapcache/internal/util"
	"github.com/IvanBrykalov/heapcache/policy"
	"github.com/IvanBrykalov/heapcache/policy/clockpro"
	"github.com/IvanBrykalov/heapcache/policy/lru"
	"github.com/IvanBrykalov/heapcache/policy/twoq"
	"github.com/IvanBrykalov/heapcache/worker"
)

// cache is the heap cache: a lock-free-read index, a policy fed through
// a bounded queue, single-flight loading and a timer wheel for expiry.
// All methods are safe for concurrent use by multiple goroutines.
type cache[K comparable, V any] struct {
	cfg     Config
	idx     *index[K, V]
	ev      *queuedEviction[K, V]
	hash    func(K) uint64
	src     *Source[K, V]
	refresh RefreshController
	clock   Clock
	metrics Metrics
	log     *slog.Logger
	onEvict func(K, V, EvictReason)
	ttl     int64

	wmu   sync.Mutex // leaf lock
	wheel *timerwheel.Wheel[*entry[K, V]]

	pool       *worker.Pool
	sharedPool bool

	lifetime   context.Context
	cancel     context.CancelFunc
	closing    chan struct{}
	expiryDone chan struct{}
	closed     atomic.Bool
	degraded   atomic.Bool

	stats counters
	life  lifetime
}

// New validates opt and starts a cache. Configuration mistakes are
// reported as *ConfigError.
func New[K comparable, V any](opt Options[K, V]) (Cache[K, V], error) {
	if err := opt.Config.Validate(); err != nil {
		return nil, err
	}
	cfg := opt.Config.WithDefaults()
	if opt.RefreshController != nil && cfg.TTL() == 0 {
		return nil, &ConfigError{Field: "RefreshController", Reason: "refresh-ahead requires an expiry"}
	}
	if opt.Source != nil && !opt.Source.valid() {
		return nil, &ConfigError{Field: "Source", Reason: "source function is nil"}
	}

	hash := opt.Hasher
	if hash == nil {
		hash = util.HashKey[K]
		if err := checkHasher(hash); err != nil {
			return nil, err
		}
	}
	pol := opt.Policy
	if pol == nil {
		pol = builtinPolicy[K](cfg.Implementation)
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Clock == nil {
		opt.Clock = systemClock{}
	}
	queueCap := opt.QueueCapacity
	if queueCap <= 0 {
		queueCap = DefaultQueueCapacity
	}
	maxPolls := opt.MaxPolls
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}

	c := &cache[K, V]{
		cfg:        cfg,
		idx:        newIndex[K, V](max(cfg.HeapEntryCapacity, cfg.MaxSize)),
		hash:       hash,
		src:        opt.Source,
		refresh:    opt.RefreshController,
		clock:      opt.Clock,
		metrics:    opt.Metrics,
		log:        opt.Logger.With(logattr.Component("cache"), logattr.Cache(cfg.Name)),
		onEvict:    opt.OnEvict,
		ttl:        int64(cfg.TTL()),
		closing:    make(chan struct{}),
		expiryDone: make(chan struct{}),
	}
	c.lifetime, c.cancel = context.WithCancel(context.Background())
	c.wheel = timerwheel.New[*entry[K, V]](cfg.TimerTick, c.now())
	c.ev = newQueuedEviction(c, pol.New(cfg.MaxSize), queueCap, maxPolls)

	c.pool = opt.Pool
	if c.pool == nil {
		c.pool = worker.Acquire()
		c.sharedPool = true
	}
	reg, err := c.pool.Register(cfg.Name, c.ev)
	if err != nil {
		if c.sharedPool {
			worker.Release()
		}
		c.cancel()
		return nil, fmt.Errorf("cache: register eviction job: %w", err)
	}
	c.ev.reg = reg

	go c.expiryLoop(cfg.TimerTick)
	return c, nil
}

func builtinPolicy[K comparable](name string) policy.Policy[K] {
	switch name {
	case policy.LRU:
		return lru.New[K]()
	case policy.TwoQ:
		return twoq.New[K]()
	default:
		return clockpro.New[K]()
	}
}

// checkHasher turns the default hasher's panic on unsupported key types
// into a ConfigError.
func checkHasher[K comparable](h func(K) uint64) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &ConfigError{Field: "Hasher", Reason: fmt.Sprint(p)}
		}
	}()
	var zero K
	h(zero)
	return nil
}

// ---- Cache[K,V] implementation ----

// Name returns the configured cache name.
func (c *cache[K, V]) Name() string { return c.cfg.Name }

// Len returns the number of entries in the index, loads in flight
// included.
func (c *cache[K, V]) Len() int { return c.idx.Len() }

// Put installs v for k, replacing any current value or in-flight load.
func (c *cache[K, V]) Put(k K, v V) error {
	if c.closed.Load() {
		return keyErr("put", k, ErrClosed)
	}
	h := c.hash(k)
	for {
		now := c.now()
		e := c.idx.Lookup(k, h)
		if e != nil {
			e.mu.Lock()
			switch st := e.state(); {
			case st == stateValid || st == stateRefreshing || st == stateExpired:
				p := c.newPayload(v, now)
				e.data.Store(p)
				e.access.Store(now)
				e.setState(stateValid)
				c.scheduleLocked(e, phaseExpire, p.expires)
				e.mu.Unlock()
				c.admit(e)
				return nil
			case st == stateLoading:
				ne := c.newValidEntry(k, h, v, now)
				if c.idx.Replace(k, h, e, ne) {
					e.setState(stateRemoved)
					e.mu.Unlock()
					c.ev.offer(e)
					c.arm(ne)
					c.admit(ne)
					return nil
				}
				e.mu.Unlock()
				continue
			}
			e.mu.Unlock()
		}
		ne := c.newValidEntry(k, h, v, now)
		if _, ok := c.idx.InsertIfAbsent(k, h, ne); ok {
			c.arm(ne)
			c.admit(ne)
			return nil
		}
	}
}

// Peek returns the value for k without loading. Missing, loading, expired
// and negatively cached entries all report false.
func (c *cache[K, V]) Peek(k K) (V, bool, error) {
	var zero V
	if c.closed.Load() {
		return zero, false, keyErr("peek", k, ErrClosed)
	}
	now := c.now()
	e := c.idx.Lookup(k, c.hash(k))
	if e == nil || !e.state().servable() {
		c.recordMiss()
		return zero, false, nil
	}
	p := e.data.Load()
	if p.expired(now) || p.err != nil {
		c.recordMiss()
		return zero, false, nil
	}
	c.recordHit(e, now)
	return p.val, true, nil
}

// ContainsKey reports whether a servable, unexpired value is cached for
// k. It records no access.
func (c *cache[K, V]) ContainsKey(k K) (bool, error) {
	if c.closed.Load() {
		return false, keyErr("containsKey", k, ErrClosed)
	}
	e := c.idx.Lookup(k, c.hash(k))
	if e == nil || !e.state().servable() {
		return false, nil
	}
	p := e.data.Load()
	return !p.expired(c.now()) && p.err == nil, nil
}

// Remove drops k. It reports whether an entry was removed; removing an
// absent key is a no-op.
func (c *cache[K, V]) Remove(k K) (bool, error) {
	if c.closed.Load() {
		return false, keyErr("remove", k, ErrClosed)
	}
	h := c.hash(k)
	e := c.idx.Lookup(k, h)
	if e == nil {
		return false, nil
	}
	if !c.unlink(e, stateRemoved) {
		return false, nil
	}
	c.ev.offer(e)
	return true, nil
}

// Clear removes every entry and resets the resettable statistics.
func (c *cache[K, V]) Clear() error {
	if c.closed.Load() {
		return &KeyError{Op: "clear", Key: c.cfg.Name, Err: ErrClosed}
	}
	c.removeAll()
	c.stats.reset()
	c.life.clears.Add(1)
	c.metrics.Size(c.idx.Len())
	return nil
}

// removeAll drains the queue and removes every entry under the eviction
// lock.
func (c *cache[K, V]) removeAll() {
	c.ev.runLocked(func(pol policy.Evictor[K]) {
		c.ev.drainLocked()
		for _, e := range c.idx.Snapshot() {
			c.unlink(e, stateRemoved)
			pol.OnRemove(e)
		}
	})
}

// Range calls fn for each servable entry until fn returns false. It sees
// a snapshot of the index taken at the start.
func (c *cache[K, V]) Range(fn func(K, V) bool) error {
	if c.closed.Load() {
		return &KeyError{Op: "range", Key: c.cfg.Name, Err: ErrClosed}
	}
	now := c.now()
	for _, e := range c.idx.Snapshot() {
		if !e.state().servable() {
			continue
		}
		p := e.data.Load()
		if p.expired(now) || p.err != nil {
			continue
		}
		if !fn(e.key, p.val) {
			return nil
		}
	}
	return nil
}

// Close stops the cache: waiters on in-flight loads fail with ErrClosed,
// loads are cancelled, the eviction job is unregistered and all entries
// are dropped. Later calls return nil.
func (c *cache[K, V]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.closing)
	c.cancel()
	<-c.expiryDone
	c.ev.reg.Unregister()
	c.removeAll()
	c.metrics.Size(0)
	if c.sharedPool {
		worker.Release()
	}
	return nil
}

// ---- helpers ----

func (c *cache[K, V]) now() int64 { return c.clock.NowUnixNano() }

func (c *cache[K, V]) newPayload(v V, now int64) *payload[V] {
	p := &payload[V]{val: v, created: now, expires: eternal}
	if c.ttl > 0 {
		p.expires = now + c.ttl
	}
	if c.refresh != nil {
		p.refreshAt = c.refresh.RefreshAt(p.created, p.expires)
	}
	return p
}

func (c *cache[K, V]) newValidEntry(k K, h uint64, v V, now int64) *entry[K, V] {
	e := newEntry[K, V](k, h, stateValid)
	e.data.Store(c.newPayload(v, now))
	e.access.Store(now)
	return e
}

// arm schedules the expiry of an entry that was just linked.
func (c *cache[K, V]) arm(e *entry[K, V]) {
	e.mu.Lock()
	if e.state() == stateValid {
		c.scheduleLocked(e, phaseExpire, e.data.Load().expires)
	}
	e.mu.Unlock()
}

// recordHit counts a hit and feeds the access to the policy. It never
// loads; refresh-ahead is started by the loading paths only.
func (c *cache[K, V]) recordHit(e *entry[K, V], now int64) {
	c.stats.hits.Add(1)
	c.metrics.Hit()
	e.access.Store(now)
	c.ev.offer(e)
}

func (c *cache[K, V]) recordMiss() {
	c.stats.misses.Add(1)
	c.metrics.Miss()
}

func (c *cache[K, V]) observeSize() {
	n := c.idx.Len()
	c.stats.observeSize(n)
	c.metrics.Size(n)
}

// admit hands a newly valid entry to the policy and enforces the high
// bound before the producer returns.
func (c *cache[K, V]) admit(e *entry[K, V]) {
	c.ev.offer(e)
	if c.idx.Len() > c.cfg.MaxSizeHighBound {
		c.ev.forceEvict()
	}
	c.observeSize()
}

// unlink moves a live entry to the terminal state to and removes it from
// the index. It reports whether this call made the transition.
func (c *cache[K, V]) unlink(e *entry[K, V], to state) bool {
	e.mu.Lock()
	if e.state().terminal() {
		e.mu.Unlock()
		return false
	}
	e.setState(to)
	c.cancelTimerLocked(e)
	e.mu.Unlock()
	c.idx.Remove(e.key, e.hash, e)
	return true
}

// evict removes a policy victim. Entries that started loading since they
// were selected are kept. It reports whether e left the cache and whether
// this call unlinked it from the index, in which case the caller notifies
// once the eviction lock is released. Caller holds the eviction lock.
func (c *cache[K, V]) evict(e *entry[K, V]) (evicted, unlinked bool) {
	e.mu.Lock()
	switch e.state() {
	case stateValid, stateRefreshing, stateExpired:
	default:
		e.mu.Unlock()
		return false, false
	}
	e.setState(stateEvicted)
	c.cancelTimerLocked(e)
	e.mu.Unlock()
	return true, c.idx.Remove(e.key, e.hash, e)
}

func (c *cache[K, V]) notifyEvict(e *entry[K, V], reason EvictReason) {
	c.stats.evictions.Add(1)
	c.metrics.Evict(reason)
	if c.onEvict == nil {
		return
	}
	p := e.data.Load()
	if p == nil || p.err != nil {
		return
	}
	c.onEvict(e.key, p.val, reason)
}

// integrityViolation records an internal consistency failure. The cache
// keeps serving but reports itself degraded.
func (c *cache[K, V]) integrityViolation(msg string, err error, attrs ...slog.Attr) {
	c.life.violations.Add(1)
	c.degraded.Store(true)
	args := make([]any, 0, len(attrs)+1)
	args = append(args, logattr.Error(err))
	for _, a := range attrs {
		args = append(args, a)
	}
	c.log.Error(msg, args...)
}
