package cache

import (
	"time"

	"github.com/IvanBrykalov/heapcache/internal/logattr"
	"github.com/IvanBrykalov/heapcache/internal/singleflight"
)

// RefreshController decides when a freshly loaded value should be
// reloaded in the background. RefreshAt returns a UnixNano instant in
// [created, expires), or 0 to never refresh.
type RefreshController interface {
	RefreshAt(created, expires int64) int64
}

// RefreshFunc adapts a function to RefreshController.
type RefreshFunc func(created, expires int64) int64

// RefreshAt implements RefreshController.
func (f RefreshFunc) RefreshAt(created, expires int64) int64 { return f(created, expires) }

// RefreshWindow refreshes values during the last fraction of their TTL:
// with fraction 0.2 and a 1s TTL a hit after 800ms triggers a reload.
func RefreshWindow(fraction float64) RefreshController {
	return RefreshFunc(func(created, expires int64) int64 {
		if expires == eternal || fraction <= 0 || fraction >= 1 {
			return 0
		}
		return expires - int64(float64(expires-created)*fraction)
	})
}

// maybeRefresh starts a background refresh when a hit lands in the refresh
// window of p.
func (c *cache[K, V]) maybeRefresh(e *entry[K, V], p *payload[V], now int64) {
	if p.refreshAt == 0 || now < p.refreshAt || c.src == nil || e.state() != stateValid {
		return
	}
	e.mu.Lock()
	if e.state() != stateValid || e.data.Load() != p {
		e.mu.Unlock()
		return
	}
	call := singleflight.NewCall[V]()
	e.flight.Store(call)
	e.setState(stateRefreshing)
	e.mu.Unlock()

	info := LoadInfo[V]{Previous: p.val, HasPrevious: true, LoadedAt: time.Unix(0, p.created), Now: time.Unix(0, now)}
	go c.runRefresh(e, p, call, info)
}

// runRefresh reloads e. Readers keep getting the previous value meanwhile.
// A failed refresh keeps the previous value until it hard-expires.
func (c *cache[K, V]) runRefresh(e *entry[K, V], prev *payload[V], call *singleflight.Call[V], info LoadInfo[V]) {
	ctx, cancel := c.loadContext()
	defer cancel()
	start := time.Now()
	v, err := c.src.loadOne(ctx, e.key, info)
	d := time.Since(start)

	c.stats.loads.Add(1)
	c.stats.loadNanos.Add(int64(d))
	c.metrics.Load(d, err)

	now := c.now()
	e.mu.Lock()
	if e.state() != stateRefreshing || e.flight.Load() != call || e.data.Load() != prev {
		// removed, evicted or overwritten while refreshing
		e.mu.Unlock()
		call.Complete(v, err)
		return
	}
	if err != nil {
		c.stats.loadFailures.Add(1)
		if c.lifetime.Err() == nil {
			c.log.Warn("refresh failed, keeping previous value",
				logattr.Key(e.key), logattr.Error(err), logattr.Duration(d))
		}
		if prev.expired(now) {
			e.setState(stateExpired)
			c.scheduleLocked(e, phaseSweep, now+int64(c.cfg.SweepGrace))
		} else {
			e.setState(stateValid)
			c.scheduleLocked(e, phaseExpire, prev.expires)
		}
		e.mu.Unlock()
		var zero V
		call.Complete(zero, wrapLoadErr(err))
		return
	}
	p := c.newPayload(v, now)
	e.data.Store(p)
	e.setState(stateValid)
	c.scheduleLocked(e, phaseExpire, p.expires)
	e.mu.Unlock()

	c.ev.offer(e)
	call.Complete(v, nil)
}
