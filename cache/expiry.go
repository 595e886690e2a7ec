package cache

import "time"

// expiryLoop advances the timer wheel on every tick until Close.
func (c *cache[K, V]) expiryLoop(tick time.Duration) {
	defer close(c.expiryDone)
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.advanceTimers()
		case <-c.closing:
			return
		}
	}
}

// advanceTimers fires every timer due at the current clock time.
func (c *cache[K, V]) advanceTimers() {
	c.wmu.Lock()
	fired := c.wheel.Advance(c.now(), nil)
	c.wmu.Unlock()
	for _, e := range fired {
		c.onTimer(e)
	}
}

// onTimer handles one fired timer: VALID entries expire, entries still
// EXPIRED after the grace period are swept. Loads and refreshes in
// progress ignore the timer; they schedule a new one when they finish.
func (c *cache[K, V]) onTimer(e *entry[K, V]) {
	now := c.now()
	e.mu.Lock()
	switch {
	case e.phase == phaseExpire && e.state() == stateValid:
		p := e.data.Load()
		if !p.expired(now) {
			c.scheduleLocked(e, phaseExpire, p.expires)
			e.mu.Unlock()
			return
		}
		e.setState(stateExpired)
		c.scheduleLocked(e, phaseSweep, now+int64(c.cfg.SweepGrace))
		e.mu.Unlock()
		c.stats.expiries.Add(1)
		c.metrics.Expire()

	case e.phase == phaseSweep && e.state() == stateExpired:
		e.setState(stateRemoved)
		e.mu.Unlock()
		if c.idx.Remove(e.key, e.hash, e) {
			c.notifyEvict(e, EvictTTL)
		}
		c.ev.offer(e)

	default:
		e.mu.Unlock()
	}
}

// scheduleLocked arms e's timer. Caller holds e.mu.
func (c *cache[K, V]) scheduleLocked(e *entry[K, V], phase timerPhase, when int64) {
	if when == eternal {
		c.cancelTimerLocked(e)
		return
	}
	e.phase = phase
	c.wmu.Lock()
	c.wheel.Schedule(&e.timer, when)
	c.wmu.Unlock()
}

// cancelTimerLocked disarms e's timer. Caller holds e.mu.
func (c *cache[K, V]) cancelTimerLocked(e *entry[K, V]) {
	c.wmu.Lock()
	c.wheel.Cancel(&e.timer)
	c.wmu.Unlock()
}
