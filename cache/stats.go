package cache

import (
	"time"

	"github.com/IvanBrykalov/heapcache/internal/util"
)

// Stats is a point-in-time snapshot of cache counters. Counters are read
// individually, so a snapshot taken under load is only eventually
// consistent.
type Stats struct {
	Name         string
	Hits         int64
	Misses       int64
	Loads        int64
	LoadFailures int64
	Evictions    int64
	Expiries     int64
	// Clears counts Clear calls over the cache's lifetime.
	Clears      int64
	Size        int
	PeakSize    int
	AvgLoadTime time.Duration
	// Collisions counts index inserts into an occupied bucket (lifetime).
	Collisions int64
	// IntegrityViolations counts internal consistency failures (lifetime).
	IntegrityViolations int64
	// Degraded is set once an integrity violation was recorded.
	Degraded bool
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// counters are the hot, resettable statistics. Lifetime totals live in
// lifetime and survive Clear.
type counters struct {
	hits         util.PaddedCounter
	misses       util.PaddedCounter
	loads        util.PaddedCounter
	loadFailures util.PaddedCounter
	loadNanos    util.PaddedCounter
	evictions    util.PaddedCounter
	expiries     util.PaddedCounter
	peak         util.PaddedCounter
}

func (c *counters) reset() {
	for _, x := range []*util.PaddedCounter{
		&c.hits, &c.misses, &c.loads, &c.loadFailures,
		&c.loadNanos, &c.evictions, &c.expiries, &c.peak,
	} {
		x.Store(0)
	}
}

type lifetime struct {
	clears     util.PaddedCounter
	violations util.PaddedCounter
}

// observeSize raises the peak to n.
func (c *counters) observeSize(n int) {
	for {
		cur := c.peak.Load()
		if int64(n) <= cur || c.peak.CompareAndSwap(cur, int64(n)) {
			return
		}
	}
}

func (c *cache[K, V]) Stats() Stats {
	s := Stats{
		Name:                c.cfg.Name,
		Hits:                c.stats.hits.Load(),
		Misses:              c.stats.misses.Load(),
		Loads:               c.stats.loads.Load(),
		LoadFailures:        c.stats.loadFailures.Load(),
		Evictions:           c.stats.evictions.Load(),
		Expiries:            c.stats.expiries.Load(),
		Clears:              c.life.clears.Load(),
		Size:                c.idx.Len(),
		PeakSize:            int(c.stats.peak.Load()),
		Collisions:          c.idx.Collisions(),
		IntegrityViolations: c.life.violations.Load(),
		Degraded:            c.degraded.Load(),
	}
	if s.Loads > 0 {
		s.AvgLoadTime = time.Duration(c.stats.loadNanos.Load() / s.Loads)
	}
	return s
}
