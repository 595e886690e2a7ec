// Package prom exports cache events and statistics to Prometheus.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/heapcache/cache"
)

// Adapter implements cache.Metrics with Prometheus counters, a load-latency
// histogram and a size gauge. Safe for concurrent use.
type Adapter struct {
	hits     prometheus.Counter
	misses   prometheus.Counter
	loads    *prometheus.HistogramVec
	evicts   *prometheus.CounterVec
	expiries prometheus.Counter
	size     prometheus.Gauge
}

// New registers the adapter's collectors with reg (the default registerer
// when nil) under ns and sub. Caches sharing a registry need distinct
// constLabels, typically {"cache": name}.
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Cache hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Cache misses",
			ConstLabels: constLabels,
		}),
		loads: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "load_duration_seconds",
				Help:        "Source load latency by result",
				Buckets:     prometheus.ExponentialBuckets(0.0005, 4, 8),
				ConstLabels: constLabels,
			},
			[]string{"result"},
		),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Cache evictions by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		expiries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "expiries_total",
			Help:        "Entries that reached their expiry time",
			ConstLabels: constLabels,
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_entries",
			Help:        "Number of entries in the index",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.loads, a.evicts, a.expiries, a.size)
	return a
}

// Hit counts a served lookup.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss counts a lookup that found nothing servable.
func (a *Adapter) Miss() { a.misses.Inc() }

// Load observes one source call.
func (a *Adapter) Load(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	a.loads.WithLabelValues(result).Observe(d.Seconds())
}

// Evict counts one eviction under its reason label.
func (a *Adapter) Evict(r cache.EvictReason) { a.evicts.WithLabelValues(r.String()).Inc() }

// Expire increments the expiry counter.
func (a *Adapter) Expire() { a.expiries.Inc() }

// Size updates the entry gauge.
func (a *Adapter) Size(entries int) { a.size.Set(float64(entries)) }

var _ cache.Metrics = (*Adapter)(nil)

// StatsSource is implemented by every cache.
type StatsSource interface {
	Stats() cache.Stats
}

// RegisterStats exports the lifetime health figures of s that are not
// events: peak size, index collisions, integrity violations and the
// degraded flag. They are read on every scrape.
func RegisterStats(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels, s StatsSource) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gauge := func(name, help string, f func(cache.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, func() float64 { return f(s.Stats()) })
	}
	reg.MustRegister(
		gauge("peak_size_entries", "Largest observed index size since the last clear",
			func(st cache.Stats) float64 { return float64(st.PeakSize) }),
		gauge("index_collisions", "Index inserts into an occupied bucket",
			func(st cache.Stats) float64 { return float64(st.Collisions) }),
		gauge("integrity_violations", "Internal consistency failures",
			func(st cache.Stats) float64 { return float64(st.IntegrityViolations) }),
		gauge("degraded", "1 once an integrity violation was recorded",
			func(st cache.Stats) float64 {
				if st.Degraded {
					return 1
				}
				return 0
			}),
	)
}
