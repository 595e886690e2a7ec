package cache

import "time"

// NoopMetrics is a drop-in Metrics implementation that does nothing.
// It is the default when no observability backend is configured.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                      {}
func (NoopMetrics) Miss()                     {}
func (NoopMetrics) Load(time.Duration, error) {}
func (NoopMetrics) Evict(EvictReason)         {}
func (NoopMetrics) Expire()                   {}
func (NoopMetrics) Size(int)                  {}

var _ Metrics = NoopMetrics{}
