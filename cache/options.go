package cache

import (
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/IvanBrykalov/heapcache/policy"
	"github.com/IvanBrykalov/heapcache/worker"
)

// Defaults applied by New.
const (
	DefaultMaxSize       = 2000
	DefaultQueueCapacity = 127
	DefaultMaxPolls      = 23
	DefaultTimerTick     = 10 * time.Millisecond
	DefaultSweepGrace    = time.Second
)

// EvictReason explains why an entry left the cache without an explicit
// Remove.
type EvictReason int

const (
	// EvictPolicy: chosen as victim by the eviction policy.
	EvictPolicy EvictReason = iota
	// EvictTTL: expired and reclaimed by the sweeper.
	EvictTTL
	// EvictCapacity: removed synchronously because the cache crossed
	// MaxSizeHighBound.
	EvictCapacity
)

func (r EvictReason) String() string {
	switch r {
	case EvictPolicy:
		return "policy"
	case EvictTTL:
		return "ttl"
	case EvictCapacity:
		return "capacity"
	default:
		return "unknown"
	}
}

// Metrics receives cache events. NoopMetrics is used by default.
// Implementations must be safe for concurrent use.
type Metrics interface {
	Hit()
	Miss()
	Load(d time.Duration, err error)
	Evict(reason EvictReason)
	Expire()
	Size(entries int)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

type systemClock struct{}

func (systemClock) NowUnixNano() int64 { return time.Now().UnixNano() }

// Config is the plain configuration record of a cache. It can be filled
// from the environment or YAML by package config.
type Config struct {
	// Name identifies the cache in logs and metrics; should be unique per
	// process. Defaults to "cache-<uuid>".
	Name string `env:"NAME" yaml:"name"`
	// MaxSize is the steady-state entry limit.
	MaxSize int `env:"MAX_SIZE" yaml:"max_size"`
	// MaxSizeHighBound caps the transient overshoot; crossing it makes
	// producers evict synchronously. Defaults to 2*MaxSize.
	MaxSizeHighBound int `env:"MAX_SIZE_HIGH_BOUND" yaml:"max_size_high_bound"`
	// HeapEntryCapacity pre-sizes the hash index.
	HeapEntryCapacity int `env:"HEAP_ENTRY_CAPACITY" yaml:"heap_entry_capacity"`
	// ExpiryMillis and ExpirySeconds are alternative forms of the entry
	// TTL; set at most one. Zero means entries never expire.
	ExpiryMillis  int64 `env:"EXPIRY_MILLIS" yaml:"expiry_millis"`
	ExpirySeconds int64 `env:"EXPIRY_SECONDS" yaml:"expiry_seconds"`
	// Eternal declares that entries never expire. It conflicts with any
	// expiry setting.
	Eternal bool `env:"ETERNAL" yaml:"eternal"`
	// Implementation selects the eviction policy: clockpro (default), lru
	// or twoq. Ignored when Options.Policy is set.
	Implementation string `env:"IMPLEMENTATION" yaml:"implementation"`
	// TimerTick is the expiry timer resolution.
	TimerTick time.Duration `env:"TIMER_TICK" yaml:"timer_tick"`
	// SweepGrace is how long an expired entry stays before the sweeper
	// removes it.
	SweepGrace time.Duration `env:"SWEEP_GRACE" yaml:"sweep_grace"`
	// LoadTimeout bounds each Source call. Zero means no limit; loads are
	// still cancelled by Close.
	LoadTimeout time.Duration `env:"LOAD_TIMEOUT" yaml:"load_timeout"`
	// OperationTimeout bounds how long Get waits for a load.
	OperationTimeout time.Duration `env:"OPERATION_TIMEOUT" yaml:"operation_timeout"`
	// NegativeTTL caches load failures for this long. Zero disables
	// negative caching.
	NegativeTTL time.Duration `env:"NEGATIVE_TTL" yaml:"negative_ttl"`
}

// TTL returns the configured entry lifetime, zero for none.
func (c Config) TTL() time.Duration {
	switch {
	case c.ExpiryMillis > 0:
		return time.Duration(c.ExpiryMillis) * time.Millisecond
	case c.ExpirySeconds > 0:
		return time.Duration(c.ExpirySeconds) * time.Second
	default:
		return 0
	}
}

// Validate reports the first invalid combination as a *ConfigError.
func (c Config) Validate() error {
	switch {
	case c.MaxSize < 0:
		return &ConfigError{Field: "MaxSize", Reason: "must not be negative"}
	case c.MaxSizeHighBound < 0:
		return &ConfigError{Field: "MaxSizeHighBound", Reason: "must not be negative"}
	case c.MaxSizeHighBound > 0 && c.MaxSizeHighBound < c.MaxSize:
		return &ConfigError{Field: "MaxSizeHighBound", Reason: "must be >= MaxSize"}
	case c.ExpiryMillis < 0 || c.ExpirySeconds < 0:
		return &ConfigError{Field: "Expiry", Reason: "must not be negative"}
	case c.ExpiryMillis > 0 && c.ExpirySeconds > 0:
		return &ConfigError{Field: "Expiry", Reason: "ExpiryMillis and ExpirySeconds are mutually exclusive"}
	case c.Eternal && c.TTL() > 0:
		return &ConfigError{Field: "Eternal", Reason: "eternal cache cannot have an expiry"}
	case c.TimerTick < 0 || c.SweepGrace < 0:
		return &ConfigError{Field: "TimerTick", Reason: "durations must not be negative"}
	case c.LoadTimeout < 0 || c.OperationTimeout < 0 || c.NegativeTTL < 0:
		return &ConfigError{Field: "Timeout", Reason: "durations must not be negative"}
	}
	switch c.Implementation {
	case "", policy.ClockPro, policy.LRU, policy.TwoQ:
	default:
		return &ConfigError{Field: "Implementation", Reason: "unknown policy " + c.Implementation}
	}
	return nil
}

// WithDefaults returns c with zero fields set to their defaults.
func (c Config) WithDefaults() Config {
	if c.Name == "" {
		c.Name = "cache-" + uuid.NewString()
	}
	if c.MaxSize == 0 {
		c.MaxSize = DefaultMaxSize
	}
	if c.MaxSizeHighBound == 0 {
		c.MaxSizeHighBound = 2 * c.MaxSize
	}
	if c.Implementation == "" {
		c.Implementation = policy.ClockPro
	}
	if c.TimerTick == 0 {
		c.TimerTick = DefaultTimerTick
	}
	if c.SweepGrace == 0 {
		c.SweepGrace = DefaultSweepGrace
	}
	return c
}

// Options configures a cache: the plain Config plus behavioural
// collaborators. Zero values are safe; defaults are applied in New:
//   - nil Policy   => chosen by Config.Implementation
//   - nil Metrics  => NoopMetrics
//   - nil Logger   => slog.Default()
//   - nil Pool     => the shared process-wide worker pool
type Options[K comparable, V any] struct {
	Config

	// Source loads values on a miss. Without it Get fails with ErrNoSource
	// on a miss.
	Source *Source[K, V]
	// RefreshController enables refresh-ahead. Requires an expiry.
	RefreshController RefreshController

	// Policy overrides the built-in policy variants.
	Policy policy.Policy[K]
	// Hasher overrides key hashing (required for key types HashKey does
	// not support).
	Hasher func(K) uint64

	// Observability
	Metrics Metrics
	Logger  *slog.Logger
	// OnEvict is called after an entry was evicted or swept. It runs on
	// the evicting goroutine with no cache lock held and may call back into
	// the cache; keep it lightweight, since producers may be the ones
	// evicting.
	OnEvict func(k K, v V, reason EvictReason)

	// Clock allows overriding the time source (tests). Nil => time.Now().
	Clock Clock
	// Pool runs the eviction job. Nil => worker.Acquire().
	Pool *worker.Pool
	// QueueCapacity sizes the submission queue (default 127).
	QueueCapacity int
	// MaxPolls is the batch size of one eviction job run (default 23).
	MaxPolls int
}

// eternal marks entries that never expire.
const eternal = math.MaxInt64
