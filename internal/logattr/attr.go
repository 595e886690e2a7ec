// Package logattr builds the slog attributes shared by the cache packages.
package logattr

import (
	"fmt"
	"log/slog"
	"time"
)

// Component records the emitting subsystem under "component".
func Component(name string) slog.Attr { return slog.String("component", name) }

// Cache records the cache name under "cache".
func Cache(name string) slog.Attr { return slog.String("cache", name) }

// Key records a cache key under "key". Non-string keys are formatted
// with %v.
func Key(k any) slog.Attr {
	if s, ok := k.(string); ok {
		return slog.String("key", s)
	}
	return slog.String("key", fmt.Sprint(k))
}

// Error records err under "error". A nil error yields an empty Attr,
// which slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Duration records d in milliseconds under "duration_ms".
func Duration(d time.Duration) slog.Attr {
	return slog.Float64("duration_ms", float64(d)/float64(time.Millisecond))
}

// Panic records a recovered panic value under "panic".
func Panic(v any) slog.Attr { return slog.String("panic", fmt.Sprint(v)) }

// Worker records a worker index under "worker".
func Worker(i int) slog.Attr { return slog.Int("worker", i) }
