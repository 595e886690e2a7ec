package cache

import (
	"context"
	"math/rand"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/IvanBrykalov/heapcache/policy"
)

// benchmarkMix exercises a read/write mix against a warm cache with
// parallel workers. String keys include strconv costs, which is fine for
// an end-to-end benchmark.
func benchmarkMix(b *testing.B, impl string, readsPct int) {
	c, err := New(Options[string, string]{
		Config: Config{MaxSize: 100_000, Implementation: impl},
		Logger: quiet,
	})
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = c.Close() })

	for i := 0; i < 50_000; i++ {
		_ = c.Put("k:"+strconv.Itoa(i), "v")
	}

	b.ReportAllocs()
	b.ResetTimer()

	var seed int64 = 1
	keyMask := (1 << 16) - 1

	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(atomic.AddInt64(&seed, 1)))
		i := 0
		for pb.Next() {
			k := "k:" + strconv.Itoa(i&keyMask)
			if r.Intn(100) < readsPct {
				_, _, _ = c.Peek(k)
			} else {
				_ = c.Put(k, "v")
			}
			i++
		}
	})
}

func BenchmarkCache_ClockPro_90r10w(b *testing.B) { benchmarkMix(b, policy.ClockPro, 90) }
func BenchmarkCache_ClockPro_50r50w(b *testing.B) { benchmarkMix(b, policy.ClockPro, 50) }
func BenchmarkCache_LRU_90r10w(b *testing.B)      { benchmarkMix(b, policy.LRU, 90) }
func BenchmarkCache_TwoQ_90r10w(b *testing.B)     { benchmarkMix(b, policy.TwoQ, 90) }

// BenchmarkCache_GetHit measures the lock-free hit path with int keys.
func BenchmarkCache_GetHit(b *testing.B) {
	c, err := New(Options[int, int]{
		Config: Config{MaxSize: 1 << 16},
		Logger: quiet,
		Source: SingleSource(func(_ context.Context, k int) (int, error) { return k, nil }),
	})
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = c.Close() })
	for i := 0; i < 1<<16; i++ {
		_ = c.Put(i, i)
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		i := 0
		for pb.Next() {
			_, _ = c.Get(ctx, i&(1<<16-1))
			i++
		}
	})
}
