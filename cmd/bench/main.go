// Command bench runs a synthetic Zipf workload against a heap cache and
// serves Prometheus metrics, a JSON stats snapshot and pprof over HTTP.
//
// Cache settings come from HEAPCACHE_* environment variables (a .env file
// is honoured) or from a YAML file given with -config; flags override the
// size and policy. With -redis the cache loads through Redis instead of the
// synthetic source.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/heapcache/cache"
	"github.com/IvanBrykalov/heapcache/config"
	"github.com/IvanBrykalov/heapcache/internal/logattr"
	pmet "github.com/IvanBrykalov/heapcache/metrics/prom"
	"github.com/IvanBrykalov/heapcache/source/redissource"
)

const envPrefix = "HEAPCACHE_"

func main() {
	// ---- Flags ----
	var (
		cfgFile  = flag.String("config", "", "YAML config file (default: environment)")
		maxSize  = flag.Int("max", 0, "max entries (0 = from config)")
		policy   = flag.String("policy", "", "eviction policy: clockpro | lru | twoq (empty = from config)")
		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of load goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")
		latency  = flag.Duration("latency", time.Millisecond, "synthetic source latency")

		keys  = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed  = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		redisURL = flag.String("redis", "", "load values from this Redis URL (e.g. redis://localhost:6379/0)")
		httpAddr = flag.String("http", ":8080", "serve /metrics, /stats and /debug at addr; empty = disabled")
		jsonLogs = flag.Bool("json", false, "log as JSON")
	)
	flag.Parse()

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, nil)
	if *jsonLogs {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	log := slog.New(handler).With(logattr.Component("bench"))

	if err := run(log, benchFlags{
		cfgFile: *cfgFile, maxSize: *maxSize, policy: *policy,
		workers: *workers, duration: *duration, readPct: *readPct, latency: *latency,
		keys: *keys, zipfS: *zipfS, zipfV: *zipfV, seed: *seed,
		redisURL: *redisURL, httpAddr: *httpAddr,
	}); err != nil {
		log.Error("bench failed", logattr.Error(err))
		os.Exit(1)
	}
}

type benchFlags struct {
	cfgFile  string
	maxSize  int
	policy   string
	workers  int
	duration time.Duration
	readPct  int
	latency  time.Duration
	keys     int
	zipfS    float64
	zipfV    float64
	seed     int64
	redisURL string
	httpAddr string
}

func loadConfig(f benchFlags) (cache.Config, error) {
	var (
		cfg cache.Config
		err error
	)
	if f.cfgFile != "" {
		cfg, err = config.LoadFile(f.cfgFile, envPrefix)
	} else {
		cfg, err = config.Load(envPrefix)
	}
	if err != nil {
		return cfg, err
	}
	if f.maxSize > 0 {
		cfg.MaxSize = f.maxSize
		cfg.MaxSizeHighBound = 0
	}
	if f.policy != "" {
		cfg.Implementation = f.policy
	}
	if cfg.Name == "" {
		cfg.Name = "bench"
	}
	return cfg, cfg.Validate()
}

func run(log *slog.Logger, f benchFlags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// ---- Source ----
	var src *cache.Source[string, string]
	if f.redisURL != "" {
		rc, err := redissource.Connect(ctx, redissource.ConnectConfig{URL: f.redisURL})
		if err != nil {
			return err
		}
		defer rc.Close()
		src = redissource.Single(rc, redissource.Options[string, string]{Prefix: "bench:", Decode: redissource.String})
		log.Info("loading from redis", slog.String("url", f.redisURL))
	} else {
		latency := f.latency
		src = cache.SingleSource(func(ctx context.Context, k string) (string, error) {
			select {
			case <-time.After(latency):
				return "v:" + k, nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		})
	}

	// ---- Cache ----
	metrics := pmet.New(nil, "heapcache", "bench", nil)
	c, err := cache.New(cache.Options[string, string]{
		Config:  cfg,
		Source:  src,
		Metrics: metrics,
		Logger:  log,
	})
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	pmet.RegisterStats(nil, "heapcache", "bench", nil, c)

	// ---- HTTP surface ----
	if f.httpAddr != "" {
		srv := &http.Server{Addr: f.httpAddr, Handler: newRouter(c), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info("http: serving", slog.String("addr", f.httpAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server stopped", logattr.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	// ---- Load generation ----
	workersN := max(f.workers, 1)
	keysMax := uint64(max(f.keys, 2) - 1)
	var reads, writes, failures, total atomic.Uint64

	wctx, cancel := context.WithTimeout(ctx, f.duration)
	defer cancel()
	start := time.Now()
	g, wctx := errgroup.WithContext(wctx)
	for w := 0; w < workersN; w++ {
		g.Go(func() error {
			// rand.Rand is not goroutine-safe: one per worker.
			r := rand.New(rand.NewSource(f.seed + int64(w)*9973))
			zipf := rand.NewZipf(r, f.zipfS, f.zipfV, keysMax)
			for wctx.Err() == nil {
				k := "k:" + strconv.FormatUint(zipf.Uint64(), 10)
				total.Add(1)
				if int(r.Int31n(100)) < f.readPct {
					reads.Add(1)
					if _, err := c.Get(wctx, k); err != nil && wctx.Err() == nil {
						failures.Add(1)
					}
					continue
				}
				writes.Add(1)
				if err := c.Put(k, "v"+strconv.Itoa(r.Int())); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	// ---- Report ----
	s := c.Stats()
	ops := total.Load()
	fmt.Printf("policy=%s max=%d workers=%d keys=%d dur=%v seed=%d\n",
		cfg.Implementation, cfg.MaxSize, workersN, f.keys, elapsed.Round(time.Millisecond), f.seed)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d  failures=%d\n",
		ops, float64(ops)/elapsed.Seconds(), reads.Load(), writes.Load(), failures.Load())
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%  loads=%d  avg-load=%v\n",
		s.Hits, s.Misses, s.HitRate()*100, s.Loads, s.AvgLoadTime)
	fmt.Printf("evictions=%d  size=%d  peak=%d  degraded=%v\n", s.Evictions, s.Size, s.PeakSize, s.Degraded)
	return nil
}
