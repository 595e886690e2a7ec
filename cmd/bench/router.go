package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IvanBrykalov/heapcache/cache"
)

type statser interface {
	Stats() cache.Stats
}

// newRouter exposes /metrics (Prometheus default registry), /stats (JSON
// snapshot of s) and /debug (pprof).
func newRouter(s statser) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		st := s.Stats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(statsView{Stats: st, HitRate: st.HitRate()})
	})
	r.Mount("/debug", middleware.Profiler())
	return r
}

type statsView struct {
	cache.Stats
	HitRate float64 `json:"HitRate"`
}
