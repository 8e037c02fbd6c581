// Package metrics holds the Prometheus collectors for the song tracker.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics holds all Prometheus collectors. They are usable before Init; Init
// only registers them with the default registry.
var Metrics = struct {
	JobRuns        *prometheus.CounterVec
	JobDuration    *prometheus.HistogramVec
	ItemsProcessed *prometheus.CounterVec
	KeyRotations   prometheus.Counter
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
}{
	JobRuns: prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "songtracker_job_runs_total",
			Help: "Scheduled job runs, by job and outcome.",
		},
		[]string{"job", "outcome"},
	),
	JobDuration: prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "songtracker_job_duration_seconds",
			Help:    "Job run duration in seconds, by job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"job"},
	),
	ItemsProcessed: prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "songtracker_items_total",
			Help: "Items handled by jobs, by job and result.",
		},
		[]string{"job", "result"},
	),
	KeyRotations: prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "songtracker_api_key_rotations_total",
			Help: "Total API key rotations after failed calls.",
		},
	),
	CacheHits: prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "songtracker_ranking_cache_hits_total",
			Help: "Total ranking cache hits.",
		},
	),
	CacheMisses: prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "songtracker_ranking_cache_misses_total",
			Help: "Total ranking cache misses.",
		},
	),
}

var registerOnce sync.Once

// Init registers all collectors with the default Prometheus registry. Safe to
// call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			Metrics.JobRuns,
			Metrics.JobDuration,
			Metrics.ItemsProcessed,
			Metrics.KeyRotations,
			Metrics.CacheHits,
			Metrics.CacheMisses,
		)
	})
}

// RecordRun counts a finished job run and observes its duration.
func RecordRun(job, outcome string, duration time.Duration) {
	Metrics.JobRuns.WithLabelValues(job, outcome).Inc()
	Metrics.JobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// AddItems adds n to the item counter for job and result. Zero counts are ignored.
func AddItems(job, result string, n int) {
	if n <= 0 {
		return
	}
	Metrics.ItemsProcessed.WithLabelValues(job, result).Add(float64(n))
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	Init()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}()

	log.Info().Str("addr", addr).Msg("Serving Prometheus metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
