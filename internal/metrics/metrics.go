// Package metrics exposes Prometheus collectors for the profiler service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	derivationsTotal               *prometheus.CounterVec
	cacheRequestsTotal             *prometheus.CounterVec
	classifierStageDurationSeconds *prometheus.HistogramVec
	httpRequestsTotal              *prometheus.CounterVec
	httpRequestDurationSeconds     *prometheus.HistogramVec
	profileWriteConflictsTotal     prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		derivationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profiler_derivations_total",
				Help: "Total number of site derivations, labeled by result.",
			},
			[]string{"result"},
		)

		cacheRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profiler_cache_requests_total",
				Help: "Total number of artifact cache lookups, labeled by artifact and result.",
			},
			[]string{"artifact", "result"},
		)

		classifierStageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "profiler_classifier_stage_duration_seconds",
				Help:    "Histogram of classifier stage latencies, labeled by stage.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stage"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)

		profileWriteConflictsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "profiler_profile_write_conflicts_total",
				Help: "Total profile writes abandoned after losing every compare-and-swap attempt.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDerivation increments the derivation counter for the given result.
func ObserveDerivation(result string) {
	derivationsTotal.WithLabelValues(result).Inc()
}

// ObserveCacheRequest increments the cache lookup counter.
func ObserveCacheRequest(artifact, result string) {
	cacheRequestsTotal.WithLabelValues(artifact, result).Inc()
}

// ObserveClassifierStage records the duration of one classifier stage.
func ObserveClassifierStage(stage string, duration time.Duration) {
	classifierStageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveProfileWriteConflict increments the exhausted-write-conflict counter.
func ObserveProfileWriteConflict() {
	profileWriteConflictsTotal.Inc()
}
