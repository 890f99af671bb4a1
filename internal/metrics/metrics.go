// Package metrics exposes Prometheus collectors for the collector service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	rowsTotal            *prometheus.CounterVec
	fetchAttemptsTotal   *prometheus.CounterVec
	fetchRetriesTotal    prometheus.Counter
	rateLimitWaitSeconds prometheus.Histogram
	runsTotal            *prometheus.CounterVec
	runDurationSeconds   prometheus.Histogram

	once sync.Once
)

// Init registers the collectors. Safe to call multiple times; every
// Observe helper calls it so callers never race an unregistered metric.
func Init() {
	once.Do(func() {
		rowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serptrend_rows_total",
				Help: "Query rows processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serptrend_fetch_attempts_total",
				Help: "Search fetch attempts, labeled by result class.",
			},
			[]string{"class"},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "serptrend_fetch_retries_total",
				Help: "Retries scheduled after transient fetch failures.",
			},
		)

		rateLimitWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "serptrend_rate_limit_wait_seconds",
				Help:    "Time spent waiting on the global request pacer.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serptrend_runs_total",
				Help: "Completed runs, labeled by terminal state.",
			},
			[]string{"state"},
		)

		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "serptrend_run_duration_seconds",
				Help:    "Wall time of a full run.",
				Buckets: []float64{1, 10, 30, 60, 120, 300, 600, 1800},
			},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveRow counts one processed row by outcome
// (succeeded, transient, permanent, parse, skipped).
func ObserveRow(outcome string) {
	Init()
	rowsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetchAttempt counts one wire attempt by result class
// (ok, transient, permanent, error).
func ObserveFetchAttempt(class string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(class).Inc()
}

// ObserveRetry counts a scheduled retry.
func ObserveRetry() {
	Init()
	fetchRetriesTotal.Inc()
}

// ObserveRateLimitWait records time spent blocked on the pacer.
func ObserveRateLimitWait(d time.Duration) {
	Init()
	rateLimitWaitSeconds.Observe(d.Seconds())
}

// ObserveRun records one finished run and its duration.
func ObserveRun(state string, d time.Duration) {
	Init()
	runsTotal.WithLabelValues(state).Inc()
	runDurationSeconds.Observe(d.Seconds())
}
