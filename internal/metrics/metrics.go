// Package metrics exposes prometheus instrumentation for ephemeris searches,
// calendar conversions and the REST API.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/chrissnell/lunarcal/pkg/ephemeris"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Ephemeris ──────────────────────────────────────────────────────────────

// Searches counts crossing searches by body and outcome.
var Searches = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lunarcal",
	Subsystem: "ephemeris",
	Name:      "searches_total",
	Help:      "Total crossing searches by body and result.",
}, []string{"body", "result"})

// SearchDuration tracks wall time spent per crossing search.
var SearchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "lunarcal",
	Subsystem: "ephemeris",
	Name:      "search_duration_seconds",
	Help:      "Crossing search latency in seconds.",
	Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
}, []string{"body"})

// SearchIterations tracks bisection steps per successful search.
var SearchIterations = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "lunarcal",
	Subsystem: "ephemeris",
	Name:      "search_iterations",
	Help:      "Bisection iterations per crossing search.",
	Buckets:   []float64{5, 10, 15, 20, 25, 30, 40, 64},
})

// SearchSamples counts coarse longitude evaluations.
var SearchSamples = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lunarcal",
	Subsystem: "ephemeris",
	Name:      "scan_samples_total",
	Help:      "Total coarse samples taken while bracketing crossings.",
}, []string{"body"})

// ─── Calendar ───────────────────────────────────────────────────────────────

// Conversions counts calendar operations by name and outcome.
var Conversions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lunarcal",
	Subsystem: "calendar",
	Name:      "operations_total",
	Help:      "Total calendar operations by operation and result.",
}, []string{"operation", "result"})

// ConversionDuration tracks calendar operation latency.
var ConversionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "lunarcal",
	Subsystem: "calendar",
	Name:      "operation_duration_seconds",
	Help:      "Calendar operation latency in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"operation"})

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPRequests counts REST requests by route and status code.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "lunarcal",
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "Total REST requests by route and status code.",
}, []string{"route", "code"})

// ObserveSearch records one crossing search. Pass it to ephemeris.WithObserver.
func ObserveSearch(stats ephemeris.SearchStats) {
	body := string(stats.Body)
	Searches.WithLabelValues(body, Result(stats.Err)).Inc()
	SearchDuration.WithLabelValues(body).Observe(stats.Elapsed.Seconds())
	SearchSamples.WithLabelValues(body).Add(float64(stats.Samples))
	if stats.Err == nil {
		SearchIterations.Observe(float64(stats.Iterations))
	}
}

// ObserveConversion records a calendar operation that began at start.
func ObserveConversion(operation string, start time.Time, err error) {
	Conversions.WithLabelValues(operation, Result(err)).Inc()
	ConversionDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Result maps an error to a short label value.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ephemeris.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ephemeris.ErrNotFound):
		return "not_found"
	case errors.Is(err, ephemeris.ErrAmbiguousResult):
		return "ambiguous"
	case errors.Is(err, ephemeris.ErrConvergenceFailure):
		return "convergence_failure"
	case errors.Is(err, ephemeris.ErrEphemerisUnavailable):
		return "ephemeris_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}
