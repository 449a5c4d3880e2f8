// Package metrics exposes capsule's Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "capsule"

// Cache lookup results.
const (
	ResultHit       = "hit"
	ResultMiss      = "miss"
	ResultExpired   = "expired"
	ResultMalformed = "malformed"
	ResultError     = "error"
)

var (
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by entry kind and result",
		},
		[]string{"kind", "result"},
	)

	CachePurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "purged_total",
			Help:      "Expired or malformed cache entries removed by purge",
		},
	)

	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "requests_total",
			Help:      "Text generation requests by purpose and status",
		},
		[]string{"purpose", "status"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Text generation latency in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
		},
		[]string{"purpose"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)
)

// RecordCacheLookup counts one cache lookup.
func RecordCacheLookup(kind, result string) {
	CacheLookups.WithLabelValues(kind, result).Inc()
}

// RecordGeneration counts one generation request and observes its latency.
func RecordGeneration(purpose string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	GenerationsTotal.WithLabelValues(purpose, status).Inc()
	GenerationDuration.WithLabelValues(purpose).Observe(elapsed.Seconds())
}

// RecordHTTPRequest counts one served request.
func RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
