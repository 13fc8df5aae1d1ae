// Package metrics exposes Prometheus collectors for the pipeline service.
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
	pipelineMessagesTotal      *prometheus.CounterVec
	pipelineBacklogFetchTotal  *prometheus.CounterVec
	extractionDurationSeconds  prometheus.Histogram
	storeInsertDurationSeconds prometheus.Histogram
	consecutiveFailures        prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pipelineMessagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_messages_total",
				Help: "Total number of processed messages, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		pipelineBacklogFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_backlog_fetch_total",
				Help: "Total pending-queue fetch attempts, labeled by result.",
			},
			[]string{"result"},
		)

		extractionDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "extraction_duration_seconds",
				Help:    "Histogram of extraction service call latencies.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		)

		storeInsertDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "store_insert_duration_seconds",
				Help:    "Histogram of record store insert latencies.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		)

		consecutiveFailures = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipeline_consecutive_failures",
				Help: "Current run of consecutive extractor/store failures driving backoff.",
			},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveMessage increments the per-outcome message counter.
func ObserveMessage(outcome string) {
	pipelineMessagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveBacklogFetch increments the fetch counter for "hit", "empty", or
// "error" results.
func ObserveBacklogFetch(result string) {
	pipelineBacklogFetchTotal.WithLabelValues(result).Inc()
}

// ObserveExtraction records the duration of one extraction call.
func ObserveExtraction(duration time.Duration) {
	extractionDurationSeconds.Observe(duration.Seconds())
}

// ObserveStoreInsert records the duration of one insert attempt.
func ObserveStoreInsert(duration time.Duration) {
	storeInsertDurationSeconds.Observe(duration.Seconds())
}

// SetConsecutiveFailures updates the failure-run gauge.
func SetConsecutiveFailures(n int) {
	consecutiveFailures.Set(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
