// Package metrics holds the Prometheus collectors for the workflow engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "expenseflow",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "expenseflow",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "expenseflow",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	expenseSubmissions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "expenseflow",
			Subsystem: "workflow",
			Name:      "submissions_total",
			Help:      "Total number of expense claims submitted.",
		},
	)

	approvalDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "expenseflow",
			Subsystem: "workflow",
			Name:      "decisions_total",
			Help:      "Total number of approval decisions, by outcome.",
		},
		[]string{"outcome"},
	)

	conversionFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "expenseflow",
			Subsystem: "currency",
			Name:      "conversion_fallbacks_total",
			Help:      "Submissions that degraded to the identity conversion.",
		},
	)
)

func init() {
	Registry.MustRegister(httpInFlight, httpRequests, httpDuration,
		expenseSubmissions, approvalDecisions, conversionFallbacks)
}

// ObserveSubmission records one accepted expense submission.
func ObserveSubmission() { expenseSubmissions.Inc() }

// ObserveDecision records one applied approval decision.
func ObserveDecision(outcome string) { approvalDecisions.WithLabelValues(outcome).Inc() }

// ObserveConversionFallback records a degraded currency conversion.
func ObserveConversionFallback() { conversionFallbacks.Inc() }

// Handler exposes the registry in Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts, durations and in-flight gauge for every
// request, labelling by route template rather than raw path.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if template, err := route.GetPathTemplate(); err == nil {
				path = template
			}
		}

		httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
