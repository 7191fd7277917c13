package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics mirrors the teacher's request-instrumentation histograms/counters
// (dexidp/dex's server.instrumentHandler), labeled by the route name rather
// than the raw path so cardinality stays bounded.
type metrics struct {
	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcpgw_http_requests_total",
		Help: "Count of all HTTP requests handled by the gateway.",
	}, []string{"code", "method", "route"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mcpgw_http_request_duration_seconds",
		Help:    "Latency of HTTP requests handled by the gateway.",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"code", "method", "route"})
	registry.MustRegister(requests, durations)
	return &metrics{registry: registry, requests: requests, durations: durations}
}

// instrument wraps handler so every call records a request count and
// latency observation labeled with route.
func (m *metrics) instrument(route string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		handler(sw, r)
		m.requests.WithLabelValues(strconv.Itoa(sw.status), r.Method, route).Inc()
		m.durations.WithLabelValues(strconv.Itoa(sw.status), r.Method, route).Observe(time.Since(start).Seconds())
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
