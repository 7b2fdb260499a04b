package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus metrics of the service.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	shortages       prometheus.Counter
	allocatedRows   *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	documents       *prometheus.CounterVec
}

// NewMetrics builds a registry holding the HTTP and fulfillment metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fulfillment_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	shortages := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_stock_shortages_total",
		Help: "Items sourced with less stock available than required.",
	})
	rows := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fulfillment_allocated_rows",
		Help:    "Location rows produced by one allocation pass.",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
	}, []string{"purpose"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_pick_list_transitions_total",
		Help: "Pick list status transitions by target status.",
	}, []string{"status"})
	documents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_documents_created_total",
		Help: "Documents derived from pick lists by kind.",
	}, []string{"kind"})
	registry.MustRegister(requests, duration, shortages, rows, transitions, documents)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		shortages:       shortages,
		allocatedRows:   rows,
		transitions:     transitions,
		documents:       documents,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per route.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveShortage counts one item sourced short.
func (m *Metrics) ObserveShortage(string) {
	if m == nil {
		return
	}
	m.shortages.Inc()
}

// ObserveAllocation records the rows one allocation pass produced.
func (m *Metrics) ObserveAllocation(purpose string, rows int) {
	if m == nil {
		return
	}
	m.allocatedRows.WithLabelValues(purpose).Observe(float64(rows))
}

// ObserveTransition counts a pick list reaching status.
func (m *Metrics) ObserveTransition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

// ObserveDocuments counts derived documents of a kind.
func (m *Metrics) ObserveDocuments(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.documents.WithLabelValues(kind).Add(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
