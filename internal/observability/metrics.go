package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	backendDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
)

// Metrics holds all Prometheus instruments. It implements the recorder
// interfaces of the listing, syncrelay and apiclient packages.
type Metrics struct {
	// Local API
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// List controllers
	ListLoadsTotal      *prometheus.CounterVec
	ListLoadDuration    *prometheus.HistogramVec
	ListSupersededTotal *prometheus.CounterVec
	LocalPatchesTotal   *prometheus.CounterVec

	// Sync relay
	SyncSentTotal     *prometheus.CounterVec
	SyncReceivedTotal *prometheus.CounterVec
	SyncDroppedTotal  *prometheus.CounterVec

	// Backend
	BackendRequestsTotal       *prometheus.CounterVec
	BackendRequestDuration     *prometheus.HistogramVec
	BackendCircuitBreakerState prometheus.Gauge
	OpenAPIOperationsIndexed   prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopdesk_http_requests_total",
			Help: "Total number of local API requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shopdesk_http_request_duration_seconds",
			Help:    "Local API request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		ListLoadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopdesk_list_loads_total",
			Help: "Total number of list loads by outcome.",
		}, []string{"resource", "outcome"}),
		ListLoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shopdesk_list_load_duration_seconds",
			Help:    "List load duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"resource"}),
		ListSupersededTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopdesk_list_superseded_total",
			Help: "Total number of list loads discarded because a newer load started.",
		}, []string{"resource"}),
		LocalPatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopdesk_local_patches_total",
			Help: "Total number of local list mutations.",
		}, []string{"resource", "kind"}),

		SyncSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopdesk_sync_sent_total",
			Help: "Total number of sync patches published.",
		}, []string{"topic"}),
		SyncReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopdesk_sync_received_total",
			Help: "Total number of sync patches received.",
		}, []string{"topic"}),
		SyncDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopdesk_sync_dropped_total",
			Help: "Total number of sync messages dropped.",
		}, []string{"topic", "reason"}),

		BackendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopdesk_backend_requests_total",
			Help: "Total number of backend requests.",
		}, []string{"method", "route", "status"}),
		BackendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shopdesk_backend_request_duration_seconds",
			Help:    "Backend request duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"route"}),
		BackendCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shopdesk_backend_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}),
		OpenAPIOperationsIndexed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shopdesk_openapi_operations_indexed",
			Help: "Number of indexed OpenAPI operations.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ListLoadsTotal,
		m.ListLoadDuration,
		m.ListSupersededTotal,
		m.LocalPatchesTotal,
		m.SyncSentTotal,
		m.SyncReceivedTotal,
		m.SyncDroppedTotal,
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		m.BackendCircuitBreakerState,
		m.OpenAPIOperationsIndexed,
	)

	return m
}

// ObserveLoad implements listing.Recorder.
func (m *Metrics) ObserveLoad(resource, outcome string, elapsed time.Duration) {
	m.ListLoadsTotal.WithLabelValues(resource, outcome).Inc()
	m.ListLoadDuration.WithLabelValues(resource).Observe(elapsed.Seconds())
}

// IncSuperseded implements listing.Recorder.
func (m *Metrics) IncSuperseded(resource string) {
	m.ListSupersededTotal.WithLabelValues(resource).Inc()
}

// IncLocalPatch implements listing.Recorder.
func (m *Metrics) IncLocalPatch(resource, kind string) {
	m.LocalPatchesTotal.WithLabelValues(resource, kind).Inc()
}

// IncSyncSent implements syncrelay.Recorder.
func (m *Metrics) IncSyncSent(topic string) {
	m.SyncSentTotal.WithLabelValues(topic).Inc()
}

// IncSyncReceived implements syncrelay.Recorder.
func (m *Metrics) IncSyncReceived(topic string) {
	m.SyncReceivedTotal.WithLabelValues(topic).Inc()
}

// IncSyncDropped implements syncrelay.Recorder.
func (m *Metrics) IncSyncDropped(topic, reason string) {
	m.SyncDroppedTotal.WithLabelValues(topic, reason).Inc()
}

// ObserveBackendRequest implements apiclient.Recorder. A zero status means
// no response was received.
func (m *Metrics) ObserveBackendRequest(method, route string, status int, elapsed time.Duration) {
	m.BackendRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.BackendRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// SetBreakerState implements apiclient.Recorder.
func (m *Metrics) SetBreakerState(state int) {
	m.BackendCircuitBreakerState.Set(float64(state))
}

// MetricsMiddleware records local API metrics using chi's route pattern
// rather than the raw path.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		pattern := routePattern(r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(sw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a /metrics handler serving reg.
func HandlerFor(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// routePattern extracts chi's route pattern, falling back to the raw path.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := rctx.RoutePattern()
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// statusWriter captures the response status.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}
