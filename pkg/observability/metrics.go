package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Every Observe/Set helper is safe to
// call on a nil *Metrics so components can run without instrumentation.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Database metrics
	TxTotal            *prometheus.CounterVec
	TxDuration         prometheus.Histogram
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec
	IdentityCacheTotal  *prometheus.CounterVec

	// Pipeline metrics
	StageTransitionsTotal     *prometheus.CounterVec
	EventsEmittedTotal        *prometheus.CounterVec
	EventHandlerFailuresTotal *prometheus.CounterVec
	PipelinePeople            *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sunup_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sunup_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sunup_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "route"},
		),

		TxTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sunup_db_transactions_total",
				Help: "Database transactions by outcome",
			},
			[]string{"outcome"},
		),
		TxDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sunup_db_transaction_duration_seconds",
				Help:    "Database transaction duration in seconds, including retries",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),
		DBConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sunup_db_connections_open",
				Help: "Number of open database connections",
			},
		),
		DBConnectionsInUse: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sunup_db_connections_in_use",
				Help: "Number of database connections in use",
			},
		),

		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sunup_authz_decisions_total",
				Help: "Authorization guard decisions",
			},
			[]string{"check", "outcome"},
		),
		IdentityCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sunup_identity_cache_total",
				Help: "Subject to user id cache lookups",
			},
			[]string{"result"},
		),

		StageTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sunup_pipeline_transitions_total",
				Help: "Pipeline stage transition attempts by outcome",
			},
			[]string{"outcome"},
		),
		EventsEmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sunup_events_emitted_total",
				Help: "Domain events recorded, by type and status",
			},
			[]string{"event_type", "status"},
		),
		EventHandlerFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sunup_event_handler_failures_total",
				Help: "Event handler failures, by event type and handler",
			},
			[]string{"event_type", "handler"},
		),
		PipelinePeople: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sunup_pipeline_people",
				Help: "People currently in each pipeline stage",
			},
			[]string{"tenant_id", "stage"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.TxTotal,
		m.TxDuration,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.AuthzDecisionsTotal,
		m.IdentityCacheTotal,
		m.StageTransitionsTotal,
		m.EventsEmittedTotal,
		m.EventHandlerFailuresTotal,
		m.PipelinePeople,
	)

	return m
}

// ObserveTx records a finished transaction
func (m *Metrics) ObserveTx(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.TxTotal.WithLabelValues(outcome).Inc()
	m.TxDuration.Observe(d.Seconds())
}

// ObserveTxRetry counts a retried transaction attempt
func (m *Metrics) ObserveTxRetry() {
	if m == nil {
		return
	}
	m.TxTotal.WithLabelValues("retried").Inc()
}

// RecordDBStats copies connection pool statistics into gauges
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.Set(float64(stats.InUse))
}

// ObserveAuthz records a guard decision
func (m *Metrics) ObserveAuthz(check, outcome string) {
	if m == nil {
		return
	}
	m.AuthzDecisionsTotal.WithLabelValues(check, outcome).Inc()
}

// ObserveIdentityCache records a subject cache lookup
func (m *Metrics) ObserveIdentityCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.IdentityCacheTotal.WithLabelValues(result).Inc()
}

// ObserveTransition records a stage transition attempt
func (m *Metrics) ObserveTransition(outcome string) {
	if m == nil {
		return
	}
	m.StageTransitionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveEvent records an event emission
func (m *Metrics) ObserveEvent(eventType, status string) {
	if m == nil {
		return
	}
	m.EventsEmittedTotal.WithLabelValues(eventType, status).Inc()
}

// ObserveHandlerFailure records a failed or panicking event handler
func (m *Metrics) ObserveHandlerFailure(eventType, handler string) {
	if m == nil {
		return
	}
	m.EventHandlerFailuresTotal.WithLabelValues(eventType, handler).Inc()
}

// SetPipelinePeople sets the occupancy gauge for one stage
func (m *Metrics) SetPipelinePeople(tenantID, stage string, count int) {
	if m == nil {
		return
	}
	m.PipelinePeople.WithLabelValues(tenantID, stage).Set(float64(count))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel returns the mux route template so ids do not explode label cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
