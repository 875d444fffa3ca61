package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values shared by the job and authorization metrics.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can be constructed without a registry in tests.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Job metrics
	JobRunsTotal   *prometheus.CounterVec
	JobItemsTotal  *prometheus.CounterVec
	JobDuration    *prometheus.HistogramVec

	// Domain metrics
	AuthorizationChecksTotal *prometheus.CounterVec
	InvoiceTransitionsTotal  *prometheus.CounterVec
	RosterMutationsTotal     *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carehub_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "carehub_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		JobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carehub_job_runs_total",
				Help: "Total number of background job runs",
			},
			[]string{"job", "outcome"},
		),
		JobItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carehub_job_items_total",
				Help: "Total number of items processed by background jobs",
			},
			[]string{"job", "outcome"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "carehub_job_duration_seconds",
				Help:    "Background job run duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
			},
			[]string{"job"},
		),
		AuthorizationChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carehub_authorization_checks_total",
				Help: "Total number of authorization checks",
			},
			[]string{"outcome"},
		),
		InvoiceTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carehub_invoice_transitions_total",
				Help: "Total number of invoice status transitions",
			},
			[]string{"from", "to"},
		),
		RosterMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carehub_roster_mutations_total",
				Help: "Total number of roster add/remove operations",
			},
			[]string{"operation", "outcome"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.JobRunsTotal,
		m.JobItemsTotal,
		m.JobDuration,
		m.AuthorizationChecksTotal,
		m.InvoiceTransitionsTotal,
		m.RosterMutationsTotal,
	)

	return m
}

// ObserveJobRun records one finished job run.
func (m *Metrics) ObserveJobRun(job, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.JobRunsTotal.WithLabelValues(job, outcome).Inc()
	m.JobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// JobItem records one processed job item.
func (m *Metrics) JobItem(job, outcome string) {
	if m == nil {
		return
	}
	m.JobItemsTotal.WithLabelValues(job, outcome).Inc()
}

// AuthorizationCheck records the outcome of one authorization decision.
func (m *Metrics) AuthorizationCheck(outcome string) {
	if m == nil {
		return
	}
	m.AuthorizationChecksTotal.WithLabelValues(outcome).Inc()
}

// InvoiceTransition records an invoice status change.
func (m *Metrics) InvoiceTransition(from, to string) {
	if m == nil {
		return
	}
	m.InvoiceTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RosterMutation records one roster add or remove.
func (m *Metrics) RosterMutation(operation, outcome string) {
	if m == nil {
		return
	}
	m.RosterMutationsTotal.WithLabelValues(operation, outcome).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format.
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
