package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dernekportal/portal-api/internal/observability/statsd"
)

// Registry owns the service's Prometheus collectors and forwards the domain
// counters to StatsD when a sink is configured.
type Registry struct {
	reg  *prometheus.Registry
	sink statsd.Sink

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	authDecisions       *prometheus.CounterVec
	violations          *prometheus.CounterVec
}

// NewRegistry builds a registry with Go and process collectors. sink may be nil.
func NewRegistry(sink statsd.Sink) *Registry {
	r := &Registry{
		reg:  prometheus.NewRegistry(),
		sink: sink,
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portal_http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		authDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_auth_decisions_total",
			Help: "Authorization guard decisions by result and error kind.",
		}, []string{"result", "kind"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_rate_limit_violations_total",
			Help: "Rate limit violations by endpoint classification and outcome.",
		}, []string{"classification", "outcome"}),
	}
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.httpInFlight, r.httpRequestsTotal, r.httpRequestDuration,
		r.authDecisions, r.violations,
	)
	return r
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// AuthDecision records one guard outcome. kind is empty on allow.
func (r *Registry) AuthDecision(result, kind string, err error) {
	if r == nil {
		return
	}
	r.authDecisions.WithLabelValues(result, kind).Inc()
	EmitAuthDecision(r.sink, AuthMetric{Result: result, Kind: kind, Err: err})
}

// Violation records one rate limit violation.
func (r *Registry) Violation(classification, outcome string) {
	if r == nil {
		return
	}
	r.violations.WithLabelValues(classification, outcome).Inc()
	EmitViolation(r.sink, classification, outcome)
}

// Instrument wraps next with request counters labelled by route. route should be the
// mux pattern, not the raw path, to keep label cardinality bounded.
func (r *Registry) Instrument(route string, next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.httpInFlight.Inc()
		defer r.httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, req)

		status := strconv.Itoa(sw.code)
		r.httpRequestDuration.WithLabelValues(req.Method, route, status).Observe(time.Since(start).Seconds())
		r.httpRequestsTotal.WithLabelValues(req.Method, route, status).Inc()
		if r.sink != nil {
			r.sink.Timing("http.request", time.Since(start), map[string]string{
				"method": req.Method, "route": route, "status": status,
			})
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.code = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
