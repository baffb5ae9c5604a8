// Package metrics provides the Prometheus collectors of the Vehix API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vehix"

// Metrics holds every collector, registered on its own registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// AuthDecisions counts gateway decisions.
	// Labels:
	//   - requirement: "api_key", "frontend"
	//   - outcome: "allowed", "missing_key", "decode", "not_found", ...
	AuthDecisions *prometheus.CounterVec

	// CacheLookups counts fast path lookups.
	// Labels:
	//   - result: "hit", "miss", "error"
	CacheLookups *prometheus.CounterVec

	// StoreDuration measures key store calls made on the request path.
	StoreDuration *prometheus.HistogramVec

	// Reconciliations counts handled marker expirations.
	// Labels:
	//   - outcome: "applied", "empty", "invalid_user", "store_error", "cache_error"
	Reconciliations *prometheus.CounterVec

	// ReconciledUsage sums usage folded into the key store.
	ReconciledUsage prometheus.Counter

	// HTTPRequests counts served requests.
	HTTPRequests *prometheus.CounterVec

	// HTTPDuration measures request latency.
	HTTPDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		AuthDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apikey_auth_decisions_total",
			Help:      "Total number of API key gateway decisions",
		}, []string{"requirement", "outcome"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apikey_cache_lookups_total",
			Help:      "Total number of API key usage cache lookups",
		}, []string{"result"}),
		StoreDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "apikey_store_duration_seconds",
			Help:      "Duration of key store calls on the request path",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),
		Reconciliations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apikey_reconciliations_total",
			Help:      "Total number of usage reconciliations",
		}, []string{"outcome"}),
		ReconciledUsage: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apikey_reconciled_usage_total",
			Help:      "Total usage folded back into the key store",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveAuth records a gateway decision.
func (m *Metrics) ObserveAuth(requirement, outcome string) {
	if m == nil {
		return
	}
	m.AuthDecisions.WithLabelValues(requirement, outcome).Inc()
}

// ObserveCache records a fast path lookup result.
func (m *Metrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveStore records the duration of a key store call.
func (m *Metrics) ObserveStore(operation string, started time.Time) {
	if m == nil {
		return
	}
	m.StoreDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// ObserveReconcile records a reconciliation outcome and the usage it applied.
func (m *Metrics) ObserveReconcile(outcome string, usage int64) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(outcome).Inc()
	if usage > 0 {
		m.ReconciledUsage.Add(float64(usage))
	}
}

// ObserveHTTP records a served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
