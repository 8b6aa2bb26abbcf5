// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"reliability/internal/ports"
)

const namespace = "reliability"

// Metrics implements ports.Metrics and carries the cache and HTTP collectors.
type Metrics struct {
	recomputes       *prometheus.CounterVec
	logsAppended     *prometheus.CounterVec
	checksums        *prometheus.CounterVec
	conflicts        *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpRequestTimes *prometheus.HistogramVec
}

var _ ports.Metrics = (*Metrics)(nil)

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

func New(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		recomputes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recomputes_total",
			Help:      "Entity recomputes by model and outcome.",
		}, []string{"model", "outcome"}),
		logsAppended: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_logs_appended_total",
			Help:      "Audit log entries committed by model.",
		}, []string{"model"}),
		checksums: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checksum_verifications_total",
			Help:      "Checksum verifications by result.",
		}, []string{"valid"}),
		conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "concurrency_conflicts_total",
			Help:      "Writes rejected by the entity lock or the revision guard.",
		}, []string{"operation"}),
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Read cache hits by backend.",
		}, []string{"backend"}),
		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Read cache misses by backend.",
		}, []string{"backend"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		httpRequestTimes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

func (m *Metrics) ObserveRecompute(model string, outcome string) {
	m.recomputes.WithLabelValues(model, outcome).Inc()
}

func (m *Metrics) ObserveLogAppended(model string) {
	m.logsAppended.WithLabelValues(model).Inc()
}

func (m *Metrics) ObserveChecksum(valid bool) {
	m.checksums.WithLabelValues(strconv.FormatBool(valid)).Inc()
}

func (m *Metrics) ObserveConflict(operation string) {
	m.conflicts.WithLabelValues(operation).Inc()
}

func (m *Metrics) ObserveCacheHit(backend string) {
	m.cacheHits.WithLabelValues(backend).Inc()
}

func (m *Metrics) ObserveCacheMiss(backend string) {
	m.cacheMisses.WithLabelValues(backend).Inc()
}

func (m *Metrics) ObserveHTTPRequest(method string, path string, status int, seconds float64) {
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestTimes.WithLabelValues(method, path).Observe(seconds)
}

// Noop discards every observation.
type Noop struct{}

var _ ports.Metrics = Noop{}

func (Noop) ObserveRecompute(string, string) {}
func (Noop) ObserveLogAppended(string)       {}
func (Noop) ObserveChecksum(bool)            {}
func (Noop) ObserveConflict(string)          {}
func (Noop) ObserveCacheHit(string)          {}
func (Noop) ObserveCacheMiss(string)         {}
