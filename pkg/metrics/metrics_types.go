package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics for the relay service
type Registry struct {
	// HTTP Metrics (admin surface)
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Link Metrics
	LinkState            *prometheus.GaugeVec
	LinkTransitionsTotal *prometheus.CounterVec
	ConnectAttemptsTotal *prometheus.CounterVec
	FailedCalls          prometheus.Gauge
	FetchesTotal         *prometheus.CounterVec
	FetchItems           prometheus.Histogram
	RemoteHeartbeatAge   prometheus.Gauge

	// Negotiation Metrics
	PrimaryState          *prometheus.GaugeVec
	RoleChangesTotal      *prometheus.CounterVec
	RelayModeChangesTotal *prometheus.CounterVec

	// Merge and bookkeeping Metrics
	MergeOutcomesTotal *prometheus.CounterVec
	StatusWritesTotal  *prometheus.CounterVec
	TasksSubmitted     prometheus.Counter

	// Worker Metrics
	WorkerSessionsTotal *prometheus.CounterVec
	WorkerItemsQueued   *prometheus.CounterVec
	WorkerQueueDepth    prometheus.Gauge

	// System Metrics
	UptimeSeconds prometheus.Gauge
	GoRoutines    prometheus.Gauge

	registry *prometheus.Registry
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initHTTPMetrics()
	r.initLinkMetrics()
	r.initNegotiationMetrics()
	r.initMergeMetrics()
	r.initWorkerMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves this registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
