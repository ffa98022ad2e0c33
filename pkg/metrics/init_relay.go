package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initLinkMetrics() {
	r.LinkState = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_link_state",
			Help: "Link state (1 for current state, 0 otherwise)",
		},
		[]string{"state"},
	)

	r.LinkTransitionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_link_transitions_total",
			Help: "Link state transitions by destination state",
		},
		[]string{"to"},
	)

	r.ConnectAttemptsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_connect_attempts_total",
			Help: "Attempts to start a partner session",
		},
		[]string{"result"}, // started, refused
	)

	r.FailedCalls = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_failed_calls",
			Help: "Consecutive entries into DISCONNECTED since the last working connection",
		},
	)

	r.FetchesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_fetches_total",
			Help: "Partner fetches by lookback and outcome",
		},
		[]string{"lookback", "outcome"}, // long/short; requested, finished, failed, refused
	)

	r.FetchItems = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_fetch_items",
			Help:    "Items delivered by a completed fetch",
			Buckets: []float64{0, 1, 10, 100, 1000, 10000},
		},
	)

	r.RemoteHeartbeatAge = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_remote_heartbeat_age_seconds",
			Help: "Age of the partner's last observed heartbeat",
		},
	)
}

func (r *Registry) initNegotiationMetrics() {
	r.PrimaryState = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_primary_state",
			Help: "Negotiated role (1 for current state, 0 otherwise)",
		},
		[]string{"state"},
	)

	r.RoleChangesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_role_changes_total",
			Help: "Signals sent to the active role collaborator",
		},
		[]string{"role"}, // primary, secondary
	)

	r.RelayModeChangesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_mode_changes_total",
			Help: "Relay configuration changes by source",
		},
		[]string{"source"}, // local, remote
	)
}

func (r *Registry) initMergeMetrics() {
	r.MergeOutcomesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_merge_outcomes_total",
			Help: "Inbound items by kind and merge outcome",
		},
		[]string{"kind", "outcome"}, // applied, not_applied, error
	)

	r.StatusWritesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_status_writes_total",
			Help: "Local status writes by reason",
		},
		[]string{"reason"}, // changed, heartbeat, shutdown
	)

	r.TasksSubmitted = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "relay_tasks_submitted_total",
			Help: "Analyst overrides forwarded to the task queue",
		},
	)
}

func (r *Registry) initWorkerMetrics() {
	r.WorkerSessionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_worker_sessions_total",
			Help: "Partner sessions by outcome",
		},
		[]string{"outcome"}, // running, failed
	)

	r.WorkerItemsQueued = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_worker_items_queued_total",
			Help: "Items queued for the relay core by origin",
		},
		[]string{"origin"}, // status, watch, fetch
	)

	r.WorkerQueueDepth = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_worker_queue_depth",
			Help: "Items waiting in the worker queue",
		},
	)
}

func (r *Registry) initSystemMetrics() {
	r.UptimeSeconds = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_uptime_seconds",
			Help: "Time since the server started in seconds",
		},
	)

	r.GoRoutines = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_goroutines",
			Help: "Number of goroutines",
		},
	)
}
