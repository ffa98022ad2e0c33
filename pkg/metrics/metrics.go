package metrics

import (
	"runtime"
	"time"
)

// RecordHTTPRequest records an admin HTTP request with its duration
func (r *Registry) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetLinkState marks state as the current link state
func (r *Registry) SetLinkState(state string) {
	r.LinkState.Reset()
	r.LinkState.WithLabelValues(state).Set(1)
	r.LinkTransitionsTotal.WithLabelValues(state).Inc()
}

// SetPrimaryState marks state as the current negotiated role
func (r *Registry) SetPrimaryState(state string) {
	r.PrimaryState.Reset()
	r.PrimaryState.WithLabelValues(state).Set(1)
}

// RecordFetch records a fetch lifecycle event
func (r *Registry) RecordFetch(long bool, outcome string) {
	lookback := "short"
	if long {
		lookback = "long"
	}
	r.FetchesTotal.WithLabelValues(lookback, outcome).Inc()
}

// RecordMerge records the outcome of merging one inbound item
func (r *Registry) RecordMerge(kind, outcome string) {
	r.MergeOutcomesTotal.WithLabelValues(kind, outcome).Inc()
}

// UpdateSystemMetrics refreshes process gauges
func (r *Registry) UpdateSystemMetrics(start time.Time) {
	r.UptimeSeconds.Set(time.Since(start).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
}
