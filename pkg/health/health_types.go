package health

import (
	"sync"
	"time"
)

// Status is the outcome of a probe
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Probe selects which endpoint a check contributes to
type Probe int

const (
	// Liveness checks back /health; degraded still answers 200
	Liveness Probe = iota
	// Readiness checks back /ready; anything short of healthy answers 503
	Readiness
)

func (p Probe) String() string {
	if p == Readiness {
		return "readiness"
	}
	return "liveness"
}

// Check is a single probe result
type Check struct {
	Name       string         `json:"name"`
	Status     Status         `json:"status"`
	Message    string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CheckedAt  time.Time      `json:"checked_at"`
	DurationMS int64          `json:"duration_ms"`
}

// CheckFunc performs one probe
type CheckFunc func() Check

type registration struct {
	name  string
	probe Probe
	fn    CheckFunc
}

// Checker runs the relay server's registered probes
type Checker struct {
	server  int
	checks  []registration
	started time.Time
	now     func() time.Time
	mu      sync.RWMutex
}

// Response is the body served by the probe endpoints. Checks are ordered by name.
type Response struct {
	Server    int       `json:"server"`
	Probe     string    `json:"probe"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Check   `json:"checks"`
	Uptime    float64   `json:"uptime_seconds"`
}
