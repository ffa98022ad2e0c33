package health

import (
	"sort"
	"time"
)

// NewChecker creates a checker reporting on behalf of relay server n
func NewChecker(server int) *Checker {
	return newCheckerWithClock(server, time.Now)
}

func newCheckerWithClock(server int, now func() time.Time) *Checker {
	return &Checker{server: server, started: now(), now: now}
}

// Register adds a probe. Registering a name twice for the same probe replaces it.
func (c *Checker) Register(name string, probe Probe, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, reg := range c.checks {
		if reg.name == name && reg.probe == probe {
			c.checks[i].fn = fn
			return
		}
	}
	c.checks = append(c.checks, registration{name: name, probe: probe, fn: fn})
	sort.Slice(c.checks, func(i, j int) bool { return c.checks[i].name < c.checks[j].name })
}

// Report runs every check registered for probe
func (c *Checker) Report(probe Probe) Response {
	c.mu.RLock()
	regs := make([]registration, 0, len(c.checks))
	for _, reg := range c.checks {
		if reg.probe == probe {
			regs = append(regs, reg)
		}
	}
	c.mu.RUnlock()

	now := c.now()
	resp := Response{
		Server:    c.server,
		Probe:     probe.String(),
		Status:    StatusHealthy,
		Timestamp: now,
		Checks:    make([]Check, 0, len(regs)),
		Uptime:    now.Sub(c.started).Seconds(),
	}

	for _, reg := range regs {
		start := c.now()
		check := reg.fn()
		check.DurationMS = c.now().Sub(start).Milliseconds()
		check.CheckedAt = start
		if check.Name == "" {
			check.Name = reg.name
		}
		resp.Checks = append(resp.Checks, check)
		resp.Status = worse(resp.Status, check.Status)
	}
	return resp
}

func severity(s Status) int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

func worse(a, b Status) Status {
	if severity(b) > severity(a) {
		return b
	}
	return a
}
