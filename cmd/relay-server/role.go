package main

import (
	"sync/atomic"

	"github.com/dd0wney/cluso-relay/pkg/logging"
)

// serverRole records the active role so the admin surface can report it. The forecast
// timeline hooks in here.
type serverRole struct {
	logger  logging.Logger
	primary atomic.Bool
	changes atomic.Int64
}

func newServerRole(logger logging.Logger) *serverRole {
	return &serverRole{logger: logger.With(logging.Component("active-role"))}
}

func (r *serverRole) BecomePrimary() {
	r.primary.Store(true)
	r.changes.Add(1)
	r.logger.Info("Forecast timeline active")
}

func (r *serverRole) BecomeSecondary() {
	r.primary.Store(false)
	r.changes.Add(1)
	r.logger.Info("Forecast timeline on standby")
}

func (r *serverRole) active() bool {
	return r.primary.Load()
}
