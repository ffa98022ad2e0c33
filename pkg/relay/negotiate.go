package relay

import (
	"github.com/dd0wney/cluso-relay/pkg/logging"
)

// remoteKnownDead is only defined in DISCONNECTED and CONNECTED
func (r *Relay) remoteKnownDead(now int64) bool {
	switch r.local.LinkState {
	case LinkDisconnected:
		return LostConnection(r.cfg, r.session.failedCalls)
	case LinkConnected:
		return r.remote == nil || r.remoteStale(now)
	default:
		return false
	}
}

func (r *Relay) remoteStale(now int64) bool {
	return now-r.remote.Status.HeartbeatTime > r.cfg.HeartbeatStaleness.Milliseconds()
}

func (r *Relay) remoteConfigMatches() bool {
	return r.remote != nil && r.remote.Status.RelayConfig == r.local.RelayConfig
}

func (r *Relay) remoteKnownAliveSynced(now int64) bool {
	return r.local.LinkState == LinkConnected &&
		r.remote != nil &&
		!r.remoteStale(now) &&
		r.remoteConfigMatches()
}

// remoteKnownDeadOrSynced does not require a fresh heartbeat for the synced half
func (r *Relay) remoteKnownDeadOrSynced(now int64) bool {
	if r.remoteKnownDead(now) {
		return true
	}
	return r.local.LinkState == LinkConnected && r.remoteConfigMatches()
}

// initTimedOut reports whether INITIALIZING has lasted long enough to force a decision
func (r *Relay) initTimedOut(now int64) bool {
	if r.local.LinkState != LinkDisconnected && r.local.LinkState != LinkConnected {
		return false
	}
	return now-r.local.StartTime >= r.cfg.InitTimeout.Milliseconds()
}

// adoptRemoteConfig takes the partner's relay configuration when it is strictly newer
func (r *Relay) adoptRemoteConfig(now int64) {
	if !r.local.LinkState.active() || r.remote == nil {
		return
	}
	if !r.local.RelayConfig.Merge(r.remote.Status.RelayConfig, false) {
		return
	}
	r.metrics.RelayModeChangesTotal.WithLabelValues("remote").Inc()
	r.logger.Info("Adopted partner relay configuration",
		logging.RelayMode(r.local.RelayConfig.Mode),
		logging.Int("configured_primary", r.local.RelayConfig.ConfiguredPrimary),
		logging.Int64("mode_timestamp", r.local.RelayConfig.ModeTimestamp))
	r.updateLinkForMode(now)
}

// decideRole returns the role this poll should end in
func (r *Relay) decideRole(now int64) PrimaryState {
	current := r.local.PrimaryState
	configuredPrimary := r.local.RelayConfig.ConfiguredPrimary == r.server
	byConfig := StateSecondary
	if configuredPrimary {
		byConfig = StatePrimary
	}

	switch r.mode() {
	case ModeSolo:
		return byConfig

	case ModeWatch:
		if current != StateInitializing {
			return byConfig
		}
		if configuredPrimary {
			if r.remoteKnownDeadOrSynced(now) || r.initTimedOut(now) {
				return StatePrimary
			}
			return current
		}
		// The configured secondary stays secondary even if the partner is dead
		if r.remoteKnownDead(now) || r.remoteKnownAliveSynced(now) || r.initTimedOut(now) {
			return StateSecondary
		}
		return current

	case ModePair:
		dead := r.remoteKnownDead(now)
		promote := (configuredPrimary && r.remoteKnownDeadOrSynced(now)) || (!configuredPrimary && dead)
		stepDown := !configuredPrimary && r.remoteKnownAliveSynced(now)

		switch current {
		case StatePrimary:
			if stepDown {
				return StateSecondary
			}
		case StateSecondary:
			if promote {
				return StatePrimary
			}
		case StateInitializing:
			switch {
			case promote:
				return StatePrimary
			case stepDown:
				return StateSecondary
			case r.initTimedOut(now):
				return byConfig
			}
		}
		return current
	}
	return current
}

// negotiate applies the role decision and signals the active role collaborator
func (r *Relay) negotiate(now int64) {
	from := r.local.PrimaryState
	if from == StateShutdown {
		return
	}
	to := r.decideRole(now)
	if to == from {
		return
	}

	r.setPrimaryState(to)
	r.metrics.RoleChangesTotal.WithLabelValues(to.String()).Inc()
	r.logger.Info("Primary state changed",
		logging.String("from", from.String()),
		logging.PrimaryState(to),
		logging.RelayMode(r.mode()),
		logging.LinkState(r.local.LinkState))

	switch {
	case to == StatePrimary:
		r.role.BecomePrimary()
	case from == StatePrimary && to == StateSecondary:
		r.role.BecomeSecondary()
	}
}

func (r *Relay) setPrimaryState(s PrimaryState) {
	r.local.PrimaryState = s
	r.metrics.SetPrimaryState(s.String())
}
