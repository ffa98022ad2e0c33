package relay

import (
	"context"
	"errors"
	"time"

	"github.com/dd0wney/cluso-relay/pkg/logging"
	"github.com/dd0wney/cluso-relay/pkg/relayitem"
	"github.com/dd0wney/cluso-relay/pkg/store"
	"github.com/dd0wney/cluso-relay/pkg/syncworker"
)

// errStreamCorrupt means a merge reported MergeError; the link must drop
var errStreamCorrupt = errors.New("partner record stream corrupt")

// BackoffDelay returns the wait computed on the n-th consecutive entry into DISCONNECTED
func BackoffDelay(cfg Config, n int) time.Duration {
	switch {
	case n <= 1:
		return 0
	case n <= cfg.ShortRetryCount+1:
		return cfg.ShortRetryInterval
	default:
		return cfg.LongRetryInterval
	}
}

// LostConnection reports whether failedCalls consecutive failures mean the partner is gone
func LostConnection(cfg Config, failedCalls int) bool {
	return failedCalls > cfg.LossThreshold+1
}

// advanceCadence moves the resync cycle forward after a completed fetch and returns the
// new counter and the interval until the next resync
func advanceCadence(cfg Config, cycle int) (int, time.Duration) {
	cycle++
	if cycle >= cfg.ResyncCycleLength {
		cycle = 0
	}
	if cycle < 0 {
		return cycle, cfg.QuickResyncInterval
	}
	return cycle, cfg.ResyncInterval
}

// longLookback reports whether a fetch requested at this cycle uses the long lookback
func longLookback(cycle int) bool {
	return cycle <= 0
}

func (r *Relay) mode() RelayMode {
	return r.local.RelayConfig.Mode
}

// statusOnly is the hint given to the worker: a configured primary in WATCH mode only
// needs to see its partner's status
func (r *Relay) statusOnly() bool {
	return r.mode() == ModeWatch && r.local.RelayConfig.ConfiguredPrimary == r.server
}

func (r *Relay) setLinkState(s LinkState) {
	from := r.local.LinkState
	if from == s {
		return
	}
	r.local.LinkState = s
	r.metrics.SetLinkState(s.String())
	r.logger.Info("Link state changed",
		logging.String("from", from.String()),
		logging.LinkState(s),
		logging.Int("failed_calls", r.session.failedCalls))
}

// updateLinkForMode moves the link between the idle states and DISCONNECTED when the
// relay mode no longer matches it. A running session whose status-only hint no longer
// matches the configuration is dropped so the next call starts one with the right hint.
func (r *Relay) updateLinkForMode(now int64) {
	state := r.local.LinkState
	needsLink := r.mode().needsLink()
	switch {
	case needsLink && (state == LinkShutdown || state == LinkSolo):
		r.enterDisconnected(now)
	case !needsLink && state != LinkSolo:
		r.enterSolo()
	case needsLink && (state == LinkCalling || state.active()) && r.session.statusOnly != r.statusOnly():
		r.logger.Info("Session filter no longer matches relay mode, reconnecting",
			logging.RelayMode(r.mode()),
			logging.Bool("status_only", r.statusOnly()))
		r.enterDisconnected(now)
	}
}

func (r *Relay) clearRemote() {
	r.remote = nil
	r.metrics.RemoteHeartbeatAge.Set(0)
}

func (r *Relay) resetSession() {
	r.session = linkSession{}
	r.metrics.FailedCalls.Set(0)
}

// enterDisconnected stops the session and schedules the next call
func (r *Relay) enterDisconnected(now int64) {
	r.worker.Shutdown()
	r.clearRemote()
	r.session.nextResyncTime = 0
	r.session.resyncCycle = 0

	r.session.failedCalls++
	wait := BackoffDelay(r.cfg, r.session.failedCalls)
	r.session.nextCallTime = now + wait.Milliseconds()
	r.metrics.FailedCalls.Set(float64(r.session.failedCalls))

	r.setLinkState(LinkDisconnected)
	r.logger.Debug("Next call scheduled",
		logging.Duration("wait", wait),
		logging.Bool("lost_connection", LostConnection(r.cfg, r.session.failedCalls)))
}

func (r *Relay) enterSolo() {
	r.worker.Shutdown()
	r.clearRemote()
	r.resetSession()
	r.setLinkState(LinkSolo)
}

// enterShutdown always reaches SHUTDOWN; a worker that outlives its bounded wait is reported
func (r *Relay) enterShutdown() error {
	r.closed = true
	err := r.worker.Terminate()
	r.clearRemote()
	r.resetSession()
	r.setLinkState(LinkShutdown)
	return err
}

// pollLink advances the link state machine by at most one transition per state
func (r *Relay) pollLink(ctx context.Context, now int64) error {
	state := r.local.LinkState
	if !state.active() && state != LinkCalling && state != LinkDisconnected {
		if state != LinkShutdown && state != LinkSolo {
			return invariantf("pollLink", "unknown link state %d", int(state))
		}
		r.updateLinkForMode(now)
		return nil
	}
	if !r.mode().needsLink() {
		r.enterSolo()
		return nil
	}

	switch state {
	case LinkDisconnected:
		r.pollDisconnected(now)
		return nil
	case LinkCalling:
		r.pollCalling(now)
		return nil
	case LinkInitialSync, LinkResync:
		return r.pollFetch(ctx, now)
	case LinkConnected:
		return r.pollConnected(ctx, now)
	}
	return nil
}

func (r *Relay) pollDisconnected(now int64) {
	if now < r.session.nextCallTime {
		return
	}
	statusOnly := r.statusOnly()
	if !r.worker.Start(r.cfg.PartnerHandle, statusOnly) {
		r.metrics.ConnectAttemptsTotal.WithLabelValues("refused").Inc()
		r.logger.Debug("Worker refused to start a session")
		return
	}
	r.session.statusOnly = statusOnly
	r.metrics.ConnectAttemptsTotal.WithLabelValues("started").Inc()
	r.setLinkState(LinkCalling)
}

func (r *Relay) pollCalling(now int64) {
	switch r.worker.SessionStatus() {
	case syncworker.SessionStarting:
		return
	case syncworker.SessionRunning:
	default:
		r.metrics.ConnectAttemptsTotal.WithLabelValues("failed").Inc()
		r.enterDisconnected(now)
		return
	}

	it := r.worker.QueueRemove()
	if it == nil {
		return
	}
	if it.Kind() != relayitem.KindStatus {
		r.logger.Warn("First partner item is not a status record", logging.ItemKey(it.Key))
		r.enterDisconnected(now)
		return
	}
	outcome, err := r.mergeStatus(it, now)
	r.metrics.RecordMerge(relayitem.KindStatus.String(), outcome.String())
	if outcome == MergeError || r.remote == nil {
		r.logger.Warn("Partner status unusable", logging.ItemKey(it.Key), logging.Error(err))
		r.enterDisconnected(now)
		return
	}
	if !connectable(r.remote.Status, r.local) {
		r.logger.Info("Partner not connectable",
			logging.Int("protocol_version", r.remote.Status.Info.ProtocolVersion),
			logging.LinkState(r.remote.Status.LinkState),
			logging.PrimaryState(r.remote.Status.PrimaryState))
		r.enterDisconnected(now)
		return
	}

	r.metrics.ConnectAttemptsTotal.WithLabelValues("connected").Inc()
	r.session.resyncCycle = -r.cfg.QuickResyncCount
	if !r.requestFetch(now) {
		r.enterDisconnected(now)
		return
	}
	r.setLinkState(LinkInitialSync)
}

// requestFetch asks the worker for [now - lookback, +inf) with the lookback chosen by cadence
func (r *Relay) requestFetch(now int64) bool {
	long := longLookback(r.session.resyncCycle)
	lookback := r.cfg.ShortLookback
	if long {
		lookback = r.cfg.LongLookback
	}
	lo := now - lookback.Milliseconds()
	if lo < 0 {
		lo = 0
	}
	if !r.worker.RequestFetch(lo, store.StampUnbounded) {
		r.metrics.RecordFetch(long, "refused")
		return false
	}
	r.session.fetchLong = long
	r.metrics.RecordFetch(long, "requested")
	return true
}

func (r *Relay) pollFetch(ctx context.Context, now int64) error {
	// Taken before draining so every item of a finished fetch is merged before acting on it
	fetch := r.worker.FetchStatus()

	if err := r.drain(ctx, now); err != nil {
		if errors.Is(err, errStreamCorrupt) {
			r.enterDisconnected(now)
			return nil
		}
		return err
	}

	switch fetch {
	case syncworker.FetchActive:
		if r.worker.SessionStatus() != syncworker.SessionRunning {
			r.enterDisconnected(now)
		}
		return nil
	case syncworker.FetchFinished:
	case syncworker.FetchFailed, syncworker.FetchAborted, syncworker.FetchIdle:
		r.metrics.RecordFetch(r.session.fetchLong, "failed")
		r.logger.Warn("Fetch did not complete", logging.String("fetch_status", fetch.String()))
		r.enterDisconnected(now)
		return nil
	default:
		return invariantf("pollFetch", "unknown fetch status %d", int(fetch))
	}

	r.metrics.RecordFetch(r.session.fetchLong, "finished")
	r.metrics.FetchItems.Observe(float64(r.worker.FetchItemCount()))
	if r.remote == nil || !connectable(r.remote.Status, r.local) {
		r.enterDisconnected(now)
		return nil
	}

	if r.local.LinkState == LinkInitialSync {
		r.session.failedCalls = 0
		r.session.nextCallTime = 0
		r.metrics.FailedCalls.Set(0)
	}
	var interval time.Duration
	r.session.resyncCycle, interval = advanceCadence(r.cfg, r.session.resyncCycle)
	r.session.nextResyncTime = now + interval.Milliseconds()
	r.logger.Debug("Fetch finished",
		logging.Int("items", r.worker.FetchItemCount()),
		logging.Bool("long_lookback", r.session.fetchLong),
		logging.Duration("next_resync", interval))
	r.setLinkState(LinkConnected)
	return nil
}

func (r *Relay) pollConnected(ctx context.Context, now int64) error {
	if err := r.drain(ctx, now); err != nil {
		if errors.Is(err, errStreamCorrupt) {
			r.enterDisconnected(now)
			return nil
		}
		return err
	}
	if r.worker.SessionStatus() != syncworker.SessionRunning {
		r.logger.Warn("Partner session ended")
		r.enterDisconnected(now)
		return nil
	}
	if r.remote == nil || !connectable(r.remote.Status, r.local) {
		r.enterDisconnected(now)
		return nil
	}
	r.metrics.RemoteHeartbeatAge.Set(float64(now-r.remote.Status.HeartbeatTime) / 1000)

	if now >= r.session.nextResyncTime {
		if !r.requestFetch(now) {
			r.enterDisconnected(now)
			return nil
		}
		r.setLinkState(LinkResync)
	}
	return nil
}

// drain merges every queued item. It stops at the first corrupt item or local store fault.
func (r *Relay) drain(ctx context.Context, now int64) error {
	for {
		it := r.worker.QueueRemove()
		if it == nil {
			return nil
		}
		outcome, err := r.classify(ctx, it, now)
		r.metrics.RecordMerge(it.Kind().String(), outcome.String())
		if outcome == MergeError {
			r.logger.Warn("Corrupt partner record, dropping link",
				logging.ItemKey(it.Key), logging.Error(err))
			return errStreamCorrupt
		}
		if err != nil {
			return err
		}
	}
}
