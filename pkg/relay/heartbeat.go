package relay

import (
	"context"

	"github.com/dd0wney/cluso-relay/pkg/logging"
	"github.com/dd0wney/cluso-relay/pkg/relayitem"
)

// writeStatusIfChanged persists the local status when it differs from the last written
// copy, heartbeat aside, or when the heartbeat interval has elapsed
func (r *Relay) writeStatusIfChanged(ctx context.Context, now int64) error {
	switch {
	case r.lastWritten == nil || !r.local.sameIgnoringHeartbeat(*r.lastWritten):
		return r.writeStatus(ctx, now, "changed")
	case now >= r.lastHeartbeat+r.cfg.HeartbeatInterval.Milliseconds():
		return r.writeStatus(ctx, now, "heartbeat")
	default:
		return nil
	}
}

// writeStatus stamps the heartbeat and force-submits the local status
func (r *Relay) writeStatus(ctx context.Context, now int64, reason string) error {
	r.local.HeartbeatTime = now
	payload, err := relayitem.Encode(r.local)
	if err != nil {
		return invariantf("writeStatus", "encode local status: %v", err)
	}
	if _, err := r.store.Submit(ctx, relayitem.StatusKey(r.server), now, payload, true); err != nil {
		return localStoreErr("write status", err)
	}

	written := r.local
	r.lastWritten = &written
	r.lastHeartbeat = now
	r.metrics.StatusWritesTotal.WithLabelValues(reason).Inc()
	r.logger.Debug("Status written",
		logging.String("reason", reason),
		logging.LinkState(r.local.LinkState),
		logging.PrimaryState(r.local.PrimaryState))
	return nil
}
