package relay

import (
	"context"

	"github.com/dd0wney/cluso-relay/pkg/logging"
	"github.com/dd0wney/cluso-relay/pkg/relayitem"
)

// classify merges one item delivered by the worker. A MergeError outcome comes with the
// corruption cause. Any other non-nil error is a local fault wrapping ErrLocalStore.
func (r *Relay) classify(ctx context.Context, it *relayitem.Item, now int64) (MergeOutcome, error) {
	switch kind := it.Kind(); {
	case kind == relayitem.KindStatus:
		return r.mergeStatus(it, now)
	case isPDLKind(kind):
		return r.mergePDL(ctx, it)
	case kind == relayitem.KindAnalystOverride:
		return r.mergeOverride(ctx, it, now)
	default:
		r.logger.Debug("Ignoring unknown record kind", logging.ItemKey(it.Key))
		return MergeNotApplied, nil
	}
}

// mergeStatus replaces the remote status when the item is the partner's and strictly newer
func (r *Relay) mergeStatus(it *relayitem.Item, now int64) (MergeOutcome, error) {
	server, err := relayitem.StatusServer(it.Key)
	if err != nil {
		return MergeError, corruptf("%v", err)
	}
	if server != r.partner {
		return MergeNotApplied, nil
	}
	status, err := DecodeStatus(it)
	if err != nil {
		return MergeError, err
	}

	order := it.Order()
	if r.remote != nil && !order.After(r.remote.Order) {
		return MergeNotApplied, nil
	}
	r.remote = &RemoteStatus{Status: status, Order: order}
	r.metrics.RemoteHeartbeatAge.Set(float64(now-status.HeartbeatTime) / 1000)
	return MergeApplied, nil
}

func (r *Relay) mergePDL(ctx context.Context, it *relayitem.Item) (MergeOutcome, error) {
	var m PDLMarker
	if err := it.Decode(&m); err != nil {
		return MergeError, corruptf("%v", err)
	}
	if err := m.Validate(); err != nil {
		return MergeError, corruptf("%s: %v", it.Key, err)
	}

	written, err := r.store.Submit(ctx, it.Key, it.Timestamp, it.Payload, false)
	if err != nil {
		return MergeNotApplied, localStoreErr("merge "+it.Key, err)
	}
	if written == nil {
		return MergeNotApplied, nil
	}
	return MergeApplied, nil
}

// mergeOverride hands an override to the task queue instead of storing it
func (r *Relay) mergeOverride(ctx context.Context, it *relayitem.Item, now int64) (MergeOutcome, error) {
	var o AnalystOverride
	if err := it.Decode(&o); err != nil {
		return MergeError, corruptf("%v", err)
	}
	if err := o.Validate(); err != nil {
		return MergeError, corruptf("%s: %v", it.Key, err)
	}

	existing, err := r.store.Get(ctx, it.Key)
	if err != nil {
		return MergeNotApplied, localStoreErr("check "+it.Key, err)
	}
	if !relayitem.Accepts(existing, it.Timestamp) {
		return MergeNotApplied, nil
	}

	task, err := overrideTask(it, o, r.server, now)
	if err != nil {
		return MergeError, corruptf("%s: %v", it.Key, err)
	}
	if err := r.tasks.Submit(ctx, task); err != nil {
		return MergeNotApplied, localStoreErr("submit task for "+it.Key, err)
	}
	r.metrics.TasksSubmitted.Inc()
	r.logger.Info("Analyst override queued",
		logging.ItemKey(it.Key),
		logging.String("analyst_id", o.AnalystID))
	return MergeApplied, nil
}
