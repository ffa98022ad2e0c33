package syncworker

import (
	"context"
	"fmt"

	"github.com/dd0wney/cluso-relay/pkg/logging"
	"github.com/dd0wney/cluso-relay/pkg/relayitem"
	"github.com/dd0wney/cluso-relay/pkg/store"
)

// run is the session goroutine
func (w *StoreWorker) run(ctx context.Context, sess *session) {
	defer close(sess.done)

	logger := w.logger.With(logging.Session(sess.id), logging.String("partner", sess.partner))

	src, err := w.open(ctx, sess)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("partner session failed to open", logging.Error(err))
		}
		w.setStatus(sess, SessionFailed)
		w.recordSession("failed")
		return
	}
	defer src.watchCancel()
	defer src.Close()

	w.setStatus(sess, SessionRunning)
	w.recordSession("running")
	logger.Info("partner session running", logging.Bool("status_only", sess.statusOnly))

	for {
		select {
		case <-ctx.Done():
			w.setStatus(sess, SessionStopped)
			return

		case req := <-sess.fetches:
			if err := w.fetch(ctx, sess, src, req); err != nil {
				if ctx.Err() != nil {
					w.setStatus(sess, SessionStopped)
					return
				}
				logger.Warn("partner fetch failed", logging.Error(err))
				w.setFetchStatus(sess, FetchFailed)
				continue
			}
			w.setFetchStatus(sess, FetchFinished)

		case it, ok := <-src.changes:
			if !ok {
				if ctx.Err() != nil {
					w.setStatus(sess, SessionStopped)
					return
				}
				logger.Warn("partner session lost", logging.Error(ErrWatchClosed))
				w.setStatus(sess, SessionFailed)
				w.recordSession("failed")
				return
			}
			if w.wanted(sess, it.Key) {
				w.enqueue(sess, it, "watch")
			}
		}
	}
}

// openSource is a dialed partner with its change stream
type openSource struct {
	Source
	changes     <-chan relayitem.Item
	watchCancel context.CancelFunc
}

// open dials the partner, subscribes to its change stream, and queues its status.
// Subscribing before reading the status means no change written after the status
// read can be missed.
func (w *StoreWorker) open(ctx context.Context, sess *session) (*openSource, error) {
	dialCtx, cancel := context.WithTimeout(ctx, w.opts.DialTimeout)
	defer cancel()

	src, err := w.dial(dialCtx, sess.partner)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", sess.partner, err)
	}

	watchCtx, watchCancel := context.WithCancel(ctx)
	changes, err := src.Watch(watchCtx)
	if err != nil {
		watchCancel()
		src.Close()
		return nil, fmt.Errorf("watch %s: %w", sess.partner, err)
	}

	status, err := src.Get(dialCtx, relayitem.StatusKey(w.opts.PartnerServer))
	if err == nil && status == nil {
		err = ErrNoPartnerStatus
	}
	if err != nil {
		watchCancel()
		src.Close()
		return nil, fmt.Errorf("read partner status: %w", err)
	}
	w.enqueue(sess, *status, "status")

	return &openSource{Source: src, changes: changes, watchCancel: watchCancel}, nil
}

// fetch queries the partner and queues every result before returning
func (w *StoreWorker) fetch(ctx context.Context, sess *session, src Source, req fetchRequest) error {
	fetchCtx, cancel := context.WithTimeout(ctx, w.opts.FetchTimeout)
	defer cancel()

	q := store.Query{StampLo: req.lo, StampHi: req.hi}
	if sess.statusOnly {
		q.Prefixes = []string{relayitem.PrefixStatus}
	}

	items, err := src.Query(fetchCtx, q)
	if err != nil {
		return err
	}
	for _, it := range items {
		if !w.enqueue(sess, it, "fetch") {
			return context.Canceled
		}
		w.fetchCount.Add(1)
	}
	return nil
}

func (w *StoreWorker) wanted(sess *session, key string) bool {
	return !sess.statusOnly || relayitem.KindOf(key) == relayitem.KindStatus
}

func (w *StoreWorker) recordSession(outcome string) {
	if w.metrics != nil {
		w.metrics.WorkerSessionsTotal.WithLabelValues(outcome).Inc()
	}
}
