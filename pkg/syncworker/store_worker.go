package syncworker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-relay/pkg/logging"
	"github.com/dd0wney/cluso-relay/pkg/metrics"
	"github.com/dd0wney/cluso-relay/pkg/relayitem"
)

// Options configures a StoreWorker
type Options struct {
	// PartnerServer is the partner's ordinal; its status record opens every session
	PartnerServer int
	// DialTimeout bounds connecting to the partner and reading its status
	DialTimeout time.Duration
	// FetchTimeout bounds a single fetch query
	FetchTimeout time.Duration
	// TerminateTimeout bounds the wait in Terminate
	TerminateTimeout time.Duration

	Logger  logging.Logger
	Metrics *metrics.Registry
}

// DefaultOptions returns options with default timeouts
func DefaultOptions(partnerServer int) Options {
	return Options{
		PartnerServer:    partnerServer,
		DialTimeout:      30 * time.Second,
		FetchTimeout:     5 * time.Minute,
		TerminateTimeout: 10 * time.Second,
	}
}

// fetchRequest is one pending lookback query
type fetchRequest struct {
	lo, hi int64
}

// session is one run of the session goroutine
type session struct {
	id         string
	partner    string
	statusOnly bool
	cancel     context.CancelFunc
	done       chan struct{}
	fetches    chan fetchRequest
}

// StoreWorker is a Worker that reads the partner through a Source: it subscribes to the
// partner's change stream, queues the partner's status first, then forwards every
// change, and runs lookback fetches on request.
type StoreWorker struct {
	dial    Dialer
	opts    Options
	logger  logging.Logger
	metrics *metrics.Registry

	queue       itemQueue
	status      atomic.Int32
	fetchStatus atomic.Int32
	fetchCount  atomic.Int64

	mu      sync.Mutex // guards current
	current *session
}

// NewStoreWorker creates an idle worker
func NewStoreWorker(dial Dialer, opts Options) *StoreWorker {
	d := DefaultOptions(opts.PartnerServer)
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = d.DialTimeout
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = d.FetchTimeout
	}
	if opts.TerminateTimeout <= 0 {
		opts.TerminateTimeout = d.TerminateTimeout
	}

	return &StoreWorker{
		dial:    dial,
		opts:    opts,
		logger:  logging.OrDefault(opts.Logger).With(logging.Component("syncworker")),
		metrics: opts.Metrics,
	}
}

// Start implements Worker. Any previous session is abandoned.
func (w *StoreWorker) Start(partner string, statusOnly bool) bool {
	if w.dial == nil || partner == "" {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:         uuid.NewString(),
		partner:    partner,
		statusOnly: statusOnly,
		cancel:     cancel,
		done:       make(chan struct{}),
		fetches:    make(chan fetchRequest, 1),
	}

	w.mu.Lock()
	if w.current != nil {
		w.current.cancel()
	}
	w.current = sess
	w.queue.clear()
	w.status.Store(int32(SessionStarting))
	w.fetchStatus.Store(int32(FetchIdle))
	w.fetchCount.Store(0)
	w.mu.Unlock()

	go w.run(ctx, sess)
	return true
}

// Shutdown implements Worker
func (w *StoreWorker) Shutdown() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == nil {
		return
	}
	w.current.cancel()
	w.current = nil
	w.status.Store(int32(SessionStopped))
	w.abortFetchLocked()
}

// Terminate implements Worker
func (w *StoreWorker) Terminate() error {
	w.mu.Lock()
	sess := w.current
	w.current = nil
	if sess != nil {
		sess.cancel()
		w.status.Store(int32(SessionStopped))
		w.abortFetchLocked()
	}
	w.queue.clear()
	w.mu.Unlock()

	if sess == nil {
		return nil
	}

	timer := time.NewTimer(w.opts.TerminateTimeout)
	defer timer.Stop()
	select {
	case <-sess.done:
		return nil
	case <-timer.C:
		w.logger.Warn("session did not stop in time",
			logging.Session(sess.id),
			logging.Duration("timeout", w.opts.TerminateTimeout))
		return fmt.Errorf("%w: session %s after %v", ErrTerminateTimeout, sess.id, w.opts.TerminateTimeout)
	}
}

// SessionStatus implements Worker
func (w *StoreWorker) SessionStatus() SessionStatus {
	return SessionStatus(w.status.Load())
}

// QueueRemove implements Worker
func (w *StoreWorker) QueueRemove() *relayitem.Item {
	it, depth := w.queue.pop()
	if it != nil && w.metrics != nil {
		w.metrics.WorkerQueueDepth.Set(float64(depth))
	}
	return it
}

// RequestFetch implements Worker. It is refused while no session runs or a fetch is active.
func (w *StoreWorker) RequestFetch(lo, hi int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == nil || w.SessionStatus() != SessionRunning {
		return false
	}
	if w.FetchStatus() == FetchActive {
		return false
	}

	select {
	case w.current.fetches <- fetchRequest{lo: lo, hi: hi}:
	default:
		return false
	}
	w.fetchCount.Store(0)
	w.fetchStatus.Store(int32(FetchActive))
	return true
}

// FetchStatus implements Worker
func (w *StoreWorker) FetchStatus() FetchStatus {
	return FetchStatus(w.fetchStatus.Load())
}

// FetchItemCount implements Worker
func (w *StoreWorker) FetchItemCount() int {
	return int(w.fetchCount.Load())
}

func (w *StoreWorker) abortFetchLocked() {
	if w.FetchStatus() == FetchActive {
		w.fetchStatus.Store(int32(FetchAborted))
	}
}

// isCurrent reports whether sess is still the live session; callers hold w.mu
func (w *StoreWorker) isCurrentLocked(sess *session) bool {
	return w.current == sess
}

// setStatus records a session status only if sess is still current
func (w *StoreWorker) setStatus(sess *session, st SessionStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.isCurrentLocked(sess) {
		return
	}
	w.status.Store(int32(st))
	if st == SessionFailed || st == SessionStopped {
		w.abortFetchLocked()
	}
}

func (w *StoreWorker) setFetchStatus(sess *session, st FetchStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isCurrentLocked(sess) {
		w.fetchStatus.Store(int32(st))
	}
}

// enqueue queues an item for the core unless sess has been replaced. The push happens
// under w.mu so a concurrent Start cannot clear the queue between check and push.
func (w *StoreWorker) enqueue(sess *session, it relayitem.Item, origin string) bool {
	w.mu.Lock()
	if !w.isCurrentLocked(sess) {
		w.mu.Unlock()
		return false
	}
	depth := w.queue.push(&it)
	w.mu.Unlock()

	if w.metrics != nil {
		w.metrics.WorkerItemsQueued.WithLabelValues(origin).Inc()
		w.metrics.WorkerQueueDepth.Set(float64(depth))
	}
	return true
}

// QueueLen returns the number of undelivered items
func (w *StoreWorker) QueueLen() int {
	return w.queue.len()
}

var _ Worker = (*StoreWorker)(nil)
