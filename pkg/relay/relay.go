// Package relay keeps two forecast servers' record stores in sync and decides which of
// them is primary.
//
// A Relay is driven by repeated calls to Poll from a single goroutine. Each poll advances
// the link state machine, drains records delivered by the sync worker into the local
// store, recomputes the primary role and persists this server's status record when it
// has changed or its heartbeat is due.
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/cluso-relay/pkg/logging"
	"github.com/dd0wney/cluso-relay/pkg/metrics"
	"github.com/dd0wney/cluso-relay/pkg/relayitem"
	"github.com/dd0wney/cluso-relay/pkg/store"
	"github.com/dd0wney/cluso-relay/pkg/syncworker"
	"github.com/dd0wney/cluso-relay/pkg/taskqueue"
)

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock
var SystemClock Clock = systemClock{}

// Deps are the collaborators of a Relay. Store, Worker and Tasks are required.
type Deps struct {
	Store   store.Store
	Worker  syncworker.Worker
	Tasks   taskqueue.Submitter
	Role    ActiveRole
	Logger  logging.Logger
	Metrics *metrics.Registry
	Clock   Clock
}

// linkSession is the process-local retry and resync bookkeeping. It is never persisted.
type linkSession struct {
	nextCallTime   int64
	failedCalls    int
	nextResyncTime int64
	resyncCycle    int
	fetchLong      bool
	// statusOnly is the hint the running session was started with
	statusOnly bool
}

// Snapshot is a consistent copy of the relay state for readers outside the driver goroutine
type Snapshot struct {
	Local       ServerStatus  `json:"local"`
	Remote      *ServerStatus `json:"remote,omitempty"`
	FailedCalls int           `json:"failed_calls"`
	RemoteDead  bool          `json:"remote_dead"`
}

// Relay is the relay core for one server
type Relay struct {
	cfg     Config
	server  int
	partner int

	store   store.Store
	worker  syncworker.Worker
	tasks   taskqueue.Submitter
	role    ActiveRole
	logger  logging.Logger
	metrics *metrics.Registry
	clock   Clock

	local         ServerStatus
	lastWritten   *ServerStatus
	lastHeartbeat int64
	remote        *RemoteStatus
	session       linkSession

	initialized bool
	shutdown    bool
	closed      bool

	// snapshot is published after every operation; only the snapshot is shared
	snapMu   sync.RWMutex
	snapshot Snapshot
}

// New creates a relay. It does not touch the store until Init.
func New(cfg Config, deps Deps) (*Relay, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("%w: store", ErrMissingDependency)
	case deps.Worker == nil:
		return nil, fmt.Errorf("%w: worker", ErrMissingDependency)
	case deps.Tasks == nil:
		return nil, fmt.Errorf("%w: task queue", ErrMissingDependency)
	}
	if deps.Role == nil {
		deps.Role = NopRole{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewRegistry()
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock
	}

	r := &Relay{
		cfg:     cfg,
		server:  cfg.ServerNumber,
		partner: cfg.PartnerServer(),
		store:   deps.Store,
		worker:  deps.Worker,
		tasks:   deps.Tasks,
		role:    deps.Role,
		logger:  logging.OrDefault(deps.Logger).With(logging.Component("relay"), logging.Server(cfg.ServerNumber)),
		metrics: deps.Metrics,
		clock:   deps.Clock,
	}
	r.local = ServerStatus{
		Info: FixedInfo{
			SoftwareVersion: cfg.SoftwareVersion,
			ProtocolVersion: cfg.ProtocolVersion,
			ServerNumber:    cfg.ServerNumber,
		},
		LinkState:    LinkShutdown,
		PrimaryState: StateInitializing,
		RelayConfig:  cfg.initialRelayConfig(),
	}
	r.publish(0)
	return r, nil
}

func (r *Relay) now() int64 {
	return r.clock.Now().UnixMilli()
}

// Init loads the persisted relay configuration, enters INITIALIZING, brings the link up
// to SOLO or DISCONNECTED and persists the status.
func (r *Relay) Init(ctx context.Context) error {
	if r.initialized {
		return invariantf("Init", "relay already initialized")
	}
	if r.shutdown {
		return invariantf("Init", "relay has been shut down")
	}
	now := r.now()

	stored, err := r.store.Get(ctx, relayitem.StatusKey(r.server))
	if err != nil {
		return localStoreErr("load status", err)
	}
	if stored != nil {
		prev, err := DecodeStatus(stored)
		if err != nil {
			r.logger.Warn("Ignoring unreadable stored status",
				logging.ItemKey(stored.Key), logging.Error(err))
		} else {
			r.local.RelayConfig = prev.RelayConfig
		}
	}

	r.local.StartTime = now
	r.setPrimaryState(StateInitializing)
	r.initialized = true
	r.updateLinkForMode(now)

	r.logger.Info("Relay initialized",
		logging.RelayMode(r.local.RelayConfig.Mode),
		logging.Int("configured_primary", r.local.RelayConfig.ConfiguredPrimary),
		logging.LinkState(r.local.LinkState))

	err = r.writeStatus(ctx, now, "init")
	r.publish(now)
	return err
}

func (r *Relay) checkRunning(op string) error {
	if !r.initialized {
		return invariantf(op, "relay not initialized")
	}
	if r.shutdown {
		return invariantf(op, "relay has been shut down")
	}
	return nil
}

// Poll runs one cycle: the link state machine, relay configuration adoption, primary
// negotiation and status persistence. Local store faults and invariant violations are
// returned; partner faults are absorbed by the link state machine.
func (r *Relay) Poll(ctx context.Context) error {
	if err := r.checkRunning("Poll"); err != nil {
		return err
	}
	now := r.now()
	defer r.publish(now)

	if err := r.pollLink(ctx, now); err != nil {
		return err
	}
	r.adoptRemoteConfig(now)
	r.negotiate(now)
	return r.writeStatusIfChanged(ctx, now)
}

// SetServerRelayMode applies a new relay configuration. Without force it is applied only
// when its mode timestamp is newer than the held one. It reports whether anything changed;
// a change moves the link at most once and persists the status once.
func (r *Relay) SetServerRelayMode(ctx context.Context, cfg RelayConfig, force bool) (bool, error) {
	if err := r.checkRunning("SetServerRelayMode"); err != nil {
		return false, err
	}
	if err := cfg.Validate(); err != nil {
		return false, err
	}
	if !r.local.RelayConfig.Merge(cfg, force) {
		return false, nil
	}
	now := r.now()
	defer r.publish(now)

	r.metrics.RelayModeChangesTotal.WithLabelValues("local").Inc()
	r.logger.Info("Relay mode changed",
		logging.RelayMode(cfg.Mode),
		logging.Int("configured_primary", cfg.ConfiguredPrimary),
		logging.Int64("mode_timestamp", cfg.ModeTimestamp),
		logging.Bool("forced", force))

	r.updateLinkForMode(now)
	return true, r.writeStatus(ctx, now, "mode")
}

// Shutdown terminates the worker, finalizes the status to SHUTDOWN/SHUTDOWN and persists it.
// Every step runs even if an earlier one fails; the first failure of each category is
// returned in a *TeardownError. Calling Shutdown again is a no-op.
func (r *Relay) Shutdown(ctx context.Context) error {
	if !r.initialized || r.shutdown {
		return nil
	}
	now := r.now()
	td := newTeardown()

	td.run(TeardownWorker, r.enterShutdown)
	r.setPrimaryState(StateShutdown)
	td.run(TeardownStore, func() error {
		return r.writeStatus(ctx, now, "shutdown")
	})

	r.shutdown = true
	r.publish(now)

	err := td.err()
	if err != nil {
		r.logger.Error("Relay shutdown incomplete", logging.Error(err))
	} else {
		r.logger.Info("Relay shut down")
	}
	return err
}

// Close terminates the worker if it may still be running. It does not write the status
// and is safe to call any number of times, typically via defer. Only the first call can
// report a worker that did not stop in time.
func (r *Relay) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.worker.Terminate()
}

func (r *Relay) publish(now int64) {
	snap := Snapshot{
		Local:       r.local,
		FailedCalls: r.session.failedCalls,
		RemoteDead:  r.initialized && r.remoteKnownDead(now),
	}
	if r.remote != nil {
		remote := r.remote.Status
		snap.Remote = &remote
	}

	r.snapMu.Lock()
	r.snapshot = snap
	r.snapMu.Unlock()
}

// Snapshot returns the state as of the end of the last operation. Safe for concurrent use.
func (r *Relay) Snapshot() Snapshot {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()
	return r.snapshot
}

// LocalStatus returns this server's status
func (r *Relay) LocalStatus() ServerStatus {
	return r.Snapshot().Local
}

// RemoteStatus returns the partner's last observed status, or nil when not connected
func (r *Relay) RemoteStatus() *ServerStatus {
	return r.Snapshot().Remote
}

// LinkState returns the current link state
func (r *Relay) LinkState() LinkState {
	return r.Snapshot().Local.LinkState
}

// PrimaryState returns the current negotiated role
func (r *Relay) PrimaryState() PrimaryState {
	return r.Snapshot().Local.PrimaryState
}

// IsPrimary reports whether this server currently issues forecasts
func (r *Relay) IsPrimary() bool {
	return r.PrimaryState() == StatePrimary
}
