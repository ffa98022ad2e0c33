package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dd0wney/cluso-relay/pkg/logging"
	"github.com/dd0wney/cluso-relay/pkg/metrics"
	"github.com/dd0wney/cluso-relay/pkg/relayitem"
	"github.com/dd0wney/cluso-relay/pkg/store"
	"github.com/dd0wney/cluso-relay/pkg/syncworker"
	"github.com/dd0wney/cluso-relay/pkg/taskqueue"
)

// epoch is late enough that the long lookback does not clamp at zero
var epoch = time.UnixMilli(100_000_000_000)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeWorker is a scripted Worker. Tests set session and fetch directly.
type fakeWorker struct {
	startOK    bool
	session    syncworker.SessionStatus
	fetch      syncworker.FetchStatus
	fetchOK    bool
	queue      []*relayitem.Item
	itemCount  int
	starts     int
	statusOnly bool
	shutdowns  int
	terminates   int
	terminateErr error
	fetches      [][2]int64
}

func newFakeWorker() *fakeWorker {
	return &fakeWorker{startOK: true, fetchOK: true}
}

func (w *fakeWorker) Start(partner string, statusOnly bool) bool {
	if !w.startOK {
		return false
	}
	w.starts++
	w.statusOnly = statusOnly
	w.session = syncworker.SessionStarting
	w.fetch = syncworker.FetchIdle
	return true
}

func (w *fakeWorker) Shutdown() {
	w.shutdowns++
	w.session = syncworker.SessionStopped
	w.queue = nil
}

func (w *fakeWorker) Terminate() error {
	w.terminates++
	w.session = syncworker.SessionStopped
	w.queue = nil
	return w.terminateErr
}

func (w *fakeWorker) SessionStatus() syncworker.SessionStatus { return w.session }

func (w *fakeWorker) QueueRemove() *relayitem.Item {
	if len(w.queue) == 0 {
		return nil
	}
	it := w.queue[0]
	w.queue = w.queue[1:]
	return it
}

func (w *fakeWorker) RequestFetch(lo, hi int64) bool {
	if !w.fetchOK || w.session != syncworker.SessionRunning {
		return false
	}
	w.fetches = append(w.fetches, [2]int64{lo, hi})
	w.fetch = syncworker.FetchActive
	return true
}

func (w *fakeWorker) FetchStatus() syncworker.FetchStatus { return w.fetch }
func (w *fakeWorker) FetchItemCount() int                 { return w.itemCount }

func (w *fakeWorker) push(items ...*relayitem.Item) {
	w.queue = append(w.queue, items...)
}

var _ syncworker.Worker = (*fakeWorker)(nil)

type roleRecorder struct {
	mu          sync.Mutex
	primaries   int
	secondaries int
}

func (r *roleRecorder) BecomePrimary() {
	r.mu.Lock()
	r.primaries++
	r.mu.Unlock()
}

func (r *roleRecorder) BecomeSecondary() {
	r.mu.Lock()
	r.secondaries++
	r.mu.Unlock()
}

func (r *roleRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.primaries, r.secondaries
}

type harness struct {
	relay  *Relay
	worker *fakeWorker
	store  *store.MemStore
	tasks  *taskqueue.MemQueue
	clock  *fakeClock
	role   *roleRecorder
}

func testConfig(server int, mode RelayMode) Config {
	cfg := DefaultConfig()
	cfg.ServerNumber = server
	cfg.PartnerHandle = "partner"
	cfg.DefaultMode = mode
	cfg.DefaultConfiguredPrimary = 1
	return cfg
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		worker: newFakeWorker(),
		store:  store.NewMemStore(),
		tasks:  taskqueue.NewMemQueue(),
		clock:  newFakeClock(),
		role:   &roleRecorder{},
	}
	t.Cleanup(func() { h.store.Close() })

	r, err := New(cfg, Deps{
		Store:   h.store,
		Worker:  h.worker,
		Tasks:   h.tasks,
		Role:    h.role,
		Logger:  logging.NewNopLogger(),
		Metrics: metrics.NewRegistry(),
		Clock:   h.clock,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.relay = r
	return h
}

func (h *harness) init(t *testing.T) {
	t.Helper()
	if err := h.relay.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
}

func (h *harness) poll(t *testing.T) {
	t.Helper()
	if err := h.relay.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
}

// partnerStatus is a connectable status for server in PAIR mode with server 1 as primary
func partnerStatus(server int, heartbeat int64) ServerStatus {
	return ServerStatus{
		Info:          FixedInfo{SoftwareVersion: "dev", ProtocolVersion: 1, ServerNumber: server},
		HeartbeatTime: heartbeat,
		LinkState:     LinkCalling,
		PrimaryState:  StateInitializing,
		StartTime:     heartbeat,
		RelayConfig:   RelayConfig{Mode: ModePair, ConfiguredPrimary: 1},
	}
}

func statusItem(t *testing.T, s ServerStatus, stamp int64) *relayitem.Item {
	t.Helper()
	payload, err := relayitem.Encode(s)
	if err != nil {
		t.Fatalf("Encode status: %v", err)
	}
	return &relayitem.Item{
		Key:       relayitem.StatusKey(s.Info.ServerNumber),
		Timestamp: s.HeartbeatTime,
		Stamp:     stamp,
		Payload:   payload,
	}
}

func pdlItem(t *testing.T, kind relayitem.Kind, id string, ts, stamp int64) *relayitem.Item {
	t.Helper()
	payload, err := relayitem.Encode(PDLMarker{EventID: id, UpdateTime: ts, ProductCode: "FCST"})
	if err != nil {
		t.Fatalf("Encode marker: %v", err)
	}
	return &relayitem.Item{Key: relayitem.MakeKey(kind, id), Timestamp: ts, Stamp: stamp, Payload: payload}
}

func overrideItem(t *testing.T, id string, ts, stamp int64) *relayitem.Item {
	t.Helper()
	payload, err := relayitem.Encode(AnalystOverride{
		EventID:    id,
		AnalystID:  "analyst-7",
		ActionTime: ts,
		Parameters: []byte(`{"magnitude":5.1}`),
	})
	if err != nil {
		t.Fatalf("Encode override: %v", err)
	}
	return &relayitem.Item{Key: relayitem.MakeKey(relayitem.KindAnalystOverride, id), Timestamp: ts, Stamp: stamp, Payload: payload}
}

// connect drives a PAIR-mode harness from DISCONNECTED to CONNECTED with a fresh partner
func (h *harness) connect(t *testing.T) {
	t.Helper()
	h.poll(t)
	if h.relay.LinkState() != LinkCalling {
		t.Fatalf("Expected CALLING, got %s", h.relay.LinkState())
	}
	h.worker.session = syncworker.SessionRunning
	now := h.clock.Now().UnixMilli()
	h.worker.push(statusItem(t, partnerStatus(h.relay.partner, now), 1))
	h.poll(t)
	if h.relay.LinkState() != LinkInitialSync {
		t.Fatalf("Expected INITIAL_SYNC, got %s", h.relay.LinkState())
	}
	h.worker.fetch = syncworker.FetchFinished
	h.poll(t)
	if h.relay.LinkState() != LinkConnected {
		t.Fatalf("Expected CONNECTED, got %s", h.relay.LinkState())
	}
}

func storedStatus(t *testing.T, s store.Reader, server int) ServerStatus {
	t.Helper()
	it, err := s.Get(context.Background(), relayitem.StatusKey(server))
	if err != nil || it == nil {
		t.Fatalf("Get status: item=%v err=%v", it, err)
	}
	st, err := DecodeStatus(it)
	if err != nil {
		t.Fatalf("DecodeStatus: %v", err)
	}
	return st
}
