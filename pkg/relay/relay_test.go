package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dd0wney/cluso-relay/pkg/relayitem"
	"github.com/dd0wney/cluso-relay/pkg/store"
	"github.com/dd0wney/cluso-relay/pkg/syncworker"
)

func TestNew_RequiresDependencies(t *testing.T) {
	cfg := testConfig(1, ModeSolo)
	tests := []struct {
		name string
		deps Deps
	}{
		{"no store", Deps{Worker: newFakeWorker()}},
		{"no worker", Deps{Store: store.NewMemStore()}},
		{"no tasks", Deps{Store: store.NewMemStore(), Worker: newFakeWorker()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(cfg, tt.deps); !errors.Is(err, ErrMissingDependency) {
				t.Errorf("New err = %v, want ErrMissingDependency", err)
			}
		})
	}

	cfg.ServerNumber = 3
	if _, err := New(cfg, Deps{}); !errors.Is(err, ErrInvalidServerNumber) {
		t.Errorf("New with server 3 err = %v", err)
	}
}

func TestInit_FreshStoreIsSoloPrimary(t *testing.T) {
	cfg := testConfig(2, ModeSolo)
	cfg.DefaultConfiguredPrimary = 0
	h := newHarness(t, cfg)
	h.init(t)

	local := h.relay.LocalStatus()
	if local.PrimaryState != StateInitializing {
		t.Errorf("PrimaryState after Init = %s", local.PrimaryState)
	}
	if local.LinkState != LinkSolo {
		t.Errorf("LinkState after Init = %s", local.LinkState)
	}
	if local.RelayConfig != (RelayConfig{Mode: ModeSolo, ConfiguredPrimary: 2}) {
		t.Errorf("RelayConfig = %+v", local.RelayConfig)
	}
	if local.StartTime != epoch.UnixMilli() {
		t.Errorf("StartTime = %d", local.StartTime)
	}

	stored := storedStatus(t, h.store, 2)
	if stored.LinkState != LinkSolo || stored.HeartbeatTime != epoch.UnixMilli() {
		t.Errorf("Stored status = %+v", stored)
	}

	h.poll(t)
	if !h.relay.IsPrimary() {
		t.Errorf("Solo configured primary should be PRIMARY, got %s", h.relay.PrimaryState())
	}
	if p, _ := h.role.counts(); p != 1 {
		t.Errorf("BecomePrimary calls = %d, want 1", p)
	}
	if h.worker.starts != 0 {
		t.Error("Solo mode must not start the worker")
	}
}

func TestInit_LoadsPersistedRelayConfig(t *testing.T) {
	h := newHarness(t, testConfig(1, ModeSolo))
	prev := partnerStatus(1, 5)
	prev.RelayConfig = RelayConfig{ModeTimestamp: 42, Mode: ModeWatch, ConfiguredPrimary: 2}
	prev.PrimaryState = StateShutdown
	prev.LinkState = LinkShutdown
	payload, _ := relayitem.Encode(prev)
	if _, err := h.store.Submit(context.Background(), relayitem.StatusKey(1), 5, payload, true); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	h.init(t)
	local := h.relay.LocalStatus()
	if local.RelayConfig != prev.RelayConfig {
		t.Errorf("RelayConfig = %+v, want %+v", local.RelayConfig, prev.RelayConfig)
	}
	if local.LinkState != LinkDisconnected {
		t.Errorf("WATCH mode should start DISCONNECTED, got %s", local.LinkState)
	}
	if local.PrimaryState != StateInitializing {
		t.Errorf("PrimaryState = %s", local.PrimaryState)
	}
}

func TestInit_IgnoresCorruptStoredStatus(t *testing.T) {
	h := newHarness(t, testConfig(1, ModeSolo))
	h.store.Submit(context.Background(), relayitem.StatusKey(1), 5, []byte("not json"), true)
	h.init(t)
	if h.relay.LocalStatus().RelayConfig.Mode != ModeSolo {
		t.Error("Corrupt stored status should fall back to defaults")
	}
}

func TestInvariantViolations(t *testing.T) {
	h := newHarness(t, testConfig(1, ModeSolo))
	ctx := context.Background()

	if err := h.relay.Poll(ctx); !errors.Is(err, ErrInvariant) {
		t.Errorf("Poll before Init err = %v", err)
	}
	if _, err := h.relay.SetServerRelayMode(ctx, RelayConfig{Mode: ModePair, ConfiguredPrimary: 1}, true); !errors.Is(err, ErrInvariant) {
		t.Errorf("SetServerRelayMode before Init err = %v", err)
	}

	h.init(t)
	err := h.relay.Init(ctx)
	var ie *InvariantError
	if !errors.As(err, &ie) || ie.Op != "Init" {
		t.Errorf("Second Init err = %v", err)
	}

	h.relay.local.LinkState = LinkState(99)
	if err := h.relay.Poll(ctx); !errors.Is(err, ErrInvariant) {
		t.Errorf("Poll with unknown link state err = %v", err)
	}
	h.relay.local.LinkState = LinkSolo

	if err := h.relay.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := h.relay.Poll(ctx); !errors.Is(err, ErrInvariant) {
		t.Errorf("Poll after Shutdown err = %v", err)
	}
}

func TestPoll_LocalStoreFaultIsReturned(t *testing.T) {
	h := newHarness(t, testConfig(1, ModeSolo))
	h.init(t)

	boom := errors.New("disk full")
	h.store.SetFault(boom)
	err := h.relay.Poll(context.Background())
	if !errors.Is(err, ErrLocalStore) || !errors.Is(err, boom) {
		t.Errorf("Poll err = %v, want wrapped local store fault", err)
	}
	h.store.SetFault(nil)
	h.poll(t)
}

func TestLink_BackoffSchedule(t *testing.T) {
	cfg := testConfig(1, ModePair)
	h := newHarness(t, cfg)
	h.init(t)

	// First entry retries immediately
	if h.relay.session.failedCalls != 1 || h.relay.session.nextCallTime != epoch.UnixMilli() {
		t.Fatalf("After Init session = %+v", h.relay.session)
	}

	var waits []int64
	for i := 0; i < 6; i++ {
		h.poll(t)
		if h.relay.LinkState() != LinkCalling {
			t.Fatalf("Round %d: expected CALLING, got %s", i, h.relay.LinkState())
		}
		h.worker.session = syncworker.SessionFailed
		h.poll(t)
		if h.relay.LinkState() != LinkDisconnected {
			t.Fatalf("Round %d: expected DISCONNECTED, got %s", i, h.relay.LinkState())
		}
		now := h.clock.Now().UnixMilli()
		waits = append(waits, h.relay.session.nextCallTime-now)

		// Not yet due: stays DISCONNECTED without starting
		starts := h.worker.starts
		if waits[i] > 0 {
			h.poll(t)
			if h.worker.starts != starts {
				t.Fatalf("Round %d: worker started before next call time", i)
			}
		}
		h.clock.Advance(time.Duration(waits[i]) * time.Millisecond)
	}

	short := cfg.ShortRetryInterval.Milliseconds()
	long := cfg.LongRetryInterval.Milliseconds()
	want := []int64{short, short, short, long, long, long}
	for i := range want {
		if waits[i] != want[i] {
			t.Errorf("Wait after entry %d = %d, want %d", i+2, waits[i], want[i])
		}
	}
}

func TestLink_WorkerRefusalStaysDisconnected(t *testing.T) {
	h := newHarness(t, testConfig(1, ModePair))
	h.init(t)
	h.worker.startOK = false

	h.poll(t)
	h.poll(t)
	if h.relay.LinkState() != LinkDisconnected {
		t.Errorf("LinkState = %s, want DISCONNECTED", h.relay.LinkState())
	}
	if h.relay.session.failedCalls != 1 {
		t.Errorf("failedCalls = %d, refusals must not count", h.relay.session.failedCalls)
	}

	h.worker.startOK = true
	h.poll(t)
	if h.relay.LinkState() != LinkCalling {
		t.Errorf("LinkState = %s, want CALLING", h.relay.LinkState())
	}
}

func TestLink_CallingRejections(t *testing.T) {
	tests := []struct {
		name  string
		first func(t *testing.T, now int64) *relayitem.Item
	}{
		{"not a status record", func(t *testing.T, now int64) *relayitem.Item {
			return pdlItem(t, relayitem.KindPDLCompletion, "ev1", now, 1)
		}},
		{"corrupt status", func(t *testing.T, now int64) *relayitem.Item {
			return &relayitem.Item{Key: relayitem.StatusKey(2), Timestamp: now, Stamp: 1, Payload: []byte("{")}
		}},
		{"partner shutting down", func(t *testing.T, now int64) *relayitem.Item {
			s := partnerStatus(2, now)
			s.PrimaryState = StateShutdown
			return statusItem(t, s, 1)
		}},
		{"protocol mismatch", func(t *testing.T, now int64) *relayitem.Item {
			s := partnerStatus(2, now)
			s.Info.ProtocolVersion = 2
			return statusItem(t, s, 1)
		}},
		{"own status", func(t *testing.T, now int64) *relayitem.Item {
			return statusItem(t, partnerStatus(1, now), 1)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testConfig(1, ModePair))
			h.init(t)
			h.poll(t)
			h.worker.session = syncworker.SessionRunning
			h.worker.push(tt.first(t, h.clock.Now().UnixMilli()))
			h.poll(t)

			if h.relay.LinkState() != LinkDisconnected {
				t.Errorf("LinkState = %s, want DISCONNECTED", h.relay.LinkState())
			}
			if h.relay.RemoteStatus() != nil {
				t.Error("Remote status must be cleared on disconnect")
			}
		})
	}
}

func TestLink_CallingWaitsForFirstItem(t *testing.T) {
	h := newHarness(t, testConfig(1, ModePair))
	h.init(t)
	h.poll(t)

	h.poll(t)
	if h.relay.LinkState() != LinkCalling {
		t.Errorf("Starting session: LinkState = %s", h.relay.LinkState())
	}
	h.worker.session = syncworker.SessionRunning
	h.poll(t)
	if h.relay.LinkState() != LinkCalling {
		t.Errorf("Empty queue: LinkState = %s", h.relay.LinkState())
	}
}

func TestLink_InitialSyncUsesLongLookback(t *testing.T) {
	cfg := testConfig(1, ModePair)
	h := newHarness(t, cfg)
	h.init(t)
	h.connect(t)

	if len(h.worker.fetches) != 1 {
		t.Fatalf("Fetches = %v", h.worker.fetches)
	}
	now := epoch.UnixMilli()
	want := [2]int64{now - cfg.LongLookback.Milliseconds(), store.StampUnbounded}
	if h.worker.fetches[0] != want {
		t.Errorf("Initial fetch = %v, want %v", h.worker.fetches[0], want)
	}
	if h.relay.session.failedCalls != 0 {
		t.Errorf("failedCalls after sync = %d, want 0", h.relay.session.failedCalls)
	}
	if h.relay.session.resyncCycle != -cfg.QuickResyncCount+1 {
		t.Errorf("resyncCycle = %d", h.relay.session.resyncCycle)
	}
	if h.relay.session.nextResyncTime != now+cfg.QuickResyncInterval.Milliseconds() {
		t.Errorf("nextResyncTime = %d", h.relay.session.nextResyncTime)
	}
}

func TestLink_FetchSnapshotTakenBeforeDrain(t *testing.T) {
	h := newHarness(t, testConfig(1, ModePair))
	h.init(t)
	h.poll(t)
	h.worker.session = syncworker.SessionRunning
	h.worker.push(statusItem(t, partnerStatus(2, epoch.UnixMilli()), 1))
	h.poll(t)

	// Fetch still active at snapshot time: items are merged, state holds
	h.worker.push(pdlItem(t, relayitem.KindPDLCompletion, "ev1", 10, 2))
	h.poll(t)
	if h.relay.LinkState() != LinkInitialSync {
		t.Fatalf("LinkState = %s, want INITIAL_SYNC", h.relay.LinkState())
	}
	if it, _ := h.store.Get(context.Background(), "pc_ev1"); it == nil {
		t.Error("Queued fetch item was not merged")
	}
}

func TestLink_FetchFailureDisconnects(t *testing.T) {
	for _, status := range []syncworker.FetchStatus{syncworker.FetchFailed, syncworker.FetchAborted} {
		t.Run(status.String(), func(t *testing.T) {
			h := newHarness(t, testConfig(1, ModePair))
			h.init(t)
			h.poll(t)
			h.worker.session = syncworker.SessionRunning
			h.worker.push(statusItem(t, partnerStatus(2, epoch.UnixMilli()), 1))
			h.poll(t)

			h.worker.fetch = status
			h.poll(t)
			if h.relay.LinkState() != LinkDisconnected {
				t.Errorf("LinkState = %s, want DISCONNECTED", h.relay.LinkState())
			}
		})
	}
}

func TestLink_ConnectedResyncAndSessionLoss(t *testing.T) {
	cfg := testConfig(1, ModePair)
	h := newHarness(t, cfg)
	h.init(t)
	h.connect(t)

	h.clock.Advance(cfg.QuickResyncInterval)
	h.poll(t)
	if h.relay.LinkState() != LinkResync {
		t.Fatalf("LinkState = %s, want RESYNC", h.relay.LinkState())
	}
	if len(h.worker.fetches) != 2 {
		t.Fatalf("Fetches = %d, want 2", len(h.worker.fetches))
	}

	h.worker.fetch = syncworker.FetchFinished
	h.poll(t)
	if h.relay.LinkState() != LinkConnected {
		t.Fatalf("LinkState = %s, want CONNECTED", h.relay.LinkState())
	}

	h.worker.session = syncworker.SessionFailed
	h.poll(t)
	if h.relay.LinkState() != LinkDisconnected {
		t.Errorf("LinkState = %s, want DISCONNECTED", h.relay.LinkState())
	}
	// First entry after a working connection retries immediately
	if h.relay.session.failedCalls != 1 || h.relay.session.nextCallTime != h.clock.Now().UnixMilli() {
		t.Errorf("Session after loss = %+v", h.relay.session)
	}
}

func TestLink_CorruptRecordWhileConnectedDisconnects(t *testing.T) {
	h := newHarness(t, testConfig(1, ModePair))
	h.init(t)
	h.connect(t)

	h.worker.push(
		pdlItem(t, relayitem.KindPDLRemoval, "ev1", 10, 5),
		&relayitem.Item{Key: "pc_ev2", Timestamp: 11, Stamp: 6, Payload: []byte("garbage")},
		pdlItem(t, relayitem.KindPDLRemoval, "ev3", 12, 7),
	)
	h.poll(t)

	if h.relay.LinkState() != LinkDisconnected {
		t.Errorf("LinkState = %s, want DISCONNECTED", h.relay.LinkState())
	}
	if it, _ := h.store.Get(context.Background(), "pr_ev1"); it == nil {
		t.Error("Item before the corrupt one should be merged")
	}
	if it, _ := h.store.Get(context.Background(), "pr_ev3"); it != nil {
		t.Error("Items after the corrupt one must not be merged")
	}
}

func TestLink_PartnerGoingDownDisconnects(t *testing.T) {
	h := newHarness(t, testConfig(1, ModePair))
	h.init(t)
	h.connect(t)

	s := partnerStatus(2, h.clock.Now().UnixMilli()+1)
	s.LinkState = LinkShutdown
	s.PrimaryState = StateShutdown
	h.worker.push(statusItem(t, s, 10))
	h.poll(t)
	if h.relay.LinkState() != LinkDisconnected {
		t.Errorf("LinkState = %s, want DISCONNECTED", h.relay.LinkState())
	}
}

func TestSetServerRelayMode(t *testing.T) {
	h := newHarness(t, testConfig(1, ModeSolo))
	h.init(t)
	ctx := context.Background()

	changed, err := h.relay.SetServerRelayMode(ctx, RelayConfig{ModeTimestamp: 10, Mode: ModePair, ConfiguredPrimary: 1}, false)
	if err != nil || !changed {
		t.Fatalf("SetServerRelayMode = %v, %v", changed, err)
	}
	if h.relay.LinkState() != LinkDisconnected {
		t.Errorf("LinkState = %s, want DISCONNECTED", h.relay.LinkState())
	}
	if stored := storedStatus(t, h.store, 1); stored.RelayConfig.Mode != ModePair {
		t.Errorf("Stored mode = %s", stored.RelayConfig.Mode)
	}

	// Older timestamp is ignored unless forced
	changed, _ = h.relay.SetServerRelayMode(ctx, RelayConfig{ModeTimestamp: 5, Mode: ModeSolo, ConfiguredPrimary: 1}, false)
	if changed {
		t.Error("Older configuration must not apply")
	}
	changed, _ = h.relay.SetServerRelayMode(ctx, RelayConfig{ModeTimestamp: 5, Mode: ModeSolo, ConfiguredPrimary: 1}, true)
	if !changed || h.relay.LinkState() != LinkSolo {
		t.Errorf("Forced solo: changed=%v link=%s", changed, h.relay.LinkState())
	}

	if _, err := h.relay.SetServerRelayMode(ctx, RelayConfig{ModeTimestamp: 99, Mode: ModePair, ConfiguredPrimary: 3}, false); !errors.Is(err, ErrInvalidConfiguredPrimary) {
		t.Errorf("Invalid configured primary err = %v", err)
	}
}

func TestAdoptRemoteConfig(t *testing.T) {
	h := newHarness(t, testConfig(2, ModePair))
	h.init(t)
	h.connect(t)

	s := partnerStatus(1, h.clock.Now().UnixMilli()+1)
	s.RelayConfig = RelayConfig{ModeTimestamp: 77, Mode: ModePair, ConfiguredPrimary: 2}
	h.worker.push(statusItem(t, s, 20))
	h.poll(t)

	if got := h.relay.LocalStatus().RelayConfig; got != s.RelayConfig {
		t.Errorf("RelayConfig = %+v, want partner's %+v", got, s.RelayConfig)
	}
}

func TestStatusWrites(t *testing.T) {
	cfg := testConfig(1, ModeSolo)
	h := newHarness(t, cfg)
	h.init(t)
	h.poll(t)

	first, _ := h.store.Get(context.Background(), relayitem.StatusKey(1))

	h.clock.Advance(time.Minute)
	h.poll(t)
	same, _ := h.store.Get(context.Background(), relayitem.StatusKey(1))
	if same.Stamp != first.Stamp {
		t.Error("Unchanged status must not be rewritten before the heartbeat is due")
	}

	h.clock.Advance(cfg.HeartbeatInterval)
	h.poll(t)
	beat, _ := h.store.Get(context.Background(), relayitem.StatusKey(1))
	if beat.Stamp == first.Stamp {
		t.Fatal("Heartbeat was not written")
	}
	st, _ := DecodeStatus(beat)
	if st.HeartbeatTime != h.clock.Now().UnixMilli() {
		t.Errorf("HeartbeatTime = %d", st.HeartbeatTime)
	}
}

func TestShutdown(t *testing.T) {
	h := newHarness(t, testConfig(1, ModePair))
	h.init(t)
	h.connect(t)
	ctx := context.Background()

	if err := h.relay.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if h.worker.terminates != 1 {
		t.Errorf("Terminate calls = %d", h.worker.terminates)
	}
	st := storedStatus(t, h.store, 1)
	if st.LinkState != LinkShutdown || st.PrimaryState != StateShutdown {
		t.Errorf("Final status = %s/%s", st.LinkState, st.PrimaryState)
	}
	if h.relay.RemoteStatus() != nil {
		t.Error("Remote status must be cleared")
	}

	before, _ := h.store.Get(ctx, relayitem.StatusKey(1))
	if err := h.relay.Shutdown(ctx); err != nil {
		t.Errorf("Second Shutdown: %v", err)
	}
	after, _ := h.store.Get(ctx, relayitem.StatusKey(1))
	if after.Stamp != before.Stamp {
		t.Error("Final status must be written exactly once")
	}
	h.relay.Close()
	if h.worker.terminates != 1 {
		t.Error("Close after Shutdown must not terminate again")
	}
}

func TestShutdown_StoreFaultIsAccumulated(t *testing.T) {
	h := newHarness(t, testConfig(1, ModeSolo))
	h.init(t)
	boom := errors.New("store gone")
	h.store.SetFault(boom)

	err := h.relay.Shutdown(context.Background())
	var te *TeardownError
	if !errors.As(err, &te) {
		t.Fatalf("Shutdown err = %v, want TeardownError", err)
	}
	if te.Worker != nil || !errors.Is(te.Store, boom) {
		t.Errorf("TeardownError = %+v", te)
	}
	if h.relay.PrimaryState() != StateShutdown || h.relay.LinkState() != LinkShutdown {
		t.Error("State must be finalized even when the write fails")
	}
}

func TestShutdown_WorkerTimeoutIsAccumulated(t *testing.T) {
	h := newHarness(t, testConfig(1, ModePair))
	h.init(t)
	h.connect(t)
	h.worker.terminateErr = syncworker.ErrTerminateTimeout

	err := h.relay.Shutdown(context.Background())
	var te *TeardownError
	if !errors.As(err, &te) {
		t.Fatalf("Shutdown err = %v, want TeardownError", err)
	}
	if !errors.Is(te.Worker, syncworker.ErrTerminateTimeout) || te.Store != nil {
		t.Errorf("TeardownError = %+v", te)
	}
	st := storedStatus(t, h.store, 1)
	if st.LinkState != LinkShutdown || st.PrimaryState != StateShutdown {
		t.Errorf("Final status = %s/%s, must still be written", st.LinkState, st.PrimaryState)
	}
}

func TestClose_TerminatesOnce(t *testing.T) {
	h := newHarness(t, testConfig(1, ModePair))
	h.init(t)
	h.relay.Close()
	h.relay.Close()
	if h.worker.terminates != 1 {
		t.Errorf("Terminate calls = %d, want 1", h.worker.terminates)
	}
}

func TestSetServerRelayMode_WatchToPairRestartsFilteredSession(t *testing.T) {
	cfg := testConfig(1, ModeWatch)
	h := newHarness(t, cfg)
	h.init(t)
	h.connect(t)
	if !h.worker.statusOnly {
		t.Fatal("Configured primary in WATCH must start a status-only session")
	}
	starts := h.worker.starts
	ctx := context.Background()

	changed, err := h.relay.SetServerRelayMode(ctx, RelayConfig{ModeTimestamp: 100, Mode: ModePair, ConfiguredPrimary: 1}, false)
	if err != nil || !changed {
		t.Fatalf("SetServerRelayMode = %v, %v", changed, err)
	}
	if h.relay.LinkState() != LinkDisconnected {
		t.Fatalf("Link = %s, want DISCONNECTED after the filter changed", h.relay.LinkState())
	}
	if h.worker.shutdowns == 0 {
		t.Error("Status-only session must be shut down")
	}

	// First reconnect is immediate
	h.poll(t)
	if h.worker.starts != starts+1 || h.worker.statusOnly {
		t.Errorf("starts=%d statusOnly=%v, want a new full session", h.worker.starts, h.worker.statusOnly)
	}
	if h.relay.LinkState() != LinkCalling {
		t.Errorf("Link = %s, want CALLING", h.relay.LinkState())
	}
}

func TestAdoptRemoteConfig_PairToWatchRestartsSession(t *testing.T) {
	h := newHarness(t, testConfig(1, ModePair))
	h.init(t)
	h.connect(t)
	if h.worker.statusOnly {
		t.Fatal("PAIR must start a full session")
	}

	remote := partnerStatus(2, h.clock.Now().UnixMilli())
	remote.LinkState = LinkConnected
	remote.RelayConfig = RelayConfig{ModeTimestamp: 500, Mode: ModeWatch, ConfiguredPrimary: 1}
	h.worker.push(statusItem(t, remote, 10))
	h.poll(t)

	if h.relay.LocalStatus().RelayConfig.Mode != ModeWatch {
		t.Fatalf("Mode = %s, want adopted watch", h.relay.LocalStatus().RelayConfig.Mode)
	}
	if h.relay.LinkState() != LinkDisconnected {
		t.Errorf("Link = %s, want DISCONNECTED", h.relay.LinkState())
	}

	h.poll(t)
	if !h.worker.statusOnly {
		t.Error("Reconnect must use the status-only hint")
	}
}

func TestSetServerRelayMode_SameFilterKeepsSession(t *testing.T) {
	h := newHarness(t, testConfig(2, ModeWatch))
	h.init(t)
	h.connect(t)
	shutdowns := h.worker.shutdowns

	changed, err := h.relay.SetServerRelayMode(context.Background(), RelayConfig{ModeTimestamp: 100, Mode: ModePair, ConfiguredPrimary: 1}, false)
	if err != nil || !changed {
		t.Fatalf("SetServerRelayMode = %v, %v", changed, err)
	}
	if h.relay.LinkState() != LinkConnected || h.worker.shutdowns != shutdowns {
		t.Errorf("Link = %s shutdowns=%d, configured secondary already had a full session", h.relay.LinkState(), h.worker.shutdowns)
	}
}

func TestWatchMode_StatusOnlyHint(t *testing.T) {
	tests := []struct {
		server int
		want   bool
	}{
		{1, true},
		{2, false},
	}
	for _, tt := range tests {
		h := newHarness(t, testConfig(tt.server, ModeWatch))
		h.init(t)
		h.poll(t)
		if h.worker.statusOnly != tt.want {
			t.Errorf("Server %d statusOnly = %v, want %v", tt.server, h.worker.statusOnly, tt.want)
		}
	}
}
