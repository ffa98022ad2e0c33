package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func fixed(status Status) CheckFunc {
	return func() Check { return Check{Status: status} }
}

func TestCheckStatusAggregation(t *testing.T) {
	tests := []struct {
		name   string
		checks []Status
		want   Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy wins", []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(1)
			for i, s := range tt.checks {
				c.Register(string(rune('a'+i)), Liveness, fixed(s))
			}
			if got := c.Report(Liveness).Status; got != tt.want {
				t.Errorf("Status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestReportFillsNameAndTiming(t *testing.T) {
	clock := time.UnixMilli(1_000_000)
	c := newCheckerWithClock(2, func() time.Time { return clock })
	clock = clock.Add(90 * time.Second)
	c.Register("store", Liveness, fixed(StatusHealthy))

	resp := c.Report(Liveness)
	if resp.Server != 2 || resp.Probe != "liveness" {
		t.Errorf("Response header = %d/%s", resp.Server, resp.Probe)
	}
	if len(resp.Checks) != 1 || resp.Checks[0].Name != "store" {
		t.Fatalf("Checks = %+v", resp.Checks)
	}
	if !resp.Checks[0].CheckedAt.Equal(clock) {
		t.Errorf("CheckedAt = %v", resp.Checks[0].CheckedAt)
	}
	if resp.Uptime != 90 {
		t.Errorf("Uptime = %v, want 90", resp.Uptime)
	}
}

func TestRegisterSeparatesProbesAndOrdersByName(t *testing.T) {
	c := NewChecker(1)
	c.Register("store", Liveness, fixed(StatusHealthy))
	c.Register("link", Liveness, fixed(StatusDegraded))
	c.Register("role", Readiness, fixed(StatusUnhealthy))
	c.Register("link", Liveness, fixed(StatusHealthy))

	live := c.Report(Liveness)
	if live.Status != StatusHealthy {
		t.Errorf("Liveness status = %s, replaced check not applied", live.Status)
	}
	if len(live.Checks) != 2 || live.Checks[0].Name != "link" || live.Checks[1].Name != "store" {
		t.Errorf("Liveness checks = %+v", live.Checks)
	}

	ready := c.Report(Readiness)
	if ready.Status != StatusUnhealthy || len(ready.Checks) != 1 {
		t.Errorf("Readiness = %+v", ready)
	}
}

func TestStoreCheck(t *testing.T) {
	ok := StoreCheck(func(ctx context.Context) error { return nil }, time.Second)()
	if ok.Status != StatusHealthy {
		t.Errorf("Healthy ping status = %s", ok.Status)
	}

	bad := StoreCheck(func(ctx context.Context) error { return errors.New("refused") }, time.Second)()
	if bad.Status != StatusUnhealthy || bad.Message != "refused" {
		t.Errorf("Failed ping check = %+v", bad)
	}

	slow := StoreCheck(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, 10*time.Millisecond)()
	if slow.Status != StatusUnhealthy {
		t.Errorf("Timed out ping status = %s", slow.Status)
	}
}

func TestLinkCheck(t *testing.T) {
	tests := []struct {
		snap LinkSnapshot
		want Status
	}{
		{LinkSnapshot{Mode: "solo", State: "SOLO"}, StatusHealthy},
		{LinkSnapshot{Mode: "pair", State: "CONNECTED"}, StatusHealthy},
		{LinkSnapshot{Mode: "pair", State: "CALLING"}, StatusDegraded},
		{LinkSnapshot{Mode: "pair", State: "DISCONNECTED", FailedCalls: 5, RemoteDead: true}, StatusDegraded},
		{LinkSnapshot{Mode: "pair", State: "SHUTDOWN"}, StatusUnhealthy},
	}

	for _, tt := range tests {
		snap := tt.snap
		got := LinkCheck(func() LinkSnapshot { return snap })()
		if got.Status != tt.want {
			t.Errorf("LinkCheck(%+v) = %s, want %s", snap, got.Status, tt.want)
		}
		if got.Details["state"] != snap.State {
			t.Errorf("Details state = %v", got.Details["state"])
		}
	}
}

func TestRoleCheck(t *testing.T) {
	tests := map[string]Status{
		"PRIMARY":      StatusHealthy,
		"SECONDARY":    StatusHealthy,
		"INITIALIZING": StatusDegraded,
		"SHUTDOWN":     StatusUnhealthy,
	}
	for state, want := range tests {
		s := state
		if got := RoleCheck(func() string { return s })().Status; got != want {
			t.Errorf("RoleCheck(%s) = %s, want %s", state, got, want)
		}
	}
}

func TestLivenessHandler(t *testing.T) {
	tests := []struct {
		status   Status
		wantCode int
	}{
		{StatusHealthy, http.StatusOK},
		{StatusDegraded, http.StatusOK},
		{StatusUnhealthy, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		c := NewChecker(1)
		c.Register("x", Liveness, fixed(tt.status))

		rec := httptest.NewRecorder()
		c.Handler(Liveness)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != tt.wantCode {
			t.Errorf("%s: code = %d, want %d", tt.status, rec.Code, tt.wantCode)
		}
		var resp Response
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if resp.Status != tt.status {
			t.Errorf("Body status = %s, want %s", resp.Status, tt.status)
		}
	}
}

func TestReadinessHandler_DegradedIsNotReady(t *testing.T) {
	c := NewChecker(1)
	c.Register("role", Readiness, fixed(StatusDegraded))

	rec := httptest.NewRecorder()
	c.Handler(Readiness)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Code = %d, want 503", rec.Code)
	}
}
