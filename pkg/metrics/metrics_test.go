package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return m.Gauge.GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return m.Counter.GetValue()
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}
	if r.LinkState == nil || r.PrimaryState == nil || r.MergeOutcomesTotal == nil {
		t.Error("Relay metrics not initialized")
	}
	if r.WorkerQueueDepth == nil {
		t.Error("Worker metrics not initialized")
	}
	if r.GetPrometheusRegistry() == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestDefaultRegistry(t *testing.T) {
	if DefaultRegistry() != DefaultRegistry() {
		t.Error("DefaultRegistry() should return the same instance")
	}
}

func TestSetLinkState(t *testing.T) {
	r := NewRegistry()

	r.SetLinkState("CALLING")
	r.SetLinkState("CONNECTED")

	connected, _ := r.LinkState.GetMetricWithLabelValues("CONNECTED")
	if v := gaugeValue(t, connected); v != 1 {
		t.Errorf("CONNECTED gauge = %v, want 1", v)
	}
	calling, _ := r.LinkState.GetMetricWithLabelValues("CALLING")
	if v := gaugeValue(t, calling); v != 0 {
		t.Errorf("CALLING gauge = %v, want 0 after reset", v)
	}
	transitions, _ := r.LinkTransitionsTotal.GetMetricWithLabelValues("CALLING")
	if v := counterValue(t, transitions); v != 1 {
		t.Errorf("Transitions to CALLING = %v, want 1", v)
	}
}

func TestSetPrimaryState(t *testing.T) {
	r := NewRegistry()
	r.SetPrimaryState("INITIALIZING")
	r.SetPrimaryState("PRIMARY")

	primary, _ := r.PrimaryState.GetMetricWithLabelValues("PRIMARY")
	if v := gaugeValue(t, primary); v != 1 {
		t.Errorf("PRIMARY gauge = %v, want 1", v)
	}
}

func TestRecordFetchAndMerge(t *testing.T) {
	r := NewRegistry()

	r.RecordFetch(true, "requested")
	r.RecordFetch(false, "requested")
	r.RecordFetch(false, "requested")
	r.RecordMerge("pdl_completion", "applied")
	r.RecordMerge("pdl_completion", "not_applied")
	r.RecordMerge("pdl_completion", "applied")

	short, _ := r.FetchesTotal.GetMetricWithLabelValues("short", "requested")
	if v := counterValue(t, short); v != 2 {
		t.Errorf("Short fetches = %v, want 2", v)
	}
	applied, _ := r.MergeOutcomesTotal.GetMetricWithLabelValues("pdl_completion", "applied")
	if v := counterValue(t, applied); v != 2 {
		t.Errorf("Applied merges = %v, want 2", v)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	r := NewRegistry()
	r.RecordHTTPRequest("GET", "/relay/status", "200", 10*time.Millisecond)

	c, _ := r.HTTPRequestsTotal.GetMetricWithLabelValues("GET", "/relay/status", "200")
	if v := counterValue(t, c); v != 1 {
		t.Errorf("Counter value = %v, want 1", v)
	}
}

func TestUpdateSystemMetrics(t *testing.T) {
	r := NewRegistry()
	r.UpdateSystemMetrics(time.Now().Add(-time.Minute))

	if v := gaugeValue(t, r.UptimeSeconds); v < 59 {
		t.Errorf("Uptime = %v, want about 60", v)
	}
	if v := gaugeValue(t, r.GoRoutines); v < 1 {
		t.Errorf("Goroutines = %v", v)
	}
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.SetLinkState("SOLO")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `relay_link_state{state="SOLO"} 1`) {
		t.Errorf("Exposition missing link state:\n%s", body)
	}
}
