package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"quakebot/internal/delivery"
	"quakebot/internal/dispatch"
	"quakebot/internal/eventbus"
	"quakebot/internal/metrics"
	"quakebot/internal/poll"
	"quakebot/internal/quake"
	"quakebot/internal/storage"
	kit "quakebot/internal/transport"
	logx "quakebot/pkg/logx"
)

type fakeReports struct {
	rep dispatch.Report
	ok  bool
}

func (f fakeReports) LastReport() (dispatch.Report, bool) { return f.rep, f.ok }

type fakePoll struct{ snap poll.Snapshot }

func (f fakePoll) Snapshot() poll.Snapshot { return f.snap }

type fakeDeliveries struct{ items []delivery.HistoryItem }

func (f fakeDeliveries) Snapshot() []delivery.HistoryItem { return f.items }

func openStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "quakebot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func get(t *testing.T, h http.Handler, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusReportsSections(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	for i := 0; i < 2; i++ {
		ev := quake.Event{ID: fmt.Sprintf("4.2-ev%d-1000", i), Place: "somewhere", Magnitude: 4.2}
		if _, err := st.Events().Put(ctx, ev); err != nil {
			t.Fatalf("put event: %v", err)
		}
	}
	if _, err := st.Subscribers().GetOrCreate(ctx, "-100123"); err != nil {
		t.Fatalf("create subscriber: %v", err)
	}

	bus := eventbus.New()
	src := Sources{
		StartedAt: time.Now().Add(-time.Minute),
		Dispatch:  fakeReports{rep: dispatch.Report{RunID: "run-1", Sent: 3}, ok: true},
		Poll:      fakePoll{snap: poll.Snapshot{Schedule: "@every 60s", Running: true}},
		Delivery: fakeDeliveries{items: []delivery.HistoryItem{
			{At: time.Now(), Target: kit.ChatTarget{ChatID: -100123}, Text: "alert"},
		}},
		Store: st,
		Bus:   bus,
	}
	svc := New(Config{Enabled: true}, src, logx.Nop())
	svc.ringAdd(eventbus.Event{Type: eventbus.TypeCycleCompleted, Time: time.Now()})

	rec := get(t, svc.routes(svc.cfg), "/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type = %q", ct)
	}

	var got struct {
		Service string `json:"service"`
		Uptime  string `json:"uptime"`
		Poll    *struct {
			Schedule string `json:"schedule"`
			Running  bool   `json:"running"`
		} `json:"poll"`
		LastCycle *struct {
			RunID string `json:"run_id"`
			Sent  int    `json:"sent"`
		} `json:"last_cycle"`
		Storage *struct {
			Events      int `json:"events"`
			Subscribers int `json:"subscribers"`
		} `json:"storage"`
		Deliveries []json.RawMessage `json:"recent_deliveries"`
		Events     []struct {
			Type string `json:"type"`
		} `json:"recent_events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode status: %v\n%s", err, rec.Body.String())
	}
	if got.Service != "quakebot" {
		t.Fatalf("service = %q", got.Service)
	}
	if got.Uptime == "" {
		t.Fatal("uptime missing")
	}
	if got.Poll == nil || got.Poll.Schedule != "@every 60s" || !got.Poll.Running {
		t.Fatalf("poll section = %+v", got.Poll)
	}
	if got.LastCycle == nil || got.LastCycle.RunID != "run-1" || got.LastCycle.Sent != 3 {
		t.Fatalf("last_cycle section = %+v", got.LastCycle)
	}
	if got.Storage == nil || got.Storage.Events != 2 || got.Storage.Subscribers != 1 {
		t.Fatalf("storage section = %+v", got.Storage)
	}
	if len(got.Deliveries) != 1 {
		t.Fatalf("recent_deliveries = %d items", len(got.Deliveries))
	}
	if len(got.Events) != 1 || got.Events[0].Type != eventbus.TypeCycleCompleted {
		t.Fatalf("recent_events = %+v", got.Events)
	}
}

func TestStatusWorksWithoutCollaborators(t *testing.T) {
	svc := New(Config{Enabled: true}, Sources{StartedAt: time.Now()}, logx.Nop())

	rec := get(t, svc.routes(svc.cfg), "/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if got["service"] != "quakebot" {
		t.Fatalf("service = %v", got["service"])
	}
	for _, absent := range []string{"poll", "last_cycle", "storage", "recent_deliveries", "recent_events"} {
		if _, ok := got[absent]; ok {
			t.Fatalf("section %q should be omitted without a source", absent)
		}
	}
}

func TestTokenGuardsStatusButNotHealthz(t *testing.T) {
	cfg := Config{Enabled: true, Token: "sekrit"}
	svc := New(cfg, Sources{StartedAt: time.Now()}, logx.Nop())
	h := svc.routes(cfg)

	if rec := get(t, h, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz with token configured = %d", rec.Code)
	}
	if rec := get(t, h, "/status", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d", rec.Code)
	}
	if rec := get(t, h, "/metrics", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("metrics without token = %d", rec.Code)
	}
	if rec := get(t, h, "/status?token=sekrit", nil); rec.Code != http.StatusOK {
		t.Fatalf("status with query token = %d", rec.Code)
	}
	if rec := get(t, h, "/status?token=wrong", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status with wrong token = %d", rec.Code)
	}
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer sekrit")
	if rec := get(t, h, "/status", hdr); rec.Code != http.StatusOK {
		t.Fatalf("status with bearer token = %d", rec.Code)
	}
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.CycleCompleted(time.Second)

	svc := New(Config{Enabled: true}, Sources{StartedAt: time.Now(), Metrics: reg}, logx.Nop())

	rec := get(t, svc.routes(svc.cfg), "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "quakebot_poll_cycles_total") {
		t.Fatalf("metrics body missing cycle counter:\n%s", rec.Body.String())
	}
}

func TestRecentEventsRingClips(t *testing.T) {
	svc := New(Config{Enabled: true}, Sources{}, logx.Nop())
	for i := 0; i < ringCap+8; i++ {
		svc.ringAdd(eventbus.Event{Type: fmt.Sprintf("ev.%d", i), Time: time.Now()})
	}
	ring := svc.ringSnapshot()
	if len(ring) != ringCap {
		t.Fatalf("ring size = %d, want %d", len(ring), ringCap)
	}
	if ring[0].Type != "ev.8" {
		t.Fatalf("oldest kept entry = %q, want ev.8", ring[0].Type)
	}
	if ring[len(ring)-1].Type != fmt.Sprintf("ev.%d", ringCap+7) {
		t.Fatalf("newest entry = %q", ring[len(ring)-1].Type)
	}
}

func TestLoopbackAddrDetection(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:8900", true},
		{"localhost:8900", true},
		{"[::1]:8900", true},
		{":8900", false},
		{"0.0.0.0:8900", false},
		{"192.168.1.5:8900", false},
		{"not-an-addr", false},
	}
	for _, tc := range tests {
		if got := isLoopbackAddr(tc.addr); got != tc.want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}
