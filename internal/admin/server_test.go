package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"infrasim/internal/chaos"
	"infrasim/internal/failure"
	"infrasim/internal/metrics"
	"infrasim/internal/sim"
	"infrasim/internal/topology"
)

func newTestServer(t *testing.T, valid bool) (*Server, *sim.Simulator) {
	t.Helper()
	topo := topology.New()
	if valid {
		for _, n := range []topology.Node{
			{ID: "users", Type: topology.TypeClient},
			{ID: "app", Type: topology.TypeAppServer},
		} {
			if err := topo.AddNode(n); err != nil {
				t.Fatalf("add node: %v", err)
			}
		}
		if err := topo.Connect(topology.Edge{Source: "users", Target: "app"}); err != nil {
			t.Fatalf("connect: %v", err)
		}
	} else if err := topo.AddNode(topology.Node{ID: "note", Type: topology.TypeText}); err != nil {
		t.Fatalf("add node: %v", err)
	}
	reg := metrics.NewRegistry()
	s, err := sim.NewSimulator(topo, sim.Options{RunID: "admin-test", TrafficLevel: 1}, reg)
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	return NewServer(s, reg.Handler()), s
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestRunControl(t *testing.T) {
	srv, s := newTestServer(t, true)

	if w := do(t, srv, http.MethodPost, "/pause", ""); w.Code != http.StatusConflict {
		t.Fatalf("pause before start: expected 409, got %d", w.Code)
	}
	w := do(t, srv, http.MethodPost, "/start", "")
	if w.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", w.Code, w.Body)
	}
	var snap sim.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.State != sim.StateRunning {
		t.Fatalf("expected running, got %s", snap.State)
	}
	if w := do(t, srv, http.MethodPost, "/pause", ""); w.Code != http.StatusOK {
		t.Fatalf("pause: expected 200, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodPost, "/resume", ""); w.Code != http.StatusOK {
		t.Fatalf("resume: expected 200, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodGet, "/score", ""); w.Code != http.StatusNotFound {
		t.Fatalf("score before stop: expected 404, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodPost, "/stop", ""); w.Code != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodGet, "/score", ""); w.Code != http.StatusOK {
		t.Fatalf("score: expected 200, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodPost, "/start", ""); w.Code != http.StatusConflict {
		t.Fatalf("start after stop: expected 409, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodPost, "/reset", ""); w.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d", w.Code)
	}
	if s.Snapshot().State != sim.StateIdle {
		t.Fatalf("expected idle after reset, got %s", s.Snapshot().State)
	}
}

func TestStartRejectsInvalidDesign(t *testing.T) {
	srv, _ := newTestServer(t, false)
	w := do(t, srv, http.MethodPost, "/start", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Reasons) == 0 {
		t.Fatalf("expected validation reasons")
	}

	w = do(t, srv, http.MethodGet, "/validate", "")
	var res topology.ValidationResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.IsValid {
		t.Fatalf("expected invalid design")
	}
}

func TestTrafficLevel(t *testing.T) {
	srv, s := newTestServer(t, true)
	if w := do(t, srv, http.MethodPost, "/traffic?level=3", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if s.Snapshot().TrafficLevel != 3 {
		t.Fatalf("traffic level not applied")
	}
	if w := do(t, srv, http.MethodPost, "/traffic?level=-1", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("negative level: expected 400, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodPost, "/traffic?level=lots", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad level: expected 400, got %d", w.Code)
	}
	for _, level := range []string{"Inf", "NaN", "1e308"} {
		if w := do(t, srv, http.MethodPost, "/traffic?level="+level, ""); w.Code != http.StatusBadRequest {
			t.Fatalf("level %s: expected 400, got %d", level, w.Code)
		}
	}
	if s.Snapshot().TrafficLevel != 3 {
		t.Fatalf("rejected level changed the run: %v", s.Snapshot().TrafficLevel)
	}
	if w := do(t, srv, http.MethodGet, "/snapshot", ""); w.Code != http.StatusOK {
		t.Fatalf("snapshot: expected 200, got %d", w.Code)
	}
}

func TestChaosEndpoints(t *testing.T) {
	srv, s := newTestServer(t, true)
	w := do(t, srv, http.MethodPost, "/chaos", `{"id":"crash-app","type":"component_crash","targets":["app"],"duration":"45s"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("add chaos: expected 201, got %d: %s", w.Code, w.Body)
	}
	var ev chaos.Event
	if err := json.NewDecoder(w.Body).Decode(&ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Duration.Seconds() != 45 {
		t.Fatalf("unexpected duration %v", ev.Duration)
	}
	if len(s.Snapshot().Chaos) != 1 {
		t.Fatalf("chaos not scheduled")
	}

	cases := []struct {
		body string
		code int
	}{
		{`{"type":"meteor"}`, http.StatusBadRequest},
		{`{"type":"network_partition"}`, http.StatusBadRequest},
		{`{"type":"component_crash","targets":["ghost"]}`, http.StatusNotFound},
		{`{"type":"traffic_spike","duration":"soon"}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
	}
	for _, c := range cases {
		if w := do(t, srv, http.MethodPost, "/chaos", c.body); w.Code != c.code {
			t.Errorf("%s: expected %d, got %d", c.body, c.code, w.Code)
		}
	}

	if w := do(t, srv, http.MethodDelete, "/chaos/crash-app", ""); w.Code != http.StatusNoContent {
		t.Fatalf("remove chaos: expected 204, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodDelete, "/chaos/crash-app", ""); w.Code != http.StatusNotFound {
		t.Fatalf("remove twice: expected 404, got %d", w.Code)
	}
}

func TestApplyFix(t *testing.T) {
	srv, s := newTestServer(t, true)
	if w := do(t, srv, http.MethodPost, "/fix?type=add_circuit_breaker&component=app", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	app, _ := s.Snapshot().Node("app")
	if !app.Config.CircuitBreaker {
		t.Fatalf("fix not applied")
	}
	if w := do(t, srv, http.MethodPost, "/fix?type=add_circuit_breaker&component=ghost", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown component: expected 404, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodPost, "/fix?type=buy_more_servers&component=app", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown fix: expected 400, got %d", w.Code)
	}
}

func TestObservationEndpoints(t *testing.T) {
	srv, s := newTestServer(t, true)
	if _, err := s.AddChaosEvent(chaos.Event{Type: chaos.ComponentCrash, Targets: []string{"app"}}); err != nil {
		t.Fatalf("add chaos: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := s.Step(t.Context()); err != nil {
		t.Fatalf("step: %v", err)
	}

	w := do(t, srv, http.MethodGet, "/failures", "")
	var failures []failure.Event
	if err := json.NewDecoder(w.Body).Decode(&failures); err != nil {
		t.Fatalf("decode failures: %v", err)
	}
	if len(failures) == 0 {
		t.Fatalf("expected recorded failures")
	}
	w = do(t, srv, http.MethodGet, "/failures?since=99", "")
	if err := json.NewDecoder(w.Body).Decode(&failures); err != nil {
		t.Fatalf("decode failures: %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("expected no failures after tick 99, got %d", len(failures))
	}

	w = do(t, srv, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "infrasim_component_crashed") {
		t.Fatalf("metrics missing component gauges: %d", w.Code)
	}

	w = do(t, srv, http.MethodGet, "/", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "admin-test") {
		t.Fatalf("index did not render: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "component_crash") {
		t.Fatalf("index misses the failure log")
	}
}
