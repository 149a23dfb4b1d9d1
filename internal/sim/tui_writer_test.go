package sim

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"infrasim/internal/chaos"
	"infrasim/internal/telemetry"
	"infrasim/internal/topology"
)

type fakeProgram struct{ msgs []tea.Msg }

func (f *fakeProgram) Send(msg tea.Msg) { f.msgs = append(f.msgs, msg) }

func tuiTopology(t *testing.T) *topology.Topology {
	t.Helper()
	topo := topology.New()
	for _, n := range []topology.Node{
		{ID: "users", Type: topology.TypeClient},
		{ID: "app", Type: topology.TypeAppServer},
		{ID: "note", Type: topology.TypeText},
	} {
		if err := topo.AddNode(n); err != nil {
			t.Fatalf("add %s: %v", n.ID, err)
		}
	}
	return topo
}

func TestTUIWriterMessages(t *testing.T) {
	p := &fakeProgram{}
	w := &TUIWriter{program: p}
	if err := w.Write(telemetry.ComponentRow{ComponentID: "app", Timestamp: time.Unix(0, 0).UTC()}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := p.msgs[0].(componentsMsg); !ok {
		t.Fatalf("expected componentsMsg, got %T", p.msgs[0])
	}
	if err := w.WriteState(telemetry.SimulationStateRow{Tick: 1}); err != nil {
		t.Fatalf("state: %v", err)
	}
	if _, ok := p.msgs[1].(stateMsg); !ok {
		t.Fatalf("expected stateMsg, got %T", p.msgs[1])
	}
	w.SetAdminStatus(true)
	if _, ok := p.msgs[2].(adminMsg); !ok {
		t.Fatalf("expected adminMsg, got %T", p.msgs[2])
	}
	if err := w.WriteFailure(telemetry.FailureRow{ComponentID: "db", Kind: "db_overload", Severity: 0.9}); err != nil {
		t.Fatalf("failure: %v", err)
	}
	lm, ok := p.msgs[3].(logMsg)
	if !ok {
		t.Fatalf("expected logMsg for failure, got %T", p.msgs[3])
	}
	if !strings.Contains(lm.line, colorRed) || !strings.Contains(lm.line, "db_overload") {
		t.Fatalf("unexpected failure line %q", lm.line)
	}
	if err := w.WriteScore(telemetry.ScoreRow{Overall: 80, Grade: "B"}); err != nil {
		t.Fatalf("score: %v", err)
	}
	if _, ok := p.msgs[4].(scoreMsg); !ok {
		t.Fatalf("expected scoreMsg, got %T", p.msgs[4])
	}
}

func TestComponentTableSkipsAnnotations(t *testing.T) {
	m := newTUIModel(tuiTopology(t))
	if len(m.order) != 2 {
		t.Fatalf("expected 2 simulated components, got %v", m.order)
	}
	mi, _ := m.Update(componentsMsg{rows: []telemetry.ComponentRow{
		{ComponentID: "app", Utilization: 1.3, RPS: 1000, ReadyInstances: 2, Crashed: true},
	}})
	m = mi.(tuiModel)
	rows := m.table.Rows()
	if rows[1][0] != "app" || rows[1][2] != "1.30" || rows[1][7] != "CRASHED" {
		t.Fatalf("unexpected app row %v", rows[1])
	}
	if rows[0][7] != "waiting" {
		t.Fatalf("expected users to wait for data, got %v", rows[0])
	}
}

func TestWrapToggle(t *testing.T) {
	m := newTUIModel(tuiTopology(t))
	mi, _ := m.Update(tea.WindowSizeMsg{Width: 20, Height: 40})
	m = mi.(tuiModel)
	long := "one two three four five six"
	mi, _ = m.Update(logMsg{line: long})
	m = mi.(tuiModel)
	lines := strings.Split(m.vp.View(), "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[1]) != "" {
		t.Fatalf("expected single line before wrap")
	}
	mi, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'w'}})
	m = mi.(tuiModel)
	if !m.wrap {
		t.Fatalf("wrap not toggled")
	}
	lines = strings.Split(m.vp.View(), "\n")
	if strings.TrimSpace(lines[1]) == "" {
		t.Fatalf("expected wrapped content on second line")
	}
}

func TestScrollToggle(t *testing.T) {
	m := newTUIModel(nil)
	m.vp.Height = 1
	m.vp.Width = 20
	mi, _ := m.Update(logMsg{line: "l1"})
	m = mi.(tuiModel)
	mi, _ = m.Update(logMsg{line: "l2"})
	m = mi.(tuiModel)
	if m.vp.YOffset != 1 {
		t.Fatalf("expected YOffset 1, got %d", m.vp.YOffset)
	}
	mi, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	m = mi.(tuiModel)
	if m.autoscroll {
		t.Fatalf("autoscroll should be off")
	}
	mi, _ = m.Update(logMsg{line: "l3"})
	m = mi.(tuiModel)
	if m.vp.YOffset != 1 {
		t.Fatalf("expected YOffset unchanged, got %d", m.vp.YOffset)
	}
	mi, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = mi.(tuiModel)
	if m.vp.YOffset != 0 {
		t.Fatalf("expected YOffset 0 after scrolling up, got %d", m.vp.YOffset)
	}
	mi, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	m = mi.(tuiModel)
	if !m.autoscroll {
		t.Fatalf("autoscroll should be on")
	}
	if expected := len(m.logs) - m.vp.Height; m.vp.YOffset != expected {
		t.Fatalf("expected YOffset %d, got %d", expected, m.vp.YOffset)
	}
}

func TestChaosDialogInjects(t *testing.T) {
	m := newTUIModel(tuiTopology(t))
	var got chaos.Event
	mi, _ := m.Update(setControlsMsg{TUIControls{InjectChaos: func(e chaos.Event) (chaos.Event, error) {
		got = e
		return e, nil
	}}})
	m = mi.(tuiModel)
	mi, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}})
	m = mi.(tuiModel)
	if !m.chaosDialog {
		t.Fatalf("chaos dialog not opened")
	}
	m.chaosInput.SetValue("component_crash,app,45s")
	mi, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = mi.(tuiModel)
	if m.chaosDialog {
		t.Fatalf("chaos dialog still open")
	}
	if cmd == nil {
		t.Fatalf("expected injection command")
	}
	if msg := cmd(); msg != nil {
		t.Fatalf("unexpected message %v", msg)
	}
	if got.Type != chaos.ComponentCrash || got.Duration != 45*time.Second || len(got.Targets) != 1 || got.Targets[0] != "app" {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestChaosDialogReportsRejection(t *testing.T) {
	m := newTUIModel(tuiTopology(t))
	m.controls.InjectChaos = func(chaos.Event) (chaos.Event, error) {
		return chaos.Event{}, errors.New("unknown component")
	}
	mi, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}})
	m = mi.(tuiModel)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	msg, ok := cmd().(logMsg)
	if !ok || !strings.Contains(msg.line, "unknown component") {
		t.Fatalf("expected rejection log, got %v", msg)
	}
}

func TestParseChaosInput(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
		check   func(chaos.Event) bool
	}{
		{in: "traffic_spike,,20s,multiplier=5", check: func(e chaos.Event) bool {
			return e.Params[chaos.ParamMultiplier] == 5 && e.Duration == 20*time.Second
		}},
		{in: "network_partition,a;b", check: func(e chaos.Event) bool {
			return len(e.Targets) == 2 && e.Duration > 0
		}},
		{in: "network_partition", wantErr: true},
		{in: "meteor_strike,app", wantErr: true},
		{in: "traffic_spike,,soon", wantErr: true},
		{in: "traffic_spike,,10s,multiplier", wantErr: true},
	}
	for _, c := range cases {
		e, err := parseChaosInput(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", c.in, err)
			continue
		}
		if !c.check(e) {
			t.Errorf("%q: unexpected event %+v", c.in, e)
		}
	}
}
