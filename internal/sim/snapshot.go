package sim

import (
	"slices"
	"time"

	"infrasim/internal/chaos"
	"infrasim/internal/failure"
	"infrasim/internal/score"
	"infrasim/internal/telemetry"
	"infrasim/internal/topology"
)

// NodeView is a component together with its metrics of the published tick.
type NodeView struct {
	topology.Node
	Metrics telemetry.ComponentMetrics `json:"metrics"`
}

// EdgeView is a connection together with the traffic it carried.
type EdgeView struct {
	topology.Edge
	TrafficFlow float64 `json:"traffic_flow"`
	FlowRPS     float64 `json:"flow_rps"`
}

// Snapshot is an immutable view of the simulation published after every
// tick and control change. Observers may hold on to it indefinitely.
type Snapshot struct {
	RunID        string                  `json:"run_id"`
	State        RunState                `json:"state"`
	Tick         int64                   `json:"tick"`
	Elapsed      time.Duration           `json:"elapsed"`
	TrafficLevel float64                 `json:"traffic_level"`
	Phase        string                  `json:"phase,omitempty"`
	Nodes        []NodeView              `json:"nodes"`
	Edges        []EdgeView              `json:"edges"`
	Global       telemetry.GlobalMetrics `json:"global"`
	Failures     []failure.Event         `json:"failures"`
	Chaos        []chaos.Event           `json:"chaos"`
	ActiveChaos  []string                `json:"active_chaos,omitempty"`
	Score        *score.Score            `json:"score,omitempty"`
	StopReason   string                  `json:"stop_reason,omitempty"`
}

// Node returns the view of component id.
func (s *Snapshot) Node(id string) (NodeView, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeView{}, false
}

// publish replaces the snapshot. Callers hold mu.
func (s *Simulator) publish() {
	cur := s.run.Current
	snap := &Snapshot{
		RunID:        s.runID,
		State:        s.run.State,
		Tick:         cur.Tick,
		Elapsed:      cur.Elapsed,
		TrafficLevel: s.run.Level,
		Global:       cur.Global,
		Failures:     s.run.Log.Events(),
		Chaos:        s.run.Injector.Events(),
		StopReason:   s.run.StopReason,
	}
	if s.run.Runner != nil {
		if p, ok := s.run.Runner.Current(); ok {
			snap.Phase = p.Name
		}
	}
	for _, e := range s.run.Injector.Active(cur.Elapsed) {
		snap.ActiveChaos = append(snap.ActiveChaos, e.ID)
	}
	if s.run.Score != nil {
		sc := *s.run.Score
		sc.Dimensions = slices.Clone(sc.Dimensions)
		snap.Score = &sc
	}
	for _, n := range s.topo.Nodes() {
		v := NodeView{Node: *n, Metrics: cur.Metrics[n.ID]}
		v.Config.Regions = slices.Clone(n.Config.Regions)
		snap.Nodes = append(snap.Nodes, v)
	}
	for _, e := range s.topo.Edges() {
		f := cur.Flows[e.ID]
		snap.Edges = append(snap.Edges, EdgeView{Edge: *e, TrafficFlow: f.Share, FlowRPS: f.RPS})
	}
	s.snap.Store(snap)
}
