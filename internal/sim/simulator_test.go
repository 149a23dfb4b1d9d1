package sim

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infrasim/internal/chaos"
	"infrasim/internal/engine"
	"infrasim/internal/failure"
	"infrasim/internal/telemetry"
	"infrasim/internal/topology"
)

// recordingWriter collects every row kind the simulator emits.
type recordingWriter struct {
	mu         sync.Mutex
	components []telemetry.ComponentRow
	globals    []telemetry.GlobalRow
	failures   []telemetry.FailureRow
	chaos      []telemetry.ChaosEventRow
	states     []telemetry.SimulationStateRow
	scores     []telemetry.ScoreRow
}

func (w *recordingWriter) Write(r telemetry.ComponentRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.components = append(w.components, r)
	return nil
}

func (w *recordingWriter) WriteGlobal(r telemetry.GlobalRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.globals = append(w.globals, r)
	return nil
}

func (w *recordingWriter) WriteFailure(r telemetry.FailureRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures = append(w.failures, r)
	return nil
}

func (w *recordingWriter) WriteChaosEvent(r telemetry.ChaosEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chaos = append(w.chaos, r)
	return nil
}

func (w *recordingWriter) WriteState(r telemetry.SimulationStateRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.states = append(w.states, r)
	return nil
}

func (w *recordingWriter) WriteScore(r telemetry.ScoreRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scores = append(w.scores, r)
	return nil
}

func (w *recordingWriter) chaosActions() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, r := range w.chaos {
		out = append(out, r.Action+":"+r.ChaosID)
	}
	return out
}

func chain(t *testing.T, ids ...string) *topology.Topology {
	t.Helper()
	types := map[string]topology.ComponentType{
		"users": topology.TypeClient,
		"lb":    topology.TypeLoadBalancer,
		"app":   topology.TypeAppServer,
		"db":    topology.TypeDatabase,
	}
	topo := topology.New()
	for i, id := range ids {
		require.NoError(t, topo.AddNode(topology.Node{ID: id, Type: types[id]}))
		if i > 0 {
			require.NoError(t, topo.Connect(topology.Edge{Source: ids[i-1], Target: id}))
		}
	}
	return topo
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestSimulator(t *testing.T, topo *topology.Topology, opts Options) (*Simulator, *recordingWriter) {
	t.Helper()
	rec := &recordingWriter{}
	opts.RunID = "run-test"
	opts.TrafficLevel = 1
	opts.Now = func() time.Time { return epoch }
	s, err := NewSimulator(topo, opts, rec)
	require.NoError(t, err)
	return s, rec
}

func steps(t *testing.T, s *Simulator, n int) *Snapshot {
	t.Helper()
	var snap *Snapshot
	for i := 0; i < n; i++ {
		var err error
		snap, err = s.Step(context.Background())
		require.NoError(t, err)
	}
	return snap
}

func TestStartRefusesInvalidTopology(t *testing.T) {
	topo := topology.New()
	require.NoError(t, topo.AddNode(topology.Node{ID: "note", Type: topology.TypeText}))
	s, _ := newTestSimulator(t, topo, Options{})

	assert.False(t, s.Validate().IsValid)
	err := s.Start()
	assert.ErrorIs(t, err, ErrInvalidTopology)
	assert.Equal(t, StateIdle, s.Snapshot().State)
}

func TestStepWritesRows(t *testing.T) {
	s, rec := newTestSimulator(t, chain(t, "users", "app", "db"), Options{})
	require.NoError(t, s.Start())

	snap := steps(t, s, 2)

	assert.Equal(t, int64(2), snap.Tick)
	assert.Equal(t, 2*time.Second, snap.Elapsed)
	ids := map[string]bool{}
	for _, r := range rec.components {
		ids[r.ComponentID] = true
		assert.Equal(t, "run-test", r.RunID)
	}
	assert.True(t, ids["app"] && ids["db"], "component rows: %v", ids)
	require.Len(t, rec.globals, 2)
	require.Len(t, rec.states, 2)
	assert.Equal(t, int64(2), rec.states[1].Tick)
	assert.Equal(t, epoch.Add(2*time.Second), rec.states[1].Timestamp)
	assert.Greater(t, snap.Global.TotalRPS, 0.0)
}

func TestPauseFreezesClock(t *testing.T) {
	s, _ := newTestSimulator(t, chain(t, "users", "app"), Options{})

	_, err := s.Step(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, s.Start())
	steps(t, s, 1)
	require.NoError(t, s.Pause())
	_, err = s.Step(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Equal(t, int64(1), s.Snapshot().Tick)
	assert.Equal(t, StatePaused, s.Snapshot().State)

	assert.ErrorIs(t, s.Pause(), ErrNotRunning)
	require.NoError(t, s.Resume())
	assert.ErrorIs(t, s.Resume(), ErrNotPaused)
	assert.Equal(t, int64(2), steps(t, s, 1).Tick)
}

func TestPartitionWindow(t *testing.T) {
	opts := Options{Chaos: []chaos.Event{{
		ID: "cut", Type: chaos.NetworkPartition, Targets: []string{"app"},
		Start: 3 * time.Second, Duration: 2 * time.Second,
	}}}
	s, rec := newTestSimulator(t, chain(t, "users", "lb", "app", "db"), opts)
	require.NoError(t, s.Start())

	var disconnected []int64
	for i := 0; i < 6; i++ {
		snap := steps(t, s, 1)
		app, ok := snap.Node("app")
		require.True(t, ok)
		if app.Metrics.Disconnected {
			disconnected = append(disconnected, snap.Tick)
		}
	}

	assert.Equal(t, []int64{3, 4}, disconnected)
	assert.Equal(t, []string{"expired:cut"}, rec.chaosActions())
	var partitions int
	for _, e := range s.FailureLog() {
		if e.Kind == failure.NetworkPartition && e.ComponentID == "app" {
			partitions++
		}
	}
	assert.Equal(t, 1, partitions, "a continuing partition is recorded once")
}

func TestStopScoresOnce(t *testing.T) {
	s, rec := newTestSimulator(t, chain(t, "users", "app", "db"), Options{})
	_, err := s.Stop()
	assert.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, s.Start())
	stopped := s.Stopped()
	steps(t, s, 3)

	first, err := s.Stop()
	require.NoError(t, err)
	second, err := s.Stop()
	require.NoError(t, err)

	assert.Equal(t, first.Overall, second.Overall)
	assert.Len(t, rec.scores, 1)
	select {
	case <-stopped:
	default:
		t.Fatal("stopped channel not closed")
	}
	got, ok := s.Score()
	require.True(t, ok)
	assert.Equal(t, first.Grade, got.Grade)
	assert.ErrorIs(t, s.Start(), ErrStopped)
}

func TestResetReturnsToTickZero(t *testing.T) {
	opts := Options{Chaos: []chaos.Event{{ID: "spike", Type: chaos.TrafficSpike, Start: time.Second}}}
	s, _ := newTestSimulator(t, chain(t, "users", "app"), opts)
	require.NoError(t, s.Start())
	old := s.Stopped()
	steps(t, s, 4)
	_, err := s.AddChaosEvent(chaos.Event{ID: "extra", Type: chaos.TrafficSpike})
	require.NoError(t, err)

	require.NoError(t, s.Reset())
	first := s.Snapshot()
	require.NoError(t, s.Reset())
	second := s.Snapshot()

	for _, snap := range []*Snapshot{first, second} {
		assert.Equal(t, StateIdle, snap.State)
		assert.Zero(t, snap.Tick)
		assert.Empty(t, snap.Failures)
		require.Len(t, snap.Chaos, 1, "runtime chaos is dropped, configured chaos kept")
		assert.Equal(t, "spike", snap.Chaos[0].ID)
		assert.Nil(t, snap.Score)
	}
	select {
	case <-old:
	default:
		t.Fatal("reset must release waiters on the previous run")
	}
	require.NoError(t, s.Start())
	assert.Equal(t, int64(1), steps(t, s, 1).Tick)
}

func TestMaxTicksStopsRun(t *testing.T) {
	s, rec := newTestSimulator(t, chain(t, "users", "app", "db"), Options{MaxTicks: 3})
	require.NoError(t, s.Start())

	snap := steps(t, s, 3)

	assert.Equal(t, StateStopped, snap.State)
	assert.Contains(t, snap.StopReason, "3 ticks")
	require.NotNil(t, snap.Score)
	assert.Len(t, rec.scores, 1)
	_, err := s.Step(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestCrashedComponentsStopRun(t *testing.T) {
	opts := Options{Chaos: []chaos.Event{{ID: "boom", Type: chaos.ComponentCrash, Targets: []string{"app"}, Duration: time.Minute}}}
	s, rec := newTestSimulator(t, chain(t, "users", "app"), opts)
	require.NoError(t, s.Start())

	snap := steps(t, s, 1)

	assert.Equal(t, StateStopped, snap.State)
	assert.Contains(t, snap.StopReason, "crashed")
	var kinds []string
	for _, f := range rec.failures {
		kinds = append(kinds, f.Kind)
	}
	assert.Contains(t, kinds, string(failure.ComponentCrash))
}

func TestAddAndRemoveChaos(t *testing.T) {
	s, rec := newTestSimulator(t, chain(t, "users", "app", "db"), Options{})
	require.NoError(t, s.Start())
	steps(t, s, 2)

	stored, err := s.AddChaosEvent(chaos.Event{ID: "slow-db", Type: chaos.DatabaseSlowdown, Targets: []string{"db"}})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, stored.Start, "start is relative to the current simulated time")
	assert.Equal(t, 4.0, stored.Params[chaos.ParamMultiplier])

	snap := steps(t, s, 1)
	assert.Contains(t, snap.ActiveChaos, "slow-db")

	require.NoError(t, s.RemoveChaosEvent("slow-db"))
	assert.ErrorIs(t, s.RemoveChaosEvent("slow-db"), chaos.ErrUnknownEvent)
	assert.Equal(t, []string{"added:slow-db", "removed:slow-db"}, rec.chaosActions())

	_, err = s.AddChaosEvent(chaos.Event{Type: chaos.ComponentCrash, Targets: []string{"ghost"}})
	assert.ErrorIs(t, err, topology.ErrUnknownComponent)
	_, err = s.AddChaosEvent(chaos.Event{Type: "meteor"})
	assert.ErrorIs(t, err, chaos.ErrUnknownType)
}

func TestApplyFixAndTrafficLevel(t *testing.T) {
	s, _ := newTestSimulator(t, chain(t, "users", "app"), Options{})

	assert.ErrorIs(t, s.SetTrafficLevel(-1), ErrInvalidLevel)
	for _, level := range []float64{math.Inf(1), math.NaN(), 1e308, engine.MaxTrafficLevel * 2} {
		assert.ErrorIs(t, s.SetTrafficLevel(level), ErrInvalidLevel, "level %v", level)
	}
	require.NoError(t, s.SetTrafficLevel(engine.MaxTrafficLevel))
	require.NoError(t, s.SetTrafficLevel(2.5))
	assert.Equal(t, 2.5, s.Snapshot().TrafficLevel)

	require.NoError(t, s.ApplyFix(topology.FixEnableAutoscaling, "app"))
	app, _ := s.Snapshot().Node("app")
	assert.True(t, app.Config.AutoScale)
	assert.Error(t, s.ApplyFix(topology.FixEnableAutoscaling, "ghost"))
}

func TestHighestTrafficLevelStaysEncodable(t *testing.T) {
	s, _ := newTestSimulator(t, chain(t, "users", "app"), Options{})
	require.NoError(t, s.SetTrafficLevel(engine.MaxTrafficLevel))
	require.NoError(t, s.Start())

	snap := steps(t, s, 3)

	app, ok := snap.Node("app")
	require.True(t, ok)
	assert.Greater(t, app.Metrics.Utilization, 1.0)
	assert.False(t, math.IsNaN(snap.Global.Availability) || math.IsInf(snap.Global.Availability, 0))
	assert.Less(t, snap.Global.Availability, 100.0)
	kinds := map[failure.Kind]bool{}
	for _, f := range snap.Failures {
		kinds[f.Kind] = true
	}
	assert.True(t, kinds[failure.Overload], "failures: %v", kinds)
	_, err := json.Marshal(snap)
	assert.NoError(t, err)
}

func TestRunTicksUntilCancelled(t *testing.T) {
	s, rec := newTestSimulator(t, chain(t, "users", "app"), Options{TickInterval: 5 * time.Millisecond})
	require.NoError(t, s.Start())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return s.Snapshot().Tick >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.NotEmpty(t, rec.states)
}

func TestNewSimulatorRejectsBadOptions(t *testing.T) {
	topo := chain(t, "users", "app")
	_, err := NewSimulator(topo, Options{TrafficLevel: -1}, nil)
	assert.True(t, errors.Is(err, ErrInvalidLevel))
	_, err = NewSimulator(topo, Options{TrafficLevel: math.Inf(1)}, nil)
	assert.ErrorIs(t, err, ErrInvalidLevel)
	_, err = NewSimulator(topo, Options{TrafficLevel: math.NaN()}, nil)
	assert.ErrorIs(t, err, ErrInvalidLevel)
	_, err = NewSimulator(nil, Options{}, nil)
	assert.Error(t, err)
	_, err = NewSimulator(topo, Options{Chaos: []chaos.Event{{Type: chaos.NetworkPartition}}}, nil)
	assert.ErrorIs(t, err, chaos.ErrMissingTargets)
}
