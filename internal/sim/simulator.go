// Simulation controller driving the tick engine over a topology
package sim

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"infrasim/internal/chaos"
	"infrasim/internal/engine"
	"infrasim/internal/failure"
	"infrasim/internal/scenario"
	"infrasim/internal/score"
	"infrasim/internal/telemetry"
	"infrasim/internal/topology"
)

// RunState is the lifecycle state of a run.
type RunState string

const (
	StateIdle    RunState = "idle"
	StateRunning RunState = "running"
	StatePaused  RunState = "paused"
	StateStopped RunState = "stopped"
)

// Errors returned by run control.
var (
	ErrInvalidTopology = errors.New("topology is not valid")
	ErrNotRunning      = errors.New("simulation is not running")
	ErrNotPaused       = errors.New("simulation is not paused")
	ErrStopped         = errors.New("simulation is stopped, reset it first")
	ErrInvalidLevel    = errors.New("traffic level must be a finite number between 0 and 1e6")
)

// ComponentWriter receives one row per simulated component and tick.
type ComponentWriter interface {
	Write(telemetry.ComponentRow) error
}

// Optional: writers can also support batch mode.
type batchWriter interface {
	WriteBatch([]telemetry.ComponentRow) error
}

// Options configure a Simulator.
type Options struct {
	RunID        string
	Engine       engine.Params
	TickInterval time.Duration
	// TrafficLevel is the level applied before any scenario phase.
	TrafficLevel float64
	// MaxTicks stops the run after that many ticks when positive.
	MaxTicks int64
	Targets  score.Targets
	Scenario *scenario.Scenario
	// Chaos is scheduled on every run in addition to the scenario's chaos.
	Chaos []chaos.Event
	// Now anchors row timestamps; defaults to time.Now.
	Now func() time.Time
}

// SimulationContext is the mutable state of one run. Only the Simulator
// touches it, always while holding its mutex.
type SimulationContext struct {
	State      RunState
	Current    engine.State
	Level      float64
	Injector   *chaos.Injector
	Log        *failure.Log
	Baseline   map[string]topology.Config
	Runner     *scenario.Runner
	Score      *score.Score
	StopReason string

	activeChaos map[string]bool
	stopped     chan struct{}
}

// Simulator owns a topology and advances it one tick at a time.
type Simulator struct {
	runID        string
	topo         *topology.Topology
	eng          *engine.Engine
	opts         Options
	tickInterval time.Duration
	writer       ComponentWriter
	gen          *telemetry.Generator
	now          func() time.Time

	run  SimulationContext
	snap atomic.Pointer[Snapshot]
	mu   sync.Mutex
}

// NewSimulator prepares an idle run of topo. writer may be nil; it may also
// implement any of the optional row writer interfaces of this package.
func NewSimulator(topo *topology.Topology, opts Options, writer ComponentWriter) (*Simulator, error) {
	if topo == nil {
		return nil, errors.New("nil topology")
	}
	if opts.Engine == (engine.Params{}) {
		opts.Engine = engine.DefaultParams()
	}
	if err := opts.Engine.Validate(); err != nil {
		return nil, err
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if !engine.ValidLevel(opts.TrafficLevel) {
		return nil, ErrInvalidLevel
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Scenario != nil {
		if err := opts.Scenario.Check(); err != nil {
			return nil, fmt.Errorf("scenario: %w", err)
		}
	}
	s := &Simulator{
		runID:        opts.RunID,
		topo:         topo,
		eng:          engine.New(opts.Engine),
		opts:         opts,
		tickInterval: opts.TickInterval,
		writer:       writer,
		now:          opts.Now,
	}
	if err := s.reset(); err != nil {
		return nil, err
	}
	return s, nil
}

// RunID identifies the run in every emitted row.
func (s *Simulator) RunID() string { return s.runID }

// Topology returns the simulated graph. Callers must not mutate it; use
// ApplyFix instead.
func (s *Simulator) Topology() *topology.Topology { return s.topo }

// reset rebuilds the run context. Callers hold mu.
func (s *Simulator) reset() error {
	inj := chaos.NewInjector()
	var scheduled []chaos.Event
	if s.opts.Scenario != nil {
		scheduled = append(scheduled, s.opts.Scenario.Chaos...)
	}
	scheduled = append(scheduled, s.opts.Chaos...)
	for _, e := range scheduled {
		if _, err := inj.Add(e); err != nil {
			return fmt.Errorf("schedule chaos %s: %w", e.ID, err)
		}
	}
	s.eng.Reset()
	if s.run.stopped != nil && s.run.State != StateStopped {
		close(s.run.stopped)
	}
	s.run = SimulationContext{
		State:       StateIdle,
		Current:     engine.Initial(s.topo),
		Level:       s.opts.TrafficLevel,
		Injector:    inj,
		Log:         failure.NewLog(),
		activeChaos: map[string]bool{},
		stopped:     make(chan struct{}),
	}
	if s.opts.Scenario != nil {
		s.run.Runner = scenario.NewRunner(s.opts.Scenario)
		if p, ok := s.run.Runner.Current(); ok {
			s.run.Level = p.Level
		}
	}
	s.gen = telemetry.NewGenerator(s.runID, s.now())
	s.publish()
	return nil
}

// Validate runs the pre-run checks on the current topology.
func (s *Simulator) Validate() topology.ValidationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topo.Validate()
}

// Start begins an idle run, or resumes a paused one. A stopped run must be
// reset before it can start again.
func (s *Simulator) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.run.State {
	case StateRunning:
		return nil
	case StateStopped:
		return ErrStopped
	case StatePaused:
		s.run.State = StateRunning
		s.publish()
		return nil
	}
	if res := s.topo.Validate(); !res.IsValid {
		return fmt.Errorf("%w: %s", ErrInvalidTopology, res.Summary())
	}
	s.run.Baseline = make(map[string]topology.Config, s.topo.Len())
	for _, n := range s.topo.Nodes() {
		cfg := n.Config
		cfg.Regions = slices.Clone(cfg.Regions)
		s.run.Baseline[n.ID] = cfg
	}
	s.run.State = StateRunning
	s.publish()
	return nil
}

// Pause freezes the simulated clock.
func (s *Simulator) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run.State != StateRunning {
		return ErrNotRunning
	}
	s.run.State = StatePaused
	s.publish()
	return nil
}

// Resume continues a paused run.
func (s *Simulator) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run.State != StatePaused {
		return ErrNotPaused
	}
	s.run.State = StateRunning
	s.publish()
	return nil
}

// Stop ends the run and computes its score. Stopping twice keeps the first
// score.
func (s *Simulator) Stop() (score.Score, error) {
	s.mu.Lock()
	if s.run.State == StateIdle {
		s.mu.Unlock()
		return score.Score{}, ErrNotRunning
	}
	first := s.stop("stopped by operator")
	sc := *s.run.Score
	row := s.scoreRow(sc)
	s.mu.Unlock()

	if first {
		s.writeScore(context.Background(), row)
	}
	return sc, nil
}

// stop moves to StateStopped and scores the run once. Callers hold mu. It
// reports whether this call performed the transition.
func (s *Simulator) stop(reason string) bool {
	if s.run.State == StateStopped {
		return false
	}
	sc := score.Compute(s.run.Current.Global, s.run.Log.Events(), s.opts.Targets, score.ComplexityOf(s.topo))
	s.run.Score = &sc
	s.run.State = StateStopped
	s.run.StopReason = reason
	close(s.run.stopped)
	s.publish()
	return true
}

// Reset discards the run and returns to an idle state at tick zero. The
// topology, including applied fixes, is kept.
func (s *Simulator) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reset()
}

// Stopped is closed when the current run stops. Reset replaces it.
func (s *Simulator) Stopped() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run.stopped
}

// SetTrafficLevel changes the traffic multiplier applied from the next tick.
func (s *Simulator) SetTrafficLevel(level float64) error {
	if !engine.ValidLevel(level) {
		return ErrInvalidLevel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run.Level = level
	s.publish()
	return nil
}

// AddChaosEvent schedules e relative to the current simulated time and
// returns the stored event.
func (s *Simulator) AddChaosEvent(e chaos.Event) (chaos.Event, error) {
	s.mu.Lock()
	e.Start += s.run.Current.Elapsed
	for _, id := range e.Targets {
		if s.topo.Node(id) == nil {
			s.mu.Unlock()
			return chaos.Event{}, fmt.Errorf("chaos target %q: %w", id, topology.ErrUnknownComponent)
		}
	}
	stored, err := s.run.Injector.Add(e)
	if err != nil {
		s.mu.Unlock()
		return chaos.Event{}, err
	}
	row := s.chaosRow(telemetry.ChaosEventAdded, stored)
	s.publish()
	s.mu.Unlock()

	s.writeChaos(context.Background(), []telemetry.ChaosEventRow{row})
	return stored, nil
}

// RemoveChaosEvent cancels a scheduled or active chaos event.
func (s *Simulator) RemoveChaosEvent(id string) error {
	s.mu.Lock()
	var removed chaos.Event
	for _, e := range s.run.Injector.Events() {
		if e.ID == id {
			removed = e
		}
	}
	if !s.run.Injector.Remove(id) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", chaos.ErrUnknownEvent, id)
	}
	delete(s.run.activeChaos, id)
	row := s.chaosRow(telemetry.ChaosEventRemoved, removed)
	s.publish()
	s.mu.Unlock()

	s.writeChaos(context.Background(), []telemetry.ChaosEventRow{row})
	return nil
}

// ApplyFix changes the configuration of a component. The change takes effect
// on the next tick.
func (s *Simulator) ApplyFix(fix topology.FixType, componentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.topo.ApplyFix(fix, componentID); err != nil {
		return err
	}
	s.publish()
	return nil
}

// Score returns the final score once the run has stopped.
func (s *Simulator) Score() (score.Score, bool) {
	snap := s.Snapshot()
	if snap.Score == nil {
		return score.Score{}, false
	}
	return *snap.Score, true
}

// Snapshot returns the last published view. It never blocks on a running tick.
func (s *Simulator) Snapshot() *Snapshot {
	return s.snap.Load()
}

// FailureLog returns the recorded failures of the current run.
func (s *Simulator) FailureLog() []failure.Event {
	return s.Snapshot().Failures
}

func (s *Simulator) chaosRow(action string, e chaos.Event) telemetry.ChaosEventRow {
	return telemetry.ChaosEventRow{
		RunID:     s.runID,
		Action:    action,
		ChaosID:   e.ID,
		ChaosType: string(e.Type),
		Targets:   slices.Clone(e.Targets),
		Cause:     e.Cause,
		Tick:      s.run.Current.Tick,
		Timestamp: s.gen.Timestamp(s.run.Current.Elapsed),
	}
}
