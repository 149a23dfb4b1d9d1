package sim

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"infrasim/internal/engine"
	"infrasim/internal/failure"
	"infrasim/internal/logging"
	"infrasim/internal/score"
	"infrasim/internal/telemetry"
)

// Run advances the simulation every tick interval while it is running and
// returns when the context is done.
func (s *Simulator) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	log.Info("starting simulator", "run_id", s.runID, "tick_interval", s.tickInterval)
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Step(ctx); err != nil && err != ErrNotRunning {
				log.Error("tick failed", "err", err)
			}
		case <-ctx.Done():
			log.Info("stopping simulator")
			return
		}
	}
}

// tickOutput holds everything a tick hands to the writers once the lock is
// released.
type tickOutput struct {
	components []telemetry.ComponentRow
	global     telemetry.GlobalRow
	failures   []telemetry.FailureRow
	chaos      []telemetry.ChaosEventRow
	state      telemetry.SimulationStateRow
	score      *telemetry.ScoreRow
}

// Step computes one tick of a running simulation, publishes the new snapshot
// and writes the tick's rows.
func (s *Simulator) Step(ctx context.Context) (*Snapshot, error) {
	log := logging.FromContext(ctx)

	s.mu.Lock()
	if s.run.State != StateRunning {
		s.mu.Unlock()
		return s.Snapshot(), ErrNotRunning
	}
	out := s.tick(log)
	snap := s.Snapshot()
	s.mu.Unlock()

	s.write(ctx, out)
	return snap, nil
}

// tick advances the run context. Callers hold mu.
func (s *Simulator) tick(log *slog.Logger) tickOutput {
	prev := s.run.Current
	now := prev.Elapsed + s.eng.TickDuration()

	if s.run.Runner != nil {
		crashed := prev.Global.CrashedNodes
		if p, changed := s.run.Runner.Advance(now, s.run.Log.Len(), crashed); changed {
			s.run.Level = p.Level
			log.Info("scenario phase changed", "phase", p.Name, "level", p.Level, "tick", prev.Tick+1)
		}
	}

	mult := s.run.Injector.Multipliers(now)
	next := s.eng.Step(s.topo, prev, engine.Input{Level: s.run.Level, Chaos: mult})

	detected := failure.Detect(failure.Input{
		Topology:      s.topo,
		State:         next,
		Prev:          prev.Metrics,
		Chaos:         mult,
		Params:        s.eng.Params(),
		LatencySLAMs:  s.opts.Targets.LatencyP95Ms,
		MonthlyBudget: s.opts.Targets.MonthlyBudget,
		Baseline:      s.run.Baseline,
	})
	onsets := s.run.Log.Record(detected)
	for _, e := range onsets {
		log.Warn("failure detected", "tick", e.Tick, "component", e.ComponentID, "kind", e.Kind, "severity", e.Severity)
	}
	s.run.Current = next

	var out tickOutput
	out.chaos = s.chaosTransitions(now)

	p := s.eng.Params()
	switch {
	case s.opts.MaxTicks > 0 && next.Tick >= s.opts.MaxTicks:
		s.stop(fmt.Sprintf("reached %d ticks", s.opts.MaxTicks))
	case failure.CrashedFraction(s.topo, next) >= p.MaxCrashedFraction:
		s.stop(fmt.Sprintf("%d components crashed", next.Global.CrashedNodes))
		log.Warn("run stopped", "reason", s.run.StopReason, "tick", next.Tick)
	default:
		s.publish()
	}
	if s.run.State == StateStopped {
		row := s.scoreRow(*s.run.Score)
		out.score = &row
	}

	for _, n := range s.topo.Nodes() {
		m, ok := next.Metrics[n.ID]
		if !ok {
			continue
		}
		out.components = append(out.components, s.gen.ComponentRow(n.ID, string(n.Type), m, next.Tick, next.Elapsed))
	}
	out.global = s.gen.GlobalRow(next.Global, next.Elapsed)
	for _, e := range onsets {
		out.failures = append(out.failures, s.failureRow(e))
	}
	out.state = telemetry.SimulationStateRow{
		RunID:          s.runID,
		State:          string(s.run.State),
		Tick:           next.Tick,
		ElapsedSeconds: next.Elapsed.Seconds(),
		TrafficLevel:   s.run.Level,
		ActiveChaos:    len(s.run.activeChaos),
		ChaosTraffic:   mult.Traffic,
		Failures:       s.run.Log.Len(),
		Timestamp:      s.gen.Timestamp(next.Elapsed),
	}
	return out
}

// chaosTransitions tracks which events became active or expired at now.
func (s *Simulator) chaosTransitions(now time.Duration) []telemetry.ChaosEventRow {
	var rows []telemetry.ChaosEventRow
	active := map[string]bool{}
	for _, e := range s.run.Injector.Events() {
		switch {
		case e.Active(now):
			active[e.ID] = true
		case s.run.activeChaos[e.ID]:
			rows = append(rows, s.chaosRow(telemetry.ChaosEventExpired, e))
		}
	}
	s.run.activeChaos = active
	return rows
}

func (s *Simulator) failureRow(e failure.Event) telemetry.FailureRow {
	return telemetry.FailureRow{
		RunID:       s.runID,
		ComponentID: e.ComponentID,
		Kind:        string(e.Kind),
		FailureID:   e.ID,
		Category:    string(e.Category),
		Tick:        e.Tick,
		Severity:    e.Severity,
		Message:     e.Message,
		Affected:    slices.Clone(e.Affected),
		Fix:         string(e.Fix),
		Timestamp:   s.gen.Timestamp(e.Time),
	}
}

func (s *Simulator) write(ctx context.Context, out tickOutput) {
	log := logging.FromContext(ctx)
	if s.writer == nil {
		return
	}

	// Batch support if writer implements WriteBatch
	if bw, ok := s.writer.(batchWriter); ok {
		if err := bw.WriteBatch(out.components); err != nil {
			log.Error("batch write failed", "err", err)
		}
	} else {
		for _, row := range out.components {
			if err := s.writer.Write(row); err != nil {
				log.Error("write failed", "component", row.ComponentID, "err", err)
			}
		}
	}

	if gw, ok := s.writer.(GlobalWriter); ok {
		if err := gw.WriteGlobal(out.global); err != nil {
			log.Error("global write failed", "err", err)
		}
	}

	if len(out.failures) > 0 {
		if fw, ok := s.writer.(batchFailureWriter); ok {
			if err := fw.WriteFailures(out.failures); err != nil {
				log.Error("failure batch write failed", "err", err)
			}
		} else if fw, ok := s.writer.(FailureWriter); ok {
			for _, f := range out.failures {
				if err := fw.WriteFailure(f); err != nil {
					log.Error("failure write failed", "err", err)
				}
			}
		}
	}

	s.writeChaos(ctx, out.chaos)

	if sw, ok := s.writer.(StateWriter); ok {
		if err := sw.WriteState(out.state); err != nil {
			log.Error("state write failed", "err", err)
		}
	}

	if out.score != nil {
		s.writeScore(ctx, *out.score)
	}
}

func (s *Simulator) writeChaos(ctx context.Context, rows []telemetry.ChaosEventRow) {
	if len(rows) == 0 {
		return
	}
	cw, ok := s.writer.(ChaosWriter)
	if !ok {
		return
	}
	for _, r := range rows {
		if err := cw.WriteChaosEvent(r); err != nil {
			logging.FromContext(ctx).Error("chaos event write failed", "chaos_id", r.ChaosID, "err", err)
		}
	}
}

// scoreRow converts sc into its row. Callers hold mu.
func (s *Simulator) scoreRow(sc score.Score) telemetry.ScoreRow {
	return telemetry.ScoreRow{
		RunID:       s.runID,
		Overall:     sc.Overall,
		Grade:       sc.Grade,
		Stars:       sc.Stars,
		Passed:      sc.Passed,
		Scalability: sc.Scalability,
		Reliability: sc.Reliability,
		Performance: sc.Performance,
		Cost:        sc.Cost,
		Simplicity:  sc.Simplicity,
		Timestamp:   s.gen.Timestamp(s.run.Current.Elapsed),
	}
}

func (s *Simulator) writeScore(ctx context.Context, row telemetry.ScoreRow) {
	w, ok := s.writer.(ScoreWriter)
	if !ok {
		return
	}
	if err := w.WriteScore(row); err != nil {
		logging.FromContext(ctx).Error("score write failed", "err", err)
	}
}
