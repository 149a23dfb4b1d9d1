package telemetry

import "time"

// Generator turns simulation state into rows stamped on the simulated clock.
type Generator struct {
	RunID string
	// Start anchors simulated time zero to wall-clock time.
	Start time.Time
}

// NewGenerator creates a row generator for one run.
func NewGenerator(runID string, start time.Time) *Generator {
	return &Generator{RunID: runID, Start: start.UTC()}
}

// Timestamp converts simulated elapsed time into a row timestamp.
func (g *Generator) Timestamp(elapsed time.Duration) time.Time {
	return g.Start.Add(elapsed)
}

// ComponentRow builds the row for one node.
func (g *Generator) ComponentRow(id, typ string, m ComponentMetrics, tick int64, elapsed time.Duration) ComponentRow {
	return ComponentRow{
		RunID:           g.RunID,
		ComponentID:     id,
		ComponentType:   typ,
		Tick:            tick,
		OfferedRPS:      m.Offered,
		RPS:             m.RPS,
		DroppedRPS:      m.Dropped,
		Utilization:     m.Utilization,
		LatencyMs:       m.LatencyMs,
		P95LatencyMs:    m.P95LatencyMs,
		ErrorRate:       m.ErrorRate,
		CPU:             m.CPU,
		Memory:          m.Memory,
		CacheHitRate:    m.CacheHitRate,
		QueueDepth:      m.QueueDepth,
		PoolUtilization: m.PoolUtilization,
		ReadyInstances:  m.Autoscale.Ready,
		TargetInstances: m.Autoscale.Target,
		AutoscalePhase:  string(m.Autoscale.Phase),
		CircuitOpen:     m.CircuitOpen,
		Crashed:         m.IsCrashed,
		Slow:            m.IsSlow,
		Timestamp:       g.Timestamp(elapsed),
	}
}

// GlobalRow builds the system-wide row.
func (g *Generator) GlobalRow(gm GlobalMetrics, elapsed time.Duration) GlobalRow {
	return GlobalRow{
		RunID:         g.RunID,
		Tick:          gm.Tick,
		TotalRPS:      gm.TotalRPS,
		MeanLatencyMs: gm.MeanLatencyMs,
		P50LatencyMs:  gm.P50LatencyMs,
		P95LatencyMs:  gm.P95LatencyMs,
		P99LatencyMs:  gm.P99LatencyMs,
		ErrorRate:     gm.ErrorRate,
		Availability:  gm.Availability,
		CostPerHour:   gm.CostPerHour,
		CrashedNodes:  gm.CrashedNodes,
		Timestamp:     g.Timestamp(elapsed),
	}
}
