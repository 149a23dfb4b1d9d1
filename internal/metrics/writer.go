package metrics

import (
	"infrasim/internal/telemetry"
)

var runStates = []string{"idle", "running", "paused", "stopped"}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Write records one component row.
func (r *Registry) Write(row telemetry.ComponentRow) error {
	l := []string{row.ComponentID, row.ComponentType}
	r.ComponentRPS.WithLabelValues(l...).Set(row.RPS)
	r.ComponentOfferedRPS.WithLabelValues(l...).Set(row.OfferedRPS)
	r.ComponentDroppedRPS.WithLabelValues(l...).Set(row.DroppedRPS)
	r.ComponentUtilization.WithLabelValues(l...).Set(row.Utilization)
	r.ComponentP95Latency.WithLabelValues(l...).Set(row.P95LatencyMs)
	r.ComponentErrorRate.WithLabelValues(l...).Set(row.ErrorRate)
	r.ComponentInstances.WithLabelValues(l...).Set(float64(row.ReadyInstances))
	r.ComponentCrashed.WithLabelValues(l...).Set(boolGauge(row.Crashed))
	r.ComponentCircuitOpen.WithLabelValues(l...).Set(boolGauge(row.CircuitOpen))
	return nil
}

// WriteBatch records the component rows of one tick.
func (r *Registry) WriteBatch(rows []telemetry.ComponentRow) error {
	for _, row := range rows {
		if err := r.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteGlobal records the aggregate metrics of one tick.
func (r *Registry) WriteGlobal(row telemetry.GlobalRow) error {
	r.Tick.Set(float64(row.Tick))
	r.TotalRPS.Set(row.TotalRPS)
	r.P50Latency.Set(row.P50LatencyMs)
	r.P95Latency.Set(row.P95LatencyMs)
	r.P99Latency.Set(row.P99LatencyMs)
	r.ErrorRate.Set(row.ErrorRate)
	r.Availability.Set(row.Availability)
	r.CostPerHour.Set(row.CostPerHour)
	r.CrashedNodes.Set(float64(row.CrashedNodes))
	r.LatencySamples.Observe(row.P95LatencyMs)
	return nil
}

// WriteFailure counts a failure onset.
func (r *Registry) WriteFailure(row telemetry.FailureRow) error {
	r.FailuresTotal.WithLabelValues(row.Kind, row.Category).Inc()
	return nil
}

// WriteChaosEvent counts a chaos transition.
func (r *Registry) WriteChaosEvent(row telemetry.ChaosEventRow) error {
	r.ChaosTotal.WithLabelValues(row.ChaosType, row.Action).Inc()
	return nil
}

// WriteState records the run state after a tick.
func (r *Registry) WriteState(row telemetry.SimulationStateRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Tick.Set(float64(row.Tick))
	r.TrafficLevel.Set(row.TrafficLevel)
	r.ActiveChaos.Set(float64(row.ActiveChaos))
	for _, s := range runStates {
		r.RunState.WithLabelValues(s).Set(boolGauge(s == row.State))
	}
	return nil
}

// WriteScore records the final score.
func (r *Registry) WriteScore(row telemetry.ScoreRow) error {
	for dim, v := range map[string]float64{
		"overall":     row.Overall,
		"scalability": row.Scalability,
		"reliability": row.Reliability,
		"performance": row.Performance,
		"cost":        row.Cost,
		"simplicity":  row.Simplicity,
	} {
		r.Score.WithLabelValues(dim).Set(v)
	}
	r.ScorePassed.Set(boolGauge(row.Passed))
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range runStates {
		r.RunState.WithLabelValues(s).Set(boolGauge(s == "stopped"))
	}
	return nil
}
