package engine

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"infrasim/internal/telemetry"
	"infrasim/internal/topology"
)

// ingress returns the ids whose accepted load counts as system throughput:
// traffic sources that are not clients, and the direct targets of clients.
func ingress(t *topology.Topology) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, n := range emitters(t) {
		if n.Type != topology.TypeClient {
			add(n.ID)
			continue
		}
		for _, e := range t.ForwardOut(n.ID) {
			if t.Node(e.Target).Type != topology.TypeClient {
				add(e.Target)
			}
		}
	}
	return out
}

// Aggregate reduces per-node metrics into the global view of a tick. Only the
// cumulative request counters are carried over from prev.
func Aggregate(t *topology.Topology, metrics map[string]telemetry.ComponentMetrics, prev telemetry.GlobalMetrics, tick int64, p Params) telemetry.GlobalMetrics {
	g := telemetry.GlobalMetrics{
		Tick:               tick,
		TotalRequests:      prev.TotalRequests,
		SuccessfulRequests: prev.SuccessfulRequests,
		FailedRequests:     prev.FailedRequests,
	}
	for _, id := range ingress(t) {
		m := metrics[id]
		g.TotalRPS += m.RPS
		g.OfferedRPS += m.Offered
	}

	var means, p95s, weights []float64
	failedRPS := 0.0
	for _, n := range t.Nodes() {
		if !n.Simulated() {
			continue
		}
		m, ok := metrics[n.ID]
		if !ok {
			continue
		}
		if m.IsCrashed {
			g.CrashedNodes++
		}
		g.EvictionRate += m.EvictionRate
		inst := float64(max(m.Autoscale.Ready+m.Autoscale.ColdStarting, 1))
		g.CostPerHour += n.Config.CostPerHour * inst
		if n.Type == topology.TypeClient {
			continue
		}
		failedRPS += m.Offered * m.ErrorRate
		if m.RPS > 0 {
			means = append(means, m.LatencyMs)
			p95s = append(p95s, m.P95LatencyMs)
			weights = append(weights, m.RPS)
		}
	}

	if len(weights) > 0 {
		g.MeanLatencyMs = stat.Mean(means, weights)
		g.P50LatencyMs = weightedQuantile(0.5, means, weights)
		g.P95LatencyMs = weightedQuantile(0.95, p95s, weights)
		g.P99LatencyMs = weightedQuantile(0.99, p95s, weights) * p.TailFactor
		if g.P99LatencyMs < g.P95LatencyMs {
			g.P99LatencyMs = g.P95LatencyMs
		}
	}

	total := g.OfferedRPS * p.TickSeconds
	failed := math.Min(total, failedRPS*p.TickSeconds)
	if total > 0 {
		g.ErrorRate = clamp(failed/total, 0, 1)
	}
	g.TotalRequests += total
	g.FailedRequests += failed
	g.SuccessfulRequests += total - failed
	g.Availability = 100
	if g.TotalRequests > 0 {
		g.Availability = clamp(100*g.SuccessfulRequests/g.TotalRequests, 0, 100)
	}
	return g
}

// weightedQuantile sorts the samples and evaluates an empirical weighted quantile.
func weightedQuantile(q float64, xs, ws []float64) float64 {
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })
	x := make([]float64, len(xs))
	w := make([]float64, len(ws))
	for i, j := range idx {
		x[i] = xs[j]
		w[i] = ws[j]
	}
	return stat.Quantile(q, stat.Empirical, x, w)
}
