package engine

import (
	"math"

	"infrasim/internal/chaos"
	"infrasim/internal/telemetry"
	"infrasim/internal/topology"
)

// Crash causes set by the engine. Chaos events may carry their own.
const (
	CauseChaos    = "chaos"
	CauseOverload = "overload"
)

// Behavior converts a node's settled load into forwarded traffic and metrics.
type Behavior interface {
	// Forward returns the load the node passes downstream this tick.
	Forward(n *topology.Node, l *Load, prev telemetry.ComponentMetrics, env *tickEnv) float64
	// Derive computes the node's metrics for this tick.
	Derive(n *topology.Node, l *Load, prev telemetry.ComponentMetrics, env *tickEnv) telemetry.ComponentMetrics
}

var categoryBehaviors = map[topology.Category]Behavior{
	topology.CategoryEdge:      passThrough{},
	topology.CategoryCompute:   passThrough{},
	topology.CategoryTechnique: passThrough{},
	topology.CategoryStorage:   storage{},
	topology.CategoryMessaging: messaging{},
}

var typeBehaviors = map[topology.ComponentType]Behavior{
	topology.TypeClient: client{},
	topology.TypeCache:  cache{},
}

func behaviorFor(t topology.ComponentType) Behavior {
	if b, ok := typeBehaviors[t]; ok {
		return b
	}
	if b, ok := categoryBehaviors[topology.CategoryOf(t)]; ok {
		return b
	}
	return passThrough{}
}

// readyInstances is the number of instances contributing capacity.
func readyInstances(n *topology.Node, prev telemetry.ComponentMetrics) int {
	if n.Config.AutoScale && prev.Autoscale.Ready > 0 {
		return prev.Autoscale.Ready
	}
	return initialInstances(n)
}

func initialInstances(n *topology.Node) int {
	c := n.Config
	if c.AutoScale {
		return max(c.Instances, c.MinInstances, 1)
	}
	return max(c.Instances, 1)
}

type passThrough struct{}

func (passThrough) Forward(_ *topology.Node, l *Load, _ telemetry.ComponentMetrics, _ *tickEnv) float64 {
	return l.Accepted
}

func (passThrough) Derive(n *topology.Node, l *Load, prev telemetry.ComponentMetrics, env *tickEnv) telemetry.ComponentMetrics {
	m := baseMetrics(n, l, prev, env)
	finish(n, &m, env)
	return m
}

type client struct{}

func (client) Forward(_ *topology.Node, l *Load, _ telemetry.ComponentMetrics, _ *tickEnv) float64 {
	return l.Accepted
}

func (client) Derive(n *topology.Node, l *Load, prev telemetry.ComponentMetrics, _ *tickEnv) telemetry.ComponentMetrics {
	m := telemetry.DefaultMetrics(initialInstances(n))
	m.Capacity = l.Offered
	m.Offered = l.Offered
	m.RPS = l.Accepted
	m.Forwarded = l.Forwarded
	if prev.Offered > 0 {
		m.LoadGrowth = l.Offered / prev.Offered
	}
	return m
}

type storage struct{}

func (storage) Forward(_ *topology.Node, l *Load, _ telemetry.ComponentMetrics, _ *tickEnv) float64 {
	return l.Accepted
}

func (storage) Derive(n *topology.Node, l *Load, prev telemetry.ComponentMetrics, env *tickEnv) telemetry.ComponentMetrics {
	m := baseMetrics(n, l, prev, env)
	if n.Type.IsDatabase() {
		f := env.chaos.DBLatencyFor(n.ID)
		m.LatencyMs *= f
		m.P95LatencyMs *= f
	}
	c := n.Config
	if c.Replication && c.ReplicationFactor > 1 && c.ReplicationStrategy != topology.ReplicationSync && !m.IsCrashed {
		m.ReplicationLagMs = env.params.ReplicationLagMs * (1 + math.Min(m.Utilization, env.params.LatencyUtilizationCap)) *
			env.chaos.DBLatencyFor(n.ID) * m.SlowMultiplier
	}
	finish(n, &m, env)
	return m
}

type cache struct{}

// hitRate derives the steady hit rate from the TTL and caps it by any
// invalidation override.
func hitRate(c topology.Config, mult chaos.Multipliers) float64 {
	hr := 0.0
	if c.CacheTTLSeconds > 0 {
		hr = 0.95 * c.CacheTTLSeconds / (c.CacheTTLSeconds + 60)
	}
	if mult.HasCacheHitOverride && mult.CacheHitOverride < hr {
		hr = mult.CacheHitOverride
	}
	return hr
}

func (cache) Forward(n *topology.Node, l *Load, _ telemetry.ComponentMetrics, env *tickEnv) float64 {
	return l.Accepted * (1 - hitRate(n.Config, env.chaos))
}

func (cache) Derive(n *topology.Node, l *Load, prev telemetry.ComponentMetrics, env *tickEnv) telemetry.ComponentMetrics {
	m := baseMetrics(n, l, prev, env)
	hr := hitRate(n.Config, env.chaos)
	if m.IsCrashed || m.Disconnected {
		hr = 0
	}
	m.CacheHitRate = hr
	if prev.RPS > 0 && prev.CacheHitRate > hr {
		m.CacheHitDrop = prev.CacheHitRate - hr
	}
	misses := l.Accepted * (1 - hr)
	m.EvictionRate = misses * math.Max(0, m.Utilization-env.params.LatencyKnee)
	if env.chaos.HasCacheHitOverride {
		m.EvictionRate += l.Accepted * 0.1
	}
	m.Memory = clamp(40+55*hr, 0, 100)
	finish(n, &m, env)
	return m
}

type messaging struct{}

func drainRate(n *topology.Node, prev telemetry.ComponentMetrics) float64 {
	rate := n.Config.ConsumerRate
	if rate <= 0 {
		rate = n.Config.Capacity
	}
	return rate * float64(readyInstances(n, prev))
}

func (messaging) Forward(n *topology.Node, l *Load, prev telemetry.ComponentMetrics, env *tickEnv) float64 {
	if l.Crashed || l.Disconnected {
		return 0
	}
	backlog := prev.QueueDepth / env.dt
	return math.Min(l.Accepted+backlog, drainRate(n, prev))
}

func (messaging) Derive(n *topology.Node, l *Load, prev telemetry.ComponentMetrics, env *tickEnv) telemetry.ComponentMetrics {
	m := baseMetrics(n, l, prev, env)
	depth := prev.QueueDepth + (l.Accepted-l.Forwarded)*env.dt
	if depth < 0 {
		depth = 0
	}
	if limit := n.Config.QueueCapacity; limit > 0 && depth > limit {
		overflow := depth - limit
		depth = limit
		if !n.Config.DLQ {
			m.Dropped += overflow / env.dt
			if m.Offered > 0 {
				m.ErrorRate = clamp(m.ErrorRate+overflow/env.dt/m.Offered, 0, 1)
			}
		}
	}
	m.QueueDepth = depth
	m.QueueGrowth = depth - prev.QueueDepth
	drain := drainRate(n, prev)
	if drain > 0 {
		m.ConsumerLagSec = depth / drain
	}
	m.LatencyMs = clamp(m.LatencyMs+m.ConsumerLagSec*1000, 0, env.params.MaxLatencyMs)
	m.P95LatencyMs = clamp(m.P95LatencyMs+m.ConsumerLagSec*1000, 0, env.params.MaxLatencyMs)
	if n.Config.QueueCapacity > 0 {
		m.Memory = clamp(20+70*depth/n.Config.QueueCapacity, 0, 100)
	}
	finish(n, &m, env)
	return m
}

// baseMetrics applies the model shared by every category: utilization,
// latency curve, error rate, breaker, crash and slowness.
func baseMetrics(n *topology.Node, l *Load, prev telemetry.ComponentMetrics, env *tickEnv) telemetry.ComponentMetrics {
	p := env.params
	c := n.Config
	prof := topology.ProfileOf(n.Type)

	m := telemetry.ComponentMetrics{
		Capacity:        l.Capacity,
		Offered:         l.Offered,
		RPS:             l.Accepted,
		Dropped:         l.Dropped,
		Throttled:       l.Throttled,
		RetryLoad:       l.Retry,
		Forwarded:       l.Forwarded,
		Utilization:     saturate(l.Offered / math.Max(l.Capacity, 1)),
		Disconnected:    l.Disconnected,
		IsCrashed:       l.Crashed,
		CrashCause:      l.CrashCause,
		Autoscale:       prev.Autoscale,
		HighLoadSeconds: prev.HighLoadSeconds,
		QueueDepth:      prev.QueueDepth,
		LoadGrowth:      1,
	}
	if m.IsCrashed && prev.IsCrashed && prev.CrashedUntil > env.tick {
		m.CrashedUntil = prev.CrashedUntil
	}
	down := m.IsCrashed || m.Disconnected

	if m.Utilization > 1 && !down {
		m.OverloadTicks = prev.OverloadTicks + 1
	}
	if c.CircuitBreaker && m.OverloadTicks >= p.CircuitBreakerTicks {
		m.CircuitOpen = true
	}
	if !down && !c.CircuitBreaker && m.OverloadTicks >= p.CrashAfterOverloadTicks && m.Utilization >= p.CrashUtilization {
		m.IsCrashed = true
		m.CrashCause = CauseOverload
		m.CrashedUntil = env.tick + int64(p.CrashRecoveryTicks)
		m.OverloadTicks = 0
	}

	slow := env.chaos.SlowFactor(n.ID)
	if slow <= 1 && p.SlowNodeProbability > 0 && env.rng.Float64() < p.SlowNodeProbability {
		slow = p.SlowNodeFactor
	}
	m.IsSlow = slow > 1
	m.SlowMultiplier = slow

	u := math.Min(m.Utilization, p.LatencyUtilizationCap)
	if m.CircuitOpen {
		u = math.Min(u, 1)
	}
	over := math.Max(0, u-p.LatencyKnee)
	lat := prof.BaseLatencyMs*(1+over*p.LatencyK)*env.chaos.Latency*slow + replicationCost(n, env)
	m.LatencyMs = clamp(lat, 0, p.MaxLatencyMs)
	m.JitterMs = m.LatencyMs * (0.05 + 0.25*over)
	if m.IsSlow {
		m.JitterMs *= 2
	}
	m.P95LatencyMs = clamp(m.LatencyMs*p.P95Factor+2*m.JitterMs, 0, p.MaxLatencyMs)

	if m.Offered > 0 {
		shed := (m.Dropped - m.Throttled) + m.Throttled*p.ThrottleErrorWeight
		errShed := clamp(shed/m.Offered, 0, 1)
		base := prof.BaseErrorRate * env.chaos.FailureRate * math.Max(1, slow/2)
		if c.Retry {
			base *= 1 - p.RetryMasking
		}
		if m.CircuitOpen {
			m.ErrorRate = errShed
		} else {
			m.ErrorRate = clamp(errShed+base*(1-errShed), 0, 1)
		}
	}
	if down {
		m.ErrorRate = 1
	}
	m.IsThrottled = m.Throttled > 0

	load := math.Min(m.Utilization, 1)
	if down {
		load = 0
	}
	m.CPU = clamp(5+90*load, 0, 100)
	m.Memory = clamp(20+60*load, 0, 100)

	if m.Utilization >= p.HighLoadUtilization && !down {
		m.HighLoadSeconds += env.dt
	}
	if prev.Offered > 0 {
		m.LoadGrowth = saturate(m.Offered / prev.Offered)
	}

	ready := readyInstances(n, prev)
	m.PoolMax = c.MaxConnections * ready
	if m.PoolMax > 0 && !down {
		inflight := m.RPS * m.LatencyMs / 1000
		m.PoolUtilization = clamp(inflight/float64(m.PoolMax), 0, 1)
		m.PoolActive = min(int(math.Round(inflight)), m.PoolMax)
	}
	return m
}

// replicationCost is the fixed latency a node pays for replicating writes.
func replicationCost(n *topology.Node, env *tickEnv) float64 {
	p := env.params
	cost := 0.0
	for _, e := range env.topo.OutEdges(n.ID) {
		if e.Kind != topology.EdgeReplication {
			continue
		}
		if n.Config.ReplicationStrategy == topology.ReplicationAsync {
			cost += p.ReplicationLatencyMs * 0.2
		} else {
			cost += p.ReplicationLatencyMs
		}
	}
	c := n.Config
	if c.Replication && c.ReplicationFactor > 1 && c.ReplicationStrategy == topology.ReplicationSync {
		cost += p.ReplicationLatencyMs * float64(c.WriteQuorum+1) / 2
	}
	return cost
}

// finish advances the autoscaler once the tick's utilization is known.
func finish(n *topology.Node, m *telemetry.ComponentMetrics, env *tickEnv) {
	m.Autoscale = stepAutoscale(n, m.Autoscale, m.Utilization, env.params, env.tick)
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v):
		return lo
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
