// Package failure classifies simulation state into failure events.
//
// Detection is a pure function of one tick's state: the topology, the
// per-node metrics and loads, the previous tick's metrics and the folded
// chaos. It runs in three phases. Per-node conditions come first, then
// topology wide checks, then cascades are walked from the primary failures
// of the first phase. A (kind, component) pair is reported at most once per
// tick; the Log turns the per-tick sets into onset events.
package failure

import (
	"reflect"
	"sort"

	"infrasim/internal/chaos"
	"infrasim/internal/engine"
	"infrasim/internal/telemetry"
	"infrasim/internal/topology"
)

// HoursPerMonth converts hourly cost into the monthly figure compared with a budget.
const HoursPerMonth = 730

// Input is everything one detection pass reads.
type Input struct {
	Topology *topology.Topology
	State    engine.State
	// Prev holds the previous tick's metrics, nil on the first tick.
	Prev   map[string]telemetry.ComponentMetrics
	Chaos  chaos.Multipliers
	Params engine.Params
	// LatencySLAMs overrides Params.LatencyBreachMs when positive.
	LatencySLAMs float64
	// MonthlyBudget disables the cost check when zero.
	MonthlyBudget float64
	// Baseline holds the configs at run start for drift detection.
	Baseline map[string]topology.Config
}

type detection struct {
	in     Input
	seen   map[string]bool
	events []Event
}

func (d *detection) add(e Event) bool {
	if d.seen[e.Key()] {
		return false
	}
	d.seen[e.Key()] = true
	e.Tick = d.in.State.Tick
	e.Time = d.in.State.Elapsed
	d.events = append(d.events, e)
	return true
}

// Detect returns the failures present in the tick described by in.
func Detect(in Input) []Event {
	if in.Topology == nil {
		return nil
	}
	if in.Chaos.Traffic == 0 {
		in.Chaos = chaos.Neutral()
	}
	d := &detection{in: in, seen: map[string]bool{}}
	roots := d.nodePhase()
	d.topologyPhase()
	d.cascadePhase(roots)
	return d.events
}

func (d *detection) sla() float64 {
	if d.in.LatencySLAMs > 0 {
		return d.in.LatencySLAMs
	}
	return d.in.Params.LatencyBreachMs
}

// nodePhase checks every simulated node and returns the ids of primary
// failures that may cascade.
func (d *detection) nodePhase() []string {
	var roots []string
	for _, n := range d.in.Topology.Nodes() {
		if !n.Simulated() || n.Type == topology.TypeClient {
			continue
		}
		m, ok := d.in.State.Metrics[n.ID]
		if !ok {
			continue
		}
		if d.checkDown(n, m) {
			roots = append(roots, n.ID)
			continue
		}
		if d.checkCapacity(n, m) {
			roots = append(roots, n.ID)
		}
		if m.IsSlow {
			e := newEvent(SlowNode, n.ID, "%s is responding %.1fx slower than normal", n.ID, m.SlowMultiplier)
			if n.Config.CircuitBreaker {
				e = e.withFix("")
			}
			d.add(e)
			roots = append(roots, n.ID)
		}
		d.checkNetwork(n, m)
		d.checkResilience(n, m)
		d.checkAutoscaling(n, m)
		d.checkStorage(n, m)
		d.checkMessaging(n, m)
	}
	return roots
}

func (d *detection) checkDown(n *topology.Node, m telemetry.ComponentMetrics) bool {
	switch {
	case n.Type == topology.TypeDNS && (m.IsCrashed || m.Disconnected):
		d.add(newEvent(DNSFailure, n.ID, "%s cannot resolve names; dependent traffic is failing", n.ID).
			withAffected(d.downstream(n.ID)...))
	case m.IsCrashed && m.CrashCause == chaos.CauseDeployment:
		d.add(newEvent(BadDeployment, n.ID, "a faulty deployment took %s down", n.ID))
	case m.IsCrashed:
		e := newEvent(ComponentCrash, n.ID, "%s crashed (%s)", n.ID, crashCause(m))
		if m.CrashCause == engine.CauseOverload && !n.Config.AutoScale {
			e = e.withFix(topology.FixEnableAutoscaling)
		}
		d.add(e)
	case m.Disconnected:
		d.add(newEvent(NetworkPartition, n.ID, "%s is unreachable behind a network partition", n.ID))
	default:
		return false
	}
	return true
}

func crashCause(m telemetry.ComponentMetrics) string {
	if m.CrashCause == "" {
		return engine.CauseChaos
	}
	return m.CrashCause
}

// checkCapacity reports overload and its direct symptoms. It returns true
// when the node is overloaded.
func (d *detection) checkCapacity(n *topology.Node, m telemetry.ComponentMetrics) bool {
	p := d.in.Params
	c := n.Config
	overloaded := m.Overloaded()
	if overloaded {
		e := newEvent(Overload, n.ID, "%s is at %.0f%% of capacity (%.0f of %.0f rps)",
			n.ID, m.Utilization*100, m.Offered, m.Capacity).withSeverity(0.5 + (m.Utilization-1)/2)
		if c.AutoScale {
			e = e.withFix(topology.FixIncreaseReplicas)
		}
		d.add(e)
	}
	if m.Utilization >= 2 {
		e := newEvent(TrafficOverflow, n.ID, "%s receives %.1fx the traffic it can serve", n.ID, m.Utilization)
		if c.RateLimiting {
			e = e.withFix(topology.FixEnableAutoscaling)
		}
		d.add(e)
	}
	if m.P95LatencyMs > d.sla() {
		e := newEvent(LatencyBreach, n.ID, "%s p95 latency %.0fms exceeds %.0fms", n.ID, m.P95LatencyMs, d.sla()).
			withSeverity(0.4 + 0.1*m.P95LatencyMs/d.sla())
		if m.Utilization <= p.LatencyKnee {
			e = e.withFix("")
		}
		d.add(e)
	}
	if m.PoolMax > 0 && m.PoolUtilization >= p.PoolExhaustion {
		d.add(newEvent(ConnectionExhaustion, n.ID, "%s is using %d of %d connections", n.ID, m.PoolActive, m.PoolMax))
	}
	if topology.CategoryOf(n.Type) == topology.CategoryCompute &&
		m.HighLoadSeconds >= p.StarvationSeconds && m.Utilization >= p.HighLoadUtilization {
		e := newEvent(ThreadStarvation, n.ID, "%s has run hot for %.0fs and request threads are starved", n.ID, m.HighLoadSeconds)
		if c.AutoScale {
			e = e.withFix(topology.FixIncreaseReplicas)
		}
		d.add(e)
	}
	return overloaded
}

func (d *detection) checkNetwork(n *topology.Node, m telemetry.ComponentMetrics) {
	p := d.in.Params
	sla := d.sla()
	for _, e := range d.in.Topology.ForwardOut(n.ID) {
		target := d.in.Topology.Node(e.Target)
		dep, ok := d.in.State.Metrics[e.Target]
		if target == nil || !ok {
			continue
		}
		calm := topology.ProfileOf(target.Type).BaseLatencyMs * p.P95Factor
		if dep.P95LatencyMs >= sla/2 && dep.P95LatencyMs >= p.UpstreamTimeoutRatio*calm {
			ev := newEvent(UpstreamTimeout, n.ID, "%s calls to %s are timing out (p95 %.0fms)", n.ID, e.Target, dep.P95LatencyMs).
				withAffected(n.ID, e.Target)
			if n.Config.CircuitBreaker {
				ev = ev.withFix("")
			}
			d.add(ev)
		}
	}
}

func (d *detection) checkResilience(n *topology.Node, m telemetry.ComponentMetrics) {
	p := d.in.Params
	if m.CircuitOpen {
		d.add(newEvent(CircuitBreakerOpen, n.ID, "circuit breaker on %s is open and failing fast", n.ID))
	}
	if n.Config.Retry && m.RetryLoad > 0 && m.RetryLoad >= 0.2*(m.Offered-m.RetryLoad) {
		e := newEvent(RetryStorm, n.ID, "retries add %.0f rps to %s", m.RetryLoad, n.ID)
		if n.Config.CircuitBreaker {
			e = e.withFix(topology.FixEnableRateLimiting)
		}
		d.add(e)
	}
	prev, ok := d.in.Prev[n.ID]
	recovering := ok && (prev.Disconnected || prev.IsCrashed)
	if (recovering && m.Utilization > 1) || (m.LoadGrowth >= p.LoadSurgeRatio && m.Overloaded()) {
		e := newEvent(ThunderingHerd, n.ID, "a burst of %.0f rps hit %s at once", m.Offered, n.ID)
		if n.Config.RateLimiting {
			e = e.withFix("")
		}
		d.add(e)
	}
}

func (d *detection) checkAutoscaling(n *topology.Node, m telemetry.ComponentMetrics) {
	a := m.Autoscale
	c := n.Config
	switch {
	case a.Scaling && a.Target > a.Ready && m.Overloaded():
		d.add(newEvent(ScaleUpDelay, n.ID, "%s is overloaded while scaling from %d to %d instances", n.ID, a.Ready, a.Target))
	case a.Phase == telemetry.PhaseColdStarting:
		d.add(newEvent(ColdStart, n.ID, "%d new instances of %s are warming up", a.ColdStarting, n.ID))
	}
	partitioned := c.Sharding || c.ConsistentHashing || c.Partitions > 0
	if a.Phase == telemetry.PhaseScalingDown ||
		(partitioned && a.Phase == telemetry.PhaseStable && a.LastChange == d.in.State.Tick && a.LastChange > 0) {
		e := newEvent(Rebalancing, n.ID, "%s is rebalancing data across %d instances", n.ID, a.Ready)
		if c.ConsistentHashing {
			e = e.withSeverity(0.1)
		}
		d.add(e)
	}
}

func (d *detection) checkStorage(n *topology.Node, m telemetry.ComponentMetrics) {
	if !n.Type.IsStorage() {
		return
	}
	p := d.in.Params
	c := n.Config
	if n.Type == topology.TypeCache {
		if m.CacheHitDrop >= p.CacheStampedeDrop {
			d.add(newEvent(CacheStampede, n.ID, "hit rate on %s fell by %.0f points; misses are stampeding the backend",
				n.ID, m.CacheHitDrop*100).withAffected(d.downstream(n.ID)...))
		}
		return
	}
	if n.Type.IsDatabase() && d.in.Chaos.DBLatencyFor(n.ID) > 1 && d.in.Chaos.DBCauseFor(n.ID) == chaos.CauseMigration {
		d.add(newEvent(SchemaMigration, n.ID, "a schema migration is slowing %s by %.1fx", n.ID, d.in.Chaos.DBLatencyFor(n.ID)))
	}
	if m.Utilization >= p.DiskIOUtilization {
		d.add(newEvent(DiskIOSaturation, n.ID, "disk I/O on %s is saturated at %.0f%%", n.ID, m.Utilization*100))
	}
	if m.ReplicationLagMs >= p.StaleReadLagMs {
		d.add(newEvent(ReplicationLag, n.ID, "replicas of %s trail the primary by %.0fms", n.ID, m.ReplicationLagMs))
		if c.ReadQuorum <= 1 {
			d.add(newEvent(StaleRead, n.ID, "reads from %s may return data %.0fms old", n.ID, m.ReplicationLagMs))
		}
		if c.ReadQuorum+c.WriteQuorum <= c.ReplicationFactor {
			d.add(newEvent(ReadAfterWriteFailure, n.ID, "a write to %s may be invisible to the next read", n.ID))
		}
	}
	if c.Replication && c.ReplicationStrategy == topology.ReplicationAsync && len(c.Regions) > 1 &&
		c.WriteQuorum < 2 && m.RPS > 0 {
		d.add(newEvent(LostUpdate, n.ID, "concurrent writes to %s in %d regions can overwrite each other", n.ID, len(c.Regions)))
	}
}

func (d *detection) checkMessaging(n *topology.Node, m telemetry.ComponentMetrics) {
	if !n.Type.IsMessaging() {
		return
	}
	p := d.in.Params
	c := n.Config
	if c.QueueCapacity > 0 && m.QueueDepth >= c.QueueCapacity {
		e := newEvent(QueueOverflow, n.ID, "%s is full at %.0f messages", n.ID, m.QueueDepth)
		if c.DLQ {
			e = e.withFix(topology.FixIncreaseReplicas)
		}
		d.add(e)
	}
	if m.ConsumerLagSec >= p.ConsumerLagSeconds {
		d.add(newEvent(ConsumerLag, n.ID, "consumers of %s are %.0fs behind", n.ID, m.ConsumerLagSec))
	}
	if c.Retry && m.ConsumerLagSec >= p.ConsumerLagSeconds/2 {
		e := newEvent(DuplicateDelivery, n.ID, "redelivery from %s under lag may process messages twice", n.ID)
		if c.DLQ {
			e = e.withFix("")
		}
		d.add(e)
	}
}

func (d *detection) topologyPhase() {
	t := d.in.Topology
	for _, id := range t.CriticalNodes() {
		n := t.Node(id)
		e := newEvent(SinglePointOfFailure, id, "%s is a single point of failure", id)
		if n.Type.IsStorage() {
			e = e.withFix(topology.FixEnableReplication)
		}
		d.add(e)
	}
	for _, n := range t.Nodes() {
		if !n.Type.IsStorage() || n.Type == topology.TypeCache || n.Config.Replication {
			continue
		}
		d.add(newEvent(DataLossRisk, n.ID, "%s stores data without replication", n.ID))
	}
	if d.in.MonthlyBudget > 0 {
		monthly := d.in.State.Global.CostPerHour * HoursPerMonth
		if monthly > d.in.MonthlyBudget {
			d.add(newEvent(CostOverrun, "", "projected monthly cost $%.0f exceeds the $%.0f budget", monthly, d.in.MonthlyBudget).
				withAffected(d.costliest(3)...).
				withSeverity(0.3 + 0.2*(monthly/d.in.MonthlyBudget-1)))
		}
	}
	for _, n := range t.Nodes() {
		base, ok := d.in.Baseline[n.ID]
		if !ok || reflect.DeepEqual(base, n.Config) {
			continue
		}
		d.add(newEvent(ConfigDrift, n.ID, "%s no longer matches the configuration it started with", n.ID))
	}
}

// cascadePhase walks forward dependents of every primary failure. A
// dependent joins the cascade when at least CascadeShare of its load came
// over the walked edge and it is itself struggling. A dependent with a
// circuit breaker reports an open breaker and ends the walk.
func (d *detection) cascadePhase(roots []string) {
	p := d.in.Params
	for _, root := range roots {
		visited := map[string]bool{root: true}
		queue := []string{root}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, e := range d.in.Topology.ForwardOut(cur) {
				dep := d.in.Topology.Node(e.Target)
				if dep == nil || visited[dep.ID] || !dep.Simulated() {
					continue
				}
				visited[dep.ID] = true
				if d.share(cur, dep.ID) < p.CascadeShare {
					continue
				}
				if dep.Config.CircuitBreaker {
					d.add(newEvent(CircuitBreakerOpen, dep.ID, "circuit breaker on %s tripped after %s failed", dep.ID, root).
						withAffected(root, dep.ID))
					continue
				}
				m := d.in.State.Metrics[dep.ID]
				if m.Utilization < p.CascadeUtilization && !m.IsCrashed {
					continue
				}
				d.add(newEvent(CascadingFailure, dep.ID, "failure of %s cascaded to %s", root, dep.ID).
					withAffected(root, dep.ID))
				queue = append(queue, dep.ID)
			}
		}
	}
}

// share is the fraction of dep's load that arrives from upstream. A node
// that forwards nothing this tick counts by its share of dep's inbound
// connections.
func (d *detection) share(upstream, dep string) float64 {
	l := d.in.State.Loads[dep]
	if s := l.InboundShare(upstream); s > 0 {
		return s
	}
	up := d.in.State.Metrics[upstream]
	if up.IsCrashed || up.Disconnected || up.Forwarded == 0 {
		if in := len(d.in.Topology.ForwardIn(dep)); in > 0 {
			return 1 / float64(in)
		}
	}
	return 0
}

func (d *detection) downstream(id string) []string {
	out := []string{id}
	for _, e := range d.in.Topology.ForwardOut(id) {
		out = append(out, e.Target)
	}
	return out
}

func (d *detection) costliest(limit int) []string {
	type nodeCost struct {
		id   string
		cost float64
	}
	var costs []nodeCost
	for _, n := range d.in.Topology.Nodes() {
		m, ok := d.in.State.Metrics[n.ID]
		if !ok {
			continue
		}
		instances := max(1, m.Autoscale.Ready+m.Autoscale.ColdStarting)
		costs = append(costs, nodeCost{n.ID, n.Config.CostPerHour * float64(instances)})
	}
	sort.SliceStable(costs, func(i, j int) bool { return costs[i].cost > costs[j].cost })
	out := make([]string, 0, limit)
	for i := 0; i < len(costs) && i < limit; i++ {
		out = append(out, costs[i].id)
	}
	return out
}

// CrashedFraction is the share of simulated nodes that are down in s.
func CrashedFraction(t *topology.Topology, s engine.State) float64 {
	total, down := 0, 0
	for _, n := range t.Nodes() {
		if !n.Simulated() || n.Type == topology.TypeClient {
			continue
		}
		total++
		if m := s.Metrics[n.ID]; m.IsCrashed {
			down++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(down) / float64(total)
}
