package engine

import (
	"math"

	"infrasim/internal/topology"
)

// Load is the traffic accounting of one node for one tick, in requests per
// second. Offered = Accepted + Dropped always holds.
type Load struct {
	Source    bool    `json:"source"`
	Capacity  float64 `json:"capacity"`
	Offered   float64 `json:"offered"`
	Accepted  float64 `json:"accepted"`
	Dropped   float64 `json:"dropped"`
	Throttled float64 `json:"throttled"`
	Retry     float64 `json:"retry"`
	Forwarded float64 `json:"forwarded"`
	// Inbound is the accepted load per upstream node id.
	Inbound      map[string]float64 `json:"inbound,omitempty"`
	Crashed      bool               `json:"crashed"`
	CrashCause   string             `json:"crash_cause,omitempty"`
	Disconnected bool               `json:"disconnected"`

	unbounded   bool
	rateLimited bool
}

func (l *Load) headroom() float64 {
	switch {
	case l.Crashed || l.Disconnected:
		return 0
	case l.unbounded:
		return math.Inf(1)
	}
	return math.Max(0, l.Capacity-l.Accepted)
}

// offer records amount arriving from upstream and returns the accepted part.
func (l *Load) offer(from string, amount float64) float64 {
	amount = saturate(amount)
	if amount <= 0 {
		return 0
	}
	accepted := math.Min(amount, l.headroom())
	l.Offered += amount
	l.Accepted += accepted
	shed := amount - accepted
	l.Dropped += shed
	if l.rateLimited {
		l.Throttled += shed
	}
	if from != "" && accepted > 0 {
		if l.Inbound == nil {
			l.Inbound = make(map[string]float64)
		}
		l.Inbound[from] += accepted
	}
	return accepted
}

// InboundShare returns the fraction of accepted load that came from upstream.
func (l Load) InboundShare(upstream string) float64 {
	if l.Accepted <= 0 {
		return 0
	}
	return l.Inbound[upstream] / l.Accepted
}

// Flow is the load carried by one connection this tick.
type Flow struct {
	// Share is the fraction of the sender's forwarded load sent on the connection.
	Share float64 `json:"share"`
	// RPS is the load the receiver accepted from the connection.
	RPS float64 `json:"rps"`
}

type propagation struct {
	order []string
	loads map[string]*Load
	flows map[string]Flow
}

// emitters are the nodes that generate traffic. Explicit origins and clients
// win; without any, every node lacking inbound load-carrying connections emits.
func emitters(t *topology.Topology) []*topology.Node {
	var explicit []*topology.Node
	for _, n := range t.Nodes() {
		if n.Simulated() && (n.Type == topology.TypeClient || n.Config.TrafficOrigin) {
			explicit = append(explicit, n)
		}
	}
	if len(explicit) > 0 {
		return explicit
	}
	return t.Sources()
}

// forwardOrder returns the reachable simulated nodes so that every node comes
// after all of its upstreams, breaking cycles at the earliest discovered node.
func forwardOrder(t *topology.Topology, from []*topology.Node) []string {
	discovered := make(map[string]int)
	var reach []string
	queue := make([]string, 0, len(from))
	for _, n := range from {
		if _, ok := discovered[n.ID]; ok {
			continue
		}
		discovered[n.ID] = len(reach)
		reach = append(reach, n.ID)
		queue = append(queue, n.ID)
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range t.ForwardOut(cur) {
			if _, ok := discovered[e.Target]; ok {
				continue
			}
			discovered[e.Target] = len(reach)
			reach = append(reach, e.Target)
			queue = append(queue, e.Target)
		}
	}

	indeg := make(map[string]int, len(reach))
	for _, id := range reach {
		for _, e := range t.ForwardIn(id) {
			if _, ok := discovered[e.Source]; ok {
				indeg[id]++
			}
		}
	}
	done := make(map[string]bool, len(reach))
	order := make([]string, 0, len(reach))
	var ready []string
	for _, id := range reach {
		if indeg[id] == 0 {
			ready = append(ready, id)
		}
	}
	for len(order) < len(reach) {
		if len(ready) == 0 {
			for _, id := range reach {
				if !done[id] {
					ready = append(ready, id)
					break
				}
			}
		}
		cur := ready[0]
		ready = ready[1:]
		if done[cur] {
			continue
		}
		done[cur] = true
		order = append(order, cur)
		for _, e := range t.ForwardOut(cur) {
			if done[e.Target] {
				continue
			}
			indeg[e.Target]--
			if indeg[e.Target] == 0 {
				ready = append(ready, e.Target)
			}
		}
	}
	return order
}

// sourceRate is the load a traffic source emits at the given level.
func sourceRate(n *topology.Node, level float64, p Params) float64 {
	if n.Config.TrafficRPS > 0 && (n.Type == topology.TypeClient || n.Config.TrafficOrigin) {
		return saturate(level * n.Config.TrafficRPS)
	}
	return saturate(level * p.BaseRPS)
}

// propagate walks the graph once and settles the load of every simulated node.
func propagate(env *tickEnv, level float64) *propagation {
	t := env.topo
	pr := &propagation{
		loads: make(map[string]*Load, t.Len()),
		flows: make(map[string]Flow, len(t.Edges())),
	}
	for _, n := range t.Nodes() {
		if !n.Simulated() {
			continue
		}
		prev := env.prev(n.ID)
		l := &Load{
			Capacity:     n.Config.Capacity * float64(readyInstances(n, prev)),
			Disconnected: env.chaos.Disconnected[n.ID],
			unbounded:    n.Type == topology.TypeClient,
			rateLimited:  n.Config.RateLimiting,
		}
		switch {
		case env.chaos.Crashed[n.ID]:
			l.Crashed = true
			l.CrashCause = env.chaos.Causes[n.ID]
			if l.CrashCause == "" {
				l.CrashCause = CauseChaos
			}
		case prev.IsCrashed && prev.CrashedUntil > env.tick:
			l.Crashed = true
			l.CrashCause = prev.CrashCause
		}
		pr.loads[n.ID] = l
	}

	srcs := emitters(t)
	for _, n := range srcs {
		l := pr.loads[n.ID]
		l.Source = true
		l.offer("", sourceRate(n, level, env.params)*env.chaos.Traffic)
	}

	pr.order = forwardOrder(t, srcs)
	done := make(map[string]bool, len(pr.order))
	for _, id := range pr.order {
		n := t.Node(id)
		l := pr.loads[id]
		prev := env.prev(id)
		if n.Config.Retry && prev.Dropped > 0 && !l.Crashed && !l.Disconnected {
			before := l.Offered
			l.offer("", prev.Dropped*env.params.RetryAmplification)
			l.Retry = l.Offered - before
		}
		l.Forwarded = saturate(behaviorFor(n.Type).Forward(n, l, prev, env))
		done[id] = true
		pr.split(t, n, l.Forwarded, done)
	}
	return pr
}

// split divides fwd across the node's outbound load-carrying connections.
// Each connection kind receives the full forwarded load, divided among its
// connections evenly or by weight. Connections back into nodes already
// settled this tick carry nothing.
func (pr *propagation) split(t *topology.Topology, n *topology.Node, fwd float64, done map[string]bool) {
	groups := make(map[topology.EdgeKind][]*topology.Edge)
	var kinds []topology.EdgeKind
	for _, e := range t.ForwardOut(n.ID) {
		if done[e.Target] {
			pr.flows[e.ID] = Flow{}
			continue
		}
		if _, ok := groups[e.Kind]; !ok {
			kinds = append(kinds, e.Kind)
		}
		groups[e.Kind] = append(groups[e.Kind], e)
	}
	for _, k := range kinds {
		edges := groups[k]
		total := 0.0
		for _, e := range edges {
			total += math.Max(0, e.Weight)
		}
		for _, e := range edges {
			share := 1 / float64(len(edges))
			if total > 0 {
				share = math.Max(0, e.Weight) / total
			}
			sent := fwd * share
			got := pr.loads[e.Target].offer(n.ID, sent)
			if fwd <= 0 {
				share = 0
			}
			pr.flows[e.ID] = Flow{Share: share, RPS: got}
		}
	}
}

// MaxRate is the ceiling of any single rate in requests per second. Larger
// values saturate at it.
const MaxRate = 1e12

// MaxTrafficLevel is the largest traffic multiplier a run accepts.
const MaxTrafficLevel = 1e6

// ValidLevel reports whether level is a finite multiplier in [0, MaxTrafficLevel].
func ValidLevel(level float64) bool {
	return !math.IsNaN(level) && level >= 0 && level <= MaxTrafficLevel
}

func saturate(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > MaxRate:
		return MaxRate
	}
	return v
}
