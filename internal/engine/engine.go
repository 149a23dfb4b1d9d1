// Package engine computes one simulation tick: traffic propagation, per-node
// behavior, autoscaling and the global reduction.
//
// A tick reads only the previous State and returns a new one; nothing in the
// previous State is modified, so observers may keep reading it while the next
// tick is computed.
package engine

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"infrasim/internal/chaos"
	"infrasim/internal/telemetry"
	"infrasim/internal/topology"
)

// State is the complete simulation output of one tick.
type State struct {
	Tick    int64                                 `json:"tick"`
	Elapsed time.Duration                         `json:"elapsed"`
	Metrics map[string]telemetry.ComponentMetrics `json:"metrics"`
	Loads   map[string]Load                       `json:"loads"`
	Flows   map[string]Flow                       `json:"flows"`
	Global  telemetry.GlobalMetrics               `json:"global"`
}

// Input carries the operator controlled values of a tick.
type Input struct {
	Level float64
	Chaos chaos.Multipliers
}

type tickEnv struct {
	topo      *topology.Topology
	params    Params
	chaos     chaos.Multipliers
	tick      int64
	dt        float64
	rng       *rand.Rand
	prevState map[string]telemetry.ComponentMetrics
}

func (e *tickEnv) prev(id string) telemetry.ComponentMetrics {
	if m, ok := e.prevState[id]; ok {
		return m
	}
	n := e.topo.Node(id)
	if n == nil {
		return telemetry.DefaultMetrics(1)
	}
	return telemetry.DefaultMetrics(initialInstances(n))
}

// Engine advances simulation state. It is not safe for concurrent use.
type Engine struct {
	params Params
	rng    *rand.Rand
}

// New returns an engine using p.
func New(p Params) *Engine {
	e := &Engine{params: p}
	e.Reset()
	return e
}

// Params returns the engine parameters.
func (e *Engine) Params() Params { return e.params }

// TickDuration is the simulated time one Step advances.
func (e *Engine) TickDuration() time.Duration {
	return time.Duration(e.params.TickSeconds * float64(time.Second))
}

// Reset reseeds the stochastic rules so a new run replays identically.
func (e *Engine) Reset() {
	h := fnv.New64a()
	h.Write([]byte("slow-node"))
	e.rng = rand.New(rand.NewSource(e.params.Seed ^ int64(h.Sum64())))
}

// Initial returns the reset state of t.
func Initial(t *topology.Topology) State {
	s := State{
		Metrics: make(map[string]telemetry.ComponentMetrics, t.Len()),
		Loads:   map[string]Load{},
		Flows:   map[string]Flow{},
		Global:  telemetry.DefaultGlobal(),
	}
	for _, n := range t.Nodes() {
		if n.Simulated() {
			s.Metrics[n.ID] = telemetry.DefaultMetrics(initialInstances(n))
		}
	}
	return s
}

// Step computes the tick following prev.
func (e *Engine) Step(t *topology.Topology, prev State, in Input) State {
	env := &tickEnv{
		topo:      t,
		params:    e.params,
		chaos:     in.Chaos,
		tick:      prev.Tick + 1,
		dt:        e.params.TickSeconds,
		rng:       e.rng,
		prevState: prev.Metrics,
	}
	if env.chaos.Traffic == 0 {
		env.chaos = chaos.Neutral()
	}
	level := in.Level
	if level < 0 || math.IsNaN(level) {
		level = 0
	}

	pr := propagate(env, level)
	next := State{
		Tick:    env.tick,
		Elapsed: prev.Elapsed + e.TickDuration(),
		Metrics: make(map[string]telemetry.ComponentMetrics, len(pr.loads)),
		Loads:   make(map[string]Load, len(pr.loads)),
		Flows:   pr.flows,
	}
	for _, n := range t.Nodes() {
		l, ok := pr.loads[n.ID]
		if !ok {
			continue
		}
		next.Metrics[n.ID] = behaviorFor(n.Type).Derive(n, l, env.prev(n.ID), env)
		next.Loads[n.ID] = *l
	}
	next.Global = Aggregate(t, next.Metrics, prev.Global, next.Tick, e.params)
	return next
}
