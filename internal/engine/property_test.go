package engine

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"infrasim/internal/chaos"
	"infrasim/internal/topology"
)

// TestLoadInvariants checks the propagation rules for arbitrary loads.
func TestLoadInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	single := topology.New()
	if err := single.AddNode(topology.Node{ID: "svc", Type: topology.TypeAppServer, Config: topology.Config{Capacity: 1000, Instances: 1}}); err != nil {
		t.Fatal(err)
	}

	properties.Property("error rate grows with load once overloaded", prop.ForAll(
		func(level, delta float64) bool {
			e := New(DefaultParams())
			lo := e.Step(single, Initial(single), Input{Level: level, Chaos: chaos.Neutral()})
			hi := e.Step(single, Initial(single), Input{Level: level + delta, Chaos: chaos.Neutral()})
			return hi.Metrics["svc"].ErrorRate > lo.Metrics["svc"].ErrorRate
		},
		gen.Float64Range(1.01, 50),
		gen.Float64Range(0.01, 10),
	))

	properties.Property("accepted load never exceeds capacity and nothing vanishes", prop.ForAll(
		func(a, b, capacity float64, instances int) bool {
			topo := topology.New()
			nodes := []topology.Node{
				{ID: "a", Type: topology.TypeMicroservice, Config: topology.Config{Capacity: 1e9, Instances: 1, TrafficOrigin: true, TrafficRPS: a}},
				{ID: "b", Type: topology.TypeMicroservice, Config: topology.Config{Capacity: 1e9, Instances: 1, TrafficOrigin: true, TrafficRPS: b}},
				{ID: "m", Type: topology.TypeMicroservice, Config: topology.Config{Capacity: capacity, Instances: instances}},
				{ID: "w", Type: topology.TypeWorker, Config: topology.Config{Capacity: 1e9, Instances: 1}},
			}
			for _, n := range nodes {
				if err := topo.AddNode(n); err != nil {
					return false
				}
			}
			for _, e := range [][2]string{{"a", "m"}, {"b", "m"}, {"m", "w"}} {
				if err := topo.Connect(topology.Edge{Source: e[0], Target: e[1]}); err != nil {
					return false
				}
			}
			s := New(DefaultParams()).Step(topo, Initial(topo), Input{Level: 1, Chaos: chaos.Neutral()})
			m := s.Metrics["m"]
			limit := capacity * float64(instances)
			const eps = 1e-6
			return m.RPS <= limit+eps &&
				math.Abs(m.Offered-(a+b)) < eps*(a+b+1) &&
				math.Abs(m.Offered-m.RPS-m.Dropped) < eps*(a+b+1) &&
				s.Metrics["w"].Offered <= m.RPS+eps
		},
		gen.Float64Range(1, 5000),
		gen.Float64Range(1, 5000),
		gen.Float64Range(1, 3000),
		gen.IntRange(1, 4),
	))

	properties.Property("metrics stay finite and in range", prop.ForAll(
		func(level, capacity float64, breaker, retry bool) bool {
			topo := topology.New()
			cfg := topology.Config{Capacity: capacity, Instances: 1, CircuitBreaker: breaker, Retry: retry, MaxConnections: 10}
			_ = topo.AddNode(topology.Node{ID: "svc", Type: topology.TypeMicroservice, Config: cfg})
			e := New(DefaultParams())
			s := Initial(topo)
			for i := 0; i < 5; i++ {
				s = e.Step(topo, s, Input{Level: level, Chaos: chaos.Neutral()})
				m := s.Metrics["svc"]
				for _, v := range []float64{m.LatencyMs, m.P95LatencyMs, m.ErrorRate, m.CPU, m.Memory, m.PoolUtilization, s.Global.Availability, s.Global.P99LatencyMs} {
					if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
						return false
					}
				}
				if m.ErrorRate > 1 || s.Global.Availability > 100 {
					return false
				}
			}
			return true
		},
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 5000),
		gen.Bool(),
		gen.Bool(),
	))

	chain := topology.New()
	for _, n := range []topology.Node{
		{ID: "users", Type: topology.TypeClient, Config: topology.Config{TrafficRPS: 100}},
		{ID: "app", Type: topology.TypeAppServer, Config: topology.Config{Capacity: 1000, Instances: 1, Retry: true}},
		{ID: "db", Type: topology.TypeDatabase, Config: topology.Config{Capacity: 500, Instances: 1, CircuitBreaker: true}},
	} {
		if err := chain.AddNode(n); err != nil {
			t.Fatal(err)
		}
	}
	for _, e := range [][2]string{{"users", "app"}, {"app", "db"}} {
		if err := chain.Connect(topology.Edge{Source: e[0], Target: e[1]}); err != nil {
			t.Fatal(err)
		}
	}

	properties.Property("huge levels saturate instead of overflowing", prop.ForAll(
		func(level float64) bool {
			e := New(DefaultParams())
			s := Initial(chain)
			for i := 0; i < 3; i++ {
				s = e.Step(chain, s, Input{Level: level, Chaos: chaos.Neutral()})
			}
			for _, m := range s.Metrics {
				for _, v := range []float64{m.Offered, m.RPS, m.Dropped, m.Utilization, m.ErrorRate, m.LatencyMs, m.LoadGrowth} {
					if math.IsNaN(v) || math.IsInf(v, 0) {
						return false
					}
				}
			}
			g := s.Global
			for _, v := range []float64{g.TotalRPS, g.OfferedRPS, g.ErrorRate, g.Availability, g.TotalRequests, g.FailedRequests} {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return false
				}
			}
			if s.Metrics["app"].Utilization <= 1 || s.Metrics["app"].OverloadTicks == 0 {
				return false
			}
			if g.ErrorRate <= 0 || g.Availability >= 100 {
				return false
			}
			_, err := json.Marshal(s)
			return err == nil
		},
		gen.OneGenOf(
			gen.Float64Range(1e3, math.MaxFloat64),
			gen.Const(math.Inf(1)),
			gen.Const(math.MaxFloat64),
		),
	))

	properties.TestingRun(t)
}
