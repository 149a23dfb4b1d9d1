package scenario

import (
	"time"

	"infrasim/internal/chaos"
	"infrasim/internal/score"
)

// BuiltIn returns predefined load tests.
func BuiltIn() map[string]Scenario {
	return map[string]Scenario{
		"steady-growth": {
			Name:        "Steady Growth",
			Description: "Traffic doubles over a few minutes as a product launch gains traction.",
			Constraints: score.Targets{DAU: 1_000_000, QPS: 2000, LatencyP95Ms: 300, Availability: 99.9, MonthlyBudget: 3000},
			Phases: []Phase{
				{Name: "setup", Description: "Baseline traffic.", Level: 1, Triggers: []Trigger{{Event: EventTimeElapsed, Value: 60, Next: "escalation"}}},
				{Name: "escalation", Description: "Early adopters arrive.", Level: 1.5, Triggers: []Trigger{{Event: EventTimeElapsed, Value: 120, Next: "climax"}}},
				{Name: "climax", Description: "Launch day peak.", Level: 2, Triggers: []Trigger{{Event: EventTimeElapsed, Value: 120, Next: "resolution"}}},
				{Name: "resolution", Description: "Traffic settles at the new normal.", Level: 1.6},
			},
		},
		"flash-sale": {
			Name:        "Flash Sale",
			Description: "A limited-time sale sends a sudden burst of shoppers and a cold cache.",
			Constraints: score.Targets{DAU: 5_000_000, QPS: 5000, LatencyP95Ms: 500, Availability: 99.5, MonthlyBudget: 8000},
			Phases: []Phase{
				{Name: "setup", Description: "Shoppers browse ahead of the sale.", Level: 1, Triggers: []Trigger{{Event: EventTimeElapsed, Value: 30, Next: "escalation"}}},
				{Name: "escalation", Description: "The sale opens.", Level: 4, Triggers: []Trigger{{Event: EventTimeElapsed, Value: 60, Next: "climax"}}},
				{Name: "climax", Description: "Checkout rush.", Level: 6, Triggers: []Trigger{{Event: EventTimeElapsed, Value: 90, Next: "resolution"}}},
				{Name: "resolution", Description: "Stock sells out and traffic drops.", Level: 1.2},
			},
			Chaos: []chaos.Event{
				{ID: "sale-cache-flush", Type: chaos.CacheInvalidation, Start: 30 * time.Second, Duration: 45 * time.Second},
			},
		},
		"regional-outage": {
			Name:        "Regional Outage",
			Description: "A zone loses connectivity while a hot fix is rolled out under load.",
			Constraints: score.Targets{DAU: 2_000_000, QPS: 3000, LatencyP95Ms: 400, Availability: 99.95, MonthlyBudget: 6000},
			Phases: []Phase{
				{Name: "setup", Description: "Normal operations.", Level: 1, Triggers: []Trigger{{Event: EventTimeElapsed, Value: 60, Next: "escalation"}}},
				{Name: "escalation", Description: "Latency climbs across the region.", Level: 1.2, Triggers: []Trigger{{Event: EventCrashedNodes, Value: 1, Next: "climax"}, {Event: EventTimeElapsed, Value: 120, Next: "climax"}}},
				{Name: "climax", Description: "Failover traffic piles onto the survivors.", Level: 1.5, Triggers: []Trigger{{Event: EventTimeElapsed, Value: 120, Next: "resolution"}}},
				{Name: "resolution", Description: "Connectivity returns.", Level: 1},
			},
			Chaos: []chaos.Event{
				{ID: "regional-latency", Type: chaos.NetworkLatency, Start: 60 * time.Second, Duration: 120 * time.Second},
				{ID: "db-migration", Type: chaos.DatabaseSlowdown, Start: 90 * time.Second, Duration: 60 * time.Second, Cause: chaos.CauseMigration},
			},
		},
	}
}
