// Package score grades a finished run.
package score

import (
	"fmt"
	"math"

	"infrasim/internal/failure"
	"infrasim/internal/telemetry"
	"infrasim/internal/topology"
)

// PassingScore is the lowest overall score that passes.
const PassingScore = 60

// DefaultLatencyTargetMs is used when no latency target is set.
const DefaultLatencyTargetMs = 500

// Targets are the constraints a design is graded against. Zero values
// disable the corresponding comparison.
type Targets struct {
	DAU           int64   `yaml:"dau" json:"dau" validate:"gte=0"`
	QPS           float64 `yaml:"qps" json:"qps" validate:"gte=0"`
	LatencyP95Ms  float64 `yaml:"latency_p95_ms" json:"latency_p95_ms" validate:"gte=0"`
	Availability  float64 `yaml:"availability" json:"availability" validate:"gte=0,lte=100"`
	MonthlyBudget float64 `yaml:"monthly_budget" json:"monthly_budget" validate:"gte=0"`
}

// Complexity counts what the simplicity dimension penalizes.
type Complexity struct {
	Components  int `json:"components"`
	Connections int `json:"connections"`
}

// ComplexityOf counts the simulated nodes of t and the connections between them.
func ComplexityOf(t *topology.Topology) Complexity {
	var c Complexity
	for _, n := range t.Nodes() {
		if n.Simulated() {
			c.Components++
		}
	}
	for _, e := range t.Edges() {
		src, dst := t.Node(e.Source), t.Node(e.Target)
		if src != nil && dst != nil && src.Simulated() && dst.Simulated() {
			c.Connections++
		}
	}
	return c
}

// Dimension is one graded aspect of the design.
type Dimension struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Comment string  `json:"comment"`
}

// Score is the final grade of a run.
type Score struct {
	Overall     float64     `json:"overall"`
	Grade       string      `json:"grade"`
	Stars       int         `json:"stars"`
	Passed      bool        `json:"passed"`
	Scalability float64     `json:"scalability"`
	Reliability float64     `json:"reliability"`
	Performance float64     `json:"performance"`
	Cost        float64     `json:"cost"`
	Simplicity  float64     `json:"simplicity"`
	Dimensions  []Dimension `json:"dimensions"`
}

// Compute grades a run from its final global metrics and failure history.
// It is a pure function of its arguments.
func Compute(final telemetry.GlobalMetrics, log []failure.Event, targets Targets, counts Complexity) Score {
	kinds := map[failure.Kind]int{}
	for _, e := range log {
		kinds[e.Kind]++
	}
	dims := []Dimension{
		scalability(final, kinds, targets),
		reliability(final, kinds, targets),
		performance(final, targets),
		cost(final, targets),
		simplicity(counts),
	}
	s := Score{
		Scalability: dims[0].Value,
		Reliability: dims[1].Value,
		Performance: dims[2].Value,
		Cost:        dims[3].Value,
		Simplicity:  dims[4].Value,
		Dimensions:  dims,
	}
	s.Overall = round(0.25*s.Scalability + 0.25*s.Reliability + 0.25*s.Performance + 0.15*s.Cost + 0.10*s.Simplicity)
	s.Grade = Grade(s.Overall)
	s.Stars = Stars(s.Overall)
	s.Passed = s.Overall >= PassingScore
	return s
}

func scalability(g telemetry.GlobalMetrics, kinds map[failure.Kind]int, t Targets) Dimension {
	v := 100.0
	comment := fmt.Sprintf("served %.0f rps", g.TotalRPS)
	if t.QPS > 0 {
		v = 100 * math.Min(1, g.TotalRPS/t.QPS)
		comment = fmt.Sprintf("served %.0f of %.0f target rps", g.TotalRPS, t.QPS)
	}
	overloads, overflows := kinds[failure.Overload], kinds[failure.TrafficOverflow]
	v -= 10*float64(overloads) + 5*float64(overflows)
	if overloads+overflows > 0 {
		comment += fmt.Sprintf(", %d overload and %d overflow events", overloads, overflows)
	}
	return Dimension{Name: "scalability", Value: clamp(v), Comment: comment}
}

func reliability(g telemetry.GlobalMetrics, kinds map[failure.Kind]int, t Targets) Dimension {
	spof := kinds[failure.SinglePointOfFailure]
	loss := kinds[failure.DataLossRisk]
	cascades := kinds[failure.CascadingFailure]
	v := 100 - 15*float64(spof) - 10*float64(loss) - 12*float64(cascades)
	comment := fmt.Sprintf("availability %.2f%%", g.Availability)
	if t.Availability > 0 && g.Availability < t.Availability {
		v -= math.Min(40, (t.Availability-g.Availability)*10)
		comment = fmt.Sprintf("availability %.2f%% below the %.2f%% target", g.Availability, t.Availability)
	}
	if spof+loss+cascades > 0 {
		comment += fmt.Sprintf(", %d single points of failure, %d unreplicated stores, %d cascades", spof, loss, cascades)
	}
	return Dimension{Name: "reliability", Value: clamp(v), Comment: comment}
}

func performance(g telemetry.GlobalMetrics, t Targets) Dimension {
	target := t.LatencyP95Ms
	if target <= 0 {
		target = DefaultLatencyTargetMs
	}
	ratio := g.P95LatencyMs / target
	v := 100.0
	if ratio > 1 {
		v = 100 - (ratio-1)*60
	}
	return Dimension{
		Name:    "performance",
		Value:   clamp(v),
		Comment: fmt.Sprintf("p95 %.0fms against %.0fms", g.P95LatencyMs, target),
	}
}

func cost(g telemetry.GlobalMetrics, t Targets) Dimension {
	monthly := g.CostPerHour * failure.HoursPerMonth
	if t.MonthlyBudget <= 0 {
		return Dimension{Name: "cost", Value: 100, Comment: fmt.Sprintf("$%.0f per month, no budget set", monthly)}
	}
	ratio := monthly / t.MonthlyBudget
	var v float64
	if ratio <= 1 {
		v = 100 - 5*ratio
	} else {
		v = math.Max(10, 95-60*(ratio-1))
	}
	return Dimension{
		Name:    "cost",
		Value:   clamp(v),
		Comment: fmt.Sprintf("$%.0f per month against a $%.0f budget", monthly, t.MonthlyBudget),
	}
}

func simplicity(c Complexity) Dimension {
	v := 100 - 5*float64(max(0, c.Components-6)) - 2*float64(max(0, c.Connections-8))
	return Dimension{
		Name:    "simplicity",
		Value:   clamp(v),
		Comment: fmt.Sprintf("%d components, %d connections", c.Components, c.Connections),
	}
}

// Grade maps an overall score to a letter.
func Grade(overall float64) string {
	switch {
	case overall >= 90:
		return "S"
	case overall >= 80:
		return "A"
	case overall >= 70:
		return "B"
	case overall >= 60:
		return "C"
	case overall >= 50:
		return "D"
	}
	return "F"
}

// Stars maps an overall score to a one to five star rating.
func Stars(overall float64) int {
	switch {
	case overall >= 90:
		return 5
	case overall >= 75:
		return 4
	case overall >= 60:
		return 3
	case overall >= 40:
		return 2
	}
	return 1
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return round(math.Max(0, math.Min(100, v)))
}

func round(v float64) float64 { return math.Round(v*10) / 10 }
