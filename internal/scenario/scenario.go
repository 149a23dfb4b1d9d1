package scenario

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"infrasim/internal/chaos"
	"infrasim/internal/engine"
	"infrasim/internal/score"
)

// Trigger events understood by the runner.
const (
	// EventTimeElapsed carries the whole seconds spent in the current phase.
	EventTimeElapsed = "time_elapsed"
	// EventFailures carries the number of failures logged so far.
	EventFailures = "failures"
	// EventCrashedNodes carries the number of currently crashed components.
	EventCrashedNodes = "crashed_nodes"
)

// Scenario is a load test: the constraints a design must meet, ordered
// traffic phases and chaos scheduled on the simulated clock.
type Scenario struct {
	Name        string        `yaml:"name,omitempty"`
	Description string        `yaml:"description,omitempty"`
	Constraints score.Targets `yaml:"constraints"`
	Phases      []Phase       `yaml:"phases"`
	Chaos       []chaos.Event `yaml:"chaos,omitempty"`
}

// Phase holds the traffic level applied until one of its triggers fires.
type Phase struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Level       float64   `yaml:"level"`
	Triggers    []Trigger `yaml:"triggers,omitempty"`
}

// Trigger moves the scenario to another phase based on an event.
type Trigger struct {
	Event string `yaml:"event"`
	Value int    `yaml:"value"`
	Next  string `yaml:"next"`
}

// Event represents a runtime occurrence that may advance the scenario.
type Event struct {
	Type  string
	Value int
}

// Load reads a YAML scenario definition from disk.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Check(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

// Check verifies that every trigger names an existing phase and every
// scheduled chaos event is well formed.
func (s *Scenario) Check() error {
	names := make(map[string]bool, len(s.Phases))
	for _, p := range s.Phases {
		if names[p.Name] {
			return fmt.Errorf("duplicate phase %q", p.Name)
		}
		names[p.Name] = true
		if !engine.ValidLevel(p.Level) {
			return fmt.Errorf("phase %q: traffic level %v out of range [0, %g]", p.Name, p.Level, engine.MaxTrafficLevel)
		}
	}
	for _, p := range s.Phases {
		for _, tr := range p.Triggers {
			if !names[tr.Next] {
				return fmt.Errorf("phase %q: trigger targets unknown phase %q", p.Name, tr.Next)
			}
		}
	}
	for i, e := range s.Chaos {
		n, err := e.Normalize()
		if err != nil {
			return fmt.Errorf("chaos[%d]: %w", i, err)
		}
		s.Chaos[i] = n
	}
	return nil
}

// NextPhase returns the name of the next phase given the current phase and event.
// If no trigger matches, ok will be false.
func (s *Scenario) NextPhase(current string, ev Event) (next string, ok bool) {
	for _, p := range s.Phases {
		if p.Name != current {
			continue
		}
		for _, tr := range p.Triggers {
			if tr.Event == ev.Type && ev.Value >= tr.Value {
				return tr.Next, true
			}
		}
	}
	return "", false
}

// Phase returns the phase called name.
func (s *Scenario) Phase(name string) (Phase, bool) {
	for _, p := range s.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return Phase{}, false
}

// Runner tracks the current phase of a running scenario.
type Runner struct {
	scenario *Scenario
	current  string
	entered  time.Duration
}

// NewRunner starts s at its first phase.
func NewRunner(s *Scenario) *Runner {
	r := &Runner{scenario: s}
	r.Reset()
	return r
}

// Reset returns to the first phase.
func (r *Runner) Reset() {
	r.current = ""
	r.entered = 0
	if len(r.scenario.Phases) > 0 {
		r.current = r.scenario.Phases[0].Name
	}
}

// Current returns the active phase.
func (r *Runner) Current() (Phase, bool) {
	return r.scenario.Phase(r.current)
}

// Advance feeds the runtime observations at simulated time now to the
// triggers of the current phase and reports whether the phase changed.
// At most one transition happens per call.
func (r *Runner) Advance(now time.Duration, failures, crashed int) (Phase, bool) {
	events := []Event{
		{Type: EventTimeElapsed, Value: int((now - r.entered) / time.Second)},
		{Type: EventFailures, Value: failures},
		{Type: EventCrashedNodes, Value: crashed},
	}
	for _, ev := range events {
		if next, ok := r.scenario.NextPhase(r.current, ev); ok {
			r.current = next
			r.entered = now
			p, _ := r.scenario.Phase(next)
			return p, true
		}
	}
	p, _ := r.Current()
	return p, false
}
