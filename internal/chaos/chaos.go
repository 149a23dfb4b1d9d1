// Time-bounded perturbations applied to a running simulation
package chaos

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownType    = errors.New("unknown chaos event type")
	ErrMissingTargets = errors.New("chaos event needs at least one target")
	ErrUnknownEvent   = errors.New("unknown chaos event")
)

// EventType is one of the closed set of perturbations.
type EventType string

const (
	TrafficSpike      EventType = "traffic_spike"
	NetworkLatency    EventType = "network_latency"
	NetworkPartition  EventType = "network_partition"
	DatabaseSlowdown  EventType = "database_slowdown"
	CacheInvalidation EventType = "cache_invalidation"
	ComponentCrash    EventType = "component_crash"
)

// Parameter keys understood by the injector.
const (
	ParamMultiplier  = "multiplier"
	ParamFailureRate = "failure_rate"
	ParamHitRate     = "hit_rate"
)

// Causes recognised by the failure detector.
const (
	CauseDeployment = "deployment"
	CauseMigration  = "migration"
)

const defaultDuration = 30 * time.Second

var defaultParams = map[EventType]map[string]float64{
	TrafficSpike:      {ParamMultiplier: 3},
	NetworkLatency:    {ParamMultiplier: 2.5, ParamFailureRate: 1.5},
	NetworkPartition:  {},
	DatabaseSlowdown:  {ParamMultiplier: 4},
	CacheInvalidation: {ParamHitRate: 0.05},
	ComponentCrash:    {},
}

// Types lists every supported event type.
func Types() []EventType {
	return []EventType{TrafficSpike, NetworkLatency, NetworkPartition, DatabaseSlowdown, CacheInvalidation, ComponentCrash}
}

// Event is a perturbation active during [Start, Start+Duration) of simulated time.
type Event struct {
	ID       string             `json:"id" yaml:"id"`
	Type     EventType          `json:"type" yaml:"type"`
	Start    time.Duration      `json:"start" yaml:"start"`
	Duration time.Duration      `json:"duration" yaml:"duration"`
	Targets  []string           `json:"targets,omitempty" yaml:"targets,omitempty"`
	Params   map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`
	Cause    string             `json:"cause,omitempty" yaml:"cause,omitempty"`
}

// Active reports whether the event applies at simulated time now.
func (e Event) Active(now time.Duration) bool {
	return now >= e.Start && now-e.Start < e.Duration
}

// End is the first simulated instant the event no longer applies.
func (e Event) End() time.Duration { return e.Start + e.Duration }

func (e Event) param(key string) float64 {
	if v, ok := e.Params[key]; ok {
		return v
	}
	return defaultParams[e.Type][key]
}

// Normalize fills defaults and checks the event can be applied.
func (e Event) Normalize() (Event, error) {
	if _, ok := defaultParams[e.Type]; !ok {
		return e, fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
	if (e.Type == NetworkPartition || e.Type == ComponentCrash) && len(e.Targets) == 0 {
		return e, fmt.Errorf("%s: %w", e.Type, ErrMissingTargets)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Duration <= 0 {
		e.Duration = defaultDuration
	}
	if e.Start < 0 {
		e.Start = 0
	}
	params := make(map[string]float64, len(defaultParams[e.Type])+len(e.Params))
	for k, v := range defaultParams[e.Type] {
		params[k] = v
	}
	for k, v := range e.Params {
		params[k] = v
	}
	e.Params = params
	e.Targets = slices.Clone(e.Targets)
	return e, nil
}

// Injector holds the chaos events of one run.
type Injector struct {
	mu     sync.RWMutex
	events []Event
}

// NewInjector returns an empty injector.
func NewInjector() *Injector {
	return &Injector{}
}

// Add normalizes and stores e, returning the stored copy.
func (i *Injector) Add(e Event) (Event, error) {
	e, err := e.Normalize()
	if err != nil {
		return Event{}, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, existing := range i.events {
		if existing.ID == e.ID {
			return Event{}, fmt.Errorf("chaos event %q already exists", e.ID)
		}
	}
	i.events = append(i.events, e)
	return e, nil
}

// Remove deletes the event with the given id.
func (i *Injector) Remove(id string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	for idx, e := range i.events {
		if e.ID == id {
			i.events = slices.Delete(i.events, idx, idx+1)
			return true
		}
	}
	return false
}

// Clear drops every event.
func (i *Injector) Clear() {
	i.mu.Lock()
	i.events = nil
	i.mu.Unlock()
}

// Events returns a copy of all events in insertion order.
func (i *Injector) Events() []Event {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return slices.Clone(i.events)
}

// Active returns the events that apply at now.
func (i *Injector) Active(now time.Duration) []Event {
	i.mu.RLock()
	defer i.mu.RUnlock()
	var out []Event
	for _, e := range i.events {
		if e.Active(now) {
			out = append(out, e)
		}
	}
	return out
}

// Multipliers folds the events active at now. The result depends only on the
// stored events and now.
func (i *Injector) Multipliers(now time.Duration) Multipliers {
	return Fold(i.Active(now))
}
