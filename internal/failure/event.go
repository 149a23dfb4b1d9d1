package failure

import (
	"fmt"
	"time"

	"infrasim/internal/topology"
)

// Event is one detected failure.
type Event struct {
	ID          string        `json:"id"`
	Tick        int64         `json:"tick"`
	Time        time.Duration `json:"time"`
	ComponentID string        `json:"component_id"`
	Kind        Kind          `json:"kind"`
	Category    Category      `json:"category"`
	Message     string        `json:"message"`
	// Recommendation is the human readable remedy shown with the event.
	Recommendation string   `json:"recommendation"`
	Severity       float64  `json:"severity"`
	Affected       []string `json:"affected_components"`
	// ExpectedRecovery is zero when the failure persists until fixed.
	ExpectedRecovery time.Duration    `json:"expected_recovery,omitempty"`
	UserVisible      bool             `json:"user_visible"`
	Fix              topology.FixType `json:"fix,omitempty"`
}

// Key identifies an ongoing condition across ticks.
func (e Event) Key() string { return string(e.Kind) + "/" + e.ComponentID }

func newEvent(kind Kind, component string, format string, args ...any) Event {
	info := kinds[kind]
	return Event{
		ComponentID:      component,
		Kind:             kind,
		Category:         info.category,
		Message:          fmt.Sprintf(format, args...),
		Recommendation:   info.recommendation,
		Severity:         info.severity,
		Affected:         []string{component},
		ExpectedRecovery: info.recovery,
		UserVisible:      info.userVisible,
		Fix:              info.fix,
	}
}

func (e Event) withSeverity(s float64) Event {
	e.Severity = min(1, max(0, s))
	return e
}

func (e Event) withFix(f topology.FixType) Event {
	e.Fix = f
	return e
}

func (e Event) withAffected(ids ...string) Event {
	e.Affected = ids
	return e
}

// String renders e for logs.
func (e Event) String() string {
	return fmt.Sprintf("[%s] %s: %s", e.Kind, e.ComponentID, e.Message)
}
