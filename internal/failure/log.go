package failure

import "github.com/google/uuid"

// Log is the append-only failure history of a run. A condition is recorded
// when it first appears and again only after it has cleared for a tick.
// Log is not safe for concurrent use.
type Log struct {
	events []Event
	active map[string]bool
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{active: map[string]bool{}}
}

// Record appends the onsets among detected and returns them with IDs set.
func (l *Log) Record(detected []Event) []Event {
	current := make(map[string]bool, len(detected))
	var onsets []Event
	for _, e := range detected {
		key := e.Key()
		if current[key] {
			continue
		}
		current[key] = true
		if l.active[key] {
			continue
		}
		e.ID = uuid.NewString()
		onsets = append(onsets, e)
	}
	l.active = current
	l.events = append(l.events, onsets...)
	return onsets
}

// Events returns the recorded history. The returned slice must not be modified;
// later appends never touch its elements.
func (l *Log) Events() []Event {
	return l.events[:len(l.events):len(l.events)]
}

// Len returns the number of recorded events.
func (l *Log) Len() int { return len(l.events) }

// Reset clears history and active conditions.
func (l *Log) Reset() {
	l.events = nil
	l.active = map[string]bool{}
}
