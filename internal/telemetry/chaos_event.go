package telemetry

import "time"

const (
	ChaosEventAdded   = "added"
	ChaosEventRemoved = "removed"
	ChaosEventExpired = "expired"
)

// ChaosEventRow records a change in the set of chaos events.
type ChaosEventRow struct {
	RunID     string    `json:"run_id"`
	Action    string    `json:"action"`
	ChaosID   string    `json:"chaos_id"`
	ChaosType string    `json:"chaos_type"`
	Targets   []string  `json:"targets,omitempty"`
	Cause     string    `json:"cause,omitempty"`
	Tick      int64     `json:"tick"`
	Timestamp time.Time `json:"ts"`
}

func (ChaosEventRow) TableName() string { return ChaosTableName }
