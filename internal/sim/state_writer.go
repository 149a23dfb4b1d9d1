package sim

import "infrasim/internal/telemetry"

// StateWriter handles simulation state rows.
type StateWriter interface {
	WriteState(telemetry.SimulationStateRow) error
}

// GlobalWriter handles the system-wide row of each tick.
type GlobalWriter interface {
	WriteGlobal(telemetry.GlobalRow) error
}

// ScoreWriter receives the final score of a run.
type ScoreWriter interface {
	WriteScore(telemetry.ScoreRow) error
}

// AdminStatusWriter is implemented by writers that show whether the admin
// HTTP surface is reachable.
type AdminStatusWriter interface {
	SetAdminStatus(listening bool)
}
