package sim

import "infrasim/internal/telemetry"

// FailureWriter handles failure log entries.
type FailureWriter interface {
	WriteFailure(telemetry.FailureRow) error
}

// Optional: failure writers may support batch mode.
type batchFailureWriter interface {
	WriteFailures([]telemetry.FailureRow) error
}

// ChaosWriter records chaos events being added, removed or expiring.
type ChaosWriter interface {
	WriteChaosEvent(telemetry.ChaosEventRow) error
}
