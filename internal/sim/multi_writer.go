package sim

import (
	"errors"

	"infrasim/internal/telemetry"
)

// MultiWriter fans rows out to several writers. Each row kind goes to the
// writers that implement its interface; batch variants are used when present.
type MultiWriter struct {
	writers []ComponentWriter
}

// NewMultiWriter creates a new MultiWriter. Nil writers are skipped.
func NewMultiWriter(writers ...ComponentWriter) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range writers {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// Write sends a component row to all writers.
func (mw *MultiWriter) Write(row telemetry.ComponentRow) error {
	var errs []error
	for _, w := range mw.writers {
		errs = append(errs, w.Write(row))
	}
	return errors.Join(errs...)
}

// WriteBatch sends multiple component rows to all writers, using batch if supported.
func (mw *MultiWriter) WriteBatch(rows []telemetry.ComponentRow) error {
	var errs []error
	for _, w := range mw.writers {
		if bw, ok := w.(batchWriter); ok {
			errs = append(errs, bw.WriteBatch(rows))
			continue
		}
		for _, r := range rows {
			if err := w.Write(r); err != nil {
				errs = append(errs, err)
				break
			}
		}
	}
	return errors.Join(errs...)
}

// WriteGlobal sends the system-wide row to all global writers.
func (mw *MultiWriter) WriteGlobal(row telemetry.GlobalRow) error {
	var errs []error
	for _, w := range mw.writers {
		if gw, ok := w.(GlobalWriter); ok {
			errs = append(errs, gw.WriteGlobal(row))
		}
	}
	return errors.Join(errs...)
}

// WriteFailure sends a failure row to all failure writers.
func (mw *MultiWriter) WriteFailure(row telemetry.FailureRow) error {
	return mw.WriteFailures([]telemetry.FailureRow{row})
}

// WriteFailures sends multiple failures to all failure writers, using batch if supported.
func (mw *MultiWriter) WriteFailures(rows []telemetry.FailureRow) error {
	var errs []error
	for _, w := range mw.writers {
		if bw, ok := w.(batchFailureWriter); ok {
			errs = append(errs, bw.WriteFailures(rows))
			continue
		}
		fw, ok := w.(FailureWriter)
		if !ok {
			continue
		}
		for _, r := range rows {
			if err := fw.WriteFailure(r); err != nil {
				errs = append(errs, err)
				break
			}
		}
	}
	return errors.Join(errs...)
}

// WriteChaosEvent sends a chaos event change to all chaos writers.
func (mw *MultiWriter) WriteChaosEvent(row telemetry.ChaosEventRow) error {
	var errs []error
	for _, w := range mw.writers {
		if cw, ok := w.(ChaosWriter); ok {
			errs = append(errs, cw.WriteChaosEvent(row))
		}
	}
	return errors.Join(errs...)
}

// WriteState sends a state row to all state writers.
func (mw *MultiWriter) WriteState(row telemetry.SimulationStateRow) error {
	var errs []error
	for _, w := range mw.writers {
		if sw, ok := w.(StateWriter); ok {
			errs = append(errs, sw.WriteState(row))
		}
	}
	return errors.Join(errs...)
}

// WriteScore sends the final score to all score writers.
func (mw *MultiWriter) WriteScore(row telemetry.ScoreRow) error {
	var errs []error
	for _, w := range mw.writers {
		if sw, ok := w.(ScoreWriter); ok {
			errs = append(errs, sw.WriteScore(row))
		}
	}
	return errors.Join(errs...)
}

// SetAdminStatus forwards the admin UI status to writers that display it.
func (mw *MultiWriter) SetAdminStatus(listening bool) {
	for _, w := range mw.writers {
		if aw, ok := w.(AdminStatusWriter); ok {
			aw.SetAdminStatus(listening)
		}
	}
}
