package sim

import (
	"errors"
	"testing"

	"infrasim/internal/telemetry"
)

// componentsOnly implements nothing beyond ComponentWriter.
type componentsOnly struct{ rows []telemetry.ComponentRow }

func (c *componentsOnly) Write(r telemetry.ComponentRow) error {
	c.rows = append(c.rows, r)
	return nil
}

type failingWriter struct{ componentsOnly }

func (f *failingWriter) WriteState(telemetry.SimulationStateRow) error {
	return errors.New("disk full")
}

type statusWriter struct {
	componentsOnly
	listening bool
}

func (s *statusWriter) SetAdminStatus(l bool) { s.listening = l }

func TestMultiWriterRoutesByInterface(t *testing.T) {
	plain := &componentsOnly{}
	rec := &recordingWriter{}
	mw := NewMultiWriter(plain, nil, rec)

	rows := []telemetry.ComponentRow{{ComponentID: "a"}, {ComponentID: "b"}}
	if err := mw.WriteBatch(rows); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if err := mw.WriteFailures([]telemetry.FailureRow{{Kind: "overload"}}); err != nil {
		t.Fatalf("WriteFailures: %v", err)
	}
	if err := mw.WriteScore(telemetry.ScoreRow{Overall: 80}); err != nil {
		t.Fatalf("WriteScore: %v", err)
	}
	if len(plain.rows) != 2 || len(rec.components) != 2 {
		t.Fatalf("component rows not fanned out: plain=%d rec=%d", len(plain.rows), len(rec.components))
	}
	if len(rec.failures) != 1 || len(rec.scores) != 1 {
		t.Fatalf("optional rows not forwarded: %+v", rec)
	}
}

func TestMultiWriterJoinsErrors(t *testing.T) {
	mw := NewMultiWriter(&failingWriter{}, &recordingWriter{})
	err := mw.WriteState(telemetry.SimulationStateRow{})
	if err == nil || err.Error() != "disk full" {
		t.Fatalf("expected joined error, got %v", err)
	}
}

func TestMultiWriterSetAdminStatus(t *testing.T) {
	s := &statusWriter{}
	mw := NewMultiWriter(s)
	mw.SetAdminStatus(true)
	if !s.listening {
		t.Fatalf("admin status not forwarded")
	}
}
