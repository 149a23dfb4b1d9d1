package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"infrasim/internal/metrics"
	"infrasim/internal/sim"
	"infrasim/internal/telemetry"
	"infrasim/internal/topology"
)

func TestBaseWriterPrintOnly(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "localhost:4001")
	w, err := baseWriter(nil, true, false, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("baseWriter returned error: %v", err)
	}
	if _, ok := w.(*sim.JSONStdoutWriter); !ok {
		t.Fatalf("expected *sim.JSONStdoutWriter, got %T", w)
	}
}

func TestBaseWriterGreptimeFallback(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	w, err := baseWriter(nil, false, false, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("baseWriter returned error: %v", err)
	}
	if _, ok := w.(*sim.JSONStdoutWriter); !ok {
		t.Fatalf("expected *sim.JSONStdoutWriter, got %T", w)
	}
}

func TestBaseWriterColorized(t *testing.T) {
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	w, err := baseWriter(topology.New(), true, true, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("baseWriter returned error: %v", err)
	}
	if _, ok := w.(*sim.ColorStdoutWriter); !ok {
		t.Fatalf("expected *sim.ColorStdoutWriter, got %T", w)
	}
}

func TestNewWritersLogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "components.jsonl")
	var out bytes.Buffer
	reg := metrics.NewRegistry()
	mw, tui, cleanup, err := newWriters(topology.New(), writerOptions{PrintOnly: true, LogFile: path, Out: &out}, reg)
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	if tui != nil {
		t.Fatalf("print-only must not start the TUI")
	}

	now := time.Now()
	if err := mw.Write(telemetry.ComponentRow{RunID: "r1", ComponentID: "app", Timestamp: now}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := mw.WriteState(telemetry.SimulationStateRow{RunID: "r1", State: "running", Timestamp: now}); err != nil {
		t.Fatalf("write state failed: %v", err)
	}
	cleanup()

	for _, p := range []string{path, path + ".state"} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if info.Size() == 0 {
			t.Fatalf("expected %s to be non-empty", p)
		}
	}
	if out.Len() == 0 {
		t.Fatalf("expected STDOUT rows")
	}
}

func TestLogFilePaths(t *testing.T) {
	p := logFilePaths("run.jsonl")
	if p.Components != "run.jsonl" || p.Failures != "run.jsonl.failures" || p.Score != "run.jsonl.score" {
		t.Fatalf("unexpected paths %+v", p)
	}
}
