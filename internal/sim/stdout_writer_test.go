package sim

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"infrasim/internal/telemetry"
	"infrasim/internal/topology"
)

func TestStdoutWriterJSONFallback(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewStdoutWriter(buf, false, nil)
	row := telemetry.ComponentRow{RunID: "r1", ComponentID: "app", Timestamp: time.Unix(0, 0)}
	if err := w.Write(row); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var doc struct {
		Kind string                 `json:"kind"`
		Row  telemetry.ComponentRow `json:"row"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if doc.Kind != "component" || doc.Row.ComponentID != "app" {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestStdoutWriterColorized(t *testing.T) {
	topo := topology.New()
	if err := topo.AddNode(topology.Node{ID: "app", Type: topology.TypeAppServer, Config: topology.Config{Capacity: 1000, Instances: 2}}); err != nil {
		t.Fatal(err)
	}
	buf := &bytes.Buffer{}
	w := NewStdoutWriter(buf, true, topo)
	row := telemetry.ComponentRow{ComponentID: "app", ComponentType: "app_server", RPS: 900, OfferedRPS: 1200, Utilization: 1.2, Crashed: true, Timestamp: time.Unix(0, 0)}
	if err := w.Write(row); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "Components:") || !strings.Contains(output, "app_server") {
		t.Fatalf("overview not printed: %q", output)
	}
	if !strings.Contains(output, colorRed+"util=1.20") || !strings.Contains(output, "CRASHED") {
		t.Fatalf("expected overload coloring in output: %q", output)
	}

	buf.Reset()
	if err := w.WriteScore(telemetry.ScoreRow{Overall: 42, Grade: "F", Stars: 2}); err != nil {
		t.Fatalf("score write failed: %v", err)
	}
	if strings.Contains(buf.String(), "Components:") {
		t.Fatalf("overview printed more than once")
	}
	if !strings.Contains(buf.String(), "SCORE 42.0 grade=F") {
		t.Fatalf("unexpected score output: %q", buf.String())
	}
}

func TestColorOverviewUsesConfigAtConstruction(t *testing.T) {
	topo := topology.New()
	if err := topo.AddNode(topology.Node{ID: "app", Type: topology.TypeAppServer, Config: topology.Config{Capacity: 1000, Instances: 3}}); err != nil {
		t.Fatal(err)
	}
	buf := &bytes.Buffer{}
	w := NewStdoutWriter(buf, true, topo)
	if err := topo.ApplyFix(topology.FixIncreaseReplicas, "app"); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(telemetry.ComponentRow{ComponentID: "app", ComponentType: "app_server", Timestamp: time.Unix(0, 0)}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var fields []string
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, " app_server ") {
			fields = strings.Fields(line)
			break
		}
	}
	if len(fields) != 5 || fields[3] != "3" {
		t.Fatalf("overview should list the instances at construction: %q", buf.String())
	}
}
