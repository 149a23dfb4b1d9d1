package sim

import (
	"context"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"

	"infrasim/internal/telemetry"
)

type mockGreptimeClient struct {
	table *table.Table
	calls int
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	m.calls++
	if len(tables) > 0 {
		m.table = tables[0]
	}
	return &gpb.GreptimeResponse{}, nil
}

func TestGreptimeWriterFailuresJSON(t *testing.T) {
	ts := time.Unix(0, 0).UTC()
	rows := []telemetry.FailureRow{{
		RunID:       "r1",
		ComponentID: "db",
		Kind:        "cascading_failure",
		FailureID:   "f1",
		Category:    "cascading",
		Tick:        4,
		Severity:    0.8,
		Affected:    []string{"app", "db"},
		Timestamp:   ts,
	}}

	m := &mockGreptimeClient{}
	w := newGreptimeDBWriter(m)
	if err := w.WriteFailures(rows); err != nil {
		t.Fatalf("WriteFailures: %v", err)
	}
	if m.table == nil {
		t.Fatalf("expected table to be captured")
	}

	schema := m.table.GetRows().Schema
	if len(schema) < 9 {
		t.Fatalf("unexpected schema length: %d", len(schema))
	}
	if schema[8].Datatype != gpb.ColumnDataType_JSON {
		t.Fatalf("affected column type = %v, want %v", schema[8].Datatype, gpb.ColumnDataType_JSON)
	}
	got := m.table.GetRows().Rows[0].Values[8].GetStringValue()
	want := "[\"app\",\"db\"]"
	if got != want {
		t.Fatalf("affected = %s, want %s", got, want)
	}
}

func TestGreptimeWriterComponents(t *testing.T) {
	rows := []telemetry.ComponentRow{
		{RunID: "r1", ComponentID: "app", ComponentType: "app_server", Tick: 1, RPS: 800, Timestamp: time.Unix(1, 0)},
		{RunID: "r1", ComponentID: "db", ComponentType: "database", Tick: 1, RPS: 400, Timestamp: time.Unix(1, 0)},
	}
	m := &mockGreptimeClient{}
	w := newGreptimeDBWriter(m)

	if err := w.WriteBatch(rows); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if m.calls != 1 {
		t.Fatalf("expected one write for the batch, got %d", m.calls)
	}
	got := m.table.GetRows().Rows
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if id := got[1].Values[1].GetStringValue(); id != "db" {
		t.Fatalf("component_id = %s, want db", id)
	}
	if rps := got[0].Values[5].GetF64Value(); rps != 800 {
		t.Fatalf("rps = %v, want 800", rps)
	}

	if err := w.WriteBatch(nil); err != nil || m.calls != 1 {
		t.Fatalf("empty batch must not write: err=%v calls=%d", err, m.calls)
	}
}

func TestGreptimeWriterScore(t *testing.T) {
	m := &mockGreptimeClient{}
	w := newGreptimeDBWriter(m)
	if err := w.WriteScore(telemetry.ScoreRow{RunID: "r1", Overall: 81.5, Grade: "A", Stars: 4, Passed: true, Timestamp: time.Unix(9, 0)}); err != nil {
		t.Fatalf("WriteScore: %v", err)
	}
	vals := m.table.GetRows().Rows[0].Values
	if g := vals[2].GetStringValue(); g != "A" {
		t.Fatalf("grade = %s, want A", g)
	}
	if !vals[4].GetBoolValue() {
		t.Fatalf("passed not stored")
	}
}
