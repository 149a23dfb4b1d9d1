package topology

import (
	"strings"
	"testing"
)

const sampleBlueprint = `
name: checkout
components:
  - id: users
    type: client
    config:
      trafficRps: 2500
  - id: app
    type: app_server
    config:
      capacity: 1000
      instances: 2
  - id: mystery
    type: quantum_router
  - id: note
    type: text
connections:
  - source: users
    target: app
  - source: app
    target: mystery
    type: telepathy
    protocol: carrier_pigeon
`

func TestBlueprintTopology(t *testing.T) {
	bp, err := ParseBlueprint([]byte(sampleBlueprint))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	topo, warnings, err := bp.Topology()
	if err != nil {
		t.Fatalf("topology: %v", err)
	}
	if topo.Len() != 4 {
		t.Fatalf("expected 4 nodes, got %d", topo.Len())
	}

	app := topo.Node("app")
	if app.Config.Capacity != 1000 || app.Config.Instances != 2 {
		t.Errorf("persisted config not applied: %+v", app.Config)
	}
	if app.Config.MaxConnections != DefaultConfig(TypeAppServer).MaxConnections {
		t.Errorf("defaults should fill keys missing from the document")
	}
	if got := topo.Node("users").Config.TrafficRPS; got != 2500 {
		t.Errorf("traffic rps = %v", got)
	}

	mystery := topo.Node("mystery")
	if mystery.Type != FallbackType {
		t.Errorf("unknown type should fall back to %s, got %s", FallbackType, mystery.Type)
	}
	if len(warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %v", warnings)
	}
	if !strings.Contains(warnings[0], "quantum_router") {
		t.Errorf("warning should name the unknown type: %s", warnings[0])
	}

	e := topo.Edge("app->mystery")
	if e == nil {
		t.Fatalf("connection missing")
	}
	if e.Kind != EdgeRequest || e.Protocol != ProtocolCustom {
		t.Errorf("unexpected edge defaults: %+v", e)
	}
}

func TestBlueprintAcceptsJSON(t *testing.T) {
	doc := `{"components":[{"id":"a","type":"worker"},{"id":"b","type":"database"}],"connections":[{"source":"a","target":"b"}]}`
	bp, err := ParseBlueprint([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	topo, warnings, err := bp.Topology()
	if err != nil {
		t.Fatalf("topology: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if len(topo.Edges()) != 1 {
		t.Errorf("expected one edge")
	}
}

func TestBlueprintDanglingConnection(t *testing.T) {
	bp := &Blueprint{
		Components:  []BlueprintNode{{ID: "a", Type: "worker"}},
		Connections: []BlueprintConnection{{Source: "a", Target: "ghost"}},
	}
	if _, _, err := bp.Topology(); err == nil {
		t.Fatalf("expected error for dangling connection")
	}
}

func TestFromTopologyRoundTrip(t *testing.T) {
	topo := webStack(t)
	bp, err := FromTopology("web", topo)
	if err != nil {
		t.Fatal(err)
	}
	data, err := bp.JSON()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseBlueprint(data)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Name != "web" {
		t.Fatalf("name lost in JSON round trip: %q", parsed.Name)
	}
	back, warnings, err := parsed.Topology()
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if back.Len() != topo.Len() || len(back.Edges()) != len(topo.Edges()) {
		t.Fatalf("shape changed: %d/%d nodes, %d/%d edges", back.Len(), topo.Len(), len(back.Edges()), len(topo.Edges()))
	}
	if back.Node("db").Config.CostPerHour != topo.Node("db").Config.CostPerHour {
		t.Fatalf("config lost in round trip")
	}
}
