package topology

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Blueprint is the persisted form of a design as saved by the authoring tool.
// YAML decoding also accepts JSON documents.
type Blueprint struct {
	Name        string                `json:"name,omitempty" yaml:"name,omitempty"`
	Components  []BlueprintNode       `json:"components" yaml:"components"`
	Connections []BlueprintConnection `json:"connections" yaml:"connections"`
}

// BlueprintNode is one persisted component. Config keeps the raw keys so the
// document can be echoed back unchanged.
type BlueprintNode struct {
	ID       string         `json:"id" yaml:"id"`
	Type     string         `json:"type" yaml:"type"`
	Label    string         `json:"label,omitempty" yaml:"label,omitempty"`
	Position Point          `json:"position" yaml:"position"`
	Size     Size           `json:"size" yaml:"size"`
	Config   map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// BlueprintConnection is one persisted connection.
type BlueprintConnection struct {
	ID        string  `json:"id,omitempty" yaml:"id,omitempty"`
	Source    string  `json:"source" yaml:"source"`
	Target    string  `json:"target" yaml:"target"`
	Direction string  `json:"direction,omitempty" yaml:"direction,omitempty"`
	Type      string  `json:"type,omitempty" yaml:"type,omitempty"`
	Protocol  string  `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	Weight    float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
	Label     string  `json:"label,omitempty" yaml:"label,omitempty"`
}

// ParseBlueprint decodes a YAML or JSON blueprint document.
func ParseBlueprint(data []byte) (*Blueprint, error) {
	var bp Blueprint
	if err := yaml.Unmarshal(data, &bp); err != nil {
		return nil, fmt.Errorf("parse blueprint: %w", err)
	}
	return &bp, nil
}

// LoadBlueprint reads a blueprint from disk.
func LoadBlueprint(path string) (*Blueprint, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read blueprint: %w", err)
	}
	return ParseBlueprint(b)
}

// Topology builds the component graph. Unknown component types fall back to
// FallbackType and are reported in warnings; structural errors such as
// duplicate ids or dangling connections are returned as errors.
func (bp *Blueprint) Topology() (*Topology, []string, error) {
	t := New()
	var warnings []string
	for _, bn := range bp.Components {
		ct := ComponentType(bn.Type)
		if !Known(ct) {
			warnings = append(warnings, fmt.Sprintf("component %s: unknown type %q, using %s", bn.ID, bn.Type, FallbackType))
			ct = FallbackType
		}
		cfg, err := decodeConfig(ct, bn.Config)
		if err != nil {
			return nil, warnings, fmt.Errorf("component %s: %w", bn.ID, err)
		}
		n := Node{ID: bn.ID, Type: ct, Label: bn.Label, Position: bn.Position, Size: bn.Size, Config: cfg}
		if err := t.AddNode(n); err != nil {
			return nil, warnings, err
		}
	}
	for _, bc := range bp.Connections {
		e := Edge{
			ID:        bc.ID,
			Source:    bc.Source,
			Target:    bc.Target,
			Direction: Direction(bc.Direction),
			Kind:      EdgeKind(bc.Type),
			Protocol:  Protocol(bc.Protocol),
			Weight:    bc.Weight,
			Label:     bc.Label,
		}
		switch e.Kind {
		case "", EdgeRequest, EdgeResponse, EdgeReplication, EdgeAsync:
		default:
			warnings = append(warnings, fmt.Sprintf("connection %s->%s: unknown type %q, using %s", bc.Source, bc.Target, bc.Type, EdgeRequest))
			e.Kind = EdgeRequest
		}
		switch e.Protocol {
		case "", ProtocolHTTP, ProtocolGRPC, ProtocolWebSocket, ProtocolTCP, ProtocolUDP, ProtocolCustom:
		default:
			e.Protocol = ProtocolCustom
		}
		if err := t.Connect(e); err != nil {
			return nil, warnings, err
		}
	}
	return t, warnings, nil
}

// decodeConfig overlays the persisted keys on the defaults for ct.
func decodeConfig(ct ComponentType, raw map[string]any) (Config, error) {
	cfg := DefaultConfig(ct)
	if len(raw) == 0 {
		return cfg, nil
	}
	b, err := yaml.Marshal(raw)
	if err != nil {
		return cfg, fmt.Errorf("encode config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// FromTopology produces a blueprint describing t.
func FromTopology(name string, t *Topology) (*Blueprint, error) {
	bp := &Blueprint{Name: name}
	for _, n := range t.Nodes() {
		raw, err := configMap(n.Config)
		if err != nil {
			return nil, err
		}
		bp.Components = append(bp.Components, BlueprintNode{
			ID:       n.ID,
			Type:     string(n.Type),
			Label:    n.Label,
			Position: n.Position,
			Size:     n.Size,
			Config:   raw,
		})
	}
	for _, e := range t.Edges() {
		bp.Connections = append(bp.Connections, BlueprintConnection{
			ID:        e.ID,
			Source:    e.Source,
			Target:    e.Target,
			Direction: string(e.Direction),
			Type:      string(e.Kind),
			Protocol:  string(e.Protocol),
			Weight:    e.Weight,
			Label:     e.Label,
		})
	}
	return bp, nil
}

func configMap(c Config) (map[string]any, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return m, nil
}

// JSON encodes the blueprint as indented JSON.
func (bp *Blueprint) JSON() ([]byte, error) {
	return json.MarshalIndent(bp, "", "  ")
}
