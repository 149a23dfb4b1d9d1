// Component graph with arena-style adjacency
package topology

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
)

// Errors returned by topology mutations.
var (
	ErrUnknownComponent  = errors.New("unknown component")
	ErrDuplicateID       = errors.New("duplicate id")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrSelfLoop          = errors.New("connection source and target are the same component")
)

// ReplicationStrategy selects how a storage node copies writes to replicas.
type ReplicationStrategy string

const (
	ReplicationSync  ReplicationStrategy = "sync"
	ReplicationAsync ReplicationStrategy = "async"
)

// Config holds the user-tunable settings of a component.
type Config struct {
	Capacity            float64             `json:"capacity" yaml:"capacity" validate:"gte=0"`
	Instances           int                 `json:"instances" yaml:"instances" validate:"gte=0"`
	AutoScale           bool                `json:"autoScale" yaml:"autoScale"`
	MinInstances        int                 `json:"minInstances" yaml:"minInstances" validate:"gte=0"`
	MaxInstances        int                 `json:"maxInstances" yaml:"maxInstances" validate:"gte=0"`
	Replication         bool                `json:"replication" yaml:"replication"`
	ReplicationFactor   int                 `json:"replicationFactor" yaml:"replicationFactor" validate:"gte=0"`
	ReplicationStrategy ReplicationStrategy `json:"replicationStrategy,omitempty" yaml:"replicationStrategy,omitempty" validate:"omitempty,oneof=sync async"`
	Sharding            bool                `json:"sharding" yaml:"sharding"`
	Partitions          int                 `json:"partitions" yaml:"partitions" validate:"gte=0"`
	ConsistentHashing   bool                `json:"consistentHashing" yaml:"consistentHashing"`
	RateLimiting        bool                `json:"rateLimiting" yaml:"rateLimiting"`
	CircuitBreaker      bool                `json:"circuitBreaker" yaml:"circuitBreaker"`
	Retry               bool                `json:"retry" yaml:"retry"`
	DLQ                 bool                `json:"dlq" yaml:"dlq"`
	ReadQuorum          int                 `json:"readQuorum" yaml:"readQuorum" validate:"gte=0"`
	WriteQuorum         int                 `json:"writeQuorum" yaml:"writeQuorum" validate:"gte=0"`
	Regions             []string            `json:"regions,omitempty" yaml:"regions,omitempty"`
	CostPerHour         float64             `json:"costPerHour" yaml:"costPerHour" validate:"gte=0"`
	CacheTTLSeconds     float64             `json:"cacheTtlSeconds" yaml:"cacheTtlSeconds" validate:"gte=0"`
	MaxConnections      int                 `json:"maxConnections" yaml:"maxConnections" validate:"gte=0"`
	QueueCapacity       float64             `json:"queueCapacity" yaml:"queueCapacity" validate:"gte=0"`
	ConsumerRate        float64             `json:"consumerRate" yaml:"consumerRate" validate:"gte=0"`
	TrafficRPS          float64             `json:"trafficRps" yaml:"trafficRps" validate:"gte=0"`
	TrafficOrigin       bool                `json:"trafficOrigin" yaml:"trafficOrigin"`
}

// Point is a canvas coordinate. The simulation only echoes it.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Size is a canvas extent. The simulation only echoes it.
type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Node is one component on the canvas.
type Node struct {
	ID       string        `json:"id"`
	Type     ComponentType `json:"type"`
	Label    string        `json:"label,omitempty"`
	Position Point         `json:"position"`
	Size     Size          `json:"size"`
	Config   Config        `json:"config"`
}

// Simulated reports whether the node takes part in traffic simulation.
func (n *Node) Simulated() bool { return !n.Type.IsAnnotation() }

// Direction is the traversal direction of a connection.
type Direction string

const (
	OneWay Direction = "one_way"
	TwoWay Direction = "two_way"
)

// EdgeKind is the logical role of a connection.
type EdgeKind string

const (
	EdgeRequest     EdgeKind = "request"
	EdgeResponse    EdgeKind = "response"
	EdgeReplication EdgeKind = "replication"
	EdgeAsync       EdgeKind = "async"
)

// Forward reports whether load propagates along connections of this kind.
func (k EdgeKind) Forward() bool { return k == EdgeRequest || k == EdgeAsync || k == "" }

// Protocol is the wire protocol drawn on a connection.
type Protocol string

const (
	ProtocolHTTP      Protocol = "http"
	ProtocolGRPC      Protocol = "grpc"
	ProtocolWebSocket Protocol = "websocket"
	ProtocolTCP       Protocol = "tcp"
	ProtocolUDP       Protocol = "udp"
	ProtocolCustom    Protocol = "custom"
)

// Edge is a connection between two components.
type Edge struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	Direction Direction `json:"direction"`
	Kind      EdgeKind  `json:"kind"`
	Protocol  Protocol  `json:"protocol"`
	// Weight biases the split of forwarded load among siblings of the same kind.
	// Zero means an even split.
	Weight float64 `json:"weight,omitempty"`
	Label  string  `json:"label,omitempty"`
}

// Walk selects which adjacency a neighbor query follows.
type Walk int

const (
	Outbound Walk = iota
	Inbound
	Both
)

// Topology is the component graph. Nodes and edges live in slices and are
// addressed by position; the index maps translate stable string ids.
type Topology struct {
	nodes     []*Node
	edges     []*Edge
	nodeIndex map[string]int
	edgeIndex map[string]int
	out       [][]int
	in        [][]int
}

// New returns an empty topology.
func New() *Topology {
	return &Topology{
		nodeIndex: make(map[string]int),
		edgeIndex: make(map[string]int),
	}
}

// AddNode inserts a node. A node without config gets its type defaults.
func (t *Topology) AddNode(n Node) error {
	if n.ID == "" {
		return fmt.Errorf("add node: empty id")
	}
	if _, ok := t.nodeIndex[n.ID]; ok {
		return fmt.Errorf("add node %q: %w", n.ID, ErrDuplicateID)
	}
	if reflect.ValueOf(n.Config).IsZero() {
		n.Config = DefaultConfig(n.Type)
	}
	cp := n
	t.nodeIndex[n.ID] = len(t.nodes)
	t.nodes = append(t.nodes, &cp)
	t.out = append(t.out, nil)
	t.in = append(t.in, nil)
	return nil
}

// RemoveNode deletes a node and every connection touching it.
func (t *Topology) RemoveNode(id string) error {
	if _, ok := t.nodeIndex[id]; !ok {
		return fmt.Errorf("remove node %q: %w", id, ErrUnknownComponent)
	}
	nodes := t.nodes[:0:0]
	for _, n := range t.nodes {
		if n.ID != id {
			nodes = append(nodes, n)
		}
	}
	edges := t.edges[:0:0]
	for _, e := range t.edges {
		if e.Source != id && e.Target != id {
			edges = append(edges, e)
		}
	}
	t.nodes, t.edges = nodes, edges
	t.reindex()
	return nil
}

// Connect adds a connection. Compatibility is not checked here; see ValidateEdge.
func (t *Topology) Connect(e Edge) error {
	if e.ID == "" {
		e.ID = e.Source + "->" + e.Target
	}
	if _, ok := t.edgeIndex[e.ID]; ok {
		return fmt.Errorf("connect %q: %w", e.ID, ErrDuplicateID)
	}
	if e.Source == e.Target {
		return fmt.Errorf("connect %q: %w", e.ID, ErrSelfLoop)
	}
	src, ok := t.nodeIndex[e.Source]
	if !ok {
		return fmt.Errorf("connect %q source %q: %w", e.ID, e.Source, ErrUnknownComponent)
	}
	dst, ok := t.nodeIndex[e.Target]
	if !ok {
		return fmt.Errorf("connect %q target %q: %w", e.ID, e.Target, ErrUnknownComponent)
	}
	if e.Direction == "" {
		e.Direction = OneWay
	}
	if e.Kind == "" {
		e.Kind = EdgeRequest
	}
	if e.Protocol == "" {
		e.Protocol = ProtocolHTTP
	}
	cp := e
	idx := len(t.edges)
	t.edges = append(t.edges, &cp)
	t.edgeIndex[e.ID] = idx
	t.out[src] = append(t.out[src], idx)
	t.in[dst] = append(t.in[dst], idx)
	return nil
}

// Disconnect removes a connection by id.
func (t *Topology) Disconnect(id string) error {
	if _, ok := t.edgeIndex[id]; !ok {
		return fmt.Errorf("disconnect %q: %w", id, ErrUnknownConnection)
	}
	edges := t.edges[:0:0]
	for _, e := range t.edges {
		if e.ID != id {
			edges = append(edges, e)
		}
	}
	t.edges = edges
	t.reindex()
	return nil
}

// UpdateConfig replaces the config of a node.
func (t *Topology) UpdateConfig(id string, cfg Config) error {
	n := t.Node(id)
	if n == nil {
		return fmt.Errorf("update config %q: %w", id, ErrUnknownComponent)
	}
	n.Config = cfg
	return nil
}

func (t *Topology) reindex() {
	t.nodeIndex = make(map[string]int, len(t.nodes))
	t.edgeIndex = make(map[string]int, len(t.edges))
	t.out = make([][]int, len(t.nodes))
	t.in = make([][]int, len(t.nodes))
	for i, n := range t.nodes {
		t.nodeIndex[n.ID] = i
	}
	for i, e := range t.edges {
		t.edgeIndex[e.ID] = i
		t.out[t.nodeIndex[e.Source]] = append(t.out[t.nodeIndex[e.Source]], i)
		t.in[t.nodeIndex[e.Target]] = append(t.in[t.nodeIndex[e.Target]], i)
	}
}

// Node returns the node with the given id or nil.
func (t *Topology) Node(id string) *Node {
	i, ok := t.nodeIndex[id]
	if !ok {
		return nil
	}
	return t.nodes[i]
}

// Edge returns the connection with the given id or nil.
func (t *Topology) Edge(id string) *Edge {
	i, ok := t.edgeIndex[id]
	if !ok {
		return nil
	}
	return t.edges[i]
}

// Nodes returns the nodes in insertion order. Callers must not mutate them.
func (t *Topology) Nodes() []*Node { return t.nodes }

// Edges returns the connections in insertion order. Callers must not mutate them.
func (t *Topology) Edges() []*Edge { return t.edges }

// Len returns the number of nodes.
func (t *Topology) Len() int { return len(t.nodes) }

// OutEdges returns the connections leaving id.
func (t *Topology) OutEdges(id string) []*Edge {
	i, ok := t.nodeIndex[id]
	if !ok {
		return nil
	}
	out := make([]*Edge, 0, len(t.out[i]))
	for _, ei := range t.out[i] {
		out = append(out, t.edges[ei])
	}
	return out
}

// InEdges returns the connections arriving at id.
func (t *Topology) InEdges(id string) []*Edge {
	i, ok := t.nodeIndex[id]
	if !ok {
		return nil
	}
	in := make([]*Edge, 0, len(t.in[i]))
	for _, ei := range t.in[i] {
		in = append(in, t.edges[ei])
	}
	return in
}

// Neighbors returns the ids adjacent to id in the given direction, without duplicates.
// Two-way connections count in both directions.
func (t *Topology) Neighbors(id string, w Walk) []string {
	i, ok := t.nodeIndex[id]
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	add := func(other string) {
		if _, dup := seen[other]; dup {
			return
		}
		seen[other] = struct{}{}
		out = append(out, other)
	}
	if w == Outbound || w == Both {
		for _, ei := range t.out[i] {
			add(t.edges[ei].Target)
		}
		for _, ei := range t.in[i] {
			if t.edges[ei].Direction == TwoWay {
				add(t.edges[ei].Source)
			}
		}
	}
	if w == Inbound || w == Both {
		for _, ei := range t.in[i] {
			add(t.edges[ei].Source)
		}
		for _, ei := range t.out[i] {
			if t.edges[ei].Direction == TwoWay {
				add(t.edges[ei].Target)
			}
		}
	}
	return out
}

// ForwardOut returns the load-carrying connections leaving id towards simulated nodes.
func (t *Topology) ForwardOut(id string) []*Edge {
	var out []*Edge
	for _, e := range t.OutEdges(id) {
		if e.Kind.Forward() && t.Node(e.Target).Simulated() {
			out = append(out, e)
		}
	}
	return out
}

// ForwardIn returns the load-carrying connections arriving at id from simulated nodes.
func (t *Topology) ForwardIn(id string) []*Edge {
	var in []*Edge
	for _, e := range t.InEdges(id) {
		if e.Kind.Forward() && t.Node(e.Source).Simulated() {
			in = append(in, e)
		}
	}
	return in
}

// Sources returns the simulated nodes where traffic originates: explicit
// origins, clients, and nodes without any inbound connection from a
// simulated node.
func (t *Topology) Sources() []*Node {
	var out []*Node
	for _, n := range t.nodes {
		if !n.Simulated() {
			continue
		}
		if n.Config.TrafficOrigin || n.Type == TypeClient || !t.hasSimulatedInbound(n.ID) {
			out = append(out, n)
		}
	}
	return out
}

func (t *Topology) hasSimulatedInbound(id string) bool {
	for _, e := range t.InEdges(id) {
		if t.Node(e.Source).Simulated() {
			return true
		}
	}
	return false
}

// Sinks returns the simulated nodes without outbound load-carrying connections.
func (t *Topology) Sinks() []*Node {
	var out []*Node
	for _, n := range t.nodes {
		if n.Simulated() && len(t.ForwardOut(n.ID)) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// Clone returns a deep copy of the topology.
func (t *Topology) Clone() *Topology {
	c := New()
	for _, n := range t.nodes {
		cp := *n
		cp.Config.Regions = slices.Clone(n.Config.Regions)
		c.nodeIndex[cp.ID] = len(c.nodes)
		c.nodes = append(c.nodes, &cp)
	}
	for _, e := range t.edges {
		cp := *e
		c.edges = append(c.edges, &cp)
	}
	c.reindex()
	return c
}
