package topology

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrIncompatibleEdge wraps every edge compatibility violation.
var ErrIncompatibleEdge = errors.New("incompatible connection")

var validate = validator.New()

type edgeRule struct {
	from   func(ComponentType) bool
	to     func(ComponentType) bool
	reason string
}

func is(types ...ComponentType) func(ComponentType) bool {
	return func(t ComponentType) bool {
		for _, c := range types {
			if c == t {
				return true
			}
		}
		return false
	}
}

func inCategory(c Category) func(ComponentType) bool {
	return func(t ComponentType) bool { return CategoryOf(t) == c }
}

var edgeRules = []edgeRule{
	{
		from:   is(TypeLoadBalancer),
		to:     inCategory(CategoryStorage),
		reason: "a load balancer distributes requests across compute; it cannot route directly to storage",
	},
	{
		from:   is(TypeCDN, TypeDNS, TypeClient, TypeWAF),
		to:     ComponentType.IsDatabase,
		reason: "edge components must not reach a database directly; put an application tier in between",
	},
	{
		from:   inCategory(CategoryMessaging),
		to:     inCategory(CategoryStorage),
		reason: "messages need a consumer; connect the queue to a worker that writes to storage",
	},
	{
		from:   inCategory(CategoryMessaging),
		to:     is(TypeAPIGateway, TypeLoadBalancer),
		reason: "messaging systems deliver to consumers, not back into the request edge",
	},
}

// ValidateEdge checks whether a connection from one component type to another
// is meaningful. Annotation types are compatible with anything.
func ValidateEdge(from, to ComponentType) error {
	if from.IsAnnotation() || to.IsAnnotation() {
		return nil
	}
	for _, r := range edgeRules {
		if r.from(from) && r.to(to) {
			return fmt.Errorf("%w: %s → %s: %s", ErrIncompatibleEdge, from, to, r.reason)
		}
	}
	return nil
}

// ValidationResult is the outcome of the pre-run gate.
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Reasons []string `json:"reasons,omitempty"`
}

// Validate checks that t can be simulated: compatible connections, at least
// one traffic source and one terminal sink, and sane component settings.
func (t *Topology) Validate() ValidationResult {
	var reasons []string
	simulated := 0
	for _, n := range t.nodes {
		if !n.Simulated() {
			continue
		}
		simulated++
		reasons = append(reasons, validateConfig(n)...)
	}
	if simulated == 0 {
		reasons = append(reasons, "the design has no simulated components")
	}
	for _, e := range t.edges {
		src, dst := t.Node(e.Source), t.Node(e.Target)
		if err := ValidateEdge(src.Type, dst.Type); err != nil {
			reasons = append(reasons, fmt.Sprintf("connection %s: %v", e.ID, err))
		}
	}
	if simulated > 0 {
		if len(t.Sources()) == 0 {
			reasons = append(reasons, "no traffic source: add a client or mark a component as traffic origin")
		}
		if len(t.Sinks()) == 0 {
			reasons = append(reasons, "no terminal component: every component forwards traffic in a loop")
		}
	}
	return ValidationResult{IsValid: len(reasons) == 0, Reasons: reasons}
}

func validateConfig(n *Node) []string {
	var reasons []string
	if err := validate.Struct(n.Config); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				reasons = append(reasons, fmt.Sprintf("component %s: %s must satisfy %s %s", n.ID, fe.Field(), fe.Tag(), fe.Param()))
			}
		} else {
			reasons = append(reasons, fmt.Sprintf("component %s: %v", n.ID, err))
		}
	}
	c := n.Config
	if n.Type != TypeClient && c.Capacity <= 0 {
		reasons = append(reasons, fmt.Sprintf("component %s: capacity must be positive", n.ID))
	}
	if n.Type != TypeClient && c.Instances < 1 {
		reasons = append(reasons, fmt.Sprintf("component %s: at least one instance is required", n.ID))
	}
	if c.AutoScale {
		if c.MaxInstances < c.MinInstances {
			reasons = append(reasons, fmt.Sprintf("component %s: maxInstances (%d) is below minInstances (%d)", n.ID, c.MaxInstances, c.MinInstances))
		}
		if c.MaxInstances < 1 {
			reasons = append(reasons, fmt.Sprintf("component %s: autoscaling needs maxInstances >= 1", n.ID))
		}
	}
	if c.Replication && c.ReplicationFactor > 0 {
		if c.ReadQuorum > c.ReplicationFactor || c.WriteQuorum > c.ReplicationFactor {
			reasons = append(reasons, fmt.Sprintf("component %s: quorum exceeds replication factor %d", n.ID, c.ReplicationFactor))
		}
	}
	return reasons
}

// Redundant reports whether a node survives the loss of one instance.
func (n *Node) Redundant() bool {
	c := n.Config
	if c.AutoScale && c.MaxInstances > 1 {
		return true
	}
	if c.Instances > 1 {
		return true
	}
	return n.Type.IsStorage() && c.Replication && c.ReplicationFactor > 1
}

// CriticalNodes returns the ids of non-redundant components whose removal
// disconnects some traffic source from some terminal sink, sorted.
func (t *Topology) CriticalNodes() []string {
	sources := t.Sources()
	sinks := t.Sinks()
	if len(sources) == 0 || len(sinks) == 0 {
		return nil
	}
	baseline := t.reachablePairs(sources, sinks, "")
	var out []string
	for _, n := range t.nodes {
		if !n.Simulated() || n.Type == TypeClient || n.Redundant() {
			continue
		}
		if t.reachablePairs(sources, sinks, n.ID) < baseline {
			out = append(out, n.ID)
		}
	}
	sort.Strings(out)
	return out
}

// reachablePairs counts (source, sink) pairs connected over forward edges
// while skipping the excluded node. Removing a node that is itself the
// source or sink of a pair breaks that pair.
func (t *Topology) reachablePairs(sources, sinks []*Node, excluded string) int {
	count := 0
	for _, src := range sources {
		if src.ID == excluded {
			continue
		}
		visited := map[string]bool{src.ID: true}
		queue := []string{src.ID}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, e := range t.ForwardOut(cur) {
				if e.Target == excluded || visited[e.Target] {
					continue
				}
				visited[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
		for _, sink := range sinks {
			if sink.ID != excluded && visited[sink.ID] {
				count++
			}
		}
	}
	return count
}

// Summary is a short human description used in logs.
func (r ValidationResult) Summary() string {
	if r.IsValid {
		return "valid"
	}
	return strings.Join(r.Reasons, "; ")
}
