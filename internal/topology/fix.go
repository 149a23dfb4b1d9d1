package topology

import (
	"errors"
	"fmt"
)

// ErrUnknownFix is returned when a fix type is not part of the closed set.
var ErrUnknownFix = errors.New("unknown fix")

// FixType is a one-click configuration change suggested by a failure event.
type FixType string

const (
	FixEnableAutoscaling      FixType = "enable_autoscaling"
	FixAddCircuitBreaker      FixType = "add_circuit_breaker"
	FixIncreaseReplicas       FixType = "increase_replicas"
	FixEnableReplication      FixType = "enable_replication"
	FixEnableRateLimiting     FixType = "enable_rate_limiting"
	FixIncreaseConnectionPool FixType = "increase_connection_pool"
	FixAddDLQ                 FixType = "add_dlq"
)

// ApplyFix mutates the config of component id according to fix.
func (t *Topology) ApplyFix(fix FixType, id string) error {
	n := t.Node(id)
	if n == nil {
		return fmt.Errorf("apply %s to %q: %w", fix, id, ErrUnknownComponent)
	}
	c := &n.Config
	switch fix {
	case FixEnableAutoscaling:
		c.AutoScale = true
		if c.MinInstances < 1 {
			c.MinInstances = max(1, c.Instances)
		}
		if c.MaxInstances < max(c.MinInstances, c.Instances)*2 {
			c.MaxInstances = max(c.MinInstances, c.Instances, 1) * 4
		}
	case FixAddCircuitBreaker:
		c.CircuitBreaker = true
	case FixIncreaseReplicas:
		// Autoscaled nodes size from their bounds, so both move up.
		c.Instances = max(c.Instances, 1) * 2
		if c.AutoScale {
			c.MinInstances = max(c.MinInstances, c.Instances)
			c.MaxInstances = max(c.MaxInstances*2, c.MinInstances)
		}
	case FixEnableReplication:
		c.Replication = true
		if c.ReplicationFactor < 3 {
			c.ReplicationFactor = 3
		}
		if c.ReplicationStrategy == "" {
			c.ReplicationStrategy = ReplicationAsync
		}
	case FixEnableRateLimiting:
		c.RateLimiting = true
	case FixIncreaseConnectionPool:
		c.MaxConnections = max(c.MaxConnections, 50) * 2
	case FixAddDLQ:
		c.DLQ = true
	default:
		return fmt.Errorf("apply %q to %q: %w", fix, id, ErrUnknownFix)
	}
	return nil
}
