package failure

import (
	"time"

	"infrasim/internal/topology"
)

// Category groups failure kinds.
type Category string

const (
	CategoryCapacity       Category = "capacity"
	CategoryNetwork        Category = "network"
	CategoryCascading      Category = "cascading"
	CategoryAutoscaling    Category = "autoscaling"
	CategoryConsistency    Category = "consistency"
	CategoryOperational    Category = "operational"
	CategoryDifferentiated Category = "differentiated"
)

// Kind is one member of the closed failure taxonomy.
type Kind string

const (
	Overload             Kind = "overload"
	TrafficOverflow      Kind = "traffic_overflow"
	SinglePointOfFailure Kind = "single_point_of_failure"
	LatencyBreach        Kind = "latency_breach"
	DataLossRisk         Kind = "data_loss_risk"
	CostOverrun          Kind = "cost_overrun"
	QueueOverflow        Kind = "queue_overflow"

	NetworkPartition     Kind = "network_partition"
	SlowNode             Kind = "slow_node"
	ConnectionExhaustion Kind = "connection_exhaustion"
	DNSFailure           Kind = "dns_failure"

	CascadingFailure   Kind = "cascading_failure"
	CircuitBreakerOpen Kind = "circuit_breaker_open"
	RetryStorm         Kind = "retry_storm"
	ThunderingHerd     Kind = "thundering_herd"

	ScaleUpDelay Kind = "scale_up_delay"
	ColdStart    Kind = "cold_start"
	Rebalancing  Kind = "rebalancing"

	StaleRead             Kind = "stale_read"
	LostUpdate            Kind = "lost_update"
	ReadAfterWriteFailure Kind = "read_after_write_failure"
	DuplicateDelivery     Kind = "duplicate_delivery"
	ReplicationLag        Kind = "replication_lag"

	BadDeployment   Kind = "bad_deployment"
	SchemaMigration Kind = "schema_migration"
	ConfigDrift     Kind = "config_drift"
	CacheStampede   Kind = "cache_stampede"
	ComponentCrash  Kind = "component_crash"

	DiskIOSaturation Kind = "disk_io_saturation"
	UpstreamTimeout  Kind = "upstream_timeout"
	ConsumerLag      Kind = "consumer_lag"
	ThreadStarvation Kind = "thread_starvation"
)

type kindInfo struct {
	category       Category
	severity       float64
	userVisible    bool
	fix            topology.FixType
	recommendation string
	recovery       time.Duration
}

var kinds = map[Kind]kindInfo{
	Overload:             {CategoryCapacity, 0.7, true, topology.FixEnableAutoscaling, "Add instances or enable autoscaling so capacity follows demand.", 30 * time.Second},
	TrafficOverflow:      {CategoryCapacity, 0.8, true, topology.FixEnableRateLimiting, "Shed excess traffic at the edge with rate limiting before it reaches saturated tiers.", 0},
	SinglePointOfFailure: {CategoryCapacity, 0.6, false, topology.FixIncreaseReplicas, "Run at least two instances so losing one keeps traffic flowing.", 0},
	LatencyBreach:        {CategoryCapacity, 0.5, true, topology.FixIncreaseReplicas, "Reduce utilization below the latency knee or cache hot reads.", 15 * time.Second},
	DataLossRisk:         {CategoryCapacity, 0.6, false, topology.FixEnableReplication, "Replicate the data store so a single disk or host loss does not lose writes.", 0},
	CostOverrun:          {CategoryCapacity, 0.4, false, "", "Right-size over-provisioned components or rely on autoscaling instead of static capacity.", 0},
	QueueOverflow:        {CategoryCapacity, 0.7, true, topology.FixAddDLQ, "Add a dead letter queue and scale consumers so messages are not discarded.", 60 * time.Second},

	NetworkPartition:     {CategoryNetwork, 0.9, true, topology.FixEnableReplication, "Replicate across zones so a partition leaves a reachable copy.", 0},
	SlowNode:             {CategoryNetwork, 0.5, true, topology.FixAddCircuitBreaker, "Bound calls with timeouts and a circuit breaker so one slow instance does not stall callers.", 20 * time.Second},
	ConnectionExhaustion: {CategoryNetwork, 0.7, true, topology.FixIncreaseConnectionPool, "Raise the connection pool or reduce per-request hold time.", 10 * time.Second},
	DNSFailure:           {CategoryNetwork, 1.0, true, topology.FixIncreaseReplicas, "Use redundant resolvers and cache DNS answers with sensible TTLs.", 0},

	CascadingFailure:   {CategoryCascading, 0.9, true, topology.FixAddCircuitBreaker, "Isolate dependencies with circuit breakers and bulkheads so failures stop spreading.", 60 * time.Second},
	CircuitBreakerOpen: {CategoryCascading, 0.4, true, "", "The breaker is failing fast to protect the dependency; fix the upstream cause.", 30 * time.Second},
	RetryStorm:         {CategoryCascading, 0.8, true, topology.FixAddCircuitBreaker, "Use exponential backoff with jitter and cap retries with a circuit breaker.", 30 * time.Second},
	ThunderingHerd:     {CategoryCascading, 0.7, true, topology.FixEnableRateLimiting, "Stagger reconnects and admit recovering traffic gradually.", 20 * time.Second},

	ScaleUpDelay: {CategoryAutoscaling, 0.5, true, "", "Scale earlier with a lower threshold or keep warm spare capacity.", 0},
	ColdStart:    {CategoryAutoscaling, 0.3, false, "", "Pre-warm instances or keep a minimum pool ready for bursts.", 0},
	Rebalancing:  {CategoryAutoscaling, 0.3, false, "", "Use consistent hashing so instance changes move only a fraction of keys.", 10 * time.Second},

	StaleRead:             {CategoryConsistency, 0.4, true, "", "Read from the primary or use read quorums that overlap the write quorum.", 0},
	LostUpdate:            {CategoryConsistency, 0.6, true, "", "Use write quorums or conditional writes to avoid concurrent overwrites.", 0},
	ReadAfterWriteFailure: {CategoryConsistency, 0.5, true, "", "Route a client's reads to the replica it wrote to or to the primary.", 0},
	DuplicateDelivery:     {CategoryConsistency, 0.4, false, topology.FixAddDLQ, "Make consumers idempotent and park poison messages in a dead letter queue.", 0},
	ReplicationLag:        {CategoryConsistency, 0.4, false, "", "Reduce write load on the primary or add replication bandwidth.", 30 * time.Second},

	BadDeployment:   {CategoryOperational, 0.9, true, topology.FixIncreaseReplicas, "Roll out gradually behind health checks and keep the previous version ready for rollback.", 0},
	SchemaMigration: {CategoryOperational, 0.6, true, "", "Run migrations online in small batches outside peak traffic.", 0},
	ConfigDrift:     {CategoryOperational, 0.2, false, "", "Keep configuration in version control and apply it through one pipeline.", 0},
	CacheStampede:   {CategoryOperational, 0.7, true, topology.FixEnableRateLimiting, "Coalesce concurrent misses and stagger expirations.", 15 * time.Second},
	ComponentCrash:  {CategoryOperational, 1.0, true, topology.FixIncreaseReplicas, "Run redundant instances behind health checks so a crash is absorbed.", 0},

	DiskIOSaturation: {CategoryDifferentiated, 0.6, true, topology.FixIncreaseReplicas, "Add read replicas or shard to spread I/O.", 0},
	UpstreamTimeout:  {CategoryDifferentiated, 0.6, true, topology.FixAddCircuitBreaker, "Set timeouts below the caller's budget and fail fast on a slow dependency.", 0},
	ConsumerLag:      {CategoryDifferentiated, 0.5, true, topology.FixIncreaseReplicas, "Add consumers or partitions so the drain rate exceeds the arrival rate.", 0},
	ThreadStarvation: {CategoryDifferentiated, 0.6, true, topology.FixEnableAutoscaling, "Scale out or move blocking work off request threads.", 0},
}

// Kinds returns every kind of the taxonomy.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	return out
}

// Category returns the category of k.
func (k Kind) Category() Category { return kinds[k].category }
