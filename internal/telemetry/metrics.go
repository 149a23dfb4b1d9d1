package telemetry

// AutoscalePhase is the state of a node's autoscaler.
type AutoscalePhase string

const (
	PhaseStable       AutoscalePhase = "stable"
	PhaseScalingUp    AutoscalePhase = "scaling_up"
	PhaseColdStarting AutoscalePhase = "cold_starting"
	PhaseScalingDown  AutoscalePhase = "scaling_down"
)

// AutoscaleState tracks instance counts through scale transitions.
type AutoscaleState struct {
	Phase        AutoscalePhase `json:"phase"`
	Scaling      bool           `json:"scaling"`
	Target       int            `json:"target_instances"`
	Ready        int            `json:"ready_instances"`
	ColdStarting int            `json:"cold_starting_instances"`
	// WarmupLeft counts the ticks until cold-starting instances become ready.
	WarmupLeft int `json:"warmup_left"`
	HighTicks  int `json:"high_ticks"`
	LowTicks   int `json:"low_ticks"`
	// LastChange is the tick of the most recent phase transition.
	LastChange int64 `json:"last_change"`
}

// ComponentMetrics is the per-tick state of one simulated node.
type ComponentMetrics struct {
	Capacity    float64 `json:"capacity"`
	Offered     float64 `json:"offered_rps"`
	RPS         float64 `json:"rps"`
	Dropped     float64 `json:"dropped_rps"`
	Throttled   float64 `json:"throttled_rps"`
	RetryLoad   float64 `json:"retry_rps"`
	Forwarded   float64 `json:"forwarded_rps"`
	Utilization float64 `json:"utilization"`

	LatencyMs    float64 `json:"latency_ms"`
	P95LatencyMs float64 `json:"p95_latency_ms"`
	JitterMs     float64 `json:"jitter_ms"`
	ErrorRate    float64 `json:"error_rate"`
	CPU          float64 `json:"cpu"`
	Memory       float64 `json:"memory"`

	CacheHitRate     float64 `json:"cache_hit_rate"`
	CacheHitDrop     float64 `json:"cache_hit_drop"`
	EvictionRate     float64 `json:"eviction_rate"`
	QueueDepth       float64 `json:"queue_depth"`
	QueueGrowth      float64 `json:"queue_growth"`
	ConsumerLagSec   float64 `json:"consumer_lag_seconds"`
	ReplicationLagMs float64 `json:"replication_lag_ms"`

	PoolUtilization float64 `json:"pool_utilization"`
	PoolActive      int     `json:"pool_active"`
	PoolMax         int     `json:"pool_max"`

	IsThrottled    bool    `json:"throttled"`
	CircuitOpen    bool    `json:"circuit_open"`
	IsSlow         bool    `json:"slow"`
	SlowMultiplier float64 `json:"slow_multiplier"`
	Disconnected   bool    `json:"disconnected"`
	IsCrashed      bool    `json:"crashed"`
	CrashedUntil   int64   `json:"crashed_until,omitempty"`
	CrashCause     string  `json:"crash_cause,omitempty"`

	Autoscale AutoscaleState `json:"autoscale"`

	OverloadTicks   int     `json:"overload_ticks"`
	HighLoadSeconds float64 `json:"high_load_seconds"`
	// LoadGrowth is offered load relative to the previous tick, 1 when flat.
	LoadGrowth float64 `json:"load_growth"`
}

// DefaultMetrics returns the reset state for a node with the given instance count.
func DefaultMetrics(instances int) ComponentMetrics {
	if instances < 1 {
		instances = 1
	}
	return ComponentMetrics{
		SlowMultiplier: 1,
		LoadGrowth:     1,
		Autoscale: AutoscaleState{
			Phase:  PhaseStable,
			Target: instances,
			Ready:  instances,
		},
	}
}

// Overloaded reports whether offered load exceeds capacity.
func (m ComponentMetrics) Overloaded() bool { return m.Utilization > 1 }

// GlobalMetrics is the system-wide reduction of one tick.
type GlobalMetrics struct {
	Tick          int64   `json:"tick"`
	TotalRPS      float64 `json:"total_rps"`
	OfferedRPS    float64 `json:"offered_rps"`
	MeanLatencyMs float64 `json:"mean_latency_ms"`
	P50LatencyMs  float64 `json:"p50_latency_ms"`
	P95LatencyMs  float64 `json:"p95_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms"`
	EvictionRate  float64 `json:"eviction_rate"`
	ErrorRate     float64 `json:"error_rate"`
	// Availability is the percentage of successful requests since the run started.
	Availability float64 `json:"availability"`
	CostPerHour  float64 `json:"cost_per_hour"`

	TotalRequests      float64 `json:"total_requests"`
	SuccessfulRequests float64 `json:"successful_requests"`
	FailedRequests     float64 `json:"failed_requests"`

	CrashedNodes int `json:"crashed_nodes"`
}

// DefaultGlobal is the reset state of the global metrics.
func DefaultGlobal() GlobalMetrics {
	return GlobalMetrics{Availability: 100}
}
