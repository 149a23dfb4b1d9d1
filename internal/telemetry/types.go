// Row types with greptime tags
package telemetry

import (
	"os"
	"time"
)

func tableName(env, def string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

// ComponentTableName holds the table used for per-component rows. It defaults
// to "component_metrics" and can be overridden via GREPTIMEDB_TABLE.
var ComponentTableName = tableName("GREPTIMEDB_TABLE", "component_metrics")

// GlobalTableName can be overridden via GREPTIMEDB_GLOBAL_TABLE.
var GlobalTableName = tableName("GREPTIMEDB_GLOBAL_TABLE", "global_metrics")

// FailureTableName can be overridden via GREPTIMEDB_FAILURE_TABLE.
var FailureTableName = tableName("GREPTIMEDB_FAILURE_TABLE", "failure_events")

// StateTableName can be overridden via GREPTIMEDB_STATE_TABLE.
var StateTableName = tableName("GREPTIMEDB_STATE_TABLE", "simulation_state")

// ScoreTableName can be overridden via GREPTIMEDB_SCORE_TABLE.
var ScoreTableName = tableName("GREPTIMEDB_SCORE_TABLE", "run_scores")

// ChaosTableName can be overridden via GREPTIMEDB_CHAOS_TABLE.
var ChaosTableName = tableName("GREPTIMEDB_CHAOS_TABLE", "chaos_events")

// ComponentRow represents one component sample.
type ComponentRow struct {
	RunID           string    `json:"run_id"`         // TAG
	ComponentID     string    `json:"component_id"`   // TAG
	ComponentType   string    `json:"component_type"` // TAG
	Tick            int64     `json:"tick"`
	OfferedRPS      float64   `json:"offered_rps"`
	RPS             float64   `json:"rps"`
	DroppedRPS      float64   `json:"dropped_rps"`
	Utilization     float64   `json:"utilization"`
	LatencyMs       float64   `json:"latency_ms"`
	P95LatencyMs    float64   `json:"p95_latency_ms"`
	ErrorRate       float64   `json:"error_rate"`
	CPU             float64   `json:"cpu"`
	Memory          float64   `json:"memory"`
	CacheHitRate    float64   `json:"cache_hit_rate"`
	QueueDepth      float64   `json:"queue_depth"`
	PoolUtilization float64   `json:"pool_utilization"`
	ReadyInstances  int       `json:"ready_instances"`
	TargetInstances int       `json:"target_instances"`
	AutoscalePhase  string    `json:"autoscale_phase"`
	CircuitOpen     bool      `json:"circuit_open"`
	Crashed         bool      `json:"crashed"`
	Slow            bool      `json:"slow"`
	Timestamp       time.Time `json:"ts"` // TIME INDEX
}

func (ComponentRow) TableName() string { return ComponentTableName }

// GlobalRow represents the system-wide metrics of one tick.
type GlobalRow struct {
	RunID         string    `json:"run_id"` // TAG
	Tick          int64     `json:"tick"`
	TotalRPS      float64   `json:"total_rps"`
	MeanLatencyMs float64   `json:"mean_latency_ms"`
	P50LatencyMs  float64   `json:"p50_latency_ms"`
	P95LatencyMs  float64   `json:"p95_latency_ms"`
	P99LatencyMs  float64   `json:"p99_latency_ms"`
	ErrorRate     float64   `json:"error_rate"`
	Availability  float64   `json:"availability"`
	CostPerHour   float64   `json:"cost_per_hour"`
	CrashedNodes  int       `json:"crashed_nodes"`
	Timestamp     time.Time `json:"ts"`
}

func (GlobalRow) TableName() string { return GlobalTableName }

// FailureRow represents one entry of the failure log.
type FailureRow struct {
	RunID       string    `json:"run_id"`       // TAG
	ComponentID string    `json:"component_id"` // TAG
	Kind        string    `json:"kind"`         // TAG
	FailureID   string    `json:"failure_id"`
	Category    string    `json:"category"`
	Tick        int64     `json:"tick"`
	Severity    float64   `json:"severity"`
	Message     string    `json:"message"`
	Affected    []string  `json:"affected,omitempty"`
	Fix         string    `json:"fix,omitempty"`
	Timestamp   time.Time `json:"ts"`
}

func (FailureRow) TableName() string { return FailureTableName }
