package engine

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Params holds every tunable constant of the heuristic model. Zero values
// are not meaningful; start from DefaultParams.
type Params struct {
	// TickSeconds is the simulated time one tick advances.
	TickSeconds float64 `yaml:"tick_seconds" json:"tick_seconds" validate:"gt=0"`
	// BaseRPS is the load a traffic source without TrafficRPS emits at level 1.
	BaseRPS float64 `yaml:"base_rps" json:"base_rps" validate:"gte=0"`

	LatencyKnee float64 `yaml:"latency_knee" json:"latency_knee" validate:"gte=0,lte=1"`
	LatencyK    float64 `yaml:"latency_k" json:"latency_k" validate:"gte=0"`
	// LatencyUtilizationCap bounds the utilization used in the latency curve.
	LatencyUtilizationCap float64 `yaml:"latency_utilization_cap" json:"latency_utilization_cap" validate:"gte=1"`
	P95Factor             float64 `yaml:"p95_factor" json:"p95_factor" validate:"gte=1"`
	TailFactor            float64 `yaml:"tail_factor" json:"tail_factor" validate:"gte=1"`
	MaxLatencyMs          float64 `yaml:"max_latency_ms" json:"max_latency_ms" validate:"gt=0"`

	ThrottleErrorWeight float64 `yaml:"throttle_error_weight" json:"throttle_error_weight" validate:"gte=0,lte=1"`
	RetryMasking        float64 `yaml:"retry_masking" json:"retry_masking" validate:"gte=0,lte=1"`
	RetryAmplification  float64 `yaml:"retry_amplification" json:"retry_amplification" validate:"gte=0"`
	CircuitBreakerTicks int     `yaml:"circuit_breaker_ticks" json:"circuit_breaker_ticks" validate:"gte=1"`

	CrashAfterOverloadTicks int     `yaml:"crash_after_overload_ticks" json:"crash_after_overload_ticks" validate:"gte=1"`
	CrashUtilization        float64 `yaml:"crash_utilization" json:"crash_utilization" validate:"gt=1"`
	CrashRecoveryTicks      int     `yaml:"crash_recovery_ticks" json:"crash_recovery_ticks" validate:"gte=1"`

	ReplicationLatencyMs float64 `yaml:"replication_latency_ms" json:"replication_latency_ms" validate:"gte=0"`
	ReplicationLagMs     float64 `yaml:"replication_lag_ms" json:"replication_lag_ms" validate:"gte=0"`

	ScaleUpUtilization   float64 `yaml:"scale_up_utilization" json:"scale_up_utilization" validate:"gt=0"`
	ScaleUpTicks         int     `yaml:"scale_up_ticks" json:"scale_up_ticks" validate:"gte=1"`
	ColdStartTicks       int     `yaml:"cold_start_ticks" json:"cold_start_ticks" validate:"gte=0"`
	ScaleDownUtilization float64 `yaml:"scale_down_utilization" json:"scale_down_utilization" validate:"gte=0,ltfield=ScaleUpUtilization"`
	ScaleDownTicks       int     `yaml:"scale_down_ticks" json:"scale_down_ticks" validate:"gte=1"`

	HighLoadUtilization float64 `yaml:"high_load_utilization" json:"high_load_utilization" validate:"gt=0"`
	PoolExhaustion      float64 `yaml:"pool_exhaustion" json:"pool_exhaustion" validate:"gt=0,lte=1"`

	SlowNodeProbability float64 `yaml:"slow_node_probability" json:"slow_node_probability" validate:"gte=0,lte=1"`
	SlowNodeFactor      float64 `yaml:"slow_node_factor" json:"slow_node_factor" validate:"gte=1"`
	Seed                int64   `yaml:"seed" json:"seed"`

	// Failure detector thresholds.
	CascadeShare         float64 `yaml:"cascade_share" json:"cascade_share" validate:"gt=0,lte=1"`
	CascadeUtilization   float64 `yaml:"cascade_utilization" json:"cascade_utilization" validate:"gt=0"`
	LatencyBreachMs      float64 `yaml:"latency_breach_ms" json:"latency_breach_ms" validate:"gt=0"`
	ConsumerLagSeconds   float64 `yaml:"consumer_lag_seconds" json:"consumer_lag_seconds" validate:"gt=0"`
	CacheStampedeDrop    float64 `yaml:"cache_stampede_drop" json:"cache_stampede_drop" validate:"gt=0,lte=1"`
	LoadSurgeRatio       float64 `yaml:"load_surge_ratio" json:"load_surge_ratio" validate:"gt=1"`
	StarvationSeconds    float64 `yaml:"starvation_seconds" json:"starvation_seconds" validate:"gt=0"`
	StaleReadLagMs       float64 `yaml:"stale_read_lag_ms" json:"stale_read_lag_ms" validate:"gt=0"`
	MaxCrashedFraction   float64 `yaml:"max_crashed_fraction" json:"max_crashed_fraction" validate:"gt=0,lte=1"`
	DiskIOUtilization    float64 `yaml:"disk_io_utilization" json:"disk_io_utilization" validate:"gt=0"`
	UpstreamTimeoutRatio float64 `yaml:"upstream_timeout_ratio" json:"upstream_timeout_ratio" validate:"gt=1"`
}

// DefaultParams returns the calibrated defaults.
func DefaultParams() Params {
	return Params{
		TickSeconds:             1,
		BaseRPS:                 1000,
		LatencyKnee:             0.7,
		LatencyK:                4,
		LatencyUtilizationCap:   5,
		P95Factor:               1.8,
		TailFactor:              1.3,
		MaxLatencyMs:            30000,
		ThrottleErrorWeight:     0.25,
		RetryMasking:            0.8,
		RetryAmplification:      0.5,
		CircuitBreakerTicks:     3,
		CrashAfterOverloadTicks: 15,
		CrashUtilization:        1.5,
		CrashRecoveryTicks:      10,
		ReplicationLatencyMs:    5,
		ReplicationLagMs:        50,
		ScaleUpUtilization:      0.8,
		ScaleUpTicks:            3,
		ColdStartTicks:          5,
		ScaleDownUtilization:    0.3,
		ScaleDownTicks:          10,
		HighLoadUtilization:     0.8,
		PoolExhaustion:          0.95,
		SlowNodeProbability:     0,
		SlowNodeFactor:          3,
		Seed:                    1,
		CascadeShare:            0.3,
		CascadeUtilization:      0.8,
		LatencyBreachMs:         500,
		ConsumerLagSeconds:      30,
		CacheStampedeDrop:       0.3,
		LoadSurgeRatio:          2,
		StarvationSeconds:       60,
		StaleReadLagMs:          200,
		MaxCrashedFraction:      0.5,
		DiskIOUtilization:       0.9,
		UpstreamTimeoutRatio:    4,
	}
}

var validate = validator.New()

// Validate checks the parameter bounds.
func (p Params) Validate() error {
	return formatValidationError(validate.Struct(p))
}

func formatValidationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	for _, e := range verrs {
		switch e.Tag() {
		case "gt":
			return fmt.Errorf("params.%s: must be greater than %s", e.Field(), e.Param())
		case "gte":
			return fmt.Errorf("params.%s: must be at least %s", e.Field(), e.Param())
		case "lte":
			return fmt.Errorf("params.%s: must not exceed %s", e.Field(), e.Param())
		case "ltfield":
			return fmt.Errorf("params.%s: must be below %s", e.Field(), e.Param())
		default:
			return fmt.Errorf("params.%s: validation failed (%s)", e.Field(), e.Tag())
		}
	}
	return err
}
