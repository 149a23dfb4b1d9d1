// Package metrics exports simulation rows as Prometheus metrics.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "infrasim"

// Registry holds all metrics of one simulator process.
type Registry struct {
	// Component metrics, labelled by component and type.
	ComponentRPS         *prometheus.GaugeVec
	ComponentOfferedRPS  *prometheus.GaugeVec
	ComponentDroppedRPS  *prometheus.GaugeVec
	ComponentUtilization *prometheus.GaugeVec
	ComponentP95Latency  *prometheus.GaugeVec
	ComponentErrorRate   *prometheus.GaugeVec
	ComponentInstances   *prometheus.GaugeVec
	ComponentCrashed     *prometheus.GaugeVec
	ComponentCircuitOpen *prometheus.GaugeVec

	// Global metrics
	TotalRPS       prometheus.Gauge
	P50Latency     prometheus.Gauge
	P95Latency     prometheus.Gauge
	P99Latency     prometheus.Gauge
	ErrorRate      prometheus.Gauge
	Availability   prometheus.Gauge
	CostPerHour    prometheus.Gauge
	CrashedNodes   prometheus.Gauge
	LatencySamples prometheus.Histogram

	// Run metrics
	Tick          prometheus.Gauge
	TrafficLevel  prometheus.Gauge
	ActiveChaos   prometheus.Gauge
	RunState      *prometheus.GaugeVec
	FailuresTotal *prometheus.CounterVec
	ChaosTotal    *prometheus.CounterVec
	Score         *prometheus.GaugeVec
	ScorePassed   prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.Mutex
}

// NewRegistry creates a registry with every metric initialized.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	r.initComponentMetrics()
	r.initGlobalMetrics()
	r.initRunMetrics()
	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Registry) componentGauge(name, help string) *prometheus.GaugeVec {
	return promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "component",
			Name:      name,
			Help:      help,
		},
		[]string{"component", "type"},
	)
}

func (r *Registry) initComponentMetrics() {
	r.ComponentRPS = r.componentGauge("rps", "Accepted requests per second")
	r.ComponentOfferedRPS = r.componentGauge("offered_rps", "Offered requests per second")
	r.ComponentDroppedRPS = r.componentGauge("dropped_rps", "Requests per second rejected for lack of capacity")
	r.ComponentUtilization = r.componentGauge("utilization", "Offered load divided by effective capacity")
	r.ComponentP95Latency = r.componentGauge("p95_latency_ms", "95th percentile latency in milliseconds")
	r.ComponentErrorRate = r.componentGauge("error_rate", "Fraction of failed requests")
	r.ComponentInstances = r.componentGauge("ready_instances", "Instances serving traffic")
	r.ComponentCrashed = r.componentGauge("crashed", "1 while the component is crashed")
	r.ComponentCircuitOpen = r.componentGauge("circuit_open", "1 while the circuit breaker is open")
}

func (r *Registry) initGlobalMetrics() {
	gauge := func(name, help string) prometheus.Gauge {
		return promauto.With(r.registry).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
	}
	r.TotalRPS = gauge("total_rps", "Requests per second served by the design")
	r.P50Latency = gauge("p50_latency_ms", "Median end-to-end latency in milliseconds")
	r.P95Latency = gauge("p95_latency_ms", "95th percentile end-to-end latency in milliseconds")
	r.P99Latency = gauge("p99_latency_ms", "99th percentile end-to-end latency in milliseconds")
	r.ErrorRate = gauge("error_rate", "Fraction of failed requests")
	r.Availability = gauge("availability_percent", "Successful requests since the run started")
	r.CostPerHour = gauge("cost_per_hour_dollars", "Hourly infrastructure cost")
	r.CrashedNodes = gauge("crashed_components", "Components currently crashed")
	r.LatencySamples = promauto.With(r.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tick_p95_latency_ms",
		Help:      "Distribution of the per-tick p95 latency",
		Buckets:   []float64{10, 25, 50, 100, 200, 300, 500, 1000, 2000, 5000, 10000},
	})
}

func (r *Registry) initRunMetrics() {
	r.Tick = promauto.With(r.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tick",
		Help:      "Last simulated tick",
	})
	r.TrafficLevel = promauto.With(r.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "traffic_level",
		Help:      "Traffic multiplier applied to every source",
	})
	r.ActiveChaos = promauto.With(r.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_chaos_events",
		Help:      "Chaos events applying at the last tick",
	})
	r.RunState = promauto.With(r.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_state",
		Help:      "1 for the current run state",
	}, []string{"state"})
	r.FailuresTotal = promauto.With(r.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "failures_total",
		Help:      "Detected failure onsets",
	}, []string{"kind", "category"})
	r.ChaosTotal = promauto.With(r.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chaos_events_total",
		Help:      "Chaos event transitions",
	}, []string{"type", "action"})
	r.Score = promauto.With(r.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "score",
		Help:      "Final score per dimension, 0 to 100",
	}, []string{"dimension"})
	r.ScorePassed = promauto.With(r.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "score_passed",
		Help:      "1 when the run met its targets",
	})
}
