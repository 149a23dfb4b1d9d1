package sim

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"net"
	"strconv"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"infrasim/internal/telemetry"
)

const (
	defaultGreptimePort = 4001
	greptimeTimeout     = 5 * time.Second
)

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter stores simulation rows in GreptimeDB via the ingester client.
type GreptimeDBWriter struct {
	client         greptimeClient
	componentTable string
	globalTable    string
	failureTable   string
	chaosTable     string
	stateTable     string
	scoreTable     string
}

// NewGreptimeDBWriter connects to endpoint ("host" or "host:port") and
// writes into database.
func NewGreptimeDBWriter(endpoint, database string) (*GreptimeDBWriter, error) {
	host, port := endpoint, defaultGreptimePort
	if h, p, err := net.SplitHostPort(endpoint); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("greptimedb endpoint %q: %w", endpoint, err)
		}
		host, port = h, n
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptimedb client: %w", err)
	}
	return newGreptimeDBWriter(client), nil
}

func newGreptimeDBWriter(client greptimeClient) *GreptimeDBWriter {
	return &GreptimeDBWriter{
		client:         client,
		componentTable: telemetry.ComponentTableName,
		globalTable:    telemetry.GlobalTableName,
		failureTable:   telemetry.FailureTableName,
		chaosTable:     telemetry.ChaosTableName,
		stateTable:     telemetry.StateTableName,
		scoreTable:     telemetry.ScoreTableName,
	}
}

func (w *GreptimeDBWriter) send(name string, tbl *table.Table, rows int) error {
	ctx, cancel := context.WithTimeout(context.Background(), greptimeTimeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		log.Error("greptimedb write failed", "table", name, "err", err)
		return err
	}
	log.Debug("greptimedb write", "table", name, "rows", rows)
	return nil
}

// Write inserts a single component row.
func (w *GreptimeDBWriter) Write(row telemetry.ComponentRow) error {
	return w.WriteBatch([]telemetry.ComponentRow{row})
}

// WriteBatch inserts multiple component rows.
func (w *GreptimeDBWriter) WriteBatch(rows []telemetry.ComponentRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := table.New(w.componentTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("run_id", types.STRING)
	tbl.AddTagColumn("component_id", types.STRING)
	tbl.AddTagColumn("component_type", types.STRING)
	tbl.AddFieldColumn("tick", types.INT64)
	tbl.AddFieldColumn("offered_rps", types.FLOAT64)
	tbl.AddFieldColumn("rps", types.FLOAT64)
	tbl.AddFieldColumn("dropped_rps", types.FLOAT64)
	tbl.AddFieldColumn("utilization", types.FLOAT64)
	tbl.AddFieldColumn("latency_ms", types.FLOAT64)
	tbl.AddFieldColumn("p95_latency_ms", types.FLOAT64)
	tbl.AddFieldColumn("error_rate", types.FLOAT64)
	tbl.AddFieldColumn("cpu", types.FLOAT64)
	tbl.AddFieldColumn("memory", types.FLOAT64)
	tbl.AddFieldColumn("cache_hit_rate", types.FLOAT64)
	tbl.AddFieldColumn("queue_depth", types.FLOAT64)
	tbl.AddFieldColumn("pool_utilization", types.FLOAT64)
	tbl.AddFieldColumn("ready_instances", types.INT64)
	tbl.AddFieldColumn("target_instances", types.INT64)
	tbl.AddFieldColumn("autoscale_phase", types.STRING)
	tbl.AddFieldColumn("circuit_open", types.BOOLEAN)
	tbl.AddFieldColumn("crashed", types.BOOLEAN)
	tbl.AddFieldColumn("slow", types.BOOLEAN)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	for _, r := range rows {
		err := tbl.AddRow(
			r.RunID, r.ComponentID, r.ComponentType,
			r.Tick, r.OfferedRPS, r.RPS, r.DroppedRPS, r.Utilization,
			r.LatencyMs, r.P95LatencyMs, r.ErrorRate, r.CPU, r.Memory,
			r.CacheHitRate, r.QueueDepth, r.PoolUtilization,
			int64(r.ReadyInstances), int64(r.TargetInstances), r.AutoscalePhase,
			r.CircuitOpen, r.Crashed, r.Slow,
			r.Timestamp,
		)
		if err != nil {
			return err
		}
	}
	return w.send(w.componentTable, tbl, len(rows))
}

// WriteGlobal inserts the system-wide row of a tick.
func (w *GreptimeDBWriter) WriteGlobal(r telemetry.GlobalRow) error {
	tbl, err := table.New(w.globalTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("run_id", types.STRING)
	tbl.AddFieldColumn("tick", types.INT64)
	tbl.AddFieldColumn("total_rps", types.FLOAT64)
	tbl.AddFieldColumn("mean_latency_ms", types.FLOAT64)
	tbl.AddFieldColumn("p50_latency_ms", types.FLOAT64)
	tbl.AddFieldColumn("p95_latency_ms", types.FLOAT64)
	tbl.AddFieldColumn("p99_latency_ms", types.FLOAT64)
	tbl.AddFieldColumn("error_rate", types.FLOAT64)
	tbl.AddFieldColumn("availability", types.FLOAT64)
	tbl.AddFieldColumn("cost_per_hour", types.FLOAT64)
	tbl.AddFieldColumn("crashed_nodes", types.INT64)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	err = tbl.AddRow(
		r.RunID, r.Tick, r.TotalRPS, r.MeanLatencyMs, r.P50LatencyMs,
		r.P95LatencyMs, r.P99LatencyMs, r.ErrorRate, r.Availability,
		r.CostPerHour, int64(r.CrashedNodes), r.Timestamp,
	)
	if err != nil {
		return err
	}
	return w.send(w.globalTable, tbl, 1)
}

// WriteFailure inserts a single failure row.
func (w *GreptimeDBWriter) WriteFailure(row telemetry.FailureRow) error {
	return w.WriteFailures([]telemetry.FailureRow{row})
}

// WriteFailures inserts failure rows. The affected component ids are stored
// as a JSON array.
func (w *GreptimeDBWriter) WriteFailures(rows []telemetry.FailureRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := table.New(w.failureTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("run_id", types.STRING)
	tbl.AddTagColumn("component_id", types.STRING)
	tbl.AddTagColumn("kind", types.STRING)
	tbl.AddFieldColumn("failure_id", types.STRING)
	tbl.AddFieldColumn("category", types.STRING)
	tbl.AddFieldColumn("tick", types.INT64)
	tbl.AddFieldColumn("severity", types.FLOAT64)
	tbl.AddFieldColumn("message", types.STRING)
	tbl.AddFieldColumn("affected", types.JSON)
	tbl.AddFieldColumn("fix", types.STRING)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	for _, r := range rows {
		affected, err := jsonList(r.Affected)
		if err != nil {
			return err
		}
		err = tbl.AddRow(
			r.RunID, r.ComponentID, r.Kind,
			r.FailureID, r.Category, r.Tick, r.Severity, r.Message,
			affected, r.Fix, r.Timestamp,
		)
		if err != nil {
			return err
		}
	}
	return w.send(w.failureTable, tbl, len(rows))
}

// WriteChaosEvent inserts a chaos event change.
func (w *GreptimeDBWriter) WriteChaosEvent(r telemetry.ChaosEventRow) error {
	tbl, err := table.New(w.chaosTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("run_id", types.STRING)
	tbl.AddTagColumn("chaos_id", types.STRING)
	tbl.AddFieldColumn("action", types.STRING)
	tbl.AddFieldColumn("chaos_type", types.STRING)
	tbl.AddFieldColumn("targets", types.JSON)
	tbl.AddFieldColumn("cause", types.STRING)
	tbl.AddFieldColumn("tick", types.INT64)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	targets, err := jsonList(r.Targets)
	if err != nil {
		return err
	}
	if err := tbl.AddRow(r.RunID, r.ChaosID, r.Action, r.ChaosType, targets, r.Cause, r.Tick, r.Timestamp); err != nil {
		return err
	}
	return w.send(w.chaosTable, tbl, 1)
}

// WriteState inserts a controller state row.
func (w *GreptimeDBWriter) WriteState(r telemetry.SimulationStateRow) error {
	tbl, err := table.New(w.stateTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("run_id", types.STRING)
	tbl.AddFieldColumn("state", types.STRING)
	tbl.AddFieldColumn("tick", types.INT64)
	tbl.AddFieldColumn("elapsed_seconds", types.FLOAT64)
	tbl.AddFieldColumn("traffic_level", types.FLOAT64)
	tbl.AddFieldColumn("active_chaos", types.INT64)
	tbl.AddFieldColumn("chaos_traffic_multiplier", types.FLOAT64)
	tbl.AddFieldColumn("failures", types.INT64)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	err = tbl.AddRow(
		r.RunID, r.State, r.Tick, r.ElapsedSeconds, r.TrafficLevel,
		int64(r.ActiveChaos), r.ChaosTraffic, int64(r.Failures), r.Timestamp,
	)
	if err != nil {
		return err
	}
	return w.send(w.stateTable, tbl, 1)
}

// WriteScore inserts the final score of a run.
func (w *GreptimeDBWriter) WriteScore(r telemetry.ScoreRow) error {
	tbl, err := table.New(w.scoreTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("run_id", types.STRING)
	tbl.AddFieldColumn("overall", types.FLOAT64)
	tbl.AddFieldColumn("grade", types.STRING)
	tbl.AddFieldColumn("stars", types.INT64)
	tbl.AddFieldColumn("passed", types.BOOLEAN)
	tbl.AddFieldColumn("scalability", types.FLOAT64)
	tbl.AddFieldColumn("reliability", types.FLOAT64)
	tbl.AddFieldColumn("performance", types.FLOAT64)
	tbl.AddFieldColumn("cost", types.FLOAT64)
	tbl.AddFieldColumn("simplicity", types.FLOAT64)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	err = tbl.AddRow(
		r.RunID, r.Overall, r.Grade, int64(r.Stars), r.Passed,
		r.Scalability, r.Reliability, r.Performance, r.Cost, r.Simplicity,
		r.Timestamp,
	)
	if err != nil {
		return err
	}
	return w.send(w.scoreTable, tbl, 1)
}

func jsonList(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
