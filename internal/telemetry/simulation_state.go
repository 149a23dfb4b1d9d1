package telemetry

import "time"

// SimulationStateRow captures per-tick controller state.
type SimulationStateRow struct {
	RunID          string    `json:"run_id"`
	State          string    `json:"state"`
	Tick           int64     `json:"tick"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	TrafficLevel   float64   `json:"traffic_level"`
	ActiveChaos    int       `json:"active_chaos"`
	ChaosTraffic   float64   `json:"chaos_traffic_multiplier"`
	Failures       int       `json:"failures"`
	Timestamp      time.Time `json:"ts"`
}

func (SimulationStateRow) TableName() string { return StateTableName }

// ScoreRow records the final score of a run.
type ScoreRow struct {
	RunID       string    `json:"run_id"`
	Overall     float64   `json:"overall"`
	Grade       string    `json:"grade"`
	Stars       int       `json:"stars"`
	Passed      bool      `json:"passed"`
	Scalability float64   `json:"scalability"`
	Reliability float64   `json:"reliability"`
	Performance float64   `json:"performance"`
	Cost        float64   `json:"cost"`
	Simplicity  float64   `json:"simplicity"`
	Timestamp   time.Time `json:"ts"`
}

func (ScoreRow) TableName() string { return ScoreTableName }
