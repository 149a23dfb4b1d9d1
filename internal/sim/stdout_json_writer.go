package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"infrasim/internal/telemetry"
)

// JSONStdoutWriter prints every row kind as one JSON document per line.
type JSONStdoutWriter struct {
	out io.Writer
	mu  sync.Mutex
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

func (w *JSONStdoutWriter) emit(kind string, row any) error {
	data, err := json.Marshal(struct {
		Kind string `json:"kind"`
		Row  any    `json:"row"`
	}{kind, row})
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// Write outputs a component row in JSON format.
func (w *JSONStdoutWriter) Write(row telemetry.ComponentRow) error {
	return w.emit("component", row)
}

// WriteBatch outputs multiple component rows in JSON format.
func (w *JSONStdoutWriter) WriteBatch(rows []telemetry.ComponentRow) error {
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteGlobal outputs the system-wide row in JSON format.
func (w *JSONStdoutWriter) WriteGlobal(row telemetry.GlobalRow) error {
	return w.emit("global", row)
}

// WriteFailure outputs a failure row in JSON format.
func (w *JSONStdoutWriter) WriteFailure(row telemetry.FailureRow) error {
	return w.emit("failure", row)
}

// WriteChaosEvent outputs a chaos event change in JSON format.
func (w *JSONStdoutWriter) WriteChaosEvent(row telemetry.ChaosEventRow) error {
	return w.emit("chaos", row)
}

// WriteState outputs a state row in JSON format.
func (w *JSONStdoutWriter) WriteState(row telemetry.SimulationStateRow) error {
	return w.emit("state", row)
}

// WriteScore outputs the final score in JSON format.
func (w *JSONStdoutWriter) WriteScore(row telemetry.ScoreRow) error {
	return w.emit("score", row)
}
