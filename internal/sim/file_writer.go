package sim

import (
	"encoding/json"
	"os"

	"infrasim/internal/telemetry"
)

// FilePaths names the JSONL file of each row kind. Only Components is
// required; empty paths skip that log.
type FilePaths struct {
	Components string
	Global     string
	Failures   string
	Chaos      string
	State      string
	Score      string
}

type jsonlFile struct {
	f   *os.File
	enc *json.Encoder
}

func (j *jsonlFile) encode(v any) error {
	if j == nil {
		return nil
	}
	return j.enc.Encode(v)
}

// FileWriter writes simulation rows to JSONL files.
type FileWriter struct {
	components *jsonlFile
	global     *jsonlFile
	failures   *jsonlFile
	chaos      *jsonlFile
	state      *jsonlFile
	score      *jsonlFile
}

// NewFileWriter creates the files named in paths.
func NewFileWriter(paths FilePaths) (*FileWriter, error) {
	fw := &FileWriter{}
	targets := []struct {
		path string
		dst  **jsonlFile
	}{
		{paths.Components, &fw.components},
		{paths.Global, &fw.global},
		{paths.Failures, &fw.failures},
		{paths.Chaos, &fw.chaos},
		{paths.State, &fw.state},
		{paths.Score, &fw.score},
	}
	for i, t := range targets {
		if t.path == "" && i > 0 {
			continue
		}
		f, err := os.Create(t.path)
		if err != nil {
			fw.Close()
			return nil, err
		}
		*t.dst = &jsonlFile{f: f, enc: json.NewEncoder(f)}
	}
	return fw, nil
}

// Write logs a single component row.
func (f *FileWriter) Write(row telemetry.ComponentRow) error {
	return f.components.encode(row)
}

// WriteBatch logs multiple component rows.
func (f *FileWriter) WriteBatch(rows []telemetry.ComponentRow) error {
	for _, r := range rows {
		if err := f.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteGlobal logs the system-wide row, if enabled.
func (f *FileWriter) WriteGlobal(row telemetry.GlobalRow) error {
	return f.global.encode(row)
}

// WriteFailure logs a single failure row, if enabled.
func (f *FileWriter) WriteFailure(row telemetry.FailureRow) error {
	return f.failures.encode(row)
}

// WriteFailures logs multiple failure rows.
func (f *FileWriter) WriteFailures(rows []telemetry.FailureRow) error {
	for _, r := range rows {
		if err := f.WriteFailure(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteChaosEvent logs a chaos event change, if enabled.
func (f *FileWriter) WriteChaosEvent(row telemetry.ChaosEventRow) error {
	return f.chaos.encode(row)
}

// WriteState logs a simulation state row, if enabled.
func (f *FileWriter) WriteState(row telemetry.SimulationStateRow) error {
	return f.state.encode(row)
}

// WriteScore logs the final score, if enabled.
func (f *FileWriter) WriteScore(row telemetry.ScoreRow) error {
	return f.score.encode(row)
}

// Close closes any underlying files and returns the first error.
func (f *FileWriter) Close() error {
	var err error
	for _, j := range []*jsonlFile{f.components, f.global, f.failures, f.chaos, f.state, f.score} {
		if j == nil {
			continue
		}
		if e := j.f.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
