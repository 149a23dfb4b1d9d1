package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"infrasim/internal/telemetry"
)

// ReplayLog replays component rows recorded by FileWriter from r to writer.
// Rows of the same tick are written as one batch. A speed >0 accelerates
// playback; if speed <= 0, no artificial delay is inserted.
func ReplayLog(r io.Reader, writer ComponentWriter, speed float64) error {
	dec := json.NewDecoder(r)
	var (
		prev  time.Time
		batch []telemetry.ComponentRow
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		defer func() { batch = batch[:0] }()
		if bw, ok := writer.(batchWriter); ok {
			return bw.WriteBatch(batch)
		}
		for _, row := range batch {
			if err := writer.Write(row); err != nil {
				return err
			}
		}
		return nil
	}
	for {
		var row telemetry.ComponentRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				return flush()
			}
			return fmt.Errorf("decode row: %w", err)
		}
		if len(batch) > 0 && row.Tick != batch[0].Tick {
			if err := flush(); err != nil {
				return err
			}
		}
		if !prev.IsZero() && speed > 0 {
			diff := row.Timestamp.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				time.Sleep(diff)
			}
		}
		batch = append(batch, row)
		prev = row.Timestamp
	}
}

// ReplayLogFile opens a file and replays its component rows.
func ReplayLogFile(path string, writer ComponentWriter, speed float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ReplayLog(f, writer, speed)
}
