// ColorStdoutWriter prints human-friendly, colorized rows to STDOUT.
package sim

import (
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"infrasim/internal/telemetry"
	"infrasim/internal/topology"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

// ColorStdoutWriter prints rows using ANSI colors. The component table of
// the topology as it was at construction is printed once before the first row.
type ColorStdoutWriter struct {
	topo       *topology.Topology
	out        io.Writer
	once       sync.Once
	mu         sync.Mutex
	typeColors map[string]string
	colorIdx   int
}

var typePalette = []string{colorRed, colorGreen, colorYellow, colorBlue, colorMagenta, colorCyan}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to os.Stdout.
func NewColorStdoutWriter(topo *topology.Topology) *ColorStdoutWriter {
	// The simulator keeps mutating its topology through fixes.
	if topo != nil {
		topo = topo.Clone()
	}
	return &ColorStdoutWriter{
		topo:       topo,
		out:        os.Stdout,
		typeColors: make(map[string]string),
	}
}

func (w *ColorStdoutWriter) getTypeColor(typ string) string {
	if c, ok := w.typeColors[typ]; ok {
		return c
	}
	c := typePalette[w.colorIdx%len(typePalette)]
	w.typeColors[typ] = c
	w.colorIdx++
	return c
}

func (w *ColorStdoutWriter) printOverview() {
	if w.topo == nil {
		return
	}
	fmt.Fprintln(w.out, "Components:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tType\tCapacity\tInstances\tAutoscale\n")
	for _, n := range w.topo.Nodes() {
		if !n.Simulated() {
			continue
		}
		col := w.getTypeColor(string(n.Type))
		fmt.Fprintf(tw, "%s%s%s\t%s\t%.0f\t%d\t%t\n", col, n.ID, colorReset, n.Type, n.Config.Capacity, n.Config.Instances, n.Config.AutoScale)
	}
	tw.Flush()
	fmt.Fprintf(w.out, "\nConnections: %d\n\n", len(w.topo.Edges()))
}

func (w *ColorStdoutWriter) stamp(ts time.Time) {
	fmt.Fprintf(w.out, "%s[%s]%s ", colorGray, ts.Format(time.RFC3339), colorReset)
}

func utilizationColor(u float64) string {
	switch {
	case u > 1:
		return colorRed
	case u >= 0.8:
		return colorYellow
	}
	return colorGreen
}

// Write outputs a single component row in colorized format.
func (w *ColorStdoutWriter) Write(row telemetry.ComponentRow) error {
	w.once.Do(w.printOverview)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stamp(row.Timestamp)
	fmt.Fprintf(w.out, "%stick=%d%s ", colorBlue, row.Tick, colorReset)
	fmt.Fprintf(w.out, "%s%s%s ", w.getTypeColor(row.ComponentType), row.ComponentID, colorReset)
	fmt.Fprintf(w.out, "%srps=%.0f/%.0f%s ", colorCyan, row.RPS, row.OfferedRPS, colorReset)
	fmt.Fprintf(w.out, "%sutil=%.2f%s ", utilizationColor(row.Utilization), row.Utilization, colorReset)
	fmt.Fprintf(w.out, "%sp95=%.0fms%s ", colorMagenta, row.P95LatencyMs, colorReset)
	fmt.Fprintf(w.out, "%serr=%.3f%s ", colorYellow, row.ErrorRate, colorReset)
	fmt.Fprintf(w.out, "%sinst=%d/%d %s%s", colorGray, row.ReadyInstances, row.TargetInstances, row.AutoscalePhase, colorReset)
	if row.Crashed {
		fmt.Fprintf(w.out, " %sCRASHED%s", colorRed, colorReset)
	}
	if row.CircuitOpen {
		fmt.Fprintf(w.out, " %sbreaker-open%s", colorYellow, colorReset)
	}
	fmt.Fprintln(w.out)
	return nil
}

// WriteBatch outputs multiple component rows.
func (w *ColorStdoutWriter) WriteBatch(rows []telemetry.ComponentRow) error {
	for _, r := range rows {
		_ = w.Write(r)
	}
	return nil
}

// WriteGlobal prints the system-wide metrics of a tick.
func (w *ColorStdoutWriter) WriteGlobal(row telemetry.GlobalRow) error {
	w.once.Do(w.printOverview)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stamp(row.Timestamp)
	fmt.Fprintf(w.out, "%sGLOBAL%s tick=%d rps=%.0f p95=%.0fms err=%.3f avail=%.2f%% cost=$%.2f/h crashed=%d\n",
		colorBlue, colorReset, row.Tick, row.TotalRPS, row.P95LatencyMs, row.ErrorRate, row.Availability, row.CostPerHour, row.CrashedNodes)
	return nil
}

// WriteFailure prints a detected failure.
func (w *ColorStdoutWriter) WriteFailure(row telemetry.FailureRow) error {
	w.once.Do(w.printOverview)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stamp(row.Timestamp)
	fmt.Fprintf(w.out, "%sFAILURE%s %s component=%s severity=%.2f %s",
		colorRed, colorReset, row.Kind, row.ComponentID, row.Severity, row.Message)
	if row.Fix != "" {
		fmt.Fprintf(w.out, " %sfix=%s%s", colorGreen, row.Fix, colorReset)
	}
	fmt.Fprintln(w.out)
	return nil
}

// WriteChaosEvent prints a chaos event change.
func (w *ColorStdoutWriter) WriteChaosEvent(row telemetry.ChaosEventRow) error {
	w.once.Do(w.printOverview)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stamp(row.Timestamp)
	fmt.Fprintf(w.out, "%sCHAOS%s %s %s id=%s targets=%v\n",
		colorMagenta, colorReset, row.Action, row.ChaosType, row.ChaosID, row.Targets)
	return nil
}

// WriteState prints the controller state of a tick.
func (w *ColorStdoutWriter) WriteState(row telemetry.SimulationStateRow) error {
	w.once.Do(w.printOverview)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stamp(row.Timestamp)
	fmt.Fprintf(w.out, "%sSTATE%s %s tick=%d level=%.2f chaos=%d failures=%d\n",
		colorBlue, colorReset, row.State, row.Tick, row.TrafficLevel, row.ActiveChaos, row.Failures)
	return nil
}

// WriteScore prints the final score.
func (w *ColorStdoutWriter) WriteScore(row telemetry.ScoreRow) error {
	w.once.Do(w.printOverview)
	w.mu.Lock()
	defer w.mu.Unlock()
	col := colorGreen
	if !row.Passed {
		col = colorRed
	}
	fmt.Fprintf(w.out, "\n%sSCORE %.1f grade=%s stars=%d%s\n", col, row.Overall, row.Grade, row.Stars, colorReset)
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Scalability:\t%.1f\n", row.Scalability)
	fmt.Fprintf(tw, "Reliability:\t%.1f\n", row.Reliability)
	fmt.Fprintf(tw, "Performance:\t%.1f\n", row.Performance)
	fmt.Fprintf(tw, "Cost:\t%.1f\n", row.Cost)
	fmt.Fprintf(tw, "Simplicity:\t%.1f\n", row.Simplicity)
	return tw.Flush()
}
