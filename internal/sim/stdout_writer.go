// Writer selection for STDOUT
package sim

import (
	"io"

	"infrasim/internal/topology"
)

// StdoutWriter is implemented by both STDOUT writers.
type StdoutWriter interface {
	ComponentWriter
	GlobalWriter
	FailureWriter
	ChaosWriter
	StateWriter
	ScoreWriter
}

// NewStdoutWriter returns the colorized writer when colorize is set and the
// JSON writer otherwise, both writing to out.
func NewStdoutWriter(out io.Writer, colorize bool, topo *topology.Topology) StdoutWriter {
	if colorize {
		w := NewColorStdoutWriter(topo)
		w.out = out
		return w
	}
	return &JSONStdoutWriter{out: out}
}
