package main

import (
	"io"
	"os"

	"infrasim/internal/sim"
	"infrasim/internal/topology"
)

// writerOptions selects the sinks of a simulate run.
type writerOptions struct {
	PrintOnly bool
	TUI       bool
	Colorize  bool
	LogFile   string
	Out       io.Writer
}

// newWriters sets up the row sinks based on flags and env vars. Extra writers
// such as the metrics registry are appended to the fan-out. It returns the
// combined writer, the TUI when one was started and a cleanup function.
func newWriters(topo *topology.Topology, opts writerOptions, extra ...sim.ComponentWriter) (*sim.MultiWriter, *sim.TUIWriter, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var (
		base sim.ComponentWriter
		tui  *sim.TUIWriter
	)
	if opts.TUI && !opts.PrintOnly {
		tui = sim.NewTUIWriter(topo)
		base = tui
		closers = append(closers, tui.Close)
	} else {
		w, err := baseWriter(topo, opts.PrintOnly, opts.Colorize, opts.Out)
		if err != nil {
			return nil, nil, nil, err
		}
		base = w
	}

	writers := []sim.ComponentWriter{base}
	if opts.LogFile != "" {
		fw, err := sim.NewFileWriter(logFilePaths(opts.LogFile))
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		closers = append(closers, func() { fw.Close() })
		writers = append(writers, fw)
	}
	writers = append(writers, extra...)
	return sim.NewMultiWriter(writers...), tui, cleanup, nil
}

// baseWriter chooses between STDOUT and GreptimeDB based on printOnly and
// GREPTIMEDB_ENDPOINT.
func baseWriter(topo *topology.Topology, printOnly, colorize bool, out io.Writer) (sim.ComponentWriter, error) {
	endpoint := os.Getenv("GREPTIMEDB_ENDPOINT")
	if printOnly || endpoint == "" {
		if out == nil {
			out = os.Stdout
		}
		return sim.NewStdoutWriter(out, colorize, topo), nil
	}
	database := os.Getenv("GREPTIMEDB_DATABASE")
	if database == "" {
		database = "public"
	}
	return sim.NewGreptimeDBWriter(endpoint, database)
}

// logFilePaths derives one JSONL file per row kind from the component log path.
func logFilePaths(logFile string) sim.FilePaths {
	return sim.FilePaths{
		Components: logFile,
		Global:     logFile + ".global",
		Failures:   logFile + ".failures",
		Chaos:      logFile + ".chaos",
		State:      logFile + ".state",
		Score:      logFile + ".score",
	}
}
