package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"infrasim/internal/admin"
	"infrasim/internal/config"
	"infrasim/internal/logging"
	"infrasim/internal/metrics"
	"infrasim/internal/scenario"
	"infrasim/internal/score"
	"infrasim/internal/sim"
	"infrasim/internal/topology"
)

var (
	simPrintOnly  bool
	simConfigPath string
	simSchemaPath string
	simLogFile    string
	simAdminAddr  string
	simScenario   string
	simTick       time.Duration
	simNoTUI      bool
	simLinger     bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a design through a load test",
	Long: "simulate loads a blueprint and runs it tick by tick, injecting scheduled chaos, " +
		"reporting failures and scoring the run when it stops.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(simConfigPath, simSchemaPath)
		if err != nil {
			return err
		}
		if simTick > 0 {
			cfg.TickInterval = simTick
		}
		if simScenario != "" {
			cfg.Scenario = simScenario
		}

		useTUI := !simNoTUI && !simPrintOnly && term.IsTerminal(int(os.Stdout.Fd()))
		var logOut io.Writer = os.Stderr
		if useTUI {
			logOut = io.Discard
		}
		log := logging.NewWithLevel(cfg.LogLevel, logOut)
		ctx, cancel := context.WithCancel(logging.NewContext(context.Background(), log))
		defer cancel()

		topo, err := loadTopology(cfg.Blueprint, log.Warn)
		if err != nil {
			return err
		}
		sc, err := loadScenario(cfg.Scenario)
		if err != nil {
			return err
		}
		targets := cfg.Targets
		if sc != nil && targets == (score.Targets{}) {
			targets = sc.Constraints
		}

		reg := metrics.NewRegistry()
		writer, tui, cleanup, err := newWriters(topo, writerOptions{
			PrintOnly: simPrintOnly,
			TUI:       useTUI,
			Colorize:  !simPrintOnly && term.IsTerminal(int(os.Stdout.Fd())),
			LogFile:   simLogFile,
		}, reg)
		if err != nil {
			return err
		}
		defer cleanup()

		simulator, err := sim.NewSimulator(topo, sim.Options{
			RunID:        cfg.RunID,
			Engine:       cfg.Engine,
			TickInterval: cfg.TickInterval,
			TrafficLevel: cfg.TrafficLevel,
			MaxTicks:     cfg.MaxTicks,
			Targets:      targets,
			Scenario:     sc,
			Chaos:        cfg.Chaos,
		}, writer)
		if err != nil {
			return err
		}
		if tui != nil {
			tui.SetControls(sim.TUIControls{
				InjectChaos: simulator.AddChaosEvent,
				TogglePause: func() error { return togglePause(simulator) },
			})
		}

		if simAdminAddr != "" {
			ln, err := net.Listen("tcp", simAdminAddr)
			if err != nil {
				return fmt.Errorf("admin listener: %w", err)
			}
			srv := admin.NewServer(simulator, reg.Handler())
			srv.Log = log
			writer.SetAdminStatus(true)
			log.Info("admin UI listening", "addr", ln.Addr().String())
			go func() {
				if err := srv.Serve(ctx, ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("admin server failed", "err", err)
					writer.SetAdminStatus(false)
				}
			}()
		}

		if err := simulator.Start(); err != nil {
			if errors.Is(err, sim.ErrInvalidTopology) {
				for _, r := range simulator.Validate().Reasons {
					log.Error("invalid design", "reason", r)
				}
			}
			return err
		}
		go simulator.Run(ctx)

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigs)

		for {
			select {
			case <-sigs:
				if _, err := simulator.Stop(); err != nil && !errors.Is(err, sim.ErrNotRunning) {
					log.Error("stop failed", "err", err)
				}
				cancel()
				log.Info("simulation stopped")
				return nil
			case <-simulator.Stopped():
				if final, ok := simulator.Score(); ok {
					log.Info("run scored", "overall", final.Overall, "grade", final.Grade, "passed", final.Passed)
					if tui == nil {
						printScore(os.Stderr, final)
					}
				}
				if !simLinger {
					cancel()
					return nil
				}
				// Stay up for the admin UI; a reset re-arms Stopped.
				if !waitForReset(ctx, simulator, sigs) {
					cancel()
					return nil
				}
			}
		}
	},
}

// waitForReset blocks until the operator resets the run or a signal arrives.
// It reports whether the run was reset.
func waitForReset(ctx context.Context, s *sim.Simulator, sigs <-chan os.Signal) bool {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-sigs:
			return false
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if s.Snapshot().State != sim.StateStopped {
				return true
			}
		}
	}
}

func togglePause(s *sim.Simulator) error {
	if s.Snapshot().State == sim.StatePaused {
		return s.Resume()
	}
	return s.Pause()
}

// loadTopology reads a blueprint and builds its graph, reporting decoding
// warnings through warn.
func loadTopology(path string, warn func(msg string, args ...any)) (*topology.Topology, error) {
	bp, err := topology.LoadBlueprint(path)
	if err != nil {
		return nil, err
	}
	topo, warnings, err := bp.Topology()
	for _, w := range warnings {
		warn("blueprint", "warning", w)
	}
	if err != nil {
		return nil, fmt.Errorf("blueprint %s: %w", path, err)
	}
	return topo, nil
}

// loadScenario resolves a built-in scenario name or a scenario file. An
// empty name means free play.
func loadScenario(name string) (*scenario.Scenario, error) {
	if name == "" {
		return nil, nil
	}
	builtIn := scenario.BuiltIn()
	if sc, ok := builtIn[name]; ok {
		return &sc, nil
	}
	if _, err := os.Stat(name); err != nil {
		names := make([]string, 0, len(builtIn))
		for n := range builtIn {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("scenario %q is neither a file nor one of: %s", name, strings.Join(names, ", "))
	}
	return scenario.Load(name)
}

func printScore(w io.Writer, s score.Score) {
	fmt.Fprintf(w, "overall %.1f  grade %s  passed %t\n", s.Overall, s.Grade, s.Passed)
	for _, d := range s.Dimensions {
		fmt.Fprintf(w, "  %-14s %5.1f  %s\n", d.Name, d.Value, d.Comment)
	}
}

func init() {
	simulateCmd.Flags().BoolVar(&simPrintOnly, "print-only", false, "Print rows as JSON to STDOUT instead of writing to DB")
	simulateCmd.Flags().StringVar(&simConfigPath, "config", "config/simulation.yaml", "Path to simulation configuration YAML")
	simulateCmd.Flags().StringVar(&simSchemaPath, "schema", "", "Path to CUE schema file (embedded schema when empty)")
	simulateCmd.Flags().StringVar(&simLogFile, "log-file", "", "Path to export rows as JSONL")
	simulateCmd.Flags().StringVar(&simAdminAddr, "admin-addr", ":8080", "Admin UI listen address; empty disables it")
	simulateCmd.Flags().StringVar(&simScenario, "scenario", "", "Built-in scenario name or scenario YAML file")
	simulateCmd.Flags().DurationVar(&simTick, "tick", 0, "Wall-clock tick interval override (e.g. 500ms, 2s)")
	simulateCmd.Flags().BoolVar(&simNoTUI, "no-tui", false, "Disable the terminal UI")
	simulateCmd.Flags().BoolVar(&simLinger, "linger", false, "Keep the process and admin UI up after the run stops")
}
