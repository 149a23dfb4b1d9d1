package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infrasim/internal/config"
	"infrasim/internal/topology"
)

const testBlueprint = `
name: tiny
components:
  - id: users
    type: client
    config:
      trafficRps: 100
  - id: app
    type: app_server
  - id: sticky
    type: sticky_note
connections:
  - source: users
    target: app
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	sc, err := loadScenario("")
	require.NoError(t, err)
	assert.Nil(t, sc)

	sc, err = loadScenario("steady-growth")
	require.NoError(t, err)
	assert.Equal(t, "Steady Growth", sc.Name)

	path := writeFile(t, "sc.yaml", "name: custom\nphases:\n  - name: only\n    level: 2\n")
	sc, err = loadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", sc.Name)

	_, err = loadScenario("no-such-scenario")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steady-growth")
}

func TestLoadTopologyReportsWarnings(t *testing.T) {
	path := writeFile(t, "bp.yaml", testBlueprint)
	var warnings []string
	topo, err := loadTopology(path, func(msg string, args ...any) {
		warnings = append(warnings, args[len(args)-1].(string))
	})
	require.NoError(t, err)
	assert.Equal(t, 3, topo.Len())
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "sticky_note")
}

func TestValidateCommand(t *testing.T) {
	path := writeFile(t, "bp.yaml", testBlueprint)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"validate", "--blueprint", path})
	require.NoError(t, rootCmd.Execute())
	assert.True(t, strings.Contains(out.String(), "ok"), out.String())
}

func TestValidateExportsNormalizedBlueprint(t *testing.T) {
	path := writeFile(t, "bp.yaml", testBlueprint)
	exported := filepath.Join(t.TempDir(), "tiny.json")
	t.Cleanup(func() { valExportPath = "" })
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"validate", "--blueprint", path, "--export", exported})
	require.NoError(t, rootCmd.Execute())

	bp, err := topology.LoadBlueprint(exported)
	require.NoError(t, err)
	assert.Equal(t, "bp", bp.Name)
	topo, warnings, err := bp.Topology()
	require.NoError(t, err)
	assert.Empty(t, warnings, "exported blueprint uses resolved types")
	assert.Equal(t, 3, topo.Len())
	require.Len(t, topo.Edges(), 1)
	assert.NotEmpty(t, topo.Edges()[0].ID)
	assert.Equal(t, 100.0, topo.Node("users").Config.TrafficRPS)
}

func TestSampleFilesLoad(t *testing.T) {
	cfg, err := config.Load("../../config/simulation.yaml", "")
	require.NoError(t, err)
	assert.Equal(t, "steady-growth", cfg.Scenario)
	require.Len(t, cfg.Chaos, 2)

	topo, err := loadTopology(filepath.Join("../..", cfg.Blueprint), func(string, ...any) {})
	require.NoError(t, err)
	res := topo.Validate()
	assert.True(t, res.IsValid, res.Reasons)

	sc, err := loadScenario("../../scenarios/black-friday.yaml")
	require.NoError(t, err)
	assert.Len(t, sc.Phases, 4)
}
