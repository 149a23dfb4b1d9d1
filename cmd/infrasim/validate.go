package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"infrasim/internal/config"
	"infrasim/internal/topology"
)

var (
	valConfigPath    string
	valSchemaPath    string
	valBlueprintPath string
	valExportPath    string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a configuration and its blueprint without running",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		blueprint := valBlueprintPath
		if valConfigPath != "" {
			if err := config.ValidateFile(valConfigPath, valSchemaPath); err != nil {
				return err
			}
			cfg, err := config.Load(valConfigPath, valSchemaPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "config %s: ok\n", valConfigPath)
			if blueprint == "" {
				blueprint = cfg.Blueprint
			}
		}
		if blueprint == "" {
			return fmt.Errorf("either --config or --blueprint is required")
		}
		topo, err := loadTopology(blueprint, func(msg string, args ...any) {
			fmt.Fprintln(out, "warning:", args[len(args)-1])
		})
		if err != nil {
			return err
		}
		res := topo.Validate()
		if !res.IsValid {
			for _, r := range res.Reasons {
				fmt.Fprintf(out, "  - %s\n", r)
			}
			return fmt.Errorf("blueprint %s is not runnable", blueprint)
		}
		fmt.Fprintf(out, "blueprint %s: ok (%d components, critical: %v)\n", blueprint, topo.Len(), topo.CriticalNodes())
		if valExportPath != "" {
			return exportBlueprint(topo, blueprint, valExportPath)
		}
		return nil
	},
}

// exportBlueprint writes the normalized form of topo as JSON: fallback types
// resolved, defaults filled in and connection ids assigned.
func exportBlueprint(topo *topology.Topology, source, path string) error {
	name := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	bp, err := topology.FromTopology(name, topo)
	if err != nil {
		return err
	}
	data, err := bp.JSON()
	if err != nil {
		return fmt.Errorf("encode blueprint: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write blueprint: %w", err)
	}
	return nil
}

func init() {
	validateCmd.Flags().StringVar(&valConfigPath, "config", "", "Path to simulation configuration YAML")
	validateCmd.Flags().StringVar(&valSchemaPath, "schema", "", "Path to CUE schema file (embedded schema when empty)")
	validateCmd.Flags().StringVar(&valBlueprintPath, "blueprint", "", "Blueprint to check; overrides the config's blueprint")
	validateCmd.Flags().StringVar(&valExportPath, "export", "", "Write the normalized blueprint as JSON to this path")
}
