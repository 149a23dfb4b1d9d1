package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"infrasim/internal/dashboard"
)

var dashboardOut string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render the Grafana dashboards",
	Long:  "dashboard renders the Prometheus and GreptimeDB Grafana dashboards using the datasource UIDs from the environment.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := dashboard.Render(dashboardOut); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "dashboards written to %s\n", dashboardOut)
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory")
}
