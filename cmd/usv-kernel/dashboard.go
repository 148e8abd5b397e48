package main

import (
	"github.com/spf13/cobra"

	"usv-kernel/internal/config"
	"usv-kernel/internal/dashboard"
)

var (
	dashOut        string
	dashConfigPath string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards for the GreptimeDB tables",
	Long:  "dashboard renders Grafana dashboard JSON for the stored sensor, state and actuator tables. GREPTIMEDB_DATASOURCE_UID selects the datasource.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		if dashConfigPath != "" {
			var err error
			if cfg, err = config.Load(dashConfigPath, ""); err != nil {
				return err
			}
		}
		return dashboard.Render(dashOut, dashboard.NewData(cfg.VesselID))
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashOut, "out", "build", "Output directory")
	dashboardCmd.Flags().StringVar(&dashConfigPath, "config", "", "Optional configuration YAML for the vessel id")
}
