package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "usv-kernel",
	Short: "Onboard control kernel for an unmanned surface vessel",
	Long:  "usv-kernel runs the control loop of the boat and offers replay and diagnostics utilities.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(dashboardCmd)
}
