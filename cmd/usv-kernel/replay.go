package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"usv-kernel/internal/config"
	"usv-kernel/internal/logging"
	"usv-kernel/internal/sink"
)

var (
	replayInput      string
	replaySpeed      float64
	replayPrintOnly  bool
	replayConfigPath string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a sensor log file",
	Long:  "replay feeds sensor rows from a JSONL log back into GreptimeDB or STDOUT.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		cfg := config.Default()
		if replayConfigPath != "" {
			var err error
			if cfg, err = config.Load(replayConfigPath, ""); err != nil {
				return err
			}
		}
		logger := logging.NewWriter(os.Stderr, cfg.LogLevel)
		writer, cleanup, err := newWriters(cfg, replayPrintOnly, "", os.Stdout, term.IsTerminal(int(os.Stdout.Fd())), logger)
		if err != nil {
			return err
		}
		defer cleanup()
		n, err := sink.ReplayLogFile(replayInput, writer, replaySpeed)
		logger.Info("replay finished", "rows", n, "input", replayInput)
		return err
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to sensor log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 = as fast as possible)")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print rows to STDOUT instead of writing to DB")
	replayCmd.Flags().StringVar(&replayConfigPath, "config", "", "Optional configuration YAML for storage settings")
	replayCmd.MarkFlagRequired("input")
}
