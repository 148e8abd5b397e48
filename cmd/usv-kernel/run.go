package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"usv-kernel/internal/admin"
	"usv-kernel/internal/bus"
	"usv-kernel/internal/config"
	"usv-kernel/internal/console"
	"usv-kernel/internal/driver"
	"usv-kernel/internal/firmware"
	"usv-kernel/internal/logging"
	"usv-kernel/internal/mission"
	"usv-kernel/internal/monitor"
	"usv-kernel/internal/observability"
	"usv-kernel/internal/serial"
	"usv-kernel/internal/sink"
	"usv-kernel/internal/vessel"
)

var (
	runConfigPath string
	runSchemaPath string
	runSimulate   bool
	runPrintOnly  bool
	runLogFile    string
	runTUI        bool
	runMission    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the control kernel",
	Long:  "run starts the driver loop against the serial boards or the built-in firmware simulator, together with storage, MQTT mirror, admin server and optional console.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(runConfigPath, runSchemaPath)
		if err != nil {
			return err
		}
		if runTUI && !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("--tui needs a terminal")
		}

		// the console owns the screen, so logs and rows only go to files then
		var out io.Writer = os.Stdout
		var logOut io.Writer = os.Stderr
		if runTUI {
			out = nil
			logOut = io.Discard
			if runLogFile != "" {
				f, err := os.OpenFile(runLogFile+".kernel", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return err
				}
				defer f.Close()
				logOut = f
			}
		}
		logger := logging.NewWriter(logOut, cfg.LogLevel)
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, logger)

		var ms *mission.Mission
		if runMission != "" {
			if ms, err = loadMission(runMission, cfg); err != nil {
				return err
			}
			ms.Apply(cfg)
			logger.Info("mission loaded", "name", ms.Name, "waypoints", len(ms.Waypoints), "length_m", ms.LengthM())
		}

		b := bus.New(logger)
		observability.RegisterBus(prometheus.DefaultRegisterer, b)
		machine := vessel.New(cfg, b, logger)
		loop := driver.New(cfg, newOpener(cfg, logger), machine, b, driver.WithLogger(logger))
		b.Subscribe(bus.Command, "driver", loop.HandleCommandEvent)

		writer, cleanup, err := newWriters(cfg, runPrintOnly, runLogFile, out, term.IsTerminal(int(os.Stdout.Fd())), logger)
		if err != nil {
			return err
		}
		defer cleanup()
		if writer != nil {
			sink.Attach(b, "storage", cfg.VesselID, writer, logger)
		}

		var wg sync.WaitGroup
		for _, bw := range batchWriters(writer) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := bw.Run(ctx); err != nil {
					logger.Error("batch flush failed", "error", err)
				}
			}()
		}

		status := admin.NewStatus(cfg.VesselID)
		status.Attach(b)
		srv := admin.NewServer(status, b, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(ctx, cfg.AdminAddr); err != nil {
				logger.Error("admin server failed", "error", err)
			}
		}()

		if cfg.Monitor.Broker != "" {
			mirror, err := monitor.Start(ctx, cfg.Monitor, cfg.VesselID, b, logger)
			if err != nil {
				logger.Warn("mqtt mirror disabled", "error", err)
			} else {
				mirror.Attach(b)
				defer mirror.Close()
			}
		}

		if runTUI {
			c := console.New(cfg.VesselID, b)
			c.Attach(b)
			defer c.Close()
		}

		busDone := make(chan struct{})
		go func() {
			defer close(busDone)
			_ = b.Run(ctx)
		}()

		if ms != nil {
			b.Publish(ms.Command(uuid.NewString()))
		}

		logger.Info("kernel started", "vessel", cfg.VesselID, "simulate", runSimulate, "period", cfg.Control.Period)
		err = loop.Run(ctx)

		<-busDone
		// the driver publishes its shutdown status after the bus stopped
		b.DispatchPending(context.WithoutCancel(ctx))
		wg.Wait()
		logger.Info("kernel stopped", "events", b.Dispatched(), "subscriber_failures", b.Failures())
		return err
	},
}

// newOpener returns the link opener for the serial boards or the simulator.
func newOpener(cfg *config.Config, logger *slog.Logger) driver.Opener {
	if runSimulate {
		logger.Info("using firmware simulator", "start", cfg.Simulator.Start, "obstacles", len(cfg.Simulator.Obstacles))
		sim := firmware.New(cfg.Simulator, cfg.Shore, firmware.WithRand(rand.New(rand.NewSource(time.Now().UnixNano()))))
		return sim.Opener()
	}
	return func(context.Context) (driver.Link, error) {
		p, err := serial.Open(cfg.Serial.Port, cfg.Serial.Baud, cfg.Serial.ReadTimeout)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// loadMission reads a mission file, or builds a named pattern around the
// simulator start position.
func loadMission(name string, cfg *config.Config) (*mission.Mission, error) {
	if _, err := os.Stat(name); err == nil {
		return mission.Load(name)
	}
	if m, ok := mission.BuiltIn(cfg.Simulator.Start)[name]; ok {
		return &m, nil
	}
	return nil, fmt.Errorf("mission %q is neither a file nor a built-in pattern", name)
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "config/usv.yaml", "Path to kernel configuration YAML")
	runCmd.Flags().StringVar(&runSchemaPath, "schema", "schemas/usv.cue", "Path to CUE schema file")
	runCmd.Flags().BoolVar(&runSimulate, "simulate", false, "Drive the built-in firmware simulator instead of the serial port")
	runCmd.Flags().BoolVar(&runPrintOnly, "print-only", false, "Print rows to STDOUT instead of writing to DB")
	runCmd.Flags().StringVar(&runLogFile, "log-file", "", "Path to export sensor, state and actuator rows (JSONL)")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show the operator console")
	runCmd.Flags().StringVar(&runMission, "mission", "", "Mission file or built-in pattern (box, lawnmower)")
}
