package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskpilot/taskpilot/internal/logging"
	"github.com/taskpilot/taskpilot/internal/trigger"
	"github.com/taskpilot/taskpilot/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the replay loop in the foreground",
	Long: `Run the sync daemon: a long-lived replay loop with every wake trigger
active.

The daemon wakes on:
  - the retry schedule of queued changes
  - connectivity returning (gateway probe)
  - other tp invocations writing the local database
  - companion processes connecting to the wake socket (if configured)
  - a coarse periodic tick as a backstop

Press Ctrl+C to stop. Queued changes survive restarts.`,
	Run: func(cmd *cobra.Command, args []string) {
		// Rotating file logs only make sense for the long-running process.
		var a *app
		{
			cfg, err := loadConfigOnly()
			if err != nil {
				fatal("%v", err)
			}
			logger := logging.NewRotating("engine", cfg.LogFile)
			a, err = openAppWith(logger)
			if err != nil {
				fatal("%v", err)
			}
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger := logging.NewRotating("daemon", a.cfg.LogFile)

		sources := []trigger.Source{
			trigger.NewProbe(a.gw, a.engine, a.cfg.Sync.ProbeInterval, logger),
			trigger.NewTicker(a.engine, a.cfg.Sync.TickInterval),
			trigger.NewWatcher(a.cfg.DBPath(), a.engine, logger),
		}
		if addr := a.cfg.Sync.WakeListenAddr; addr != "" {
			sources = append(sources, trigger.NewWakeListener(addr, a.engine, logger))
		}

		fmt.Printf("%s Sync daemon running\n", ui.RenderAccent(">"))
		fmt.Printf("   Server: %s\n", a.cfg.ServerURL)
		fmt.Printf("   Cache:  %s\n", a.cfg.DBPath())
		if a.cfg.Sync.WakeListenAddr != "" {
			fmt.Printf("   Wake:   ws://%s/wake\n", a.cfg.Sync.WakeListenAddr)
		}
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		// Drain anything already due before settling into trigger-driven
		// operation.
		a.engine.Kick()

		trigger.NewGroup(logger, sources...).Run(ctx)
		fmt.Printf("\n%s Daemon stopped\n", ui.RenderMuted(">"))
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
