package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskpilot/taskpilot/internal/config"
	"github.com/taskpilot/taskpilot/internal/engine"
	"github.com/taskpilot/taskpilot/internal/gateway"
	"github.com/taskpilot/taskpilot/internal/logging"
	"github.com/taskpilot/taskpilot/internal/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tp",
	Short: "Offline-first task tracking",
	Long: `tp is a task tracking client that works with or without a network.

Every change lands in the local cache immediately. When the task server is
reachable the change is confirmed in place; when it is not, the change is
queued and replayed automatically once connectivity returns.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.taskpilot/config.yaml)")
	rootCmd.AddGroup(&cobra.Group{ID: "tasks", Title: "Task commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: "sync", Title: "Sync commands:"})
}

// app bundles the wired client: config, local store, gateway, engine.
type app struct {
	cfg    *config.Config
	store  *store.Store
	gw     gateway.Client
	engine *engine.Engine
}

// openApp wires the client for a short-lived command. It probes the
// gateway once, briefly, so a dead network short-circuits into queueing
// instead of a per-call timeout.
func openApp() (*app, error) {
	return openAppWith(nil)
}

// loadConfigOnly resolves configuration without opening the store, for
// commands that need settings before full wiring.
func loadConfigOnly() (*config.Config, error) {
	return config.Load(configPath)
}

// openAppWith wires the client using the given engine logger (nil for the
// stderr default).
func openAppWith(logger *log.Logger) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}

	gw := gateway.NewHTTPClient(cfg.ServerURL, cfg.AuthToken)

	ecfg := engine.DefaultConfig()
	ecfg.BackoffBase = cfg.Sync.BackoffBase
	ecfg.BackoffMax = cfg.Sync.BackoffMax
	ecfg.MaxAttempts = cfg.Sync.MaxAttempts
	ecfg.Logger = logger
	if cfg.DevMode {
		ecfg.Classifier = gateway.DevClassifier(gateway.Classify)
	}

	eng := engine.New(st, gw, ecfg)

	pctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := gw.Ping(pctx); err != nil {
		eng.SetOnline(false)
	}

	return &app{cfg: cfg, store: st, gw: gw, engine: eng}, nil
}

func (a *app) close() {
	a.engine.Close()
	if err := a.store.Close(); err != nil {
		logging.New("tp").Printf("failed to close store: %v", err)
	}
}

// mustOpen is the command-body entrypoint: wire the app or exit.
func mustOpen() *app {
	a, err := openApp()
	if err != nil {
		fatal("%v", err)
	}
	return a
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
