package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/FirstDataUnion/vaultsync/internal/daemon"
	"github.com/FirstDataUnion/vaultsync/internal/dashboard"
	syncpkg "github.com/FirstDataUnion/vaultsync/internal/sync"
)

var daemonDashboardPort int

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync daemon",
	Long: `Run vaultsync in the foreground as a daemon.

The daemon:
  1. Syncs every registered workspace on startup
  2. Watches workspace databases and syncs shortly after local writes
  3. Syncs every workspace on a fixed interval
  4. Optionally serves a WebSocket dashboard of sync events

Stop it with Ctrl-C or SIGTERM; in-flight syncs finish first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger := log.New(cfg.LogWriter(), "[daemon] ", log.LstdFlags)

		registry, err := openRegistry(cfg)
		if err != nil {
			return err
		}

		ctx := cmd.Context()

		var notifier syncpkg.Notifier
		var dash *dashboard.Server
		port := daemonDashboardPort
		if port == 0 {
			port = cfg.Daemon.DashboardPort
		}
		if port > 0 {
			dash = dashboard.NewServer(&dashboard.Config{Port: port, Logger: logger})
			if err := dash.Start(); err != nil {
				return err
			}
			defer dash.Stop()
			notifier = dash
		}

		engine, err := newEngine(ctx, cfg, log.New(cfg.LogWriter(), "[sync] ", log.LstdFlags), notifier)
		if err != nil {
			return err
		}

		daemonCfg := &daemon.Config{
			SyncInterval:     cfg.Daemon.SyncInterval,
			DebounceInterval: cfg.Daemon.DebounceInterval,
			Logger:           logger,
		}
		d, err := daemon.New(engine, registry, cfg.DataDir, daemonCfg)
		if err != nil {
			return err
		}

		sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		return d.Start(sigCtx)
	},
}

func init() {
	daemonCmd.Flags().IntVar(&daemonDashboardPort, "dashboard-port", 0, "serve the WebSocket dashboard on this port")
	rootCmd.AddCommand(daemonCmd)
}
