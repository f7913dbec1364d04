// Command vaultsync syncs local conversation workspaces with Google Drive.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/FirstDataUnion/vaultsync/internal/config"
	"github.com/FirstDataUnion/vaultsync/internal/drive"
	"github.com/FirstDataUnion/vaultsync/internal/store"
	syncpkg "github.com/FirstDataUnion/vaultsync/internal/sync"
	"github.com/FirstDataUnion/vaultsync/internal/workspace"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "vaultsync",
	Short: "Local-first workspace sync for conversation vaults",
	Long: `vaultsync keeps local SQLite conversation workspaces in sync with
Google Drive. Personal workspaces live in the app's private Drive storage;
shared workspaces live in a Drive folder visible to every member.

Changes are tracked per row. Concurrent edits from two devices never lose
data: the losing copy is kept as a conflict conversation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.vaultsync/config.yaml)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "data", Title: "Data Commands:"},
	)
}

// loadConfig loads settings honoring the --config flag.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// openRegistry loads the workspace registry for the configured data dir.
func openRegistry(cfg *config.Config) (*workspace.Registry, error) {
	return workspace.Load(cfg.DataDir)
}

// openStore opens and initializes a workspace database.
func openStore(ctx context.Context, cfg *config.Config, workspaceID string) (*store.Store, error) {
	st, err := store.Open(workspace.DBPath(cfg.DataDir, workspaceID))
	if err != nil {
		return nil, err
	}
	if err := st.InitSchema(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// newEngine builds the sync service backed by Google Drive.
func newEngine(ctx context.Context, cfg *config.Config, logger *log.Logger, notifier syncpkg.Notifier) (*syncpkg.Service, error) {
	oauthCfg, err := drive.LoadOAuthConfig(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials (run 'vaultsync auth' first): %w", err)
	}

	ts, err := drive.TokenSource(ctx, oauthCfg, cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("not authenticated (run 'vaultsync auth'): %w", err)
	}

	client, err := drive.NewClient(ctx, ts, logger)
	if err != nil {
		return nil, err
	}

	deviceID, err := cfg.EnsureDeviceID()
	if err != nil {
		return nil, err
	}

	engineCfg := syncpkg.DefaultConfig()
	engineCfg.DeviceID = deviceID
	engineCfg.DeviceName = cfg.DeviceName
	engineCfg.Username = cfg.Username
	engineCfg.FailingThreshold = cfg.Sync.FailingThreshold
	engineCfg.BackoffBase = cfg.Sync.BackoffBase
	engineCfg.BackoffMax = cfg.Sync.BackoffMax
	if logger != nil {
		engineCfg.Logger = logger
	}

	return syncpkg.New(client, engineCfg, notifier), nil
}
