package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/FirstDataUnion/vaultsync/internal/store"
	"github.com/FirstDataUnion/vaultsync/internal/ui"
	"github.com/FirstDataUnion/vaultsync/internal/workspace"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show sync status for every workspace",
	Long: `Display the sync condition of each registered workspace.

Shows:
  - Database location and size
  - Conversation and pending-change counts
  - Last sync attempt and outcome
  - Health derived from recent sync history (healthy/degraded/failing)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		registry, err := openRegistry(cfg)
		if err != nil {
			return err
		}

		workspaces := registry.List()
		if len(workspaces) == 0 {
			fmt.Println("No workspaces registered. Run 'vaultsync workspace add' first.")
			return nil
		}

		ctx := cmd.Context()
		for _, ws := range workspaces {
			printWorkspaceStatus(ctx, cfg.DataDir, ws.ID, string(ws.Kind), cfg.Sync.FailingThreshold)
		}
		return nil
	},
}

func printWorkspaceStatus(ctx context.Context, dataDir, wsID, kind string, failingThreshold int) {
	fmt.Printf("\n%s %s %s\n", ui.RenderAccent("●"), ui.RenderHeader(wsID), ui.RenderMuted("("+kind+")"))

	dbPath := workspace.DBPath(dataDir, wsID)
	info, err := os.Stat(dbPath)
	if os.IsNotExist(err) {
		fmt.Printf("  %s never synced (no local database)\n", ui.RenderWarn("⚠"))
		return
	}
	if err != nil {
		fmt.Printf("  %s cannot stat database: %v\n", ui.RenderFail("✗"), err)
		return
	}

	st, err := store.Open(dbPath)
	if err != nil {
		fmt.Printf("  %s cannot open database: %v\n", ui.RenderFail("✗"), err)
		return
	}
	defer st.Close()

	convs, err := st.CountConversations(ctx)
	if err != nil {
		fmt.Printf("  %s query failed: %v\n", ui.RenderFail("✗"), err)
		return
	}
	pending, err := st.CountPending(ctx)
	if err != nil {
		fmt.Printf("  %s query failed: %v\n", ui.RenderFail("✗"), err)
		return
	}

	fmt.Printf("  Database:      %s (%s)\n", dbPath, formatSize(info.Size()))
	fmt.Printf("  Conversations: %d\n", convs)
	if pending > 0 {
		fmt.Printf("  Pending:       %s\n", ui.RenderWarn(fmt.Sprintf("%d", pending)))
	} else {
		fmt.Printf("  Pending:       0\n")
	}

	entries, err := st.ListJournal(ctx, 10)
	if err != nil || len(entries) == 0 {
		fmt.Printf("  Health:        %s\n", ui.RenderMuted("unknown (no sync history)"))
		return
	}

	// Consecutive failures at the head of the journal decide health.
	failures := 0
	for _, e := range entries {
		if e.Error == "" {
			break
		}
		failures++
	}

	health := "healthy"
	switch {
	case failures == 0:
	case failures < failingThreshold:
		health = "degraded"
	default:
		health = "failing"
	}

	last := entries[0]
	fmt.Printf("  Last sync:     %s (%s)\n", last.FinishedAt.Local().Format(time.RFC822), last.Reason)
	if last.Error != "" {
		fmt.Printf("  Last error:    %s\n", ui.RenderFail(last.Error))
	}
	fmt.Printf("  Health:        %s\n", ui.RenderHealth(health))
}

func formatSize(size int64) string {
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size > 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
