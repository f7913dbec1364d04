package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	syncpkg "github.com/FirstDataUnion/vaultsync/internal/sync"
	"github.com/FirstDataUnion/vaultsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync [workspace]",
	GroupID: "sync",
	Short:   "Sync workspaces with Google Drive now",
	Long: `Run an immediate sync for one workspace, or for every registered
workspace when no argument is given.

A sync downloads the remote snapshot, merges it into the local database,
uploads the merged result and marks the carried rows as synced. Concurrent
edits from another device become conflict copies rather than overwrites.

Manual syncs ignore any failure backoff window.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		registry, err := openRegistry(cfg)
		if err != nil {
			return err
		}

		targets := registry.List()
		if len(args) == 1 {
			ws, err := registry.Get(args[0])
			if err != nil {
				return err
			}
			targets = targets[:0]
			targets = append(targets, ws)
		}
		if len(targets) == 0 {
			fmt.Println("No workspaces registered. Run 'vaultsync workspace add' first.")
			return nil
		}

		ctx := cmd.Context()
		logger := log.New(os.Stderr, "[sync] ", log.LstdFlags)
		engine, err := newEngine(ctx, cfg, logger, nil)
		if err != nil {
			return err
		}

		failed := 0
		for _, ws := range targets {
			st, err := openStore(ctx, cfg, ws.ID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error opening workspace %s: %v\n", ws.ID, err)
				failed++
				continue
			}

			start := time.Now()
			report, err := engine.SyncWorkspace(ctx, ws, st, syncpkg.TriggerManual)
			st.Close()
			if err != nil {
				fmt.Printf("%s %s: %v\n", ui.RenderFail("✗"), ws.ID, err)
				failed++
				continue
			}

			elapsed := time.Since(start).Round(time.Millisecond)
			if report.FirstSync {
				fmt.Printf("%s %s: first sync complete in %v (uploaded %d)\n",
					ui.RenderPass("✓"), ws.ID, elapsed, report.Uploaded)
				continue
			}
			fmt.Printf("%s %s: synced in %v (inserted %d, updated %d, forked %d, uploaded %d)\n",
				ui.RenderPass("✓"), ws.ID, elapsed,
				report.Merge.Inserted, report.Merge.Updated, report.Merge.Forked, report.Uploaded)
		}

		if failed > 0 {
			return fmt.Errorf("%d workspace(s) failed to sync", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
