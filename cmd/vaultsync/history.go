package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/FirstDataUnion/vaultsync/internal/ui"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:     "history <workspace>",
	GroupID: "sync",
	Short:   "Show recent sync history for a workspace",
	Long: `Show the sync journal for a workspace, newest first.

Each entry records what triggered the sync, how long it took, the merge
counts (inserted/updated/forked), how many rows were uploaded, and the
error if the cycle failed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := openStore(ctx, cfg, args[0])
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.ListJournal(ctx, historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No sync history yet.")
			return nil
		}

		for _, e := range entries {
			when := e.FinishedAt.Local().Format(time.RFC822)
			elapsed := e.FinishedAt.Sub(e.StartedAt).Round(time.Millisecond)

			if e.Error != "" {
				fmt.Printf("%s %s %s (%s) %s\n",
					ui.RenderFail("✗"), ui.RenderMuted(when), e.Reason, elapsed, ui.RenderFail(e.Error))
				continue
			}
			fmt.Printf("%s %s %s (%s) inserted=%d updated=%d forked=%d uploaded=%d\n",
				ui.RenderPass("✓"), ui.RenderMuted(when), e.Reason, elapsed,
				e.Inserted, e.Updated, e.Forked, e.Uploaded)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum entries to print")
	rootCmd.AddCommand(historyCmd)
}
