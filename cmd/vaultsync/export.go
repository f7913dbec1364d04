package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FirstDataUnion/vaultsync/internal/export"
	"github.com/FirstDataUnion/vaultsync/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export <workspace> <file>",
	GroupID: "data",
	Short:   "Export conversations to a JSONL file",
	Long: `Write every conversation in a workspace to a JSONL file, one JSON
object per line. The export is a portable backup independent of any
sync state.`,
	Args: cobra.ExactArgs(2),
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

		result, err := export.ExportFile(ctx, st, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%s Exported %d conversations to %s\n", ui.RenderPass("✓"), result.Written, args[1])
		return nil
	},
}

var (
	importDryRun    bool
	importOverwrite bool
)

var importCmd = &cobra.Command{
	Use:     "import <workspace> <file>",
	GroupID: "data",
	Short:   "Import conversations from a JSONL file",
	Long: `Read conversations from a JSONL file into a workspace.

Imported conversations enter as pending changes and reach the remote on
the next sync. Existing IDs are skipped unless --overwrite is given.`,
	Args: cobra.ExactArgs(2),
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

		opts := export.Options{DryRun: importDryRun, Overwrite: importOverwrite}
		result, err := export.ImportFile(ctx, st, args[0], args[1], opts)
		if err != nil {
			return err
		}

		verb := "Imported"
		if importDryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %s %d conversations (%d skipped)\n", ui.RenderPass("✓"), verb, result.Written, result.Skipped)
		for _, msg := range result.Errors {
			fmt.Printf("  %s %s\n", ui.RenderWarn("⚠"), msg)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "validate without writing")
	importCmd.Flags().BoolVar(&importOverwrite, "overwrite", false, "replace conversations with matching IDs")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
