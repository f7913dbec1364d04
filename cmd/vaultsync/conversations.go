package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/FirstDataUnion/vaultsync/internal/store"
	"github.com/FirstDataUnion/vaultsync/internal/ui"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	GroupID: "data",
	Short:   "Inspect conversations in a workspace",
}

var (
	convListTag      string
	convListSource   string
	convListSince    string
	convListArchived bool
	convListPending  bool
	convListLimit    int
)

var conversationsListCmd = &cobra.Command{
	Use:   "list <workspace>",
	Short: "List conversations",
	Long: `List conversations in a workspace, newest first.

The --since flag accepts natural language as well as RFC 3339 timestamps:

  vaultsync conversations list personal --since "last tuesday"
  vaultsync conversations list personal --since "3 days ago"
  vaultsync conversations list personal --tag research --pending`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		registry, err := openRegistry(cfg)
		if err != nil {
			return err
		}
		if _, err := registry.Get(args[0]); err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := openStore(ctx, cfg, args[0])
		if err != nil {
			return err
		}
		defer st.Close()

		filter := store.ListFilter{
			Tag:             convListTag,
			Source:          convListSource,
			IncludeArchived: convListArchived,
			PendingOnly:     convListPending,
			Limit:           convListLimit,
		}

		if convListSince != "" {
			since, err := parseSince(convListSince)
			if err != nil {
				return err
			}
			filter.Since = since
		}

		rows, err := st.ListConversations(ctx, filter)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("No conversations match.")
			return nil
		}

		for _, row := range rows {
			marker := ui.RenderPass("●")
			if row.Pending() {
				marker = ui.RenderWarn("●")
			}
			line := fmt.Sprintf("%s %s  %s", marker, ui.RenderMuted(shortID(row.ID)), row.Title)
			if len(row.Tags) > 0 {
				line += ui.RenderMuted("  [" + strings.Join(row.Tags, ", ") + "]")
			}
			line += ui.RenderMuted("  " + row.UpdatedAt.Local().Format("2006-01-02 15:04"))
			fmt.Println(line)
		}
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// parseSince accepts RFC 3339 or natural language ("yesterday", "2 weeks ago").
func parseSince(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(s, time.Now())
	if err != nil || r == nil {
		return time.Time{}, fmt.Errorf("cannot parse time %q", s)
	}
	return r.Time, nil
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <workspace> <id>",
	Short: "Delete a conversation",
	Long: `Delete a conversation from a workspace.

The deletion is recorded as a pending change and propagates to every
other device on the next sync.`,
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

		if err := st.DeleteConversation(ctx, args[1]); err != nil {
			return err
		}
		fmt.Printf("%s Deleted %s (will propagate on next sync)\n", ui.RenderPass("✓"), args[1])
		return nil
	},
}

func init() {
	conversationsListCmd.Flags().StringVar(&convListTag, "tag", "", "filter by tag")
	conversationsListCmd.Flags().StringVar(&convListSource, "source", "", "filter by source model/provider")
	conversationsListCmd.Flags().StringVar(&convListSince, "since", "", "only conversations updated since (RFC 3339 or natural language)")
	conversationsListCmd.Flags().BoolVar(&convListArchived, "archived", false, "include archived conversations")
	conversationsListCmd.Flags().BoolVar(&convListPending, "pending", false, "only conversations awaiting sync")
	conversationsListCmd.Flags().IntVar(&convListLimit, "limit", 50, "maximum rows to print")

	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
	rootCmd.AddCommand(conversationsCmd)
}
