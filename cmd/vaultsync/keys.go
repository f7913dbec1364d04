package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FirstDataUnion/vaultsync/internal/schema"
	"github.com/FirstDataUnion/vaultsync/internal/ui"
)

var keysCmd = &cobra.Command{
	Use:     "keys",
	GroupID: "data",
	Short:   "Manage provider API keys",
	Long: `Manage the API keys stored in a workspace.

Keys sync across your own devices through personal workspaces only.
Shared workspaces never carry them: they are stripped from every
snapshot a shared workspace uploads or downloads.`,
}

var keysSetCmd = &cobra.Command{
	Use:   "set <workspace> <provider> <key>",
	Short: "Store or replace a provider's API key",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		registry, err := openRegistry(cfg)
		if err != nil {
			return err
		}
		ws, err := registry.Get(args[0])
		if err != nil {
			return err
		}
		// Keys stored in a shared workspace would sit pending forever:
		// shared snapshots never carry the api_keys table.
		if ws.IsShared() {
			return fmt.Errorf("workspace %q is shared; API keys are stored in personal workspaces only", ws.ID)
		}

		ctx := cmd.Context()
		st, err := openStore(ctx, cfg, args[0])
		if err != nil {
			return err
		}
		defer st.Close()

		key := &schema.APIKey{Provider: args[1], Key: args[2]}
		key.SetDefaults()
		if err := st.PutAPIKey(ctx, key); err != nil {
			return err
		}
		fmt.Printf("%s Stored key for %s\n", ui.RenderPass("✓"), ui.RenderAccent(args[1]))
		return nil
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list <workspace>",
	Short: "List stored providers",
	Args:  cobra.ExactArgs(1),
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

		keys, err := st.ListAPIKeys(ctx)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Println("No API keys stored.")
			return nil
		}

		for _, k := range keys {
			marker := ui.RenderPass("●")
			if k.Pending() {
				marker = ui.RenderWarn("●")
			}
			fmt.Printf("%s %s  %s\n", marker, ui.RenderAccent(k.Provider), ui.RenderMuted(redactKey(k.Key)))
		}
		return nil
	},
}

var keysDeleteCmd = &cobra.Command{
	Use:   "delete <workspace> <provider>",
	Short: "Delete a provider's API key",
	Args:  cobra.ExactArgs(2),
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

		if err := st.DeleteAPIKey(ctx, args[1]); err != nil {
			return err
		}
		fmt.Printf("%s Deleted key for %s\n", ui.RenderPass("✓"), args[1])
		return nil
	},
}

// redactKey shows enough of a key to recognize it and no more.
func redactKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "…" + key[len(key)-4:]
}

func init() {
	keysCmd.AddCommand(keysSetCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysDeleteCmd)
	rootCmd.AddCommand(keysCmd)
}
