package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/FirstDataUnion/vaultsync/internal/drive"
	"github.com/FirstDataUnion/vaultsync/internal/ui"
)

var authCmd = &cobra.Command{
	Use:     "auth",
	GroupID: "sync",
	Short:   "Authenticate with Google Drive",
	Long: `Authorize vaultsync to access Google Drive.

Requires OAuth client credentials (credentials.json) from the Google
Cloud console, placed at the configured credentials path. The granted
token is cached locally and refreshed automatically.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		oauthCfg, err := drive.LoadOAuthConfig(cfg.CredentialsFile)
		if err != nil {
			return fmt.Errorf("failed to load credentials from %s: %w", cfg.CredentialsFile, err)
		}

		url := oauthCfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
		fmt.Println("Open this URL in your browser and authorize vaultsync:")
		fmt.Printf("\n  %s\n\n", ui.RenderAccent(url))
		fmt.Print("Paste the authorization code here: ")

		reader := bufio.NewReader(os.Stdin)
		code, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read authorization code: %w", err)
		}
		code = strings.TrimSpace(code)
		if code == "" {
			return fmt.Errorf("no authorization code given")
		}

		tok, err := oauthCfg.Exchange(cmd.Context(), code)
		if err != nil {
			return fmt.Errorf("failed to exchange authorization code: %w", err)
		}

		if err := drive.SaveToken(cfg.TokenFile, tok); err != nil {
			return err
		}

		fmt.Printf("%s Authenticated. Token saved to %s\n", ui.RenderPass("✓"), cfg.TokenFile)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
}
