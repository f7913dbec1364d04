package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/FirstDataUnion/vaultsync/internal/schema"
	"github.com/FirstDataUnion/vaultsync/internal/ui"
)

var workspaceCmd = &cobra.Command{
	Use:     "workspace",
	GroupID: "sync",
	Short:   "Manage registered workspaces",
	Long: `Manage the workspaces this device syncs.

A personal workspace stores its snapshots in the app's private Drive
storage, invisible to other applications and users. A shared workspace
stores them in an ordinary Drive folder that every member can access.`,
}

var (
	workspaceAddName    string
	workspaceAddShared  bool
	workspaceAddFolder  string
	workspaceAddMembers []string
)

var workspaceAddCmd = &cobra.Command{
	Use:   "add [id]",
	Short: "Register a workspace",
	Long: `Register a workspace on this device.

With no flags, an interactive form collects the details. Shared workspaces
need the Drive folder ID that holds (or will hold) the snapshot pair.`,
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

		ws := &schema.Workspace{Kind: schema.KindPersonal}
		if len(args) == 1 {
			ws.ID = args[0]
		}
		ws.Name = workspaceAddName
		if workspaceAddShared {
			ws.Kind = schema.KindShared
			ws.FolderID = workspaceAddFolder
			ws.Members = workspaceAddMembers
		}

		// Interactive when the command line didn't fully describe the
		// workspace.
		if ws.ID == "" || ws.Name == "" || (workspaceAddShared && ws.FolderID == "") {
			if err := workspaceForm(ws); err != nil {
				return err
			}
		}

		if err := registry.Add(ws); err != nil {
			return err
		}

		fmt.Printf("%s Registered %s workspace %s\n", ui.RenderPass("✓"), ws.Kind, ui.RenderAccent(ws.ID))
		fmt.Println("  Run 'vaultsync sync " + ws.ID + "' to sync it now.")
		return nil
	},
}

// workspaceForm fills in missing workspace fields interactively.
func workspaceForm(ws *schema.Workspace) error {
	shared := ws.Kind == schema.KindShared
	var members string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Workspace ID").
				Description("Short identifier, e.g. 'personal' or 'team-research'").
				Value(&ws.ID),
			huh.NewInput().
				Title("Display name").
				Value(&ws.Name),
			huh.NewConfirm().
				Title("Shared with other people?").
				Value(&shared),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Drive folder ID").
				Description("The shared Drive folder holding this workspace's snapshots").
				Value(&ws.FolderID),
			huh.NewInput().
				Title("Members").
				Description("Comma-separated display names (optional)").
				Value(&members),
		).WithHideFunc(func() bool { return !shared }),
	)

	if err := form.Run(); err != nil {
		return err
	}

	if shared {
		ws.Kind = schema.KindShared
		for _, m := range strings.Split(members, ",") {
			if m = strings.TrimSpace(m); m != "" {
				ws.Members = append(ws.Members, m)
			}
		}
	} else {
		ws.Kind = schema.KindPersonal
		ws.FolderID = ""
		ws.Members = nil
	}
	return nil
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered workspaces",
	Args:  cobra.NoArgs,
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
			fmt.Println("No workspaces registered.")
			return nil
		}

		for _, ws := range workspaces {
			line := fmt.Sprintf("%s  %s (%s)", ui.RenderAccent(ws.ID), ws.Name, ws.Kind)
			if ws.IsShared() {
				line += ui.RenderMuted(fmt.Sprintf("  folder=%s members=%d", ws.FolderID, len(ws.Members)))
			}
			fmt.Println(line)
		}
		return nil
	},
}

var workspaceRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Unregister a workspace",
	Long: `Remove a workspace from this device's registry.

The local database file and the remote snapshots are left untouched;
only the registration is removed.`,
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

		if err := registry.Remove(args[0]); err != nil {
			return err
		}
		fmt.Printf("%s Removed workspace %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

func init() {
	workspaceAddCmd.Flags().StringVar(&workspaceAddName, "name", "", "display name")
	workspaceAddCmd.Flags().BoolVar(&workspaceAddShared, "shared", false, "shared workspace")
	workspaceAddCmd.Flags().StringVar(&workspaceAddFolder, "folder", "", "Drive folder ID (shared only)")
	workspaceAddCmd.Flags().StringSliceVar(&workspaceAddMembers, "member", nil, "member display name (repeatable)")

	workspaceCmd.AddCommand(workspaceAddCmd)
	workspaceCmd.AddCommand(workspaceListCmd)
	workspaceCmd.AddCommand(workspaceRemoveCmd)
	rootCmd.AddCommand(workspaceCmd)
}
