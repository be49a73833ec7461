package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/mnemosyne/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Assemble session-start context within a token budget",
		Long: "Rank pinned and recent memories for a workspace and pack them into a token budget.\n" +
			"Modes: thin (compact only), hybrid (full text for short commands and patterns), full.",
		Run: runBootstrap,
	}

	cmd.Flags().StringP("mode", "m", "", "Mode: thin, hybrid, full (default hybrid)")
	cmd.Flags().IntP("budget", "b", 0, "Max tokens (default $MNEMOSYNE_DEFAULT_MAX_TOKENS)")
	cmd.Flags().StringP("hint", "w", "", "Workspace hint, usually the repository name")
	cmd.Flags().Int("pinned-limit", 0, "Max pinned items considered")
	cmd.Flags().Int("recent-limit", 0, "Max recent items considered")
	cmd.Flags().Int("max-items", 0, "Max items returned")
	cmd.Flags().Bool("session", false, "Include the last session of the workspace")

	RootCmd.AddCommand(cmd)
}

func runBootstrap(cmd *cobra.Command, args []string) {
	rt := openDeps(cmd.Context(), os.Stderr)
	defer rt.Close()

	req := rt.bootstrapDefaults()
	if v, _ := cmd.Flags().GetString("mode"); v != "" {
		mode, err := model.ParseMode(v)
		if err != nil {
			exitErr("bootstrap", err)
		}
		req.Mode = mode
	}
	if cmd.Flags().Changed("budget") {
		req.MaxTokens, _ = cmd.Flags().GetInt("budget")
	}
	if cmd.Flags().Changed("pinned-limit") {
		req.PinnedLimit, _ = cmd.Flags().GetInt("pinned-limit")
	}
	if cmd.Flags().Changed("recent-limit") {
		req.RecentLimit, _ = cmd.Flags().GetInt("recent-limit")
	}
	if cmd.Flags().Changed("max-items") {
		req.MaxItems, _ = cmd.Flags().GetInt("max-items")
	}
	req.WorkspaceHint, _ = cmd.Flags().GetString("hint")
	req.IncludeSession, _ = cmd.Flags().GetBool("session")

	res, err := rt.engine.Bootstrap(cmd.Context(), rt.scope(cmd.Context()), req)
	if err != nil {
		exitErr("bootstrap", err)
	}
	printJSON(res)
}
