package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/mnemosyne/internal/engine"
)

func init() {
	commitCmd := &cobra.Command{
		Use:   "commit [summary]",
		Short: "Record the end of a working session",
		Long:  "Record a session summary. It is linked after the previous session of the same workspace and space.",
		Run:   runCommit,
	}
	commitCmd.Flags().StringP("hint", "w", "", "Workspace hint, usually the repository name")
	commitCmd.Flags().StringArray("decision", nil, "Decision made in the session (repeatable)")
	commitCmd.Flags().StringArray("next", nil, "Next step (repeatable)")

	lastCmd := &cobra.Command{
		Use:   "last",
		Short: "Show the latest sessions of a workspace across your spaces",
		Run:   runSessionLast,
	}
	lastCmd.Flags().StringP("hint", "w", "", "Workspace hint")
	lastCmd.Flags().IntP("limit", "l", engine.DefaultSessionLimit, "Max sessions")

	chainCmd := &cobra.Command{
		Use:   "chain",
		Short: "Walk the predecessor chain of a workspace in one space",
		Run:   runSessionChain,
	}
	chainCmd.Flags().StringP("hint", "w", "", "Workspace hint")
	chainCmd.Flags().IntP("limit", "l", engine.MaxSessionLimit, "Max sessions")

	RootCmd.AddCommand(commitCmd, lastCmd, chainCmd)
}

func runCommit(cmd *cobra.Command, args []string) {
	hint, _ := cmd.Flags().GetString("hint")
	decisions, _ := cmd.Flags().GetStringArray("decision")
	next, _ := cmd.Flags().GetStringArray("next")

	summary, err := readContent(args, os.Stdin)
	if err != nil {
		exitErr("commit", err)
	}
	if summary == "" {
		exitErr("commit", errors.New("summary is required (positional arg or stdin)"))
	}

	rt := openDeps(cmd.Context(), os.Stderr)
	defer rt.Close()

	ss, err := rt.engine.CommitSession(cmd.Context(), rt.scope(cmd.Context()), engine.CommitRequest{
		WorkspaceHint: hint,
		Summary:       summary,
		Decisions:     decisions,
		NextSteps:     next,
	})
	if err != nil {
		exitErr("commit", err)
	}
	printJSON(ss)
}

func runSessionLast(cmd *cobra.Command, args []string) {
	hint, _ := cmd.Flags().GetString("hint")
	limit, _ := cmd.Flags().GetInt("limit")

	rt := openDeps(cmd.Context(), os.Stderr)
	defer rt.Close()

	sessions, err := rt.engine.LastSession(cmd.Context(), rt.scope(cmd.Context()), hint, limit)
	if err != nil {
		exitErr("last session", err)
	}
	printJSON(map[string]any{"sessions": sessions, "count": len(sessions)})
}

func runSessionChain(cmd *cobra.Command, args []string) {
	hint, _ := cmd.Flags().GetString("hint")
	limit, _ := cmd.Flags().GetInt("limit")

	rt := openDeps(cmd.Context(), os.Stderr)
	defer rt.Close()

	sc := rt.scope(cmd.Context())
	chain, err := rt.engine.SessionChain(cmd.Context(), sc, hint, sc.WriteSpace, limit)
	if err != nil {
		exitErr("session chain", err)
	}
	printJSON(map[string]any{"sessions": chain, "count": len(chain)})
}
