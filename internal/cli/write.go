package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/mnemosyne/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "write [content]",
		Short: "Store or update a memory item",
		Long: "Store a memory item. Writing the same kind and title again updates the item in place.\n" +
			"Content can be a positional arg or piped via stdin.",
		Run: runWrite,
	}

	cmd.Flags().StringP("kind", "k", "", "Kind: decision, command, pattern, answer, note (required)")
	cmd.Flags().StringP("title", "t", "", "Title (required)")
	cmd.Flags().String("compact", "", "Compact form (derived from content when omitted)")
	cmd.Flags().String("tags", "", "Comma-separated tags (replace the existing set)")
	cmd.Flags().BoolP("pinned", "p", false, "Always include in bootstrap")
	cmd.Flags().IntP("importance", "i", 50, "Importance 0-100")
	cmd.Flags().StringP("hint", "w", "", "Workspace hint, usually the repository name")
	cmd.Flags().String("source", "", "Source label (default: agent)")

	cmd.MarkFlagRequired("kind")
	cmd.MarkFlagRequired("title")

	RootCmd.AddCommand(cmd)
}

func runWrite(cmd *cobra.Command, args []string) {
	kind, _ := cmd.Flags().GetString("kind")
	title, _ := cmd.Flags().GetString("title")
	compactForm, _ := cmd.Flags().GetString("compact")
	tags, _ := cmd.Flags().GetString("tags")
	hint, _ := cmd.Flags().GetString("hint")
	source, _ := cmd.Flags().GetString("source")

	content, err := readContent(args, os.Stdin)
	if err != nil {
		exitErr("write", err)
	}
	if content == "" {
		exitErr("write", errors.New("content is required (positional arg or stdin)"))
	}

	req := engine.WriteRequest{
		Kind:           kind,
		Title:          title,
		Content:        content,
		ContentCompact: compactForm,
		WorkspaceHint:  hint,
		Source:         source,
		Tags:           splitList(tags),
	}
	// Unset flags leave the stored values alone on update.
	if cmd.Flags().Changed("pinned") {
		v, _ := cmd.Flags().GetBool("pinned")
		req.Pinned = &v
	}
	if cmd.Flags().Changed("importance") {
		v, _ := cmd.Flags().GetInt("importance")
		req.Importance = &v
	}

	rt := openDeps(cmd.Context(), os.Stderr)
	defer rt.Close()

	res, err := rt.engine.Write(cmd.Context(), rt.scope(cmd.Context()), req)
	if err != nil {
		exitErr("write", err)
	}
	printJSON(res)
}
