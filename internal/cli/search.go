package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/mnemosyne/internal/engine"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search across every space you can see",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().IntP("limit", "l", engine.DefaultSearchLimit, "Max results")
	cmd.Flags().Bool("full", false, "Return full content instead of snippets")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	full, _ := cmd.Flags().GetBool("full")

	rt := openDeps(cmd.Context(), os.Stderr)
	defer rt.Close()

	hits, err := rt.engine.Search(cmd.Context(), rt.scope(cmd.Context()), engine.SearchRequest{
		Query: strings.Join(args, " "),
		Limit: limit,
		Full:  full,
	})
	if err != nil {
		exitErr("search", err)
	}
	printJSON(map[string]any{"results": hits, "count": len(hits)})
}
