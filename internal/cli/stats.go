package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-space counts for every space you can see",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	rt := openDeps(cmd.Context(), os.Stderr)
	defer rt.Close()

	st, err := rt.engine.Stats(cmd.Context(), rt.scope(cmd.Context()))
	if err != nil {
		exitErr("stats", err)
	}
	printJSON(st)
}
