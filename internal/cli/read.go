package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "read <id>",
		Short: "Retrieve a memory item by id",
		Args:  cobra.ExactArgs(1),
		Run:   runRead,
	}

	cmd.Flags().Bool("compact", false, "Return the compact form instead of full content")

	RootCmd.AddCommand(cmd)
}

func runRead(cmd *cobra.Command, args []string) {
	compactOnly, _ := cmd.Flags().GetBool("compact")

	rt := openDeps(cmd.Context(), os.Stderr)
	defer rt.Close()

	item, err := rt.engine.Read(cmd.Context(), rt.scope(cmd.Context()), args[0], !compactOnly)
	if err != nil {
		exitErr("read", err)
	}
	printJSON(item)
}
