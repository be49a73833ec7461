package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export items and sessions as JSON",
		Long:  "Export every item and session you can see to stdout. Restore with import.",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	rt := openDeps(cmd.Context(), os.Stderr)
	defer rt.Close()

	data, err := rt.engine.Export(cmd.Context(), rt.scope(cmd.Context()))
	if err != nil {
		exitErr("export", err)
	}
	printJSON(data)
}
