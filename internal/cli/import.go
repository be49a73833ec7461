package cli

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/mnemosyne/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import items and sessions from JSON",
		Long: "Import a dump produced by export (stdin) into the target space.\n" +
			"Items merge by kind and title, so importing twice does not duplicate.",
		Run: runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		exitErr("read stdin", err)
	}

	var data store.ExportData
	if err := json.Unmarshal(raw, &data); err != nil {
		exitErr("parse json", err)
	}

	rt := openDeps(cmd.Context(), os.Stderr)
	defer rt.Close()

	res, err := rt.engine.Import(cmd.Context(), rt.scope(cmd.Context()), &data)
	if err != nil {
		exitErr("import", err)
	}
	printJSON(res)
}
