package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func init() {
	spaceCmd := &cobra.Command{
		Use:   "space",
		Short: "Space management",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the spaces you belong to",
		Run:   runSpaceList,
	}

	createCmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Create a shared space with you as its first member",
		Args:  cobra.ExactArgs(1),
		Run:   runSpaceCreate,
	}
	createCmd.Flags().String("name", "", "Display name (default: id)")

	addCmd := &cobra.Command{
		Use:   "add-member <space> <user>",
		Short: "Add a user to a shared space you belong to",
		Args:  cobra.ExactArgs(2),
		Run:   runSpaceAddMember,
	}

	spaceCmd.AddCommand(listCmd, createCmd, addCmd)
	RootCmd.AddCommand(spaceCmd)
}

func runSpaceList(cmd *cobra.Command, args []string) {
	rt := openDeps(cmd.Context(), os.Stderr)
	defer rt.Close()

	// Resolving first creates the personal space on first use.
	sc := rt.scope(cmd.Context())
	spaces, err := rt.store.ResolveMembership(cmd.Context(), sc.UserID)
	if err != nil {
		exitErr("list spaces", err)
	}
	printJSON(spaces)
}

func runSpaceCreate(cmd *cobra.Command, args []string) {
	name, _ := cmd.Flags().GetString("name")

	rt := openDeps(cmd.Context(), os.Stderr)
	defer rt.Close()

	sc := rt.scope(cmd.Context())
	sp, err := rt.store.CreateSpace(cmd.Context(), args[0], name, sc.UserID)
	if err != nil {
		exitErr("create space", err)
	}
	rt.log.Info("space created", "space_id", sp.ID, "owner", sc.UserID)
	printJSON(sp)
}

func runSpaceAddMember(cmd *cobra.Command, args []string) {
	spaceID, userID := args[0], args[1]

	rt := openDeps(cmd.Context(), os.Stderr)
	defer rt.Close()

	// Only members may invite.
	if _, err := rt.resolver.Resolve(cmd.Context(), rt.cfg.Identity.User, spaceID); err != nil {
		exitErr("add member", err)
	}
	if err := rt.store.AddMember(cmd.Context(), spaceID, userID); err != nil {
		exitErr("add member", err)
	}
	rt.log.Info("member added", "space_id", spaceID, "user_id", userID)
	printJSON(map[string]any{"ok": true, "space_id": spaceID, "user_id": userID})
}
