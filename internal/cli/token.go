package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/mnemosyne/internal/auth"
	"github.com/rcliao/mnemosyne/internal/config"
)

func init() {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Manage bearer tokens for the HTTP transport",
	}

	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed token for a user",
		Long:  "Issue a token signed with $MNEMOSYNE_JWT_SECRET. --user and --space set its claims.",
		Run:   runTokenIssue,
	}

	tokenCmd.AddCommand(issueCmd)
	RootCmd.AddCommand(tokenCmd)
}

func runTokenIssue(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if len(cfg.Auth.JWTSecret) < config.MinSecretLen {
		exitErr("issue token", fmt.Errorf("MNEMOSYNE_JWT_SECRET must be at least %d characters", config.MinSecretLen))
	}

	a := auth.New(auth.Config{
		Secret: []byte(cfg.Auth.JWTSecret),
		Issuer: cfg.Auth.JWTIssuer,
		TTL:    cfg.Auth.JWTTTL,
	})
	tok, err := a.Issue(cfg.Identity.User, cfg.Identity.Space)
	if err != nil {
		exitErr("issue token", err)
	}
	printJSON(map[string]any{
		"token":      tok,
		"user_id":    cfg.Identity.User,
		"space_id":   cfg.Identity.Space,
		"expires_in": cfg.Auth.JWTTTL.String(),
	})
}
