package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rcliao/mnemosyne/internal/auth"
	"github.com/rcliao/mnemosyne/internal/server"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: "Serve the memory tools over MCP.\n" +
			"stdio runs every call as the configured user; http authenticates each request with a bearer token.",
		Run: runServe,
	}

	cmd.Flags().String("transport", "stdio", "Transport: stdio or http")
	cmd.Flags().String("addr", "", "HTTP listen address (default $MNEMOSYNE_HTTP_ADDR or :8010)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	transport, _ := cmd.Flags().GetString("transport")
	addr, _ := cmd.Flags().GetString("addr")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Logs go to stderr on every transport; stdout carries stdio frames.
	rt := openDeps(ctx, os.Stderr)
	defer rt.Close()

	mcpServer := server.NewMCPServer(rt.engine, rt.resolver, rt.bootstrapDefaults())

	switch transport {
	case "stdio":
		id := auth.Identity{UserID: rt.cfg.Identity.User, SpaceID: rt.cfg.Identity.Space}
		rt.log.Info("serving mcp over stdio", "user_id", id.UserID, "driver", rt.cfg.Database.Driver)
		if err := server.ServeStdio(ctx, mcpServer, id, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
			exitErr("serve stdio", err)
		}

	case "http":
		if err := rt.cfg.ValidateHTTP(); err != nil {
			exitErr("serve http", err)
		}
		if addr == "" {
			addr = rt.cfg.Server.HTTPAddr
		}
		if rt.cfg.Auth.HeaderIdentity {
			rt.log.Warn("trusting identity headers; do not expose this server publicly")
		}
		app := server.NewApp(server.HTTPDeps{
			MCP:    mcpServer,
			Auth:   newAuthenticator(rt),
			Health: rt.store,
			Logger: rt.log,
		})
		rt.log.Info("serving mcp over http", "addr", addr, "path", server.MCPPath, "driver", rt.cfg.Database.Driver)
		if err := server.ListenHTTP(ctx, app, addr); err != nil && ctx.Err() == nil {
			exitErr("serve http", err)
		}

	default:
		exitErr("serve", fmt.Errorf("unknown transport %q (valid: stdio, http)", transport))
	}
	if ctx.Err() != nil {
		rt.log.Info("server stopped")
	}
}

func newAuthenticator(rt *deps) *auth.Authenticator {
	return auth.New(auth.Config{
		Secret:         []byte(rt.cfg.Auth.JWTSecret),
		Issuer:         rt.cfg.Auth.JWTIssuer,
		TTL:            rt.cfg.Auth.JWTTTL,
		HeaderIdentity: rt.cfg.Auth.HeaderIdentity,
	})
}
