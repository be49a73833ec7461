// Package server wires the memory tools into an MCP server and exposes it
// over stdio or HTTP. No business logic lives here, only wiring.
package server

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rcliao/mnemosyne/internal/auth"
	"github.com/rcliao/mnemosyne/internal/engine"
	"github.com/rcliao/mnemosyne/internal/mcptools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// NewMCPServer creates the MCP server with every memory tool registered.
func NewMCPServer(eng mcptools.Engine, res mcptools.Resolver, defaults engine.BootstrapRequest) *server.MCPServer {
	s := server.NewMCPServer(
		"mnemosyne",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	for _, tool := range mcptools.All(eng, res, defaults) {
		s.AddTool(tool.Definition(), tool.Handle)
	}
	return s
}

// ServeStdio serves s over in/out until ctx is cancelled or in is closed.
// Every request runs as id.
func ServeStdio(ctx context.Context, s *server.MCPServer, id auth.Identity, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s)
	stdio.SetContextFunc(func(ctx context.Context) context.Context {
		return auth.WithIdentity(ctx, id)
	})
	return stdio.Listen(ctx, in, out)
}

const instructions = `Mnemosyne is your persistent memory across sessions.

- Call mnemosyne_bootstrap at session start with the repository name as workspace_hint.
- Store durable knowledge with mnemosyne_write. Reuse the same kind and title to update a fact instead of adding a new one.
- Items with has_full=true were shortened; call mnemosyne_read for the full text.
- Before ending, call mnemosyne_commit_session with a summary, decisions and next steps.`
