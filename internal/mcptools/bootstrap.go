package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rcliao/mnemosyne/internal/engine"
	"github.com/rcliao/mnemosyne/internal/model"
)

// BootstrapTool handles the mnemosyne_bootstrap MCP tool.
type BootstrapTool struct {
	eng      Engine
	res      Resolver
	defaults engine.BootstrapRequest
}

// NewBootstrapTool creates a BootstrapTool.
func NewBootstrapTool(eng Engine, res Resolver, defaults engine.BootstrapRequest) *BootstrapTool {
	return &BootstrapTool{eng: eng, res: res, defaults: defaults}
}

// Definition returns the MCP tool definition for mnemosyne_bootstrap.
func (t *BootstrapTool) Definition() mcp.Tool {
	return mcp.NewTool("mnemosyne_bootstrap",
		mcp.WithDescription(
			"Return startup context: the highest-ranked pinned and recent memories for this workspace, "+
				"packed into a token budget. Call this at the start of every session.",
		),
		mcp.WithString("workspace_hint",
			mcp.Description("Workspace (usually the repository name) to favor (default: global)"),
		),
		mcp.WithString("mode",
			mcp.Description("thin: compact content only; hybrid: full content for short commands and patterns; full: full content"),
			mcp.Enum("thin", "hybrid", "full"),
		),
		mcp.WithNumber("max_tokens",
			mcp.Description("Token budget for the whole response"),
		),
		mcp.WithNumber("limit_pinned",
			mcp.Description("Maximum pinned items (default 8, max 25)"),
		),
		mcp.WithNumber("limit_recent",
			mcp.Description("Maximum recent items (default 10, max 50)"),
		),
		mcp.WithNumber("max_items",
			mcp.Description("Maximum items overall (default 15, max 50)"),
		),
		mcp.WithBoolean("include_sessions",
			mcp.Description("Attach the latest session for the workspace"),
		),
		spaceIDOption(),
	)
}

// Handle processes the mnemosyne_bootstrap tool call.
func (t *BootstrapTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope, err := resolveScope(ctx, t.res, req)
	if err != nil {
		return errorResult(err), nil
	}

	d := t.defaults
	res, err := t.eng.Bootstrap(ctx, scope, engine.BootstrapRequest{
		Mode:           model.Mode(req.GetString("mode", string(d.Mode))),
		MaxTokens:      intArg(req, "max_tokens", d.MaxTokens),
		WorkspaceHint:  req.GetString("workspace_hint", d.WorkspaceHint),
		PinnedLimit:    intArg(req, "limit_pinned", d.PinnedLimit),
		RecentLimit:    intArg(req, "limit_recent", d.RecentLimit),
		MaxItems:       intArg(req, "max_items", d.MaxItems),
		IncludeSession: boolArg(req, "include_sessions", d.IncludeSession),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(res), nil
}
