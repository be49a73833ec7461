package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rcliao/mnemosyne/internal/engine"
	"github.com/rcliao/mnemosyne/internal/model"
)

// CommitSessionTool handles the mnemosyne_commit_session MCP tool.
type CommitSessionTool struct {
	eng Engine
	res Resolver
}

// NewCommitSessionTool creates a CommitSessionTool.
func NewCommitSessionTool(eng Engine, res Resolver) *CommitSessionTool {
	return &CommitSessionTool{eng: eng, res: res}
}

// Definition returns the MCP tool definition for mnemosyne_commit_session.
func (t *CommitSessionTool) Definition() mcp.Tool {
	return mcp.NewTool("mnemosyne_commit_session",
		mcp.WithDescription(
			"Record what happened in this session before ending it. "+
				"The next session in the same workspace picks it up through bootstrap or last_session.",
		),
		mcp.WithString("workspace_hint",
			mcp.Required(),
			mcp.Description("Workspace the session worked in"),
		),
		mcp.WithString("summary",
			mcp.Required(),
			mcp.Description("What was done"),
		),
		mcp.WithArray("decisions",
			mcp.Description("Decisions made"),
			mcp.WithStringItems(),
		),
		mcp.WithString("decisions_json",
			mcp.Description("Decisions as a JSON array string"),
		),
		mcp.WithArray("next_steps",
			mcp.Description("Open follow-ups"),
			mcp.WithStringItems(),
		),
		mcp.WithString("next_steps_json",
			mcp.Description("Next steps as a JSON array string"),
		),
		spaceIDOption(),
	)
}

// Handle processes the mnemosyne_commit_session tool call.
func (t *CommitSessionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const op = "commit_session"
	scope, err := resolveScope(ctx, t.res, req)
	if err != nil {
		return errorResult(err), nil
	}
	decisions, err := listArg(req, "decisions", "decisions_json")
	if err != nil {
		return errorResult(model.Invalid(op, "%v", err)), nil
	}
	nextSteps, err := listArg(req, "next_steps", "next_steps_json")
	if err != nil {
		return errorResult(model.Invalid(op, "%v", err)), nil
	}

	ss, err := t.eng.CommitSession(ctx, scope, engine.CommitRequest{
		WorkspaceHint: req.GetString("workspace_hint", ""),
		Summary:       req.GetString("summary", ""),
		Decisions:     decisions,
		NextSteps:     nextSteps,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(ss), nil
}

// LastSessionTool handles the mnemosyne_last_session MCP tool.
type LastSessionTool struct {
	eng Engine
	res Resolver
}

// NewLastSessionTool creates a LastSessionTool.
func NewLastSessionTool(eng Engine, res Resolver) *LastSessionTool {
	return &LastSessionTool{eng: eng, res: res}
}

// Definition returns the MCP tool definition for mnemosyne_last_session.
func (t *LastSessionTool) Definition() mcp.Tool {
	return mcp.NewTool("mnemosyne_last_session",
		mcp.WithDescription("Get the most recent session logs for a workspace, newest first."),
		mcp.WithString("workspace_hint",
			mcp.Description("Workspace (default: global)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum sessions (default 3, max 10)"),
		),
	)
}

// Handle processes the mnemosyne_last_session tool call.
func (t *LastSessionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope, err := resolveScope(ctx, t.res, req)
	if err != nil {
		return errorResult(err), nil
	}
	sessions, err := t.eng.LastSession(ctx, scope,
		req.GetString("workspace_hint", ""), intArg(req, "limit", engine.DefaultSessionLimit))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"sessions": sessions, "count": len(sessions)}), nil
}
