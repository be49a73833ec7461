package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rcliao/mnemosyne/internal/engine"
	"github.com/rcliao/mnemosyne/internal/model"
)

// WriteTool handles the mnemosyne_write MCP tool.
type WriteTool struct {
	eng Engine
	res Resolver
}

// NewWriteTool creates a WriteTool.
func NewWriteTool(eng Engine, res Resolver) *WriteTool {
	return &WriteTool{eng: eng, res: res}
}

// Definition returns the MCP tool definition for mnemosyne_write.
func (t *WriteTool) Definition() mcp.Tool {
	return mcp.NewTool("mnemosyne_write",
		mcp.WithDescription(
			"Store a memory. Writing the same kind and title again updates the existing item in place, "+
				"so reuse titles for facts that evolve.",
		),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("decision, command, pattern, answer or note"),
			mcp.Enum("decision", "command", "pattern", "answer", "note"),
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Short, stable title; the dedup key together with kind"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Full content"),
		),
		mcp.WithString("content_compact",
			mcp.Description("Optional summary (max 200 characters); derived from content when omitted"),
		),
		mcp.WithBoolean("pinned",
			mcp.Description("Always consider for bootstrap"),
		),
		mcp.WithNumber("importance",
			mcp.Description("0-100 (default 50)"),
		),
		mcp.WithString("workspace_hint",
			mcp.Description("Workspace this memory belongs to"),
		),
		mcp.WithString("source",
			mcp.Description("Who wrote it (default: agent)"),
		),
		mcp.WithArray("tags",
			mcp.Description("Tags"),
			mcp.WithStringItems(),
		),
		mcp.WithString("tags_json",
			mcp.Description(`Tags as a JSON array string, e.g. ["go","sqlite"]`),
		),
		spaceIDOption(),
	)
}

// Handle processes the mnemosyne_write tool call.
func (t *WriteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const op = "write"
	scope, err := resolveScope(ctx, t.res, req)
	if err != nil {
		return errorResult(err), nil
	}

	tags, err := listArg(req, "tags", "tags_json")
	if err != nil {
		return errorResult(model.Invalid(op, "%v", err)), nil
	}

	w := engine.WriteRequest{
		Kind:           req.GetString("kind", ""),
		Title:          req.GetString("title", ""),
		Content:        req.GetString("content", ""),
		ContentCompact: req.GetString("content_compact", ""),
		WorkspaceHint:  req.GetString("workspace_hint", ""),
		Source:         req.GetString("source", ""),
		Tags:           tags,
	}
	args := req.GetArguments()
	if v, ok := args["pinned"].(bool); ok {
		w.Pinned = &v
	}
	if v, ok := args["importance"].(float64); ok {
		imp := int(v)
		w.Importance = &imp
	}

	res, err := t.eng.Write(ctx, scope, w)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(res), nil
}
