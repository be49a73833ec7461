package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// ReadTool handles the mnemosyne_read MCP tool.
type ReadTool struct {
	eng Engine
	res Resolver
}

// NewReadTool creates a ReadTool.
func NewReadTool(eng Engine, res Resolver) *ReadTool {
	return &ReadTool{eng: eng, res: res}
}

// Definition returns the MCP tool definition for mnemosyne_read.
func (t *ReadTool) Definition() mcp.Tool {
	return mcp.NewTool("mnemosyne_read",
		mcp.WithDescription("Read a single memory item by id. Use it to expand items reported with has_full=true."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Item id"),
		),
		mcp.WithString("prefer",
			mcp.Description("full (default) or compact"),
			mcp.Enum("full", "compact"),
		),
	)
}

// Handle processes the mnemosyne_read tool call.
func (t *ReadTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope, err := resolveScope(ctx, t.res, req)
	if err != nil {
		return errorResult(err), nil
	}
	full, err := preferFull("read", req, "full")
	if err != nil {
		return errorResult(err), nil
	}

	item, err := t.eng.Read(ctx, scope, req.GetString("id", ""), full)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(item), nil
}
