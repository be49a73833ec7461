package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rcliao/mnemosyne/internal/engine"
)

// SearchTool handles the mnemosyne_search MCP tool.
type SearchTool struct {
	eng Engine
	res Resolver
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(eng Engine, res Resolver) *SearchTool {
	return &SearchTool{eng: eng, res: res}
}

// Definition returns the MCP tool definition for mnemosyne_search.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("mnemosyne_search",
		mcp.WithDescription(
			"Full-text search over every memory visible to you, best match first. "+
				"Results carry compact content; read an id for the full text.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Words to search for"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results (default 8, max 25)"),
		),
		mcp.WithString("prefer",
			mcp.Description("compact (default) or full"),
			mcp.Enum("compact", "full"),
		),
	)
}

// Handle processes the mnemosyne_search tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope, err := resolveScope(ctx, t.res, req)
	if err != nil {
		return errorResult(err), nil
	}
	full, err := preferFull("search", req, "compact")
	if err != nil {
		return errorResult(err), nil
	}

	hits, err := t.eng.Search(ctx, scope, engine.SearchRequest{
		Query: req.GetString("query", ""),
		Limit: intArg(req, "limit", engine.DefaultSearchLimit),
		Full:  full,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{"results": hits, "count": len(hits)}), nil
}
