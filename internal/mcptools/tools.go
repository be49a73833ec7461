// Package mcptools exposes the memory engine as MCP tools.
//
// Every tool follows the same shape:
//   - a struct holding the engine and the space resolver
//   - Definition() returns the mcp.Tool schema
//   - Handle() resolves the caller scope, runs one engine operation and
//     returns the result as JSON text
//
// Failures are returned as tool errors whose text starts with a stable
// code (invalid_argument, access_denied, not_found, storage_unavailable).
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rcliao/mnemosyne/internal/auth"
	"github.com/rcliao/mnemosyne/internal/engine"
	"github.com/rcliao/mnemosyne/internal/model"
)

// Engine is the subset of engine.Engine the tools call.
type Engine interface {
	Bootstrap(ctx context.Context, scope model.Scope, req engine.BootstrapRequest) (*engine.BootstrapResult, error)
	Write(ctx context.Context, scope model.Scope, req engine.WriteRequest) (*engine.WriteResult, error)
	Read(ctx context.Context, scope model.Scope, id string, full bool) (*engine.ItemView, error)
	Search(ctx context.Context, scope model.Scope, req engine.SearchRequest) ([]engine.SearchHit, error)
	CommitSession(ctx context.Context, scope model.Scope, req engine.CommitRequest) (*model.Session, error)
	LastSession(ctx context.Context, scope model.Scope, hint string, n int) ([]model.Session, error)
}

// Resolver maps a caller to its request scope.
type Resolver interface {
	Resolve(ctx context.Context, userID, target string) (model.Scope, error)
}

// Tool is one registrable MCP tool.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// All returns every memory tool. defaults seeds bootstrap arguments the
// caller leaves out.
func All(eng Engine, res Resolver, defaults engine.BootstrapRequest) []Tool {
	return []Tool{
		NewBootstrapTool(eng, res, defaults),
		NewWriteTool(eng, res),
		NewReadTool(eng, res),
		NewSearchTool(eng, res),
		NewCommitSessionTool(eng, res),
		NewLastSessionTool(eng, res),
	}
}

// spaceIDOption is shared by every tool that can target a shared space.
func spaceIDOption() mcp.ToolOption {
	return mcp.WithString("space_id",
		mcp.Description("Shared space to write to (default: the caller's space). Reads always cover every space the caller belongs to."),
	)
}

// resolveScope builds the request scope from the identity in ctx and the
// optional space_id argument.
func resolveScope(ctx context.Context, res Resolver, req mcp.CallToolRequest) (model.Scope, error) {
	id, ok := auth.FromContext(ctx)
	if !ok {
		return model.Scope{}, model.Denied("resolve_space", "request carries no caller identity")
	}
	return res.Resolve(ctx, id.UserID, req.GetString("space_id", id.SpaceID))
}

func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", model.Code(err), err))
}

func jsonResult(v any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("internal: encode result: %v", err))
	}
	return mcp.NewToolResultText(string(b))
}

// intArg extracts an integer argument, returning defaultVal if the key is
// missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// listArg reads a string list from either a native array argument or a
// JSON-encoded string argument. The array form wins when both are set.
func listArg(req mcp.CallToolRequest, arrayKey, jsonKey string) ([]string, error) {
	args := req.GetArguments()
	if raw, ok := args[arrayKey].([]any); ok {
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%s must be an array of strings", arrayKey)
			}
			out = append(out, s)
		}
		return out, nil
	}
	encoded, _ := args[jsonKey].(string)
	if encoded == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(encoded), &out); err != nil {
		return nil, fmt.Errorf("%s must be a JSON array of strings: %v", jsonKey, err)
	}
	return out, nil
}

// preferFull maps prefer=compact|full onto a boolean.
func preferFull(op string, req mcp.CallToolRequest, defaultVal string) (bool, error) {
	switch p := req.GetString("prefer", defaultVal); p {
	case "full":
		return true, nil
	case "compact":
		return false, nil
	default:
		return false, model.Invalid(op, "prefer must be compact or full, got %q", p)
	}
}
