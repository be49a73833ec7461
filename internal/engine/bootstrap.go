package engine

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rcliao/mnemosyne/internal/model"
	"github.com/rcliao/mnemosyne/internal/rank"
	"github.com/rcliao/mnemosyne/internal/store"
)

const (
	DefaultPinnedLimit = 8
	MaxPinnedLimit     = 25
	DefaultRecentLimit = 10
	MaxRecentLimit     = 50
	DefaultMaxItems    = 15
	MaxMaxItems        = 50
	DefaultMaxTokens   = 2000

	// pinnedFetch caps how many pinned items are scored per bootstrap.
	pinnedFetch = 100
)

// BootstrapRequest asks for the session-start context.
type BootstrapRequest struct {
	Mode           model.Mode
	MaxTokens      int
	WorkspaceHint  string
	PinnedLimit    int
	RecentLimit    int
	MaxItems       int
	IncludeSession bool
}

// DefaultBootstrapRequest returns a request with every limit at its default.
func DefaultBootstrapRequest() BootstrapRequest {
	return BootstrapRequest{
		Mode:        model.ModeHybrid,
		MaxTokens:   DefaultMaxTokens,
		PinnedLimit: DefaultPinnedLimit,
		RecentLimit: DefaultRecentLimit,
		MaxItems:    DefaultMaxItems,
	}
}

// BootstrapItem is one selected item.
type BootstrapItem struct {
	ID            string     `json:"id"`
	SpaceID       string     `json:"space_id"`
	Kind          model.Kind `json:"kind"`
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	HasFull       bool       `json:"has_full"`
	Importance    int        `json:"importance"`
	WorkspaceHint string     `json:"workspace_hint,omitempty"`
	Tags          []string   `json:"tags"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Score         float64    `json:"score"`
	Tokens        int        `json:"tokens"`
}

// BootstrapResult is the packed context.
type BootstrapResult struct {
	Mode          model.Mode      `json:"mode"`
	WorkspaceHint string          `json:"workspace_hint"`
	MaxTokens     int             `json:"max_tokens"`
	UsedTokens    int             `json:"used_tokens"`
	Truncated     bool            `json:"truncated"`
	Pinned        []BootstrapItem `json:"pinned"`
	Recent        []BootstrapItem `json:"recent"`
	LastSession   *model.Session  `json:"last_session,omitempty"`
}

// Bootstrap ranks pinned and recent items of the scope and packs them into
// req.MaxTokens. Pinned items are packed first; selection stops at the
// first item that would overflow the budget.
func (e *Engine) Bootstrap(ctx context.Context, scope model.Scope, req BootstrapRequest) (*BootstrapResult, error) {
	const op = "bootstrap"
	if err := checkScope(op, scope); err != nil {
		return nil, err
	}

	mode, err := model.ParseMode(string(req.Mode))
	if err != nil {
		return nil, model.Invalid(op, "%v", err)
	}
	if req.MaxTokens <= 0 {
		return nil, model.Invalid(op, "max_tokens must be positive, got %d", req.MaxTokens)
	}
	pinnedLimit, err := limit(op, "limit_pinned", req.PinnedLimit, MaxPinnedLimit)
	if err != nil {
		return nil, err
	}
	recentLimit, err := limit(op, "limit_recent", req.RecentLimit, MaxRecentLimit)
	if err != nil {
		return nil, err
	}
	maxItems, err := limit(op, "max_items", req.MaxItems, MaxMaxItems)
	if err != nil {
		return nil, err
	}
	hint := strings.TrimSpace(req.WorkspaceHint)
	if hint == "" {
		hint = model.GlobalWorkspace
	}

	cands, err := e.store.Candidates(ctx, store.CandidateParams{
		Allowed:     scope.Allowed,
		PinnedFetch: pinnedFetch,
		RecentFetch: max(3*recentLimit, 2*maxItems),
	})
	if err != nil {
		return nil, model.Unavailable(op, err)
	}

	now := e.now()
	pinned := e.policy.Rank(e.visibleItems(op, scope, cands.Pinned), hint, now)
	recent := e.policy.Rank(e.visibleItems(op, scope, cands.Recent), hint, now)

	sel := e.policy.Pack(pinned, recent, mode, rank.Limits{
		MaxTokens:   req.MaxTokens,
		MaxItems:    maxItems,
		PinnedLimit: pinnedLimit,
		RecentLimit: recentLimit,
	})

	res := &BootstrapResult{
		Mode:          mode,
		WorkspaceHint: hint,
		MaxTokens:     req.MaxTokens,
		UsedTokens:    sel.UsedTokens,
		Truncated:     sel.Truncated,
		Pinned:        bootstrapItems(sel.Pinned),
		Recent:        bootstrapItems(sel.Recent),
	}

	if req.IncludeSession {
		sessions, err := e.LastSession(ctx, scope, hint, 1)
		if err != nil {
			return nil, err
		}
		if len(sessions) > 0 {
			res.LastSession = &sessions[0]
		}
	}

	e.log.Debug("bootstrap packed",
		"user", scope.UserID, "mode", mode, "hint", hint,
		"pinned", len(res.Pinned), "recent", len(res.Recent),
		"used_tokens", res.UsedTokens, "max_tokens", res.MaxTokens)

	return res, nil
}

func bootstrapItems(entries []rank.Entry) []BootstrapItem {
	out := make([]BootstrapItem, len(entries))
	for i, en := range entries {
		it := en.Item
		out[i] = BootstrapItem{
			ID:            it.ID,
			SpaceID:       it.SpaceID,
			Kind:          it.Kind,
			Title:         it.Title,
			Content:       en.Content,
			HasFull:       en.Content != it.Content,
			Importance:    it.Importance,
			WorkspaceHint: it.WorkspaceHint,
			Tags:          it.Tags,
			UpdatedAt:     it.UpdatedAt,
			Score:         math.Round(en.Score*1000) / 1000,
			Tokens:        en.Tokens,
		}
	}
	return out
}

// limit rejects non-positive values and clamps to ceiling.
func limit(op, name string, v, ceiling int) (int, error) {
	if v <= 0 {
		return 0, model.Invalid(op, "%s must be positive, got %d", name, v)
	}
	return min(v, ceiling), nil
}
