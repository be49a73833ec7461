package engine

import (
	"context"
	"strings"
	"time"

	"github.com/rcliao/mnemosyne/internal/model"
)

// ItemView is an item as returned to callers: one content field, either
// full or compact, plus whether more is available.
type ItemView struct {
	ID            string     `json:"id"`
	SpaceID       string     `json:"space_id"`
	Kind          model.Kind `json:"kind"`
	Title         string     `json:"title"`
	Content       string     `json:"content"`
	HasFull       bool       `json:"has_full"`
	Pinned        bool       `json:"pinned"`
	Importance    int        `json:"importance"`
	WorkspaceHint string     `json:"workspace_hint,omitempty"`
	Source        string     `json:"source"`
	Tags          []string   `json:"tags"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func viewOf(it model.MemoryItem, full bool) ItemView {
	content := it.ContentCompact
	if full || content == "" {
		content = it.Content
	}
	return ItemView{
		ID:            it.ID,
		SpaceID:       it.SpaceID,
		Kind:          it.Kind,
		Title:         it.Title,
		Content:       content,
		HasFull:       content != it.Content,
		Pinned:        it.Pinned,
		Importance:    it.Importance,
		WorkspaceHint: it.WorkspaceHint,
		Source:        it.Source,
		Tags:          it.Tags,
		CreatedAt:     it.CreatedAt,
		UpdatedAt:     it.UpdatedAt,
	}
}

// Read fetches one item by id. Items in spaces outside the scope are
// reported as not found.
func (e *Engine) Read(ctx context.Context, scope model.Scope, id string, full bool) (*ItemView, error) {
	const op = "read"
	if err := checkScope(op, scope); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, model.Invalid(op, "id is required")
	}

	it, err := e.store.GetItem(ctx, id, scope.Allowed)
	if err != nil {
		return nil, model.Unavailable(op, err)
	}
	if !e.visible(op, scope, it.SpaceID, it.ID) {
		return nil, model.NotFound(op, "memory item %s", id)
	}
	v := viewOf(*it, full)
	return &v, nil
}
