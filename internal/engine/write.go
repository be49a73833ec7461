package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rcliao/mnemosyne/internal/compact"
	"github.com/rcliao/mnemosyne/internal/model"
	"github.com/rcliao/mnemosyne/internal/store"
)

// MaxTagLen bounds a single tag name, in runes.
const MaxTagLen = 64

// WriteRequest describes one write. Nil pointers and empty strings mean
// "not supplied": a new item gets the defaults, a merged item keeps what
// it had. Content and the compact form are always replaced.
type WriteRequest struct {
	Kind           string
	Title          string
	Content        string
	ContentCompact string
	Pinned         *bool
	Importance     *int
	WorkspaceHint  string
	Source         string
	Tags           []string
}

// WriteResult reports the stored item and whether it was created or merged.
type WriteResult struct {
	ID             string       `json:"id"`
	Action         store.Action `json:"action"`
	SpaceID        string       `json:"space_id"`
	Kind           model.Kind   `json:"kind"`
	Title          string       `json:"title"`
	ContentCompact string       `json:"content_compact"`
	HasFull        bool         `json:"has_full"`
	Pinned         bool         `json:"pinned"`
	Importance     int          `json:"importance"`
	Tags           []string     `json:"tags"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Write validates req, derives the compact form when none is given, and
// merges or creates the item in the scope's write space.
func (e *Engine) Write(ctx context.Context, scope model.Scope, req WriteRequest) (*WriteResult, error) {
	const op = "write"
	if err := checkScope(op, scope); err != nil {
		return nil, err
	}

	kind, err := model.ParseKind(req.Kind)
	if err != nil {
		return nil, model.Invalid(op, "%v", err)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, model.Invalid(op, "title is required")
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, model.Invalid(op, "content is required")
	}
	tags, err := validateTags(req.Tags)
	if err != nil {
		return nil, model.Invalid(op, "%v", err)
	}

	short := strings.TrimSpace(req.ContentCompact)
	switch {
	case short == "":
		short = compact.Compact(content, e.compact)
	case utf8.RuneCountInString(short) > e.compact.MaxChars:
		return nil, model.Invalid(op, "content_compact exceeds %d characters", e.compact.MaxChars)
	}

	p := store.UpsertParams{
		SpaceID:        scope.WriteSpace,
		Kind:           kind,
		Title:          title,
		Content:        content,
		ContentCompact: short,
		Pinned:         req.Pinned,
		Tags:           tags,
		Now:            e.now(),
	}
	if req.Importance != nil {
		imp := max(model.MinImportance, min(model.MaxImportance, *req.Importance))
		p.Importance = &imp
	}
	if hint := strings.TrimSpace(req.WorkspaceHint); hint != "" {
		p.WorkspaceHint = &hint
	}
	if src := strings.TrimSpace(req.Source); src != "" {
		p.Source = &src
	}

	res, err := e.store.UpsertItem(ctx, p)
	if err != nil {
		return nil, model.Unavailable(op, err)
	}

	it := res.Item
	e.log.Debug("memory item written",
		"id", it.ID, "action", res.Action, "space", it.SpaceID, "kind", it.Kind, "title", it.Title)

	return &WriteResult{
		ID:             it.ID,
		Action:         res.Action,
		SpaceID:        it.SpaceID,
		Kind:           it.Kind,
		Title:          it.Title,
		ContentCompact: it.ContentCompact,
		HasFull:        it.HasFull(),
		Pinned:         it.Pinned,
		Importance:     it.Importance,
		Tags:           it.Tags,
		CreatedAt:      it.CreatedAt,
		UpdatedAt:      it.UpdatedAt,
	}, nil
}

// validateTags normalizes tags, dropping blanks and duplicates.
func validateTags(tags []string) ([]string, error) {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, raw := range tags {
		t := model.NormalizeTag(raw)
		if t == "" || seen[t] {
			continue
		}
		if utf8.RuneCountInString(t) > MaxTagLen {
			return nil, fmt.Errorf("tag %q is longer than %d characters", raw, MaxTagLen)
		}
		if strings.IndexFunc(t, unicode.IsControl) >= 0 {
			return nil, fmt.Errorf("tag %q contains control characters", raw)
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}
