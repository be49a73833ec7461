package engine

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rcliao/mnemosyne/internal/model"
	"github.com/rcliao/mnemosyne/internal/store"
)

const (
	DefaultSearchLimit = 8
	MaxSearchLimit     = 25
)

// SearchRequest is a full-text query.
type SearchRequest struct {
	Query string
	Limit int
	// Full returns full content instead of the compact snippet.
	Full bool
}

// SearchHit is one shaped search result.
type SearchHit struct {
	ID        string     `json:"id"`
	SpaceID   string     `json:"space_id"`
	Kind      model.Kind `json:"kind"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	HasFull   bool       `json:"has_full"`
	Pinned    bool       `json:"pinned"`
	Tags      []string   `json:"tags"`
	UpdatedAt time.Time  `json:"updated_at"`
	Relevance float64    `json:"relevance"`
}

// Search runs a full-text query over the scope and shapes each match.
// Snippets are the stored compact form; nothing is cut or synthesized here.
func (e *Engine) Search(ctx context.Context, scope model.Scope, req SearchRequest) ([]SearchHit, error) {
	const op = "search"
	if err := checkScope(op, scope); err != nil {
		return nil, err
	}
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return nil, model.Invalid(op, "query is required")
	}
	n, err := limit(op, "limit", req.Limit, MaxSearchLimit)
	if err != nil {
		return nil, err
	}

	results, err := e.store.FullTextSearch(ctx, store.SearchParams{Query: q, Allowed: scope.Allowed, Limit: n})
	if err != nil {
		return nil, model.Unavailable(op, err)
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		if !e.visible(op, scope, r.Item.SpaceID, r.Item.ID) {
			continue
		}
		v := viewOf(r.Item, req.Full)
		hits = append(hits, SearchHit{
			ID:        v.ID,
			SpaceID:   v.SpaceID,
			Kind:      v.Kind,
			Title:     v.Title,
			Content:   v.Content,
			HasFull:   v.HasFull,
			Pinned:    v.Pinned,
			Tags:      v.Tags,
			UpdatedAt: v.UpdatedAt,
			Relevance: math.Round(r.Relevance*1000) / 1000,
		})
	}
	return hits, nil
}
