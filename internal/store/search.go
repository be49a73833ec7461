package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/mnemosyne/internal/model"
)

// FullTextSearch matches the query against title and content through the
// FTS5 index. Titles weigh three times as much as body text.
func (s *SQLiteStore) FullTextSearch(ctx context.Context, p SearchParams) ([]SearchResult, error) {
	match := sanitizeFTS(p.Query)
	if match == "" || len(p.Allowed) == 0 {
		return []SearchResult{}, nil
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 8
	}

	in, args := inList(p.Allowed)
	query := `
		SELECT ` + itemColumns + `, bm25(memory_items_fts, 3.0, 1.0, 1.0) AS rank
		FROM memory_items_fts
		JOIN memory_items m ON m.seq = memory_items_fts.rowid
		WHERE memory_items_fts MATCH ? AND m.space_id IN (` + in + `)
		ORDER BY rank, m.updated_at DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, append(append([]any{match}, args...), limit)...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	results := []SearchResult{}
	for rows.Next() {
		var rank float64
		it, err := scanItem(rows, &rank)
		if err != nil {
			return nil, err
		}
		// bm25 is lower-is-better; flip it so callers can sort descending.
		results = append(results, SearchResult{Item: it, Relevance: -rank})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.attachResultTags(ctx, results); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *SQLiteStore) attachResultTags(ctx context.Context, results []SearchResult) error {
	if len(results) == 0 {
		return nil
	}
	items := make([]model.MemoryItem, len(results))
	for i := range results {
		items[i] = results[i].Item
	}
	if err := attachTags(ctx, s.db, items); err != nil {
		return err
	}
	for i := range results {
		results[i].Item.Tags = items[i].Tags
	}
	return nil
}

// sanitizeFTS quotes every word so user input is matched as plain terms
// rather than parsed as FTS5 query syntax.
func sanitizeFTS(query string) string {
	var words []string
	for _, w := range strings.Fields(query) {
		w = strings.Trim(w, `"`)
		if w == "" {
			continue
		}
		words = append(words, `"`+strings.ReplaceAll(w, `"`, `""`)+`"`)
	}
	return strings.Join(words, " ")
}
