package store

import (
	"context"
	"fmt"
)

// Stats returns per-space counts for the allowed spaces.
func (s *SQLiteStore) Stats(ctx context.Context, allowed []string) (*Stats, error) {
	st := &Stats{Spaces: []SpaceStats{}}
	if len(allowed) == 0 {
		return st, nil
	}
	in, args := inList(allowed)

	bySpace := make(map[string]*SpaceStats, len(allowed))
	for _, id := range allowed {
		sp := &SpaceStats{SpaceID: id, ByKind: map[string]int{}}
		bySpace[id] = sp
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT space_id, kind, SUM(pinned), COUNT(*)
		FROM memory_items WHERE space_id IN (`+in+`)
		GROUP BY space_id, kind`, args...)
	if err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var space, kind string
		var pinned, count int
		if err := rows.Scan(&space, &kind, &pinned, &count); err != nil {
			return nil, err
		}
		sp := bySpace[space]
		sp.Items += count
		sp.Pinned += pinned
		sp.ByKind[kind] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	srows, err := s.db.QueryContext(ctx,
		`SELECT space_id, COUNT(*) FROM sessions WHERE space_id IN (`+in+`) GROUP BY space_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	defer srows.Close()
	for srows.Next() {
		var space string
		var count int
		if err := srows.Scan(&space, &count); err != nil {
			return nil, err
		}
		bySpace[space].Sessions = count
	}
	if err := srows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT t.tag) FROM item_tags t
		JOIN memory_items m ON m.id = t.item_id
		WHERE m.space_id IN (`+in+`)`, args...).Scan(&st.Tags)
	if err != nil {
		return nil, fmt.Errorf("count tags: %w", err)
	}

	for _, id := range allowed {
		st.Spaces = append(st.Spaces, *bySpace[id])
	}
	return st, nil
}
