package store

import (
	"context"
	"fmt"
)

// Candidates returns pinned and non-pinned items of the allowed spaces,
// each list most recently updated first.
func (s *SQLiteStore) Candidates(ctx context.Context, p CandidateParams) (*Candidates, error) {
	out := &Candidates{}
	if len(p.Allowed) == 0 {
		return out, nil
	}
	in, args := inList(p.Allowed)

	var err error
	out.Pinned, err = s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM memory_items m
		 WHERE m.space_id IN (`+in+`) AND m.pinned = 1
		 ORDER BY m.updated_at DESC, m.id LIMIT ?`,
		append(args, p.PinnedFetch)...)
	if err != nil {
		return nil, fmt.Errorf("query pinned: %w", err)
	}

	out.Recent, err = s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM memory_items m
		 WHERE m.space_id IN (`+in+`) AND m.pinned = 0
		 ORDER BY m.updated_at DESC, m.id LIMIT ?`,
		append(args, p.RecentFetch)...)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}

	return out, nil
}
