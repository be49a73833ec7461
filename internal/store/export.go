package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rcliao/mnemosyne/internal/model"
)

// ExportVersion is bumped whenever the dump layout changes.
const ExportVersion = 1

// Export returns every item and session in the allowed spaces. Sessions
// are oldest first so replaying them rebuilds the same chains.
func (s *SQLiteStore) Export(ctx context.Context, allowed []string) (*ExportData, error) {
	out := &ExportData{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC(),
		Items:      []model.MemoryItem{},
		Sessions:   []model.Session{},
	}
	if len(allowed) == 0 {
		return out, nil
	}
	in, args := inList(allowed)

	items, err := s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM memory_items m
		 WHERE m.space_id IN (`+in+`) ORDER BY m.space_id, m.kind, m.title`, args...)
	if err != nil {
		return nil, fmt.Errorf("export items: %w", err)
	}
	out.Items = items

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE space_id IN (`+in+`) ORDER BY created_at, seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("export sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ss, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out.Sessions = append(out.Sessions, ss)
	}
	return out, rows.Err()
}
