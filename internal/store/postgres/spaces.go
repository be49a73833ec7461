package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/rcliao/mnemosyne/internal/model"
	"github.com/rcliao/mnemosyne/internal/store"
)

type spaceRow struct {
	ID        string `db:"id"`
	Type      string `db:"type"`
	Name      string `db:"name"`
	CreatedAt int64  `db:"created_at"`
}

func (r spaceRow) toModel() model.Space {
	return model.Space{
		ID:        r.ID,
		Type:      model.SpaceType(r.Type),
		Name:      r.Name,
		CreatedAt: fromNanos(r.CreatedAt),
	}
}

// EnsurePersonalSpace creates the user and its personal space on first use.
func (s *Store) EnsurePersonalSpace(ctx context.Context, userID string) (*model.Space, error) {
	now := time.Now().UnixNano()
	spaceID := model.PersonalSpaceID(userID)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmts := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO users (id, created_at) VALUES ($1, $2) ON CONFLICT DO NOTHING`, []any{userID, now}},
		{`INSERT INTO spaces (id, type, name, created_at) VALUES ($1, 'personal', $2, $3) ON CONFLICT DO NOTHING`, []any{spaceID, userID, now}},
		{`INSERT INTO space_members (space_id, user_id, created_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, []any{spaceID, userID, now}},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
			return nil, fmt.Errorf("ensure personal space: %w", err)
		}
	}

	var row spaceRow
	if err := tx.GetContext(ctx, &row, `SELECT id, type, name, created_at FROM spaces WHERE id = $1`, spaceID); err != nil {
		return nil, fmt.Errorf("load personal space: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	sp := row.toModel()
	return &sp, nil
}

// ResolveMembership lists the spaces userID belongs to, ordered by id.
func (s *Store) ResolveMembership(ctx context.Context, userID string) ([]model.Space, error) {
	var rows []spaceRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT s.id, s.type, s.name, s.created_at
		 FROM spaces s JOIN space_members sm ON sm.space_id = s.id
		 WHERE sm.user_id = $1 ORDER BY s.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve membership: %w", err)
	}
	out := make([]model.Space, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// CreateSpace creates a shared space with ownerID as its first member.
func (s *Store) CreateSpace(ctx context.Context, id, name, ownerID string) (*model.Space, error) {
	if err := store.ValidateSharedSpaceID(id); err != nil {
		return nil, err
	}
	if name == "" {
		name = id
	}
	now := time.Now().UnixNano()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, created_at) VALUES ($1, $2) ON CONFLICT DO NOTHING`, ownerID, now); err != nil {
		return nil, fmt.Errorf("insert owner: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO spaces (id, type, name, created_at) VALUES ($1, 'shared', $2, $3)`, id, name, now)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("space %s already exists: %w", id, model.ErrInvalidArgument)
	}
	if err != nil {
		return nil, fmt.Errorf("insert space: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO space_members (space_id, user_id, created_at) VALUES ($1, $2, $3)`, id, ownerID, now); err != nil {
		return nil, fmt.Errorf("insert owner membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &model.Space{ID: id, Type: model.SpaceShared, Name: name, CreatedAt: fromNanos(now)}, nil
}

// AddMember adds userID to a shared space. Adding an existing member is a no-op.
func (s *Store) AddMember(ctx context.Context, spaceID, userID string) error {
	now := time.Now().UnixNano()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var typ string
	err = tx.GetContext(ctx, &typ, `SELECT type FROM spaces WHERE id = $1`, spaceID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("space %s: %w", spaceID, model.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load space: %w", err)
	}
	if model.SpaceType(typ) != model.SpaceShared {
		return fmt.Errorf("space %s is personal: %w", spaceID, model.ErrInvalidArgument)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, created_at) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, now); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO space_members (space_id, user_id, created_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		spaceID, userID, now); err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return tx.Commit()
}

// Export returns every item and session in the allowed spaces, sessions
// oldest first.
func (s *Store) Export(ctx context.Context, allowed []string) (*store.ExportData, error) {
	out := &store.ExportData{
		Version:    store.ExportVersion,
		ExportedAt: time.Now().UTC(),
		Items:      []model.MemoryItem{},
		Sessions:   []model.Session{},
	}
	if len(allowed) == 0 {
		return out, nil
	}

	items, err := s.selectItems(ctx,
		`SELECT `+itemColumns+` FROM memory_items
		 WHERE space_id = ANY($1) ORDER BY space_id, kind, title`, pq.Array(allowed))
	if err != nil {
		return nil, fmt.Errorf("export items: %w", err)
	}
	out.Items = items

	var rows []sessionRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE space_id = ANY($1) ORDER BY created_at, seq`, pq.Array(allowed)); err != nil {
		return nil, fmt.Errorf("export sessions: %w", err)
	}
	for _, r := range rows {
		out.Sessions = append(out.Sessions, r.toModel())
	}
	return out, nil
}

// Stats returns per-space counts for the allowed spaces.
func (s *Store) Stats(ctx context.Context, allowed []string) (*store.Stats, error) {
	st := &store.Stats{Spaces: []store.SpaceStats{}}
	if len(allowed) == 0 {
		return st, nil
	}

	bySpace := make(map[string]*store.SpaceStats, len(allowed))
	for _, id := range allowed {
		bySpace[id] = &store.SpaceStats{SpaceID: id, ByKind: map[string]int{}}
	}

	var kinds []struct {
		SpaceID string `db:"space_id"`
		Kind    string `db:"kind"`
		Pinned  int    `db:"pinned"`
		Count   int    `db:"count"`
	}
	if err := s.db.SelectContext(ctx, &kinds, `
		SELECT space_id, kind, COUNT(*) FILTER (WHERE pinned) AS pinned, COUNT(*) AS count
		FROM memory_items WHERE space_id = ANY($1)
		GROUP BY space_id, kind`, pq.Array(allowed)); err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}
	for _, k := range kinds {
		sp := bySpace[k.SpaceID]
		sp.Items += k.Count
		sp.Pinned += k.Pinned
		sp.ByKind[k.Kind] = k.Count
	}

	var sessions []struct {
		SpaceID string `db:"space_id"`
		Count   int    `db:"count"`
	}
	if err := s.db.SelectContext(ctx, &sessions,
		`SELECT space_id, COUNT(*) AS count FROM sessions WHERE space_id = ANY($1) GROUP BY space_id`,
		pq.Array(allowed)); err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	for _, c := range sessions {
		bySpace[c.SpaceID].Sessions = c.Count
	}

	if err := s.db.GetContext(ctx, &st.Tags, `
		SELECT COUNT(DISTINCT t.tag) FROM item_tags t
		JOIN memory_items m ON m.id = t.item_id
		WHERE m.space_id = ANY($1)`, pq.Array(allowed)); err != nil {
		return nil, fmt.Errorf("count tags: %w", err)
	}

	for _, id := range allowed {
		st.Spaces = append(st.Spaces, *bySpace[id])
	}
	return st, nil
}
