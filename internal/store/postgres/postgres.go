// Package postgres implements store.Store on PostgreSQL for deployments
// where several server instances share one database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/oklog/ulid/v2"

	"github.com/rcliao/mnemosyne/internal/model"
	"github.com/rcliao/mnemosyne/internal/store"
)

const uniqueViolation = "23505"

// Store implements store.Store using PostgreSQL.
type Store struct {
	db *sqlx.DB

	mu      sync.Mutex
	entropy *rand.Rand
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn and creates the schema if needed.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{db: db, entropy: rand.New(rand.NewSource(time.Now().UnixNano()))}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) newID(t time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

// Timestamps are unix nanoseconds so strict ordering survives equal clocks.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS spaces (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL CHECK (type IN ('personal', 'shared')),
	name       TEXT NOT NULL,
	created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS space_members (
	space_id   TEXT NOT NULL REFERENCES spaces(id),
	user_id    TEXT NOT NULL REFERENCES users(id),
	created_at BIGINT NOT NULL,
	PRIMARY KEY (space_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_members_user ON space_members(user_id);

CREATE TABLE IF NOT EXISTS memory_items (
	id              TEXT PRIMARY KEY,
	space_id        TEXT NOT NULL REFERENCES spaces(id),
	kind            TEXT NOT NULL,
	title           TEXT NOT NULL,
	content         TEXT NOT NULL,
	content_compact TEXT NOT NULL,
	pinned          BOOLEAN NOT NULL DEFAULT FALSE,
	importance      INTEGER NOT NULL DEFAULT 50,
	workspace_hint  TEXT,
	source          TEXT NOT NULL DEFAULT 'agent',
	created_at      BIGINT NOT NULL,
	updated_at      BIGINT NOT NULL,
	search          TSVECTOR GENERATED ALWAYS AS (
		setweight(to_tsvector('simple', title), 'A') ||
		setweight(to_tsvector('simple', content), 'B') ||
		setweight(to_tsvector('simple', content_compact), 'C')
	) STORED,
	UNIQUE (space_id, kind, title)
);
CREATE INDEX IF NOT EXISTS idx_items_space_pinned ON memory_items(space_id, pinned, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_items_search ON memory_items USING GIN (search);

CREATE TABLE IF NOT EXISTS tags (
	name TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS item_tags (
	item_id TEXT NOT NULL REFERENCES memory_items(id),
	tag     TEXT NOT NULL REFERENCES tags(name),
	PRIMARY KEY (item_id, tag)
);

CREATE TABLE IF NOT EXISTS sessions (
	seq            BIGSERIAL UNIQUE,
	id             TEXT PRIMARY KEY,
	space_id       TEXT NOT NULL REFERENCES spaces(id),
	workspace_hint TEXT NOT NULL,
	summary        TEXT NOT NULL,
	decisions      TEXT[] NOT NULL DEFAULT '{}',
	next_steps     TEXT[] NOT NULL DEFAULT '{}',
	predecessor_id TEXT UNIQUE REFERENCES sessions(id),
	created_at     BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_chain ON sessions(workspace_hint, space_id, created_at DESC);
`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

const itemColumns = `id, space_id, kind, title, content, content_compact,
	pinned, importance, workspace_hint, source, created_at, updated_at`

type itemRow struct {
	ID             string         `db:"id"`
	SpaceID        string         `db:"space_id"`
	Kind           string         `db:"kind"`
	Title          string         `db:"title"`
	Content        string         `db:"content"`
	ContentCompact string         `db:"content_compact"`
	Pinned         bool           `db:"pinned"`
	Importance     int            `db:"importance"`
	WorkspaceHint  sql.NullString `db:"workspace_hint"`
	Source         string         `db:"source"`
	CreatedAt      int64          `db:"created_at"`
	UpdatedAt      int64          `db:"updated_at"`
}

func (r itemRow) toModel() model.MemoryItem {
	return model.MemoryItem{
		ID:             r.ID,
		SpaceID:        r.SpaceID,
		Kind:           model.Kind(r.Kind),
		Title:          r.Title,
		Content:        r.Content,
		ContentCompact: r.ContentCompact,
		Pinned:         r.Pinned,
		Importance:     r.Importance,
		WorkspaceHint:  r.WorkspaceHint.String,
		Source:         r.Source,
		Tags:           []string{},
		CreatedAt:      fromNanos(r.CreatedAt),
		UpdatedAt:      fromNanos(r.UpdatedAt),
	}
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// UpsertItem merges or creates the item keyed on (space, kind, title).
func (s *Store) UpsertItem(ctx context.Context, p store.UpsertParams) (*store.UpsertResult, error) {
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	id := s.newID(now)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var row itemRow
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO memory_items (id, space_id, kind, title, content, content_compact,
			pinned, importance, workspace_hint, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6,
			COALESCE($7::boolean, FALSE), COALESCE($8::integer, 50), $9::text, COALESCE($10::text, 'agent'), $11, $11)
		ON CONFLICT (space_id, kind, title) DO UPDATE SET
			content         = EXCLUDED.content,
			content_compact = EXCLUDED.content_compact,
			pinned          = COALESCE($7::boolean, memory_items.pinned),
			importance      = COALESCE($8::integer, memory_items.importance),
			workspace_hint  = COALESCE($9::text, memory_items.workspace_hint),
			source          = COALESCE($10::text, memory_items.source),
			updated_at      = GREATEST(EXCLUDED.updated_at, memory_items.updated_at + 1)
		RETURNING `+itemColumns,
		id, p.SpaceID, string(p.Kind), p.Title, p.Content, p.ContentCompact,
		p.Pinned, p.Importance, p.WorkspaceHint, p.Source, now.UnixNano(),
	).StructScan(&row)
	if err != nil {
		return nil, fmt.Errorf("upsert memory item: %w", err)
	}

	item := row.toModel()
	tags, err := relinkTags(ctx, tx, item.ID, p.Tags)
	if err != nil {
		return nil, err
	}
	item.Tags = tags

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	action := store.ActionUpdated
	if item.ID == id {
		action = store.ActionCreated
	}
	return &store.UpsertResult{Item: item, Action: action}, nil
}

// relinkTags replaces the tag set of an item. Tags are never deleted
// globally.
func relinkTags(ctx context.Context, tx *sqlx.Tx, itemID string, tags []string) ([]string, error) {
	if _, err := tx.ExecContext(ctx, `DELETE FROM item_tags WHERE item_id = $1`, itemID); err != nil {
		return nil, fmt.Errorf("unlink tags: %w", err)
	}
	out := store.NormalizeTags(tags)
	if len(out) == 0 {
		return out, nil
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tags (name) SELECT unnest($1::text[]) ON CONFLICT DO NOTHING`, pq.Array(out)); err != nil {
		return nil, fmt.Errorf("insert tags: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO item_tags (item_id, tag) SELECT $1, unnest($2::text[]) ON CONFLICT DO NOTHING`,
		itemID, pq.Array(out)); err != nil {
		return nil, fmt.Errorf("link tags: %w", err)
	}
	return out, nil
}

// attachTags loads the tags of items in one query.
func (s *Store) attachTags(ctx context.Context, items []model.MemoryItem) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	var links []struct {
		ItemID string `db:"item_id"`
		Tag    string `db:"tag"`
	}
	if err := s.db.SelectContext(ctx, &links,
		`SELECT item_id, tag FROM item_tags WHERE item_id = ANY($1) ORDER BY tag`, pq.Array(ids)); err != nil {
		return fmt.Errorf("load tags: %w", err)
	}
	byID := make(map[string][]string, len(items))
	for _, l := range links {
		byID[l.ItemID] = append(byID[l.ItemID], l.Tag)
	}
	for i := range items {
		if tags, ok := byID[items[i].ID]; ok {
			items[i].Tags = tags
		}
	}
	return nil
}

// GetItem returns one item visible in allowed.
func (s *Store) GetItem(ctx context.Context, id string, allowed []string) (*model.MemoryItem, error) {
	var row itemRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+itemColumns+` FROM memory_items WHERE id = $1 AND space_id = ANY($2)`,
		id, pq.Array(allowed))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get item %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	items := []model.MemoryItem{row.toModel()}
	if err := s.attachTags(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

func (s *Store) selectItems(ctx context.Context, query string, args ...any) ([]model.MemoryItem, error) {
	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	items := make([]model.MemoryItem, len(rows))
	for i, r := range rows {
		items[i] = r.toModel()
	}
	if err := s.attachTags(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// Candidates returns pinned and non-pinned items of the allowed spaces,
// each list most recently updated first.
func (s *Store) Candidates(ctx context.Context, p store.CandidateParams) (*store.Candidates, error) {
	out := &store.Candidates{}
	var err error
	out.Pinned, err = s.selectItems(ctx,
		`SELECT `+itemColumns+` FROM memory_items
		 WHERE space_id = ANY($1) AND pinned
		 ORDER BY updated_at DESC, id LIMIT $2`, pq.Array(p.Allowed), p.PinnedFetch)
	if err != nil {
		return nil, fmt.Errorf("query pinned: %w", err)
	}
	out.Recent, err = s.selectItems(ctx,
		`SELECT `+itemColumns+` FROM memory_items
		 WHERE space_id = ANY($1) AND NOT pinned
		 ORDER BY updated_at DESC, id LIMIT $2`, pq.Array(p.Allowed), p.RecentFetch)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	return out, nil
}

// FullTextSearch matches the query as plain words against the weighted
// tsvector; title matches rank above body matches.
func (s *Store) FullTextSearch(ctx context.Context, p store.SearchParams) ([]store.SearchResult, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 8
	}
	var rows []struct {
		itemRow
		Relevance float64 `db:"relevance"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+itemColumns+`, ts_rank(search, q) AS relevance
		FROM memory_items, plainto_tsquery('simple', $1) q
		WHERE search @@ q AND space_id = ANY($2)
		ORDER BY relevance DESC, updated_at DESC
		LIMIT $3`, p.Query, pq.Array(p.Allowed), limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	items := make([]model.MemoryItem, len(rows))
	for i, r := range rows {
		items[i] = r.toModel()
	}
	if err := s.attachTags(ctx, items); err != nil {
		return nil, err
	}
	out := make([]store.SearchResult, len(rows))
	for i := range rows {
		out[i] = store.SearchResult{Item: items[i], Relevance: rows[i].Relevance}
	}
	return out, nil
}
