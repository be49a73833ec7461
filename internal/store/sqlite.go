package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/mnemosyne/internal/model"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
//
// Transactions take the write lock up front (_txlock=immediate), so two
// writers never interleave a read-then-write on the same session chain.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID(t time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS spaces (
		id         TEXT PRIMARY KEY,
		type       TEXT NOT NULL CHECK (type IN ('personal', 'shared')),
		name       TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS space_members (
		space_id   TEXT NOT NULL REFERENCES spaces(id),
		user_id    TEXT NOT NULL REFERENCES users(id),
		created_at INTEGER NOT NULL,
		PRIMARY KEY (space_id, user_id)
	);
	CREATE INDEX IF NOT EXISTS idx_members_user ON space_members(user_id);

	CREATE TABLE IF NOT EXISTS memory_items (
		seq             INTEGER PRIMARY KEY AUTOINCREMENT,
		id              TEXT NOT NULL UNIQUE,
		space_id        TEXT NOT NULL REFERENCES spaces(id),
		kind            TEXT NOT NULL,
		title           TEXT NOT NULL,
		content         TEXT NOT NULL,
		content_compact TEXT NOT NULL,
		pinned          INTEGER NOT NULL DEFAULT 0,
		importance      INTEGER NOT NULL DEFAULT 50,
		workspace_hint  TEXT,
		source          TEXT NOT NULL DEFAULT 'agent',
		created_at      INTEGER NOT NULL,
		updated_at      INTEGER NOT NULL,
		UNIQUE (space_id, kind, title)
	);
	CREATE INDEX IF NOT EXISTS idx_items_space_pinned ON memory_items(space_id, pinned, updated_at DESC);

	CREATE TABLE IF NOT EXISTS tags (
		name TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS item_tags (
		item_id TEXT NOT NULL REFERENCES memory_items(id),
		tag     TEXT NOT NULL REFERENCES tags(name),
		PRIMARY KEY (item_id, tag)
	);
	CREATE INDEX IF NOT EXISTS idx_item_tags_tag ON item_tags(tag);

	CREATE VIRTUAL TABLE IF NOT EXISTS memory_items_fts USING fts5(
		title,
		content,
		content_compact,
		content=memory_items,
		content_rowid=seq
	);

	CREATE TABLE IF NOT EXISTS sessions (
		seq            INTEGER PRIMARY KEY AUTOINCREMENT,
		id             TEXT NOT NULL UNIQUE,
		space_id       TEXT NOT NULL REFERENCES spaces(id),
		workspace_hint TEXT NOT NULL,
		summary        TEXT NOT NULL,
		decisions      TEXT NOT NULL DEFAULT '[]',
		next_steps     TEXT NOT NULL DEFAULT '[]',
		predecessor_id TEXT UNIQUE REFERENCES sessions(id),
		created_at     INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_chain ON sessions(workspace_hint, space_id, created_at DESC);

	CREATE TRIGGER IF NOT EXISTS memory_items_ai AFTER INSERT ON memory_items BEGIN
		INSERT INTO memory_items_fts(rowid, title, content, content_compact)
		VALUES (new.seq, new.title, new.content, new.content_compact);
	END;
	CREATE TRIGGER IF NOT EXISTS memory_items_ad AFTER DELETE ON memory_items BEGIN
		INSERT INTO memory_items_fts(memory_items_fts, rowid, title, content, content_compact)
		VALUES ('delete', old.seq, old.title, old.content, old.content_compact);
	END;
	CREATE TRIGGER IF NOT EXISTS memory_items_au AFTER UPDATE ON memory_items BEGIN
		INSERT INTO memory_items_fts(memory_items_fts, rowid, title, content, content_compact)
		VALUES ('delete', old.seq, old.title, old.content, old.content_compact);
		INSERT INTO memory_items_fts(rowid, title, content, content_compact)
		VALUES (new.seq, new.title, new.content, new.content_compact);
	END;
	`
	_, err := s.db.Exec(schema)
	return err
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const itemColumns = `m.id, m.space_id, m.kind, m.title, m.content, m.content_compact,
	m.pinned, m.importance, m.workspace_hint, m.source, m.created_at, m.updated_at`

const returnColumns = `id, space_id, kind, title, content, content_compact,
	pinned, importance, workspace_hint, source, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanItem(row scanner, extra ...any) (model.MemoryItem, error) {
	var m model.MemoryItem
	var kind string
	var hint sql.NullString
	var created, updated int64
	dest := []any{&m.ID, &m.SpaceID, &kind, &m.Title, &m.Content, &m.ContentCompact,
		&m.Pinned, &m.Importance, &hint, &m.Source, &created, &updated}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return m, err
	}
	m.Kind = model.Kind(kind)
	m.WorkspaceHint = hint.String
	m.CreatedAt = fromNanos(created)
	m.UpdatedAt = fromNanos(updated)
	m.Tags = []string{}
	return m, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// inList returns "?, ?, ?" and the matching args.
func inList(vals []string) (string, []any) {
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(vals)), ", "), args
}

// UpsertItem merges or creates the item keyed on (space, kind, title).
func (s *SQLiteStore) UpsertItem(ctx context.Context, p UpsertParams) (*UpsertResult, error) {
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	id := s.newID(now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO memory_items (id, space_id, kind, title, content, content_compact,
			pinned, importance, workspace_hint, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, COALESCE(?, 0), COALESCE(?, 50), ?, COALESCE(?, 'agent'), ?, ?)
		ON CONFLICT (space_id, kind, title) DO UPDATE SET
			content         = excluded.content,
			content_compact = excluded.content_compact,
			pinned          = COALESCE(?, memory_items.pinned),
			importance      = COALESCE(?, memory_items.importance),
			workspace_hint  = COALESCE(?, memory_items.workspace_hint),
			source          = COALESCE(?, memory_items.source),
			updated_at      = MAX(excluded.updated_at, memory_items.updated_at + 1)
		RETURNING `+returnColumns,
		id, p.SpaceID, string(p.Kind), p.Title, p.Content, p.ContentCompact,
		p.Pinned, p.Importance, p.WorkspaceHint, p.Source, now.UnixNano(), now.UnixNano(),
		p.Pinned, p.Importance, p.WorkspaceHint, p.Source)

	item, err := scanItem(row)
	if err != nil {
		return nil, fmt.Errorf("upsert memory item: %w", err)
	}

	tags, err := relinkTags(ctx, tx, item.ID, p.Tags)
	if err != nil {
		return nil, err
	}
	item.Tags = tags

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	action := ActionUpdated
	if item.ID == id {
		action = ActionCreated
	}
	return &UpsertResult{Item: item, Action: action}, nil
}

// relinkTags replaces the tag set of an item. Tags are never deleted
// globally; unused tags simply lose their links.
func relinkTags(ctx context.Context, tx *sql.Tx, itemID string, tags []string) ([]string, error) {
	if _, err := tx.ExecContext(ctx, `DELETE FROM item_tags WHERE item_id = ?`, itemID); err != nil {
		return nil, fmt.Errorf("unlink tags: %w", err)
	}
	out := NormalizeTags(tags)
	for _, t := range out {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO tags (name) VALUES (?)`, t); err != nil {
			return nil, fmt.Errorf("insert tag: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO item_tags (item_id, tag) VALUES (?, ?)`, itemID, t); err != nil {
			return nil, fmt.Errorf("link tag: %w", err)
		}
	}
	return out, nil
}

// NormalizeTags normalizes, de-duplicates and sorts tag names.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := []string{}
	for _, t := range tags {
		t = model.NormalizeTag(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// attachTags loads the tags of items in one query.
func attachTags(ctx context.Context, q querier, items []model.MemoryItem) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	in, args := inList(ids)
	rows, err := q.QueryContext(ctx,
		`SELECT item_id, tag FROM item_tags WHERE item_id IN (`+in+`) ORDER BY tag`, args...)
	if err != nil {
		return fmt.Errorf("load tags: %w", err)
	}
	defer rows.Close()

	byID := make(map[string][]string, len(items))
	for rows.Next() {
		var id, tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return err
		}
		byID[id] = append(byID[id], tag)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range items {
		if tags, ok := byID[items[i].ID]; ok {
			items[i].Tags = tags
		}
	}
	return nil
}

// GetItem returns one item visible in allowed.
func (s *SQLiteStore) GetItem(ctx context.Context, id string, allowed []string) (*model.MemoryItem, error) {
	if len(allowed) == 0 {
		return nil, fmt.Errorf("get item %s: %w", id, model.ErrNotFound)
	}
	in, args := inList(allowed)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM memory_items m WHERE m.id = ? AND m.space_id IN (`+in+`)`,
		append([]any{id}, args...)...)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get item %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	items := []model.MemoryItem{item}
	if err := attachTags(ctx, s.db, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

func (s *SQLiteStore) queryItems(ctx context.Context, query string, args ...any) ([]model.MemoryItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []model.MemoryItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := attachTags(ctx, s.db, items); err != nil {
		return nil, err
	}
	return items, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
