package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/rcliao/mnemosyne/internal/model"
	"github.com/rcliao/mnemosyne/internal/store"
)

const sessionColumns = `id, space_id, workspace_hint, summary, decisions, next_steps, predecessor_id, created_at`

type sessionRow struct {
	ID            string         `db:"id"`
	SpaceID       string         `db:"space_id"`
	WorkspaceHint string         `db:"workspace_hint"`
	Summary       string         `db:"summary"`
	Decisions     pq.StringArray `db:"decisions"`
	NextSteps     pq.StringArray `db:"next_steps"`
	PredecessorID sql.NullString `db:"predecessor_id"`
	CreatedAt     int64          `db:"created_at"`
}

func (r sessionRow) toModel() model.Session {
	return model.Session{
		ID:            r.ID,
		SpaceID:       r.SpaceID,
		WorkspaceHint: r.WorkspaceHint,
		Summary:       r.Summary,
		Decisions:     nonNil(r.Decisions),
		NextSteps:     nonNil(r.NextSteps),
		PredecessorID: r.PredecessorID.String,
		CreatedAt:     fromNanos(r.CreatedAt),
	}
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// lockChain serializes writers of one (space, workspace hint) chain until
// the transaction ends.
func lockChain(ctx context.Context, tx *sqlx.Tx, spaceID, hint string) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || '|' || $2))`, spaceID, hint)
	if err != nil {
		return fmt.Errorf("lock session chain: %w", err)
	}
	return nil
}

// CreateSession stores a session at the head of its chain and links the
// previous head as its predecessor.
func (s *Store) CreateSession(ctx context.Context, p store.CreateSessionParams) (*model.Session, error) {
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := lockChain(ctx, tx, p.SpaceID, p.WorkspaceHint); err != nil {
		return nil, err
	}

	var head struct {
		ID        string `db:"id"`
		CreatedAt int64  `db:"created_at"`
	}
	err = tx.GetContext(ctx, &head,
		`SELECT id, created_at FROM sessions
		 WHERE workspace_hint = $1 AND space_id = $2
		 ORDER BY created_at DESC, seq DESC LIMIT 1`, p.WorkspaceHint, p.SpaceID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find chain head: %w", err)
	}

	created := now.UnixNano()
	if head.ID != "" && created <= head.CreatedAt {
		created = head.CreatedAt + 1
	}

	ss := model.Session{
		ID:            s.newID(now),
		SpaceID:       p.SpaceID,
		WorkspaceHint: p.WorkspaceHint,
		Summary:       p.Summary,
		Decisions:     nonNil(p.Decisions),
		NextSteps:     nonNil(p.NextSteps),
		CreatedAt:     fromNanos(created),
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, space_id, workspace_hint, summary, decisions, next_steps, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ss.ID, ss.SpaceID, ss.WorkspaceHint, ss.Summary,
		pq.Array(ss.Decisions), pq.Array(ss.NextSteps), created)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	if head.ID != "" {
		if err := linkPredecessor(ctx, tx, ss.ID, head.ID); err != nil {
			return nil, err
		}
		ss.PredecessorID = head.ID
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &ss, nil
}

// LinkPredecessor points sessionID at predecessorID.
func (s *Store) LinkPredecessor(ctx context.Context, sessionID, predecessorID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := linkPredecessor(ctx, tx, sessionID, predecessorID); err != nil {
		return err
	}
	return tx.Commit()
}

type chainNode struct {
	SpaceID       string         `db:"space_id"`
	WorkspaceHint string         `db:"workspace_hint"`
	PredecessorID sql.NullString `db:"predecessor_id"`
	CreatedAt     int64          `db:"created_at"`
}

func loadChainNode(ctx context.Context, tx *sqlx.Tx, id string) (chainNode, error) {
	var n chainNode
	err := tx.GetContext(ctx, &n,
		`SELECT space_id, workspace_hint, predecessor_id, created_at FROM sessions WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return n, fmt.Errorf("session %s: %w", id, model.ErrNotFound)
	}
	return n, err
}

// linkPredecessor validates and writes one chain edge: same space and
// workspace hint, strictly older, and no existing successor.
func linkPredecessor(ctx context.Context, tx *sqlx.Tx, sessionID, predecessorID string) error {
	if sessionID == predecessorID {
		return fmt.Errorf("link session to itself: %w", model.ErrInvalidArgument)
	}
	cur, err := loadChainNode(ctx, tx, sessionID)
	if err != nil {
		return err
	}
	pred, err := loadChainNode(ctx, tx, predecessorID)
	if err != nil {
		return err
	}
	if cur.SpaceID != pred.SpaceID || cur.WorkspaceHint != pred.WorkspaceHint {
		return fmt.Errorf("predecessor %s is on another chain: %w", predecessorID, model.ErrInvalidArgument)
	}
	if pred.CreatedAt >= cur.CreatedAt {
		return fmt.Errorf("predecessor %s is not older than %s: %w", predecessorID, sessionID, model.ErrInvalidArgument)
	}
	if cur.PredecessorID.Valid && cur.PredecessorID.String != predecessorID {
		return fmt.Errorf("session %s already has predecessor %s: %w", sessionID, cur.PredecessorID.String, model.ErrInvalidArgument)
	}

	_, err = tx.ExecContext(ctx, `UPDATE sessions SET predecessor_id = $1 WHERE id = $2`, predecessorID, sessionID)
	if isUniqueViolation(err) {
		return fmt.Errorf("predecessor %s already has a successor: %w", predecessorID, model.ErrInvalidArgument)
	}
	if err != nil {
		return fmt.Errorf("link predecessor: %w", err)
	}
	return nil
}

// GetSession returns one session visible in allowed.
func (s *Store) GetSession(ctx context.Context, id string, allowed []string) (*model.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1 AND space_id = ANY($2)`, id, pq.Array(allowed))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	ss := row.toModel()
	return &ss, nil
}

// ListSessions returns sessions for a workspace hint across allowed
// spaces, newest first.
func (s *Store) ListSessions(ctx context.Context, p store.ListSessionsParams) ([]model.Session, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 3
	}
	var rows []sessionRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE workspace_hint = $1 AND space_id = ANY($2)
		 ORDER BY created_at DESC, seq DESC LIMIT $3`, p.WorkspaceHint, pq.Array(p.Allowed), limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]model.Session, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}
