package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/mnemosyne/internal/model"
)

const sessionColumns = `id, space_id, workspace_hint, summary, decisions, next_steps, predecessor_id, created_at`

func scanSession(row scanner) (model.Session, error) {
	var ss model.Session
	var decisions, nextSteps string
	var pred sql.NullString
	var created int64
	if err := row.Scan(&ss.ID, &ss.SpaceID, &ss.WorkspaceHint, &ss.Summary,
		&decisions, &nextSteps, &pred, &created); err != nil {
		return ss, err
	}
	if err := json.Unmarshal([]byte(decisions), &ss.Decisions); err != nil {
		return ss, fmt.Errorf("decode decisions: %w", err)
	}
	if err := json.Unmarshal([]byte(nextSteps), &ss.NextSteps); err != nil {
		return ss, fmt.Errorf("decode next steps: %w", err)
	}
	ss.PredecessorID = pred.String
	ss.CreatedAt = fromNanos(created)
	return ss, nil
}

func encodeList(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// CreateSession stores a session at the head of its chain. The previous
// head, if any, becomes its predecessor, and created_at is forced past the
// predecessor's so chain order and time order always agree.
func (s *SQLiteStore) CreateSession(ctx context.Context, p CreateSessionParams) (*model.Session, error) {
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var headID string
	var headCreated int64
	err = tx.QueryRowContext(ctx,
		`SELECT id, created_at FROM sessions
		 WHERE workspace_hint = ? AND space_id = ?
		 ORDER BY created_at DESC, seq DESC LIMIT 1`,
		p.WorkspaceHint, p.SpaceID).Scan(&headID, &headCreated)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find chain head: %w", err)
	}

	created := now.UnixNano()
	if headID != "" && created <= headCreated {
		created = headCreated + 1
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
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ss.ID, ss.SpaceID, ss.WorkspaceHint, ss.Summary,
		encodeList(ss.Decisions), encodeList(ss.NextSteps), created)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	if headID != "" {
		if err := linkPredecessor(ctx, tx, ss.ID, headID); err != nil {
			return nil, err
		}
		ss.PredecessorID = headID
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &ss, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// LinkPredecessor points sessionID at predecessorID.
func (s *SQLiteStore) LinkPredecessor(ctx context.Context, sessionID, predecessorID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
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
	space, hint, pred string
	created           int64
}

func loadChainNode(ctx context.Context, tx *sql.Tx, id string) (chainNode, error) {
	var n chainNode
	var pred sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT space_id, workspace_hint, predecessor_id, created_at FROM sessions WHERE id = ?`, id).
		Scan(&n.space, &n.hint, &pred, &n.created)
	if errors.Is(err, sql.ErrNoRows) {
		return n, fmt.Errorf("session %s: %w", id, model.ErrNotFound)
	}
	n.pred = pred.String
	return n, err
}

// linkPredecessor validates and writes one chain edge. A predecessor must
// share space and workspace hint, be strictly older, and not already have
// a successor; together these keep chains acyclic and unforked.
func linkPredecessor(ctx context.Context, tx *sql.Tx, sessionID, predecessorID string) error {
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
	if cur.space != pred.space || cur.hint != pred.hint {
		return fmt.Errorf("predecessor %s is on another chain: %w", predecessorID, model.ErrInvalidArgument)
	}
	if pred.created >= cur.created {
		return fmt.Errorf("predecessor %s is not older than %s: %w", predecessorID, sessionID, model.ErrInvalidArgument)
	}
	if cur.pred != "" && cur.pred != predecessorID {
		return fmt.Errorf("session %s already has predecessor %s: %w", sessionID, cur.pred, model.ErrInvalidArgument)
	}

	_, err = tx.ExecContext(ctx, `UPDATE sessions SET predecessor_id = ? WHERE id = ?`, predecessorID, sessionID)
	if isUniqueViolation(err) {
		return fmt.Errorf("predecessor %s already has a successor: %w", predecessorID, model.ErrInvalidArgument)
	}
	if err != nil {
		return fmt.Errorf("link predecessor: %w", err)
	}
	return nil
}

// GetSession returns one session visible in allowed.
func (s *SQLiteStore) GetSession(ctx context.Context, id string, allowed []string) (*model.Session, error) {
	if len(allowed) == 0 {
		return nil, fmt.Errorf("session %s: %w", id, model.ErrNotFound)
	}
	in, args := inList(allowed)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ? AND space_id IN (`+in+`)`,
		append([]any{id}, args...)...)
	ss, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &ss, nil
}

// ListSessions returns sessions for a workspace hint across allowed
// spaces, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, p ListSessionsParams) ([]model.Session, error) {
	if len(p.Allowed) == 0 {
		return []model.Session{}, nil
	}
	in, args := inList(p.Allowed)
	limit := p.Limit
	if limit <= 0 {
		limit = 3
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE workspace_hint = ? AND space_id IN (`+in+`)
		 ORDER BY created_at DESC, seq DESC LIMIT ?`,
		append(append([]any{p.WorkspaceHint}, args...), limit)...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := []model.Session{}
	for rows.Next() {
		ss, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}
