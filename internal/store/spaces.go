package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rcliao/mnemosyne/internal/model"
)

func scanSpace(row scanner) (model.Space, error) {
	var sp model.Space
	var typ string
	var created int64
	if err := row.Scan(&sp.ID, &typ, &sp.Name, &created); err != nil {
		return sp, err
	}
	sp.Type = model.SpaceType(typ)
	sp.CreatedAt = fromNanos(created)
	return sp, nil
}

// EnsurePersonalSpace creates the user and its personal space on first use.
func (s *SQLiteStore) EnsurePersonalSpace(ctx context.Context, userID string) (*model.Space, error) {
	now := time.Now().UnixNano()
	spaceID := model.PersonalSpaceID(userID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmts := []struct {
		query string
		args  []any
	}{
		{`INSERT OR IGNORE INTO users (id, created_at) VALUES (?, ?)`, []any{userID, now}},
		{`INSERT OR IGNORE INTO spaces (id, type, name, created_at) VALUES (?, 'personal', ?, ?)`, []any{spaceID, userID, now}},
		{`INSERT OR IGNORE INTO space_members (space_id, user_id, created_at) VALUES (?, ?, ?)`, []any{spaceID, userID, now}},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
			return nil, fmt.Errorf("ensure personal space: %w", err)
		}
	}

	sp, err := scanSpace(tx.QueryRowContext(ctx,
		`SELECT id, type, name, created_at FROM spaces WHERE id = ?`, spaceID))
	if err != nil {
		return nil, fmt.Errorf("load personal space: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &sp, nil
}

// ResolveMembership lists the spaces userID belongs to, ordered by id.
func (s *SQLiteStore) ResolveMembership(ctx context.Context, userID string) ([]model.Space, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.type, s.name, s.created_at
		 FROM spaces s JOIN space_members sm ON sm.space_id = s.id
		 WHERE sm.user_id = ? ORDER BY s.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve membership: %w", err)
	}
	defer rows.Close()

	out := []model.Space{}
	for rows.Next() {
		sp, err := scanSpace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// CreateSpace creates a shared space with ownerID as its first member.
func (s *SQLiteStore) CreateSpace(ctx context.Context, id, name, ownerID string) (*model.Space, error) {
	if err := ValidateSharedSpaceID(id); err != nil {
		return nil, err
	}
	if name == "" {
		name = id
	}
	now := time.Now().UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO users (id, created_at) VALUES (?, ?)`, ownerID, now); err != nil {
		return nil, fmt.Errorf("insert owner: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO spaces (id, type, name, created_at) VALUES (?, 'shared', ?, ?)`, id, name, now)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("space %s already exists: %w", id, model.ErrInvalidArgument)
	}
	if err != nil {
		return nil, fmt.Errorf("insert space: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO space_members (space_id, user_id, created_at) VALUES (?, ?, ?)`, id, ownerID, now); err != nil {
		return nil, fmt.Errorf("insert owner membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &model.Space{ID: id, Type: model.SpaceShared, Name: name, CreatedAt: fromNanos(now)}, nil
}

// AddMember adds userID to a shared space. Adding an existing member is a no-op.
func (s *SQLiteStore) AddMember(ctx context.Context, spaceID, userID string) error {
	now := time.Now().UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var typ string
	err = tx.QueryRowContext(ctx, `SELECT type FROM spaces WHERE id = ?`, spaceID).Scan(&typ)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("space %s: %w", spaceID, model.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load space: %w", err)
	}
	if model.SpaceType(typ) != model.SpaceShared {
		return fmt.Errorf("space %s is personal: %w", spaceID, model.ErrInvalidArgument)
	}

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO users (id, created_at) VALUES (?, ?)`, userID, now); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO space_members (space_id, user_id, created_at) VALUES (?, ?, ?)`,
		spaceID, userID, now); err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return tx.Commit()
}

// ValidateSharedSpaceID rejects ids that are empty or collide with personal spaces.
func ValidateSharedSpaceID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return fmt.Errorf("space id is required: %w", model.ErrInvalidArgument)
	case strings.HasPrefix(id, model.PersonalSpaceID("")):
		return fmt.Errorf("space id %s uses the personal prefix: %w", id, model.ErrInvalidArgument)
	}
	return nil
}
