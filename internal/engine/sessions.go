package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/rcliao/mnemosyne/internal/model"
	"github.com/rcliao/mnemosyne/internal/store"
)

const (
	DefaultSessionLimit = 3
	MaxSessionLimit     = 10
)

// CommitRequest records the end of a working session.
type CommitRequest struct {
	WorkspaceHint string
	Summary       string
	Decisions     []string
	NextSteps     []string
}

func normalizeHint(h string) string {
	h = strings.TrimSpace(h)
	if h == "" {
		return model.GlobalWorkspace
	}
	return h
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// CommitSession stores a session in the scope's write space and links it
// behind the previous session of the same workspace.
func (e *Engine) CommitSession(ctx context.Context, scope model.Scope, req CommitRequest) (*model.Session, error) {
	const op = "commit_session"
	if err := checkScope(op, scope); err != nil {
		return nil, err
	}
	summary := strings.TrimSpace(req.Summary)
	if summary == "" {
		return nil, model.Invalid(op, "summary is required")
	}

	ss, err := e.store.CreateSession(ctx, store.CreateSessionParams{
		SpaceID:       scope.WriteSpace,
		WorkspaceHint: normalizeHint(req.WorkspaceHint),
		Summary:       summary,
		Decisions:     cleanList(req.Decisions),
		NextSteps:     cleanList(req.NextSteps),
		Now:           e.now(),
	})
	if err != nil {
		return nil, model.Unavailable(op, err)
	}

	e.log.Debug("session committed",
		"id", ss.ID, "space", ss.SpaceID, "hint", ss.WorkspaceHint, "predecessor", ss.PredecessorID)
	return ss, nil
}

// LastSession returns up to n sessions for the workspace across the
// scope's spaces, newest first.
func (e *Engine) LastSession(ctx context.Context, scope model.Scope, hint string, n int) ([]model.Session, error) {
	const op = "last_session"
	if err := checkScope(op, scope); err != nil {
		return nil, err
	}
	n, err := limit(op, "limit", n, MaxSessionLimit)
	if err != nil {
		return nil, err
	}

	sessions, err := e.store.ListSessions(ctx, store.ListSessionsParams{
		WorkspaceHint: normalizeHint(hint),
		Allowed:       scope.Allowed,
		Limit:         n,
	})
	if err != nil {
		return nil, model.Unavailable(op, err)
	}
	return e.visibleSessions(op, scope, sessions), nil
}

// SessionChain walks predecessor links from the newest session of one
// chain. spaceID defaults to the scope's write space.
func (e *Engine) SessionChain(ctx context.Context, scope model.Scope, hint, spaceID string, n int) ([]model.Session, error) {
	const op = "session_chain"
	if err := checkScope(op, scope); err != nil {
		return nil, err
	}
	n, err := limit(op, "limit", n, MaxSessionLimit)
	if err != nil {
		return nil, err
	}
	if spaceID = strings.TrimSpace(spaceID); spaceID == "" {
		spaceID = scope.WriteSpace
	}
	if !scope.Allows(spaceID) {
		return nil, model.Denied(op, "space %s is not visible to %s", spaceID, scope.UserID)
	}

	head, err := e.store.ListSessions(ctx, store.ListSessionsParams{
		WorkspaceHint: normalizeHint(hint),
		Allowed:       []string{spaceID},
		Limit:         1,
	})
	if err != nil {
		return nil, model.Unavailable(op, err)
	}
	chain := e.visibleSessions(op, scope, head)
	if len(chain) == 0 {
		return chain, nil
	}

	for len(chain) < n {
		pred := chain[len(chain)-1].PredecessorID
		if pred == "" {
			break
		}
		ss, err := e.store.GetSession(ctx, pred, []string{spaceID})
		if errors.Is(err, model.ErrNotFound) {
			e.log.Warn("session chain references a missing predecessor", "id", pred)
			break
		}
		if err != nil {
			return nil, model.Unavailable(op, err)
		}
		chain = append(chain, *ss)
	}
	return chain, nil
}
