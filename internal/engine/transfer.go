package engine

import (
	"context"

	"github.com/rcliao/mnemosyne/internal/model"
	"github.com/rcliao/mnemosyne/internal/store"
)

// Export dumps the items and sessions visible to the scope.
func (e *Engine) Export(ctx context.Context, scope model.Scope) (*store.ExportData, error) {
	const op = "export"
	if err := checkScope(op, scope); err != nil {
		return nil, err
	}
	data, err := e.store.Export(ctx, scope.Allowed)
	if err != nil {
		return nil, model.Unavailable(op, err)
	}
	data.Items = e.visibleItems(op, scope, data.Items)
	data.Sessions = e.visibleSessions(op, scope, data.Sessions)
	return data, nil
}

// ImportResult counts what an import wrote.
type ImportResult struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Sessions int `json:"sessions"`
}

// Import replays an export into the scope's write space. Items go through
// the normal write path, so re-importing the same dump only merges.
// Sessions are committed in dump order and form fresh chains.
func (e *Engine) Import(ctx context.Context, scope model.Scope, data *store.ExportData) (*ImportResult, error) {
	const op = "import"
	if err := checkScope(op, scope); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, model.Invalid(op, "nothing to import")
	}

	res := &ImportResult{}
	for _, it := range data.Items {
		pinned, importance := it.Pinned, it.Importance
		w, err := e.Write(ctx, scope, WriteRequest{
			Kind:           string(it.Kind),
			Title:          it.Title,
			Content:        it.Content,
			ContentCompact: it.ContentCompact,
			Pinned:         &pinned,
			Importance:     &importance,
			WorkspaceHint:  it.WorkspaceHint,
			Source:         it.Source,
			Tags:           it.Tags,
		})
		if err != nil {
			return res, err
		}
		if w.Action == store.ActionCreated {
			res.Created++
		} else {
			res.Updated++
		}
	}
	for _, ss := range data.Sessions {
		if _, err := e.CommitSession(ctx, scope, CommitRequest{
			WorkspaceHint: ss.WorkspaceHint,
			Summary:       ss.Summary,
			Decisions:     ss.Decisions,
			NextSteps:     ss.NextSteps,
		}); err != nil {
			return res, err
		}
		res.Sessions++
	}
	return res, nil
}

// Stats summarizes the spaces visible to the scope.
func (e *Engine) Stats(ctx context.Context, scope model.Scope) (*store.Stats, error) {
	const op = "stats"
	if err := checkScope(op, scope); err != nil {
		return nil, err
	}
	st, err := e.store.Stats(ctx, scope.Allowed)
	if err != nil {
		return nil, model.Unavailable(op, err)
	}
	return st, nil
}
