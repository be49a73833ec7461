// Package engine implements the memory operations on top of a Store:
// write with compaction and dedup, read, budgeted bootstrap, search and
// session chains. The engine holds no mutable state; every call is
// scoped by the model.Scope its caller resolved.
package engine

import (
	"log/slog"
	"time"

	"github.com/rcliao/mnemosyne/internal/compact"
	"github.com/rcliao/mnemosyne/internal/model"
	"github.com/rcliao/mnemosyne/internal/rank"
	"github.com/rcliao/mnemosyne/internal/store"
)

// Options configures an Engine. Zero values fall back to defaults.
type Options struct {
	Policy  *rank.Policy
	Compact compact.Options
	Logger  *slog.Logger
	Now     func() time.Time
}

// Engine runs memory operations against a Store.
type Engine struct {
	store   store.Store
	policy  rank.Policy
	compact compact.Options
	log     *slog.Logger
	now     func() time.Time
}

// New returns an Engine over st.
func New(st store.Store, opts Options) *Engine {
	e := &Engine{
		store:   st,
		policy:  rank.DefaultPolicy(),
		compact: opts.Compact,
		log:     opts.Logger,
		now:     opts.Now,
	}
	if opts.Policy != nil {
		e.policy = *opts.Policy
	}
	if e.compact.MaxChars <= 0 {
		e.compact = compact.DefaultOptions()
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Policy returns the ranking policy in use.
func (e *Engine) Policy() rank.Policy {
	return e.policy
}

func checkScope(op string, scope model.Scope) error {
	if !scope.Valid() {
		return model.Invalid(op, "request has no resolved space scope")
	}
	return nil
}

// visible is the single isolation check every read result passes through.
// The store already filters by allowed spaces; anything that slips past it
// is dropped here and reported.
func (e *Engine) visible(op string, scope model.Scope, spaceID, id string) bool {
	if scope.Allows(spaceID) {
		return true
	}
	e.log.Error("dropped row outside request scope",
		"op", op, "id", id, "space", spaceID, "user", scope.UserID)
	return false
}

func (e *Engine) visibleItems(op string, scope model.Scope, items []model.MemoryItem) []model.MemoryItem {
	out := make([]model.MemoryItem, 0, len(items))
	for _, it := range items {
		if e.visible(op, scope, it.SpaceID, it.ID) {
			out = append(out, it)
		}
	}
	return out
}

func (e *Engine) visibleSessions(op string, scope model.Scope, sessions []model.Session) []model.Session {
	out := make([]model.Session, 0, len(sessions))
	for _, ss := range sessions {
		if e.visible(op, scope, ss.SpaceID, ss.ID) {
			out = append(out, ss)
		}
	}
	return out
}
