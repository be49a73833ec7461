package rank

import (
	"math"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/rcliao/mnemosyne/internal/model"
)

// Scored is a memory item with its bootstrap score.
type Scored struct {
	Item  model.MemoryItem
	Score float64
}

// Score computes kind_weight × recency × importance × workspace match.
func (p Policy) Score(item model.MemoryItem, hint string, now time.Time) float64 {
	w, ok := p.KindWeights[item.Kind]
	if !ok {
		w = p.KindWeights[model.KindNote]
	}
	return w *
		p.Recency(now.Sub(item.UpdatedAt)) *
		ImportanceFactor(item.Importance) *
		p.WorkspaceFactor(item.WorkspaceHint, hint)
}

// Recency halves every HalfLife. Items from the future count as brand new.
func (p Policy) Recency(age time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(age)/float64(p.HalfLife))
}

// ImportanceFactor maps importance 0..100 onto 0.5..1.5.
func ImportanceFactor(importance int) float64 {
	importance = max(model.MinImportance, min(model.MaxImportance, importance))
	return 0.5 + float64(importance)/100
}

// WorkspaceFactor compares the item's hint with the requested one. A
// request without a specific hint is neutral for every item.
func (p Policy) WorkspaceFactor(itemHint, requested string) float64 {
	if isGlobal(requested) {
		return 1
	}
	switch {
	case isGlobal(itemHint):
		return p.WorkspaceUnset
	case itemHint == requested:
		return p.WorkspaceMatch
	default:
		return p.WorkspaceMismatch
	}
}

func isGlobal(hint string) bool {
	return hint == "" || hint == model.GlobalWorkspace
}

// Rank scores items and sorts them best first. Ties go to the more
// recently updated item, then to the lower id, so ordering is stable.
func (p Policy) Rank(items []model.MemoryItem, hint string, now time.Time) []Scored {
	out := make([]Scored, len(items))
	for i, it := range items {
		out[i] = Scored{Item: it, Score: p.Score(it, hint, now)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].Item.UpdatedAt.Equal(out[j].Item.UpdatedAt) {
			return out[i].Item.UpdatedAt.After(out[j].Item.UpdatedAt)
		}
		return out[i].Item.ID < out[j].Item.ID
	})
	return out
}

// Content picks the text emitted for item in mode and reports whether it
// is the full content.
func (p Policy) Content(item model.MemoryItem, mode model.Mode) (string, bool) {
	switch mode {
	case model.ModeFull:
		return item.Content, true
	case model.ModeHybrid:
		if p.HybridFullKinds[item.Kind] && utf8.RuneCountInString(item.Content) <= p.HybridFullMaxChars {
			return item.Content, true
		}
	}
	if item.ContentCompact == "" {
		// Only reachable for rows written before compaction existed.
		return item.Content, true
	}
	return item.ContentCompact, item.ContentCompact == item.Content
}

// EstimateTokens approximates the token count of s.
func (p Policy) EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + p.CharsPerToken - 1) / p.CharsPerToken
}

// Limits bound a bootstrap selection.
type Limits struct {
	MaxTokens   int
	MaxItems    int
	PinnedLimit int
	RecentLimit int
}

// Entry is a packed item with the content chosen for it.
type Entry struct {
	Scored
	Content string
	Full    bool
	Tokens  int
}

// Selection is the result of Pack.
type Selection struct {
	Pinned     []Entry
	Recent     []Entry
	UsedTokens int
	// Truncated is set when the budget or item cap cut the selection short.
	Truncated bool
}

// Pack fills the budget with pinned items first, then recent ones, each
// list already ranked. Selection stops at the first item that does not
// fit, so a larger budget always yields a superset in the same order.
func (p Policy) Pack(pinned, recent []Scored, mode model.Mode, l Limits) Selection {
	if l.PinnedLimit >= 0 && len(pinned) > l.PinnedLimit {
		pinned = pinned[:l.PinnedLimit]
	}
	if l.RecentLimit >= 0 && len(recent) > l.RecentLimit {
		recent = recent[:l.RecentLimit]
	}

	sel := Selection{Pinned: []Entry{}, Recent: []Entry{}}
	take := func(list []Scored, dst *[]Entry) bool {
		for _, s := range list {
			if l.MaxItems > 0 && len(sel.Pinned)+len(sel.Recent) >= l.MaxItems {
				sel.Truncated = true
				return false
			}
			text, full := p.Content(s.Item, mode)
			cost := p.EstimateTokens(s.Item.Title + text)
			if sel.UsedTokens+cost > l.MaxTokens {
				sel.Truncated = true
				return false
			}
			*dst = append(*dst, Entry{Scored: s, Content: text, Full: full, Tokens: cost})
			sel.UsedTokens += cost
		}
		return true
	}
	if take(pinned, &sel.Pinned) {
		take(recent, &sel.Recent)
	}
	return sel
}
