package rank

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rcliao/mnemosyne/internal/model"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func item(id string, kind model.Kind, age time.Duration) model.MemoryItem {
	return model.MemoryItem{
		ID:             id,
		Kind:           kind,
		Title:          "title " + id,
		Content:        "content of " + id,
		ContentCompact: "content of " + id,
		Importance:     model.DefaultImportance,
		UpdatedAt:      now.Add(-age),
	}
}

func TestRecency_MonotonicAndHalving(t *testing.T) {
	p := DefaultPolicy()
	if got := p.Recency(0); got != 1 {
		t.Errorf("recency at age 0 = %v, want 1", got)
	}
	if got := p.Recency(p.HalfLife); got < 0.4999 || got > 0.5001 {
		t.Errorf("recency at half-life = %v, want 0.5", got)
	}
	prev := 2.0
	for d := 0; d <= 120; d += 3 {
		r := p.Recency(time.Duration(d) * 24 * time.Hour)
		if r >= prev && d > 0 {
			t.Errorf("recency not decreasing at %d days: %v >= %v", d, r, prev)
		}
		if r <= 0 {
			t.Errorf("recency must stay positive, got %v at %d days", r, d)
		}
		prev = r
	}
	if got := p.Recency(-time.Hour); got != 1 {
		t.Errorf("future item recency = %v, want 1", got)
	}
}

func TestImportanceFactor(t *testing.T) {
	tests := []struct {
		in   int
		want float64
	}{
		{0, 0.5},
		{50, 1.0},
		{100, 1.5},
		{-20, 0.5},
		{400, 1.5},
	}
	for _, tt := range tests {
		if got := ImportanceFactor(tt.in); got != tt.want {
			t.Errorf("ImportanceFactor(%d) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWorkspaceFactor_Ordering(t *testing.T) {
	p := DefaultPolicy()
	match := p.WorkspaceFactor("repo-x", "repo-x")
	unset := p.WorkspaceFactor("", "repo-x")
	mismatch := p.WorkspaceFactor("repo-y", "repo-x")
	if !(match > unset && unset > mismatch && mismatch > 0) {
		t.Errorf("expected match > unset > mismatch > 0, got %v %v %v", match, unset, mismatch)
	}
	if got := p.WorkspaceFactor("repo-y", ""); got != 1 {
		t.Errorf("no requested hint should be neutral, got %v", got)
	}
	if got := p.WorkspaceFactor("repo-y", model.GlobalWorkspace); got != 1 {
		t.Errorf("global hint should be neutral, got %v", got)
	}
}

func TestScore_KindWeightsOrder(t *testing.T) {
	p := DefaultPolicy()
	order := []model.Kind{model.KindDecision, model.KindPattern, model.KindCommand, model.KindAnswer, model.KindNote}
	prev := 0.0
	for i, k := range order {
		s := p.Score(item("a", k, time.Hour), "", now)
		if i > 0 && s >= prev {
			t.Errorf("%s scored %v, expected below %v", k, s, prev)
		}
		prev = s
	}
}

func TestRank_StableTies(t *testing.T) {
	p := DefaultPolicy()
	items := []model.MemoryItem{
		item("b", model.KindNote, time.Hour),
		item("a", model.KindNote, time.Hour),
		item("c", model.KindNote, 0),
	}
	got := p.Rank(items, "", now)
	ids := []string{got[0].Item.ID, got[1].Item.ID, got[2].Item.ID}
	if strings.Join(ids, ",") != "c,a,b" {
		t.Errorf("expected c,a,b, got %v", ids)
	}
}

func TestContent_Modes(t *testing.T) {
	p := DefaultPolicy()
	long := strings.Repeat("x", 400)
	cmd := model.MemoryItem{Kind: model.KindCommand, Content: "make test", ContentCompact: "make test"}
	bigCmd := model.MemoryItem{Kind: model.KindCommand, Content: long, ContentCompact: "short"}
	decision := model.MemoryItem{Kind: model.KindDecision, Content: "full decision text", ContentCompact: "full decision"}

	tests := []struct {
		name     string
		it       model.MemoryItem
		mode     model.Mode
		want     string
		wantFull bool
	}{
		{"thin compact", decision, model.ModeThin, "full decision", false},
		{"full mode", decision, model.ModeFull, "full decision text", true},
		{"hybrid short command", cmd, model.ModeHybrid, "make test", true},
		{"hybrid long command", bigCmd, model.ModeHybrid, "short", false},
		{"hybrid decision", decision, model.ModeHybrid, "full decision", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, full := p.Content(tt.it, tt.mode)
			if got != tt.want || full != tt.wantFull {
				t.Errorf("got (%q, %v), want (%q, %v)", got, full, tt.want, tt.wantFull)
			}
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	p := DefaultPolicy()
	tests := map[string]int{"": 0, "a": 1, "abcd": 1, "abcde": 2, "日本語日本": 2}
	for in, want := range tests {
		if got := p.EstimateTokens(in); got != want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", in, got, want)
		}
	}
}

func rankedItems(p Policy, n int, kind model.Kind) []Scored {
	var items []model.MemoryItem
	for i := 0; i < n; i++ {
		it := item(fmt.Sprintf("%s-%02d", kind, i), kind, time.Duration(i)*time.Hour)
		it.Content = strings.Repeat("c", 40)
		it.ContentCompact = it.Content
		items = append(items, it)
	}
	return p.Rank(items, "", now)
}

func TestPack_NeverExceedsBudget(t *testing.T) {
	p := DefaultPolicy()
	pinned := rankedItems(p, 5, model.KindDecision)
	recent := rankedItems(p, 20, model.KindNote)

	for _, budget := range []int{1, 10, 37, 100, 250, 1000} {
		sel := p.Pack(pinned, recent, model.ModeThin, Limits{MaxTokens: budget, PinnedLimit: 8, RecentLimit: 50})
		if sel.UsedTokens > budget {
			t.Errorf("budget %d: used %d", budget, sel.UsedTokens)
		}
		sum := 0
		for _, e := range append(append([]Entry{}, sel.Pinned...), sel.Recent...) {
			sum += e.Tokens
		}
		if sum != sel.UsedTokens {
			t.Errorf("budget %d: entry tokens %d != used %d", budget, sum, sel.UsedTokens)
		}
	}
}

func TestPack_LargerBudgetIsOrderedSuperset(t *testing.T) {
	p := DefaultPolicy()
	pinned := rankedItems(p, 4, model.KindPattern)
	recent := rankedItems(p, 12, model.KindAnswer)
	limits := Limits{PinnedLimit: 8, RecentLimit: 50}

	flatten := func(s Selection) []string {
		var ids []string
		for _, e := range s.Pinned {
			ids = append(ids, e.Item.ID)
		}
		for _, e := range s.Recent {
			ids = append(ids, e.Item.ID)
		}
		return ids
	}

	limits.MaxTokens = 60
	small := flatten(p.Pack(pinned, recent, model.ModeThin, limits))
	limits.MaxTokens = 1 << 30
	large := flatten(p.Pack(pinned, recent, model.ModeThin, limits))

	if len(large) != 16 {
		t.Fatalf("unbounded budget should select everything, got %d", len(large))
	}
	if len(small) >= len(large) {
		t.Fatalf("expected the small budget to cut the list, got %d of %d", len(small), len(large))
	}
	for i := range small {
		if small[i] != large[i] {
			t.Errorf("position %d: %s vs %s", i, small[i], large[i])
		}
	}
}

func TestPack_PinnedOverflowLeavesRecentEmpty(t *testing.T) {
	p := DefaultPolicy()
	pinned := rankedItems(p, 6, model.KindDecision)
	recent := rankedItems(p, 6, model.KindCommand)

	// Each pinned item costs 15 tokens (title 17 runes + content 40 runes).
	sel := p.Pack(pinned, recent, model.ModeThin, Limits{MaxTokens: 45, PinnedLimit: 8, RecentLimit: 10})
	if len(sel.Pinned) != 3 {
		t.Errorf("expected 3 pinned, got %d", len(sel.Pinned))
	}
	if len(sel.Recent) != 0 {
		t.Errorf("expected no recent items, got %d", len(sel.Recent))
	}
	if !sel.Truncated {
		t.Error("expected truncated selection")
	}
	for i, e := range sel.Pinned {
		if e.Item.ID != pinned[i].Item.ID {
			t.Errorf("pinned %d: got %s, want highest-scoring %s", i, e.Item.ID, pinned[i].Item.ID)
		}
	}
}

func TestPack_StopsAtFirstOverflow(t *testing.T) {
	p := DefaultPolicy()
	big := item("big", model.KindDecision, 0)
	big.Content = strings.Repeat("b", 400)
	big.ContentCompact = big.Content
	small := item("small", model.KindNote, time.Hour)

	recent := p.Rank([]model.MemoryItem{big, small}, "", now)
	sel := p.Pack(nil, recent, model.ModeThin, Limits{MaxTokens: 50, PinnedLimit: 8, RecentLimit: 10})
	if len(sel.Recent) != 0 {
		t.Errorf("expected selection to stop at the oversized item, got %d items", len(sel.Recent))
	}
}

func TestPack_Caps(t *testing.T) {
	p := DefaultPolicy()
	pinned := rankedItems(p, 10, model.KindDecision)
	recent := rankedItems(p, 30, model.KindNote)

	sel := p.Pack(pinned, recent, model.ModeThin, Limits{MaxTokens: 1 << 20, PinnedLimit: 2, RecentLimit: 5})
	if len(sel.Pinned) != 2 || len(sel.Recent) != 5 {
		t.Errorf("expected 2 pinned / 5 recent, got %d / %d", len(sel.Pinned), len(sel.Recent))
	}

	sel = p.Pack(pinned, recent, model.ModeThin, Limits{MaxTokens: 1 << 20, MaxItems: 4, PinnedLimit: 8, RecentLimit: 10})
	if n := len(sel.Pinned) + len(sel.Recent); n != 4 {
		t.Errorf("expected max 4 items, got %d", n)
	}
}

func TestPack_EmptyCandidates(t *testing.T) {
	sel := DefaultPolicy().Pack(nil, nil, model.ModeHybrid, Limits{MaxTokens: 100, PinnedLimit: 8, RecentLimit: 10})
	if sel.Pinned == nil || sel.Recent == nil {
		t.Fatal("expected empty, non-nil lists")
	}
	if sel.UsedTokens != 0 || sel.Truncated {
		t.Errorf("unexpected selection %+v", sel)
	}
}

func TestParseKindWeights(t *testing.T) {
	w, err := ParseKindWeights("note=0.9, decision=2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if w[model.KindNote] != 0.9 || w[model.KindDecision] != 2 || w[model.KindPattern] != 1.3 {
		t.Errorf("unexpected weights %v", w)
	}
	for _, bad := range []string{"note", "bogus=1", "note=0", "note=abc"} {
		if _, err := ParseKindWeights(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
	if got := FormatKindWeights(DefaultPolicy().KindWeights); got != "answer=1.1,command=1.2,decision=1.4,note=0.7,pattern=1.3" {
		t.Errorf("unexpected format %q", got)
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
	p := DefaultPolicy()
	p.WorkspaceMismatch = 1.5
	if err := p.Validate(); err == nil {
		t.Error("expected error for mismatch above match")
	}
}
