package store

import (
	"context"
	"testing"

	"github.com/rcliao/mnemosyne/internal/model"
)

func TestFullTextSearch_Basic(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	space := personal(t, s, "alice")

	for _, p := range []UpsertParams{
		{Kind: model.KindNote, Title: "golang", Content: "Go is a compiled language with goroutines"},
		{Kind: model.KindNote, Title: "python", Content: "Python is an interpreted language"},
		{Kind: model.KindNote, Title: "rust", Content: "Rust has a borrow checker"},
	} {
		p.SpaceID = space
		p.ContentCompact = p.Content
		if _, err := s.UpsertItem(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	results, err := s.FullTextSearch(ctx, SearchParams{Query: "language", Allowed: []string{space}, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	results, err = s.FullTextSearch(ctx, SearchParams{Query: "borrow", Allowed: []string{space}, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Item.Title != "rust" {
		t.Errorf("expected rust, got %+v", results)
	}
}

func TestFullTextSearch_TitleRanksHigher(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	space := personal(t, s, "alice")

	s.UpsertItem(ctx, UpsertParams{SpaceID: space, Kind: model.KindNote, Title: "misc",
		Content: "we once mentioned deploy in passing, among many other words here", ContentCompact: "x"})
	s.UpsertItem(ctx, UpsertParams{SpaceID: space, Kind: model.KindCommand, Title: "deploy",
		Content: "make release", ContentCompact: "make release"})

	results, err := s.FullTextSearch(ctx, SearchParams{Query: "deploy", Allowed: []string{space}, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Item.Title != "deploy" {
		t.Errorf("expected title match first, got %s", results[0].Item.Title)
	}
	if results[0].Relevance < results[1].Relevance {
		t.Errorf("relevance not descending: %v < %v", results[0].Relevance, results[1].Relevance)
	}
}

func TestFullTextSearch_ScopedAndUpdated(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := personal(t, s, "alice")
	b := personal(t, s, "bob")

	s.UpsertItem(ctx, UpsertParams{SpaceID: b, Kind: model.KindNote, Title: "secret", Content: "kubernetes token", ContentCompact: "kubernetes token"})
	s.UpsertItem(ctx, UpsertParams{SpaceID: a, Kind: model.KindNote, Title: "mine", Content: "docker compose", ContentCompact: "docker compose"})

	results, err := s.FullTextSearch(ctx, SearchParams{Query: "kubernetes", Allowed: []string{a}, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("leaked %d results from another space", len(results))
	}

	// The index follows merges.
	s.UpsertItem(ctx, UpsertParams{SpaceID: a, Kind: model.KindNote, Title: "mine", Content: "podman", ContentCompact: "podman"})
	results, _ = s.FullTextSearch(ctx, SearchParams{Query: "docker", Allowed: []string{a}, Limit: 10})
	if len(results) != 0 {
		t.Errorf("stale index entry after merge: %+v", results)
	}
	results, _ = s.FullTextSearch(ctx, SearchParams{Query: "podman", Allowed: []string{a}, Limit: 10})
	if len(results) != 1 {
		t.Errorf("expected merged content to be indexed, got %d", len(results))
	}
}

func TestFullTextSearch_QuerySyntaxIsLiteral(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	space := personal(t, s, "alice")
	s.UpsertItem(ctx, UpsertParams{SpaceID: space, Kind: model.KindNote, Title: "and or not", Content: "c", ContentCompact: "c"})

	for _, q := range []string{`AND OR`, `"unbalanced`, `title:x*`, `(not)`, `"`} {
		if _, err := s.FullTextSearch(ctx, SearchParams{Query: q, Allowed: []string{space}, Limit: 5}); err != nil {
			t.Errorf("query %q: %v", q, err)
		}
	}
}

func TestSanitizeFTS(t *testing.T) {
	tests := map[string]string{
		"hello world": `"hello" "world"`,
		`say "hi"`:    `"say" "hi"`,
		`a"b`:         `"a""b"`,
		`  "  `:       "",
		"":            "",
	}
	for in, want := range tests {
		if got := sanitizeFTS(in); got != want {
			t.Errorf("sanitizeFTS(%q) = %q, want %q", in, got, want)
		}
	}
}
