package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/mnemosyne/internal/model"
	"github.com/rcliao/mnemosyne/internal/store"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestStore connects to MNEMOSYNE_TEST_POSTGRES_DSN and empties every
// table. Tests in this package share one database and must not run in
// parallel.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("MNEMOSYNE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MNEMOSYNE_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.db.ExecContext(ctx,
		`TRUNCATE item_tags, tags, memory_items, sessions, space_members, spaces, users CASCADE`)
	require.NoError(t, err)
	return s
}

func personal(t *testing.T, s *Store, user string) string {
	t.Helper()
	sp, err := s.EnsurePersonalSpace(context.Background(), user)
	require.NoError(t, err)
	return sp.ID
}

func TestUpsertCreatesThenMerges(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	space := personal(t, s, "alice")
	pinned := true
	hint := "repo-x"

	first, err := s.UpsertItem(ctx, store.UpsertParams{
		SpaceID: space, Kind: model.KindCommand, Title: "build",
		Content: "make build", ContentCompact: "make build",
		Pinned: &pinned, WorkspaceHint: &hint, Tags: []string{"Go", "ci"}, Now: t0,
	})
	require.NoError(t, err)
	assert.Equal(t, store.ActionCreated, first.Action)
	assert.Equal(t, []string{"ci", "go"}, first.Item.Tags)
	assert.Equal(t, 50, first.Item.Importance)

	second, err := s.UpsertItem(ctx, store.UpsertParams{
		SpaceID: space, Kind: model.KindCommand, Title: "build",
		Content: "go build ./...", ContentCompact: "go build ./...", Now: t0,
	})
	require.NoError(t, err)
	assert.Equal(t, store.ActionUpdated, second.Action)
	assert.Equal(t, first.Item.ID, second.Item.ID)
	assert.True(t, second.Item.Pinned, "pinned kept on merge")
	assert.Equal(t, "repo-x", second.Item.WorkspaceHint)
	assert.True(t, second.Item.UpdatedAt.After(first.Item.UpdatedAt), "updated_at must advance")
	assert.Equal(t, first.Item.CreatedAt, second.Item.CreatedAt)
	assert.Empty(t, second.Item.Tags)

	got, err := s.GetItem(ctx, first.Item.ID, []string{space})
	require.NoError(t, err)
	assert.Equal(t, "go build ./...", got.Content)

	_, err = s.GetItem(ctx, first.Item.ID, []string{"personal:bob"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUpsertConcurrentWritersConverge(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	space := personal(t, s, "alice")

	var wg sync.WaitGroup
	results := make([]*store.UpsertResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := s.UpsertItem(ctx, store.UpsertParams{
				SpaceID: space, Kind: model.KindNote, Title: "shared",
				Content: "body", ContentCompact: "body", Now: t0,
			})
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	created := 0
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, results[0].Item.ID, r.Item.ID)
		if r.Action == store.ActionCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)
}

func TestCandidatesAndSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := personal(t, s, "alice")
	bob := personal(t, s, "bob")
	pinned := true

	_, err := s.UpsertItem(ctx, store.UpsertParams{SpaceID: alice, Kind: model.KindDecision,
		Title: "use postgres", Content: "shared database for the fleet", ContentCompact: "shared database",
		Pinned: &pinned, Now: t0})
	require.NoError(t, err)
	_, err = s.UpsertItem(ctx, store.UpsertParams{SpaceID: alice, Kind: model.KindNote,
		Title: "lunch", Content: "postgres meetup on friday", ContentCompact: "meetup", Now: t0.Add(time.Minute)})
	require.NoError(t, err)
	_, err = s.UpsertItem(ctx, store.UpsertParams{SpaceID: bob, Kind: model.KindNote,
		Title: "postgres secret", Content: "bob only", ContentCompact: "bob only", Now: t0})
	require.NoError(t, err)

	c, err := s.Candidates(ctx, store.CandidateParams{Allowed: []string{alice}, PinnedFetch: 10, RecentFetch: 10})
	require.NoError(t, err)
	require.Len(t, c.Pinned, 1)
	require.Len(t, c.Recent, 1)
	assert.Equal(t, "use postgres", c.Pinned[0].Title)

	res, err := s.FullTextSearch(ctx, store.SearchParams{Query: "postgres", Allowed: []string{alice}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "use postgres", res[0].Item.Title, "title match ranks first")
	for _, r := range res {
		assert.Equal(t, alice, r.Item.SpaceID)
		assert.Greater(t, r.Relevance, 0.0)
	}

	res, err = s.FullTextSearch(ctx, store.SearchParams{Query: `"postgres" (`, Allowed: []string{alice}})
	require.NoError(t, err, "query syntax is treated as plain words")
	assert.NotEmpty(t, res)
}

func TestSessionChain(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	space := personal(t, s, "alice")

	a, err := s.CreateSession(ctx, store.CreateSessionParams{SpaceID: space, WorkspaceHint: "w", Summary: "a", Now: t0})
	require.NoError(t, err)
	b, err := s.CreateSession(ctx, store.CreateSessionParams{SpaceID: space, WorkspaceHint: "w", Summary: "b",
		Decisions: []string{"d1"}, Now: t0})
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.PredecessorID)
	assert.True(t, b.CreatedAt.After(a.CreatedAt))

	got, err := s.GetSession(ctx, b.ID, []string{space})
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, got.Decisions)
	assert.Equal(t, []string{}, got.NextSteps)

	list, err := s.ListSessions(ctx, store.ListSessionsParams{WorkspaceHint: "w", Allowed: []string{space}, Limit: 5})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)

	c, err := s.CreateSession(ctx, store.CreateSessionParams{SpaceID: space, WorkspaceHint: "w", Summary: "c", Now: t0})
	require.NoError(t, err)

	err = s.LinkPredecessor(ctx, c.ID, c.ID)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
	err = s.LinkPredecessor(ctx, a.ID, c.ID)
	assert.ErrorIs(t, err, model.ErrInvalidArgument, "predecessor must be older")
	err = s.LinkPredecessor(ctx, c.ID, a.ID)
	assert.ErrorIs(t, err, model.ErrInvalidArgument, "a already has a successor")
	err = s.LinkPredecessor(ctx, c.ID, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCreateSessionConcurrentNeverForks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	space := personal(t, s, "alice")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateSession(ctx, store.CreateSessionParams{SpaceID: space, WorkspaceHint: "w", Summary: "s", Now: t0})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	list, err := s.ListSessions(ctx, store.ListSessionsParams{WorkspaceHint: "w", Allowed: []string{space}, Limit: 20})
	require.NoError(t, err)
	require.Len(t, list, 10)
	for i := 0; i < len(list)-1; i++ {
		assert.Equal(t, list[i+1].ID, list[i].PredecessorID, "chain must follow creation order")
	}
	assert.Empty(t, list[len(list)-1].PredecessorID)
}

func TestSpacesExportAndStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := personal(t, s, "alice")

	team, err := s.CreateSpace(ctx, "team-a", "", "alice")
	require.NoError(t, err)
	assert.Equal(t, "team-a", team.Name)
	require.NoError(t, s.AddMember(ctx, "team-a", "bob"))
	require.NoError(t, s.AddMember(ctx, "team-a", "bob"))

	_, err = s.CreateSpace(ctx, "team-a", "", "alice")
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
	_, err = s.CreateSpace(ctx, "personal:carol", "", "alice")
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
	assert.ErrorIs(t, s.AddMember(ctx, "nope", "bob"), model.ErrNotFound)
	assert.ErrorIs(t, s.AddMember(ctx, alice, "bob"), model.ErrInvalidArgument)

	spaces, err := s.ResolveMembership(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, spaces, 1)
	assert.Equal(t, model.SpaceShared, spaces[0].Type)

	_, err = s.UpsertItem(ctx, store.UpsertParams{SpaceID: "team-a", Kind: model.KindPattern,
		Title: "errors", Content: "wrap with %w", ContentCompact: "wrap", Tags: []string{"go"}, Now: t0})
	require.NoError(t, err)
	_, err = s.CreateSession(ctx, store.CreateSessionParams{SpaceID: "team-a", WorkspaceHint: "w", Summary: "s", Now: t0})
	require.NoError(t, err)

	dump, err := s.Export(ctx, []string{"team-a"})
	require.NoError(t, err)
	assert.Len(t, dump.Items, 1)
	assert.Len(t, dump.Sessions, 1)
	assert.Equal(t, []string{"go"}, dump.Items[0].Tags)

	st, err := s.Stats(ctx, []string{alice, "team-a"})
	require.NoError(t, err)
	require.Len(t, st.Spaces, 2)
	assert.Equal(t, 0, st.Spaces[0].Items)
	assert.Equal(t, 1, st.Spaces[1].Items)
	assert.Equal(t, 1, st.Spaces[1].ByKind["pattern"])
	assert.Equal(t, 1, st.Spaces[1].Sessions)
	assert.Equal(t, 1, st.Tags)
}
