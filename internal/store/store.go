// Package store provides the memory storage interface and SQLite implementation.
package store

import (
	"context"
	"time"

	"github.com/rcliao/mnemosyne/internal/model"
)

// UpsertParams holds parameters for merging or creating a memory item.
//
// Nil optional fields keep the stored value on merge and fall back to the
// defaults on create. Tags always replace the item's tag set.
type UpsertParams struct {
	SpaceID        string
	Kind           model.Kind
	Title          string
	Content        string
	ContentCompact string
	Pinned         *bool
	Importance     *int
	WorkspaceHint  *string
	Source         *string
	Tags           []string
	Now            time.Time
}

// Action reports whether an upsert created or merged an item.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

// UpsertResult is the outcome of UpsertItem.
type UpsertResult struct {
	Item   model.MemoryItem
	Action Action
}

// CandidateParams bounds the candidate fetch for bootstrap.
type CandidateParams struct {
	Allowed     []string
	PinnedFetch int
	RecentFetch int
}

// Candidates are unranked bootstrap inputs, most recently updated first.
type Candidates struct {
	Pinned []model.MemoryItem
	Recent []model.MemoryItem
}

// SearchParams holds parameters for full-text search.
type SearchParams struct {
	Query   string
	Allowed []string
	Limit   int
}

// SearchResult is a matched item with its relevance (higher is better).
type SearchResult struct {
	Item      model.MemoryItem `json:"item"`
	Relevance float64          `json:"relevance"`
}

// CreateSessionParams holds parameters for committing a session.
type CreateSessionParams struct {
	SpaceID       string
	WorkspaceHint string
	Summary       string
	Decisions     []string
	NextSteps     []string
	Now           time.Time
}

// ListSessionsParams selects sessions newest first.
type ListSessionsParams struct {
	WorkspaceHint string
	Allowed       []string
	Limit         int
}

// SpaceStats summarizes one space.
type SpaceStats struct {
	SpaceID  string         `json:"space_id"`
	Items    int            `json:"items"`
	Pinned   int            `json:"pinned"`
	ByKind   map[string]int `json:"by_kind"`
	Sessions int            `json:"sessions"`
}

// Stats summarizes the visible part of the store.
type Stats struct {
	Spaces []SpaceStats `json:"spaces"`
	Tags   int          `json:"tags"`
}

// ExportData is a dump of items and sessions.
type ExportData struct {
	Version    int                `json:"version"`
	ExportedAt time.Time          `json:"exported_at"`
	Items      []model.MemoryItem `json:"items"`
	Sessions   []model.Session    `json:"sessions"`
}

// Store defines the storage collaborator of the engine. Every read takes
// the caller's allowed spaces and must never return rows outside them.
type Store interface {
	// UpsertItem atomically merges or creates the item keyed on
	// (space, kind, title) and relinks its tags in the same transaction.
	UpsertItem(ctx context.Context, p UpsertParams) (*UpsertResult, error)

	// GetItem returns the item if it lives in one of the allowed spaces.
	GetItem(ctx context.Context, id string, allowed []string) (*model.MemoryItem, error)

	// Candidates returns pinned and recent items for bootstrap ranking.
	Candidates(ctx context.Context, p CandidateParams) (*Candidates, error)

	// FullTextSearch returns matches ordered by relevance.
	FullTextSearch(ctx context.Context, p SearchParams) ([]SearchResult, error)

	// CreateSession stores a session and links it to the latest session of
	// the same (workspace hint, space) chain in one transaction.
	CreateSession(ctx context.Context, p CreateSessionParams) (*model.Session, error)

	// LinkPredecessor points sessionID at predecessorID.
	LinkPredecessor(ctx context.Context, sessionID, predecessorID string) error

	// GetSession returns the session if it lives in one of the allowed spaces.
	GetSession(ctx context.Context, id string, allowed []string) (*model.Session, error)

	// ListSessions returns sessions for a workspace hint, newest first.
	ListSessions(ctx context.Context, p ListSessionsParams) ([]model.Session, error)

	// EnsurePersonalSpace creates the user and its personal space if missing.
	EnsurePersonalSpace(ctx context.Context, userID string) (*model.Space, error)

	// ResolveMembership lists every space userID belongs to.
	ResolveMembership(ctx context.Context, userID string) ([]model.Space, error)

	// CreateSpace creates a shared space owned by ownerID.
	CreateSpace(ctx context.Context, id, name, ownerID string) (*model.Space, error)

	// AddMember adds userID to a shared space.
	AddMember(ctx context.Context, spaceID, userID string) error

	// Export dumps items and sessions of the allowed spaces.
	Export(ctx context.Context, allowed []string) (*ExportData, error)

	// Stats summarizes the allowed spaces.
	Stats(ctx context.Context, allowed []string) (*Stats, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close closes the store.
	Close() error
}
