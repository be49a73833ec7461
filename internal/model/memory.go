// Package model defines the core memory data types.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Kind classifies a memory item.
type Kind string

const (
	KindDecision Kind = "decision"
	KindCommand  Kind = "command"
	KindPattern  Kind = "pattern"
	KindAnswer   Kind = "answer"
	KindNote     Kind = "note"
)

// ValidKinds are the allowed memory kinds.
var ValidKinds = map[Kind]bool{
	KindDecision: true,
	KindCommand:  true,
	KindPattern:  true,
	KindAnswer:   true,
	KindNote:     true,
}

// ParseKind normalizes s and rejects anything outside ValidKinds.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !ValidKinds[k] {
		return "", fmt.Errorf("unknown kind %q (valid: decision, command, pattern, answer, note)", s)
	}
	return k, nil
}

const (
	DefaultImportance = 50
	MinImportance     = 0
	MaxImportance     = 100
	DefaultSource     = "agent"
	// GlobalWorkspace is the hint used when the caller does not name a workspace.
	GlobalWorkspace = "global"
)

// MemoryItem is a unit of stored knowledge, unique on (SpaceID, Kind, Title).
type MemoryItem struct {
	ID             string    `json:"id"`
	SpaceID        string    `json:"space_id"`
	Kind           Kind      `json:"kind"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	ContentCompact string    `json:"content_compact"`
	Pinned         bool      `json:"pinned"`
	Importance     int       `json:"importance"`
	WorkspaceHint  string    `json:"workspace_hint,omitempty"`
	Source         string    `json:"source"`
	Tags           []string  `json:"tags"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasFull reports whether the full content holds more than the compact form.
func (m MemoryItem) HasFull() bool {
	return m.Content != m.ContentCompact
}

// NormalizeTag trims and lower-cases a tag name.
func NormalizeTag(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// Mode selects how much content bootstrap emits per item.
type Mode string

const (
	ModeThin   Mode = "thin"
	ModeHybrid Mode = "hybrid"
	ModeFull   Mode = "full"
)

// ParseMode accepts thin, hybrid or full.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeThin, ModeHybrid, ModeFull:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q (valid: thin, hybrid, full)", s)
	}
}
