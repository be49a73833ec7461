package model

import (
	"slices"
	"time"
)

// SpaceType distinguishes a user's private space from a team space.
type SpaceType string

const (
	SpacePersonal SpaceType = "personal"
	SpaceShared   SpaceType = "shared"
)

// Space is an isolation boundary for memory items and sessions.
type Space struct {
	ID        string    `json:"id"`
	Type      SpaceType `json:"type"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// PersonalSpaceID returns the id of the personal space owned by userID.
func PersonalSpaceID(userID string) string {
	return "personal:" + userID
}

// Scope is the resolved visibility of one request.
type Scope struct {
	UserID     string   `json:"user_id"`
	WriteSpace string   `json:"write_space_id"`
	Allowed    []string `json:"allowed_spaces"`
}

// Allows reports whether spaceID is visible to the scope.
func (s Scope) Allows(spaceID string) bool {
	return slices.Contains(s.Allowed, spaceID)
}

// Valid reports whether the scope can serve a request at all.
func (s Scope) Valid() bool {
	return len(s.Allowed) > 0 && s.Allows(s.WriteSpace)
}
