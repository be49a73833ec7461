package model

import "time"

// Session is a summary of one working session. Sessions sharing a
// workspace hint and space form a chain through PredecessorID.
type Session struct {
	ID            string    `json:"id"`
	SpaceID       string    `json:"space_id"`
	WorkspaceHint string    `json:"workspace_hint"`
	Summary       string    `json:"summary"`
	Decisions     []string  `json:"decisions"`
	NextSteps     []string  `json:"next_steps"`
	PredecessorID string    `json:"predecessor_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
