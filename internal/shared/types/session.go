package types

import "time"

// Session is one logical conversation thread owned by a user namespace.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionState is the cached per-session UI state. It is the only
// persistent record of the transcript; the backend never sees it.
type SessionState struct {
	Messages      []Message `json:"messages"`
	ArtifactID    string    `json:"artifact_id"`
	CurrentNodeID string    `json:"current_node_id"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StatePatch is a partial in-memory update to a SessionState. Nil fields
// mean "unchanged": on persist they fall back to the last stored value so
// a partial update never clobbers fields not yet touched in memory.
type StatePatch struct {
	Messages      []Message `json:"messages,omitempty"`
	ArtifactID    *string   `json:"artifact_id,omitempty"`
	CurrentNodeID *string   `json:"current_node_id,omitempty"`
}

// Merge applies the patch over a stored state and stamps the update time.
func (p StatePatch) Merge(base SessionState, now time.Time) SessionState {
	out := base
	if p.Messages != nil {
		out.Messages = p.Messages
	}
	if p.ArtifactID != nil {
		out.ArtifactID = *p.ArtifactID
	}
	if p.CurrentNodeID != nil {
		out.CurrentNodeID = *p.CurrentNodeID
	}
	out.UpdatedAt = now
	return out
}

// StrPtr is a convenience for building patches.
func StrPtr(s string) *string { return &s }
