package types

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Block kinds for rendered results attached to assistant messages.
const (
	BlockTable  = "table"
	BlockChart  = "chart"
	BlockReport = "report"
)

// Block references a renderable backend artifact inside a message.
// The gateway never interprets artifact content beyond what the backend
// already returned inline (columns/preview for tables, sanitized HTML
// for reports).
type Block struct {
	Kind       string                   `json:"kind"`
	ArtifactID string                   `json:"artifact_id,omitempty"`
	Columns    []Column                 `json:"columns,omitempty"`
	Preview    []map[string]interface{} `json:"preview,omitempty"`
	HTML       string                   `json:"html,omitempty"`
}

// Column describes one column of a tabular artifact.
type Column struct {
	Name  string `json:"name"`
	Dtype string `json:"dtype"`
}

// Message is one transcript entry.
type Message struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Text  string `json:"text"`
	Block *Block `json:"block,omitempty"`
}
