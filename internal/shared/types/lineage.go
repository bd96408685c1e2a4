package types

// Operation tags recorded by the backend for lineage nodes.
const (
	OpUpload   = "upload"
	OpSQL      = "sql"
	OpPlot     = "plot"
	OpCheckout = "checkout"
)

// LineageNode is one recorded operation in a session's DAG. Field names
// follow the backend wire format; CreatedAt is unix seconds.
type LineageNode struct {
	NodeID            string   `json:"node_id"`
	OpType            string   `json:"op_type"`
	ParentNodeIDs     []string `json:"parent_node_ids"`
	PrimaryArtifactID string   `json:"primary_artifact_id,omitempty"`
	CreatedAt         int64    `json:"created_at"`
}

// IsRoot reports whether the node has no parents (typically an ingest).
func (n LineageNode) IsRoot() bool { return len(n.ParentNodeIDs) == 0 }

// NodeDetail carries the lazily fetched operation parameters for a node.
type NodeDetail struct {
	NodeID            string                 `json:"node_id"`
	OpType            string                 `json:"op_type"`
	OpParams          map[string]interface{} `json:"op_params"`
	ParentNodeIDs     []string               `json:"parent_node_ids"`
	PrimaryArtifactID string                 `json:"primary_artifact_id,omitempty"`
	CreatedAt         int64                  `json:"created_at"`
	SessionID         string                 `json:"session_id"`
}

// PositionedNode is a lineage node placed by the layout pass. Depth is
// the longest parent chain from any root; X is an even horizontal
// position within the node's layer in [0, 1].
type PositionedNode struct {
	Node  LineageNode `json:"node"`
	Depth int         `json:"depth"`
	X     float64     `json:"x"`
}

// Edge is one parent->child link in the rendered graph.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Layout is the positioned form of one DAG snapshot.
type Layout struct {
	Nodes []PositionedNode `json:"nodes"`
	Edges []Edge           `json:"edges"`
	Depth int              `json:"depth"` // number of layers
}

// Empty reports whether the layout holds no nodes.
func (l Layout) Empty() bool { return len(l.Nodes) == 0 }
