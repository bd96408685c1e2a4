package backend

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/dataview-hq/dataview/internal/shared/types"
)

// Intent types the backend planner may return for an /ask call.
const (
	IntentAnswer = "answer"
	IntentSQL    = "sql"
	IntentPlot   = "plot"
	IntentReport = "report"
)

// Artifact describes one stored backend artifact (parquet table, chart
// image, rendered report).
type Artifact struct {
	ArtifactID string `json:"artifact_id"`
	Kind       string `json:"kind"`
	Format     string `json:"format"`
	URI        string `json:"uri"`
	Bytes      int64  `json:"bytes"`
	Rows       int64  `json:"rows"`
	Cols       int64  `json:"cols"`
}

// HistoryResponse is the full lineage snapshot for one session.
type HistoryResponse struct {
	SessionID string              `json:"session_id"`
	Items     []types.LineageNode `json:"items"`
}

// CheckoutRequest moves a session head to an existing node.
type CheckoutRequest struct {
	SessionID string `json:"session_id"`
	NodeID    string `json:"node_id"`
}

// CheckoutResponse confirms the new head after a checkout.
type CheckoutResponse struct {
	SessionID  string `json:"session_id"`
	HeadNodeID string `json:"head_node_id"`
}

// AskRequest sends a natural-language question about an artifact.
type AskRequest struct {
	SessionID  string `json:"session_id"`
	ArtifactID string `json:"artifact_id"`
	Message    string `json:"message"`
}

// Intent is the planner's routing decision. The plan carries more
// fields (sql text, plot spec) but the gateway only dispatches on type.
type Intent struct {
	Type string `json:"type"`
}

// AskResponse wraps the planner intent and the intent-shaped result.
// Result stays raw until the caller knows which shape to decode.
type AskResponse struct {
	Intent Intent          `json:"intent"`
	Result json.RawMessage `json:"result"`
}

// AnswerResult is the result payload for an "answer" intent.
type AnswerResult struct {
	Text string `json:"text"`
}

// QueryResult is the result payload for a "sql" intent: a derived table
// node plus its inline rendering data.
type QueryResult struct {
	SessionID    string                   `json:"session_id"`
	ParentNodeID string                   `json:"parent_node_id"`
	Node         types.LineageNode        `json:"node"`
	Artifact     Artifact                 `json:"artifact"`
	Columns      []types.Column           `json:"columns"`
	Preview      []map[string]interface{} `json:"preview"`
}

// PlotResult is the result payload for a "plot" intent.
type PlotResult struct {
	SessionID    string            `json:"session_id"`
	ParentNodeID string            `json:"parent_node_id,omitempty"`
	Node         types.LineageNode `json:"node"`
	Artifact     Artifact          `json:"artifact"`
}

// ReportResult is the result payload for a "report" intent. HTML is
// untrusted until sanitized by the caller.
type ReportResult struct {
	SessionID    string            `json:"session_id"`
	ParentNodeID string            `json:"parent_node_id,omitempty"`
	Node         types.LineageNode `json:"node"`
	Artifact     Artifact          `json:"artifact"`
	HTML         string            `json:"html"`
}

// AsAnswer decodes the result as an answer payload.
func (r *AskResponse) AsAnswer() (*AnswerResult, error) {
	var out AnswerResult
	if err := sonic.Unmarshal(r.Result, &out); err != nil {
		return nil, fmt.Errorf("decode answer result: %w", err)
	}
	return &out, nil
}

// AsQuery decodes the result as a sql payload.
func (r *AskResponse) AsQuery() (*QueryResult, error) {
	var out QueryResult
	if err := sonic.Unmarshal(r.Result, &out); err != nil {
		return nil, fmt.Errorf("decode sql result: %w", err)
	}
	return &out, nil
}

// AsPlot decodes the result as a plot payload.
func (r *AskResponse) AsPlot() (*PlotResult, error) {
	var out PlotResult
	if err := sonic.Unmarshal(r.Result, &out); err != nil {
		return nil, fmt.Errorf("decode plot result: %w", err)
	}
	return &out, nil
}

// AsReport decodes the result as a report payload.
func (r *AskResponse) AsReport() (*ReportResult, error) {
	var out ReportResult
	if err := sonic.Unmarshal(r.Result, &out); err != nil {
		return nil, fmt.Errorf("decode report result: %w", err)
	}
	return &out, nil
}

// UploadResponse is the backend's answer to a dataset ingest: the new
// root node, its artifact, and inline rendering data.
type UploadResponse struct {
	SessionID string                   `json:"session_id"`
	Node      types.LineageNode        `json:"node"`
	Artifact  Artifact                 `json:"artifact"`
	Columns   []types.Column           `json:"columns"`
	Preview   []map[string]interface{} `json:"preview"`
}

// apiError is the backend's error envelope.
type apiError struct {
	Detail string `json:"detail"`
}
