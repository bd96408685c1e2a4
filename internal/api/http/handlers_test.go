package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataview-hq/dataview/internal/backend"
	"github.com/dataview-hq/dataview/internal/domain/identity"
	"github.com/dataview-hq/dataview/internal/domain/lineage"
	"github.com/dataview-hq/dataview/internal/domain/registry"
	"github.com/dataview-hq/dataview/internal/domain/state"
	"github.com/dataview-hq/dataview/internal/domain/workbench"
	"github.com/dataview-hq/dataview/internal/shared/types"
	"github.com/dataview-hq/dataview/internal/storage/cache"
)

// fakeAnalysis stands in for the analysis backend across every
// collaborator surface the handler stack touches.
type fakeAnalysis struct {
	nodes     map[string][]types.LineageNode
	details   map[string]*types.NodeDetail
	artifacts map[string][]byte
}

func (f *fakeAnalysis) History(ctx context.Context, sessionID string) (*backend.HistoryResponse, error) {
	return &backend.HistoryResponse{SessionID: sessionID, Items: f.nodes[sessionID]}, nil
}

func (f *fakeAnalysis) NodeDetail(ctx context.Context, nodeID string) (*types.NodeDetail, error) {
	d, ok := f.details[nodeID]
	if !ok {
		return nil, backend.ErrNodeNotFound
	}
	return d, nil
}

func (f *fakeAnalysis) Upload(ctx context.Context, sessionID, filename string, file io.Reader) (*backend.UploadResponse, error) {
	io.Copy(io.Discard, file)
	node := types.LineageNode{NodeID: "n_up", OpType: types.OpUpload}
	f.nodes[sessionID] = append(f.nodes[sessionID], node)
	return &backend.UploadResponse{
		SessionID: sessionID,
		Node:      node,
		Artifact:  backend.Artifact{ArtifactID: "a_up", Kind: "table", Rows: 1, Cols: 1},
		Columns:   []types.Column{{Name: "a", Dtype: "int64"}},
		Preview:   []map[string]interface{}{{"a": 1}},
	}, nil
}

func (f *fakeAnalysis) Ask(ctx context.Context, req backend.AskRequest) (*backend.AskResponse, error) {
	return &backend.AskResponse{
		Intent: backend.Intent{Type: backend.IntentAnswer},
		Result: json.RawMessage(`{"text": "42 rows."}`),
	}, nil
}

func (f *fakeAnalysis) Checkout(ctx context.Context, sessionID, nodeID string) (*backend.CheckoutResponse, error) {
	return &backend.CheckoutResponse{SessionID: sessionID, HeadNodeID: nodeID}, nil
}

func (f *fakeAnalysis) FetchArtifact(ctx context.Context, artifactID string) (io.ReadCloser, string, error) {
	data, ok := f.artifacts[artifactID]
	if !ok {
		return nil, "", backend.ErrArtifactNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), "application/octet-stream", nil
}

type stack struct {
	router     *gin.Engine
	analysis   *fakeAnalysis
	registry   *registry.Manager
	reconciler *state.Reconciler
	workbench  *workbench.Service
	lineage    *lineage.Store
}

func newStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := cache.New(t.TempDir(), 4096, nil)
	resolver := identity.NewResolver()
	resolver.Resolve("user-test")

	analysis := &fakeAnalysis{
		nodes:     map[string][]types.LineageNode{},
		details:   map[string]*types.NodeDetail{},
		artifacts: map[string][]byte{},
	}

	reconciler := state.New(store, resolver, nil)
	reg := registry.NewManager(store, resolver, reconciler, registry.DefaultSeed(), nil, nil)
	ln := lineage.NewStore(analysis, reg.Active, nil, nil)
	wb := workbench.NewService(analysis, reconciler, ln, nil, nil)

	router := gin.New()
	NewHandler(reg, ln, wb, reconciler, analysis, nil).Register(router)

	return &stack{
		router:     router,
		analysis:   analysis,
		registry:   reg,
		reconciler: reconciler,
		workbench:  wb,
		lineage:    ln,
	}
}

func (s *stack) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestListSessionsSynthesizesDefault(t *testing.T) {
	s := newStack(t)

	w := s.do(t, http.MethodGet, "/api/sessions", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	out := decode(t, w)
	sessions := out["sessions"].([]interface{})
	require.Len(t, sessions, 1)
	assert.NotEmpty(t, out["active_id"])

	// Idempotent: listing again does not mint another session.
	w = s.do(t, http.MethodGet, "/api/sessions", nil, "")
	out = decode(t, w)
	assert.Len(t, out["sessions"].([]interface{}), 1)
}

func TestSessionLifecycle(t *testing.T) {
	s := newStack(t)
	s.do(t, http.MethodGet, "/api/sessions", nil, "")
	defaultID := s.registry.Active()

	w := s.do(t, http.MethodPost, "/api/sessions", strings.NewReader(`{"title": "Q3"}`), "application/json")
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode(t, w)["session"].(map[string]interface{})
	createdID := created["id"].(string)
	assert.Equal(t, "Q3", created["title"])
	assert.Equal(t, createdID, s.registry.Active())

	w = s.do(t, http.MethodPost, "/api/sessions/"+defaultID+"/select", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultID, s.registry.Active())

	w = s.do(t, http.MethodPost, "/api/sessions/sess_ghost/select", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPatch, "/api/sessions/"+createdID, strings.NewReader(`{"title": "renamed"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	got, ok := s.registry.Get(createdID)
	require.True(t, ok)
	assert.Equal(t, "renamed", got.Title)
}

func TestUploadEndpoint(t *testing.T) {
	s := newStack(t)
	s.do(t, http.MethodGet, "/api/sessions", nil, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "sales.csv")
	require.NoError(t, err)
	fw.Write([]byte("a,b\n1,2\n"))
	mw.Close()

	w := s.do(t, http.MethodPost, "/api/upload", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusOK, w.Code)
	s.workbench.Wait()

	st := s.reconciler.Current()
	assert.Equal(t, "a_up", st.ArtifactID)
	assert.Equal(t, "n_up", st.CurrentNodeID)
}

func TestUploadMissingFile(t *testing.T) {
	s := newStack(t)
	s.do(t, http.MethodGet, "/api/sessions", nil, "")

	w := s.do(t, http.MethodPost, "/api/upload", strings.NewReader("not multipart"), "text/plain")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAskEndpoint(t *testing.T) {
	s := newStack(t)
	s.do(t, http.MethodGet, "/api/sessions", nil, "")

	// No dataset loaded yet.
	w := s.do(t, http.MethodPost, "/api/ask", strings.NewReader(`{"message": "how many rows?"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Missing message field.
	w = s.do(t, http.MethodPost, "/api/ask", strings.NewReader(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, err := s.reconciler.Apply(s.reconciler.SessionID(), types.StatePatch{ArtifactID: types.StrPtr("a_seed")})
	require.NoError(t, err)

	w = s.do(t, http.MethodPost, "/api/ask", strings.NewReader(`{"message": "how many rows?"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	s.workbench.Wait()

	st := s.reconciler.Current()
	require.GreaterOrEqual(t, len(st.Messages), 2)
	assert.Equal(t, "42 rows.", st.Messages[len(st.Messages)-1].Text)
}

func TestLineageEndpoints(t *testing.T) {
	s := newStack(t)
	s.do(t, http.MethodGet, "/api/sessions", nil, "")
	active := s.registry.Active()
	s.analysis.nodes[active] = []types.LineageNode{
		{NodeID: "n1", OpType: types.OpUpload},
		{NodeID: "n2", OpType: types.OpSQL, ParentNodeIDs: []string{"n1"}},
	}

	w := s.do(t, http.MethodPost, "/api/lineage/refresh", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, active, out["session_id"])
	layout := out["layout"].(map[string]interface{})
	assert.Len(t, layout["nodes"].([]interface{}), 2)

	w = s.do(t, http.MethodGet, "/api/lineage", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, out["layout"], decode(t, w)["layout"])
}

func TestNodeDetailEndpoint(t *testing.T) {
	s := newStack(t)
	s.do(t, http.MethodGet, "/api/sessions", nil, "")
	s.analysis.details["n1"] = &types.NodeDetail{
		NodeID:   "n1",
		OpType:   types.OpSQL,
		OpParams: map[string]interface{}{"sql": "SELECT 1"},
	}

	w := s.do(t, http.MethodGet, "/api/nodes/n1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	node := decode(t, w)["node"].(map[string]interface{})
	assert.Equal(t, "sql", node["op_type"])

	w = s.do(t, http.MethodGet, "/api/nodes/ghost", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckoutEndpoint(t *testing.T) {
	s := newStack(t)
	s.do(t, http.MethodGet, "/api/sessions", nil, "")
	active := s.registry.Active()
	s.analysis.nodes[active] = []types.LineageNode{
		{NodeID: "n1", OpType: types.OpUpload, PrimaryArtifactID: "a1"},
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/lineage/refresh", nil, "").Code)

	w := s.do(t, http.MethodPost, "/api/nodes/n1/checkout", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	s.workbench.Wait()

	st := s.reconciler.Current()
	assert.Equal(t, "n1", st.CurrentNodeID)
	assert.Equal(t, "a1", st.ArtifactID)

	w = s.do(t, http.MethodPost, "/api/nodes/ghost/checkout", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestArtifactProxy(t *testing.T) {
	s := newStack(t)
	s.analysis.artifacts["a1"] = []byte("parquet-bytes")

	w := s.do(t, http.MethodGet, "/api/artifacts/a1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "parquet-bytes", w.Body.String())

	w = s.do(t, http.MethodGet, "/api/artifacts/ghost", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStateEndpoint(t *testing.T) {
	s := newStack(t)
	s.do(t, http.MethodGet, "/api/sessions", nil, "")

	w := s.do(t, http.MethodGet, "/api/state", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, s.registry.Active(), out["session_id"])

	// The synthesized session starts with the greeting.
	st := out["state"].(map[string]interface{})
	msgs := st["messages"].([]interface{})
	require.Len(t, msgs, 1)
}
