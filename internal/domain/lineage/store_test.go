package lineage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataview-hq/dataview/internal/backend"
	"github.com/dataview-hq/dataview/internal/shared/types"
)

type fakeFetcher struct {
	histories    map[string][]types.LineageNode
	details      map[string]*types.NodeDetail
	historyErr   error
	detailErr    error
	historyCalls int
	detailCalls  int
}

func (f *fakeFetcher) History(ctx context.Context, sessionID string) (*backend.HistoryResponse, error) {
	f.historyCalls++
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return &backend.HistoryResponse{SessionID: sessionID, Items: f.histories[sessionID]}, nil
}

func (f *fakeFetcher) NodeDetail(ctx context.Context, nodeID string) (*types.NodeDetail, error) {
	f.detailCalls++
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	d, ok := f.details[nodeID]
	if !ok {
		return nil, backend.ErrNodeNotFound
	}
	return d, nil
}

func fixedActive(id string) func() string {
	return func() string { return id }
}

func TestRefreshReplacesSnapshotWholesale(t *testing.T) {
	f := &fakeFetcher{histories: map[string][]types.LineageNode{
		"sess_a": {node("n1"), node("n2", "n1")},
	}}
	s := NewStore(f, fixedActive("sess_a"), nil, nil)

	require.NoError(t, s.Refresh(context.Background(), "sess_a"))
	_, l := s.Snapshot()
	assert.Len(t, l.Nodes, 2)

	// The next refresh fully replaces, never appends.
	f.histories["sess_a"] = []types.LineageNode{node("n9")}
	require.NoError(t, s.Refresh(context.Background(), "sess_a"))
	sessionID, l := s.Snapshot()
	assert.Equal(t, "sess_a", sessionID)
	require.Len(t, l.Nodes, 1)
	assert.Equal(t, "n9", l.Nodes[0].Node.NodeID)
}

func TestRefreshIdempotent(t *testing.T) {
	f := &fakeFetcher{histories: map[string][]types.LineageNode{
		"sess_a": {node("n1"), node("n2", "n1")},
	}}
	s := NewStore(f, fixedActive("sess_a"), nil, nil)

	require.NoError(t, s.Refresh(context.Background(), "sess_a"))
	_, first := s.Snapshot()
	require.NoError(t, s.Refresh(context.Background(), "sess_a"))
	_, second := s.Snapshot()

	assert.Equal(t, first, second)
}

func TestStaleRefreshDiscarded(t *testing.T) {
	f := &fakeFetcher{histories: map[string][]types.LineageNode{
		"sess_a": {node("n1")},
		"sess_b": {node("m1"), node("m2", "m1")},
	}}

	// The user is on sess_b by the time sess_a's response resolves.
	s := NewStore(f, fixedActive("sess_b"), nil, nil)

	require.NoError(t, s.Refresh(context.Background(), "sess_a"))
	sessionID, l := s.Snapshot()
	assert.Empty(t, sessionID, "stale response must not install a snapshot")
	assert.True(t, l.Empty())

	require.NoError(t, s.Refresh(context.Background(), "sess_b"))
	sessionID, l = s.Snapshot()
	assert.Equal(t, "sess_b", sessionID)
	assert.Len(t, l.Nodes, 2)
}

func TestRefreshErrorLeavesSnapshot(t *testing.T) {
	f := &fakeFetcher{histories: map[string][]types.LineageNode{
		"sess_a": {node("n1")},
	}}
	s := NewStore(f, fixedActive("sess_a"), nil, nil)
	require.NoError(t, s.Refresh(context.Background(), "sess_a"))

	f.historyErr = errors.New("backend down")
	require.Error(t, s.Refresh(context.Background(), "sess_a"))

	_, l := s.Snapshot()
	assert.Len(t, l.Nodes, 1, "failed refresh must not clear the snapshot")
}

func TestSelectNode(t *testing.T) {
	n := node("n1")
	n.PrimaryArtifactID = "a1"
	f := &fakeFetcher{histories: map[string][]types.LineageNode{"sess_a": {n}}}
	s := NewStore(f, fixedActive("sess_a"), nil, nil)
	require.NoError(t, s.Refresh(context.Background(), "sess_a"))

	ref, err := s.SelectNode("n1")
	require.NoError(t, err)
	assert.Equal(t, NodeRef{NodeID: "n1", ArtifactID: "a1"}, ref)

	_, err = s.SelectNode("ghost")
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestNodeDetailLazyAndCached(t *testing.T) {
	f := &fakeFetcher{details: map[string]*types.NodeDetail{
		"n1": {NodeID: "n1", OpType: types.OpSQL, OpParams: map[string]interface{}{"sql": "SELECT 1"}},
	}}
	s := NewStore(f, fixedActive("sess_a"), nil, nil)

	d, err := s.NodeDetail(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", d.OpParams["sql"])

	_, err = s.NodeDetail(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.detailCalls, "second lookup must answer from cache")
}

func TestNodeDetailNegativeCacheIsTerminal(t *testing.T) {
	f := &fakeFetcher{}
	s := NewStore(f, fixedActive("sess_a"), nil, nil)

	_, err := s.NodeDetail(context.Background(), "ghost")
	assert.ErrorIs(t, err, backend.ErrNodeNotFound)

	_, err = s.NodeDetail(context.Background(), "ghost")
	assert.ErrorIs(t, err, backend.ErrNodeNotFound)
	assert.Equal(t, 1, f.detailCalls, "not-found is terminal, never re-fetched")
}

func TestNodeDetailTransientErrorNotCached(t *testing.T) {
	f := &fakeFetcher{detailErr: errors.New("timeout")}
	s := NewStore(f, fixedActive("sess_a"), nil, nil)

	_, err := s.NodeDetail(context.Background(), "n1")
	require.Error(t, err)

	f.detailErr = nil
	f.details = map[string]*types.NodeDetail{"n1": {NodeID: "n1", OpType: types.OpSQL}}
	_, err = s.NodeDetail(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.detailCalls)
}

func TestDetailCacheResetOnSessionChange(t *testing.T) {
	f := &fakeFetcher{
		histories: map[string][]types.LineageNode{
			"sess_a": {node("n1")},
			"sess_b": {node("n1")},
		},
		details: map[string]*types.NodeDetail{"n1": {NodeID: "n1", OpType: types.OpSQL}},
	}

	active := "sess_a"
	s := NewStore(f, func() string { return active }, nil, nil)
	require.NoError(t, s.Refresh(context.Background(), "sess_a"))

	_, err := s.NodeDetail(context.Background(), "n1")
	require.NoError(t, err)

	active = "sess_b"
	require.NoError(t, s.Refresh(context.Background(), "sess_b"))
	_, err = s.NodeDetail(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.detailCalls, "snapshot swap must drop the old session's details")
}
