package lineage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataview-hq/dataview/internal/shared/types"
)

func node(id string, parents ...string) types.LineageNode {
	return types.LineageNode{NodeID: id, OpType: types.OpSQL, ParentNodeIDs: parents}
}

func depthOf(t *testing.T, l types.Layout, nodeID string) int {
	t.Helper()
	for _, p := range l.Nodes {
		if p.Node.NodeID == nodeID {
			return p.Depth
		}
	}
	t.Fatalf("node %s not in layout", nodeID)
	return -1
}

func TestEmptyLayout(t *testing.T) {
	l := BuildLayout(nil)
	assert.True(t, l.Empty())
	assert.Equal(t, 0, l.Depth)
	assert.NotNil(t, l.Nodes)
	assert.NotNil(t, l.Edges)
}

func TestLinearChain(t *testing.T) {
	l := BuildLayout([]types.LineageNode{
		node("n1"),
		node("n2", "n1"),
		node("n3", "n2"),
	})

	assert.Equal(t, 3, l.Depth)
	assert.Equal(t, 0, depthOf(t, l, "n1"))
	assert.Equal(t, 1, depthOf(t, l, "n2"))
	assert.Equal(t, 2, depthOf(t, l, "n3"))

	// Singleton layers center their node.
	for _, p := range l.Nodes {
		assert.InDelta(t, 0.5, p.X, 1e-9)
	}
	assert.ElementsMatch(t, []types.Edge{
		{From: "n1", To: "n2"},
		{From: "n2", To: "n3"},
	}, l.Edges)
}

func TestLongestParentChainWins(t *testing.T) {
	// n4 has parents at depth 0 and depth 1; it must land at depth 2.
	l := BuildLayout([]types.LineageNode{
		node("n1"),
		node("n2", "n1"),
		node("n4", "n1", "n2"),
	})

	assert.Equal(t, 2, depthOf(t, l, "n4"))
	assert.Equal(t, 3, l.Depth)
}

func TestEveryNodePlacedExactlyOnce(t *testing.T) {
	in := []types.LineageNode{
		node("n1"),
		node("n2", "n1"),
		node("n3", "n1"),
		node("n4", "n2", "n3"),
	}
	l := BuildLayout(in)

	require.Len(t, l.Nodes, len(in))
	seen := map[string]bool{}
	for _, p := range l.Nodes {
		assert.False(t, seen[p.Node.NodeID], "node placed twice: %s", p.Node.NodeID)
		seen[p.Node.NodeID] = true
	}
}

func TestLayerOrderFollowsFirstAppearance(t *testing.T) {
	l := BuildLayout([]types.LineageNode{
		node("root_a"),
		node("root_b"),
		node("child_b", "root_b"),
		node("child_a", "root_a"),
	})

	var xs = map[string]float64{}
	for _, p := range l.Nodes {
		xs[p.Node.NodeID] = p.X
	}

	// Two nodes in each layer, spaced at 1/3 and 2/3 in snapshot order.
	assert.InDelta(t, 1.0/3, xs["root_a"], 1e-9)
	assert.InDelta(t, 2.0/3, xs["root_b"], 1e-9)
	assert.InDelta(t, 1.0/3, xs["child_b"], 1e-9)
	assert.InDelta(t, 2.0/3, xs["child_a"], 1e-9)
}

func TestMultiRootForest(t *testing.T) {
	l := BuildLayout([]types.LineageNode{
		node("a1"),
		node("a2", "a1"),
		node("b1"),
		node("b2", "b1"),
	})

	assert.Equal(t, 2, l.Depth)
	assert.Equal(t, 0, depthOf(t, l, "a1"))
	assert.Equal(t, 0, depthOf(t, l, "b1"))
	assert.Equal(t, 1, depthOf(t, l, "a2"))
	assert.Equal(t, 1, depthOf(t, l, "b2"))
	assert.Len(t, l.Edges, 2)
}

func TestDanglingParentIgnored(t *testing.T) {
	l := BuildLayout([]types.LineageNode{
		node("n1", "gone"),
		node("n2", "n1"),
	})

	assert.Equal(t, 0, depthOf(t, l, "n1"))
	assert.Equal(t, []types.Edge{{From: "n1", To: "n2"}}, l.Edges)
}

func TestUnorderedSnapshot(t *testing.T) {
	// Children may precede parents in the snapshot.
	l := BuildLayout([]types.LineageNode{
		node("n3", "n2"),
		node("n2", "n1"),
		node("n1"),
	})

	assert.Equal(t, 0, depthOf(t, l, "n1"))
	assert.Equal(t, 1, depthOf(t, l, "n2"))
	assert.Equal(t, 2, depthOf(t, l, "n3"))
}
