package lineage

import (
	"github.com/dataview-hq/dataview/internal/shared/types"
)

// BuildLayout positions a node snapshot for rendering. Depth is the
// longest parent chain from any root (roots sit at 0), so a node always
// renders below every node it derives from. Within a layer, nodes keep
// the order of their first appearance in the snapshot; X positions are
// evenly spaced in (0, 1). Parents referenced by id but absent from the
// snapshot are ignored, both for depth and for edges.
func BuildLayout(nodes []types.LineageNode) types.Layout {
	if len(nodes) == 0 {
		return types.Layout{
			Nodes: []types.PositionedNode{},
			Edges: []types.Edge{},
		}
	}

	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.NodeID] = i
	}

	depths := resolveDepths(nodes, index)

	maxDepth := 0
	for _, d := range depths {
		if d > maxDepth {
			maxDepth = d
		}
	}

	// Bucket by depth, preserving snapshot order inside each layer.
	layers := make([][]int, maxDepth+1)
	for i := range nodes {
		d := depths[i]
		layers[d] = append(layers[d], i)
	}

	positioned := make([]types.PositionedNode, len(nodes))
	for d, layer := range layers {
		for pos, i := range layer {
			positioned[i] = types.PositionedNode{
				Node:  nodes[i],
				Depth: d,
				X:     float64(pos+1) / float64(len(layer)+1),
			}
		}
	}

	edges := make([]types.Edge, 0, len(nodes))
	for _, n := range nodes {
		for _, parent := range n.ParentNodeIDs {
			if _, ok := index[parent]; ok {
				edges = append(edges, types.Edge{From: parent, To: n.NodeID})
			}
		}
	}

	return types.Layout{
		Nodes: positioned,
		Edges: edges,
		Depth: maxDepth + 1,
	}
}

// resolveDepths computes longest-path depths without assuming the
// snapshot is topologically ordered. Nodes whose parents are all placed
// resolve each pass; anything still unresolved at a fixed point (a
// cycle, which a well-formed history never contains) is pinned to 0.
func resolveDepths(nodes []types.LineageNode, index map[string]int) []int {
	depths := make([]int, len(nodes))
	resolved := make([]bool, len(nodes))

	remaining := len(nodes)
	for remaining > 0 {
		progressed := false
		for i, n := range nodes {
			if resolved[i] {
				continue
			}
			depth := 0
			ready := true
			for _, parent := range n.ParentNodeIDs {
				j, ok := index[parent]
				if !ok {
					continue
				}
				if !resolved[j] {
					ready = false
					break
				}
				if depths[j]+1 > depth {
					depth = depths[j] + 1
				}
			}
			if ready {
				depths[i] = depth
				resolved[i] = true
				remaining--
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return depths
}
