// Package forest implements the frozen Regression Forest: a flat,
// arena-backed array of binary trees, each trained offline and consumed
// here read-only. Child indices into a flat node array replace a
// shared-pointer tree-node graph, which both matches the on-disk layout
// and avoids ownership cycles.
package forest

import "math"

// LeafSentinel marks a Node as a leaf: its LeftChild equals LeafSentinel.
const LeafSentinel int32 = -1

// Node is one split (or leaf) record of a tree's flat node array, matching
// the on-disk record exactly: a leaf is any node whose LeftChild is
// LeafSentinel.
type Node struct {
	LeftChild    int32
	RightChild   int32
	FeatureIndex uint32
	Threshold    float32
}

// IsLeaf reports whether n terminates a root-to-leaf descent.
func (n Node) IsLeaf() bool {
	return n.LeftChild == LeafSentinel
}

// Tree is one decision tree: a flat node array plus its per-leaf mode
// tables, indexed by LeafIndex (the order leaves occur while scanning
// Nodes left to right — see Load in format.go for why that's the leaf
// numbering this format uses).
type Tree struct {
	Nodes  []Node
	Leaves []Leaf

	// leafIndexByNode maps a node-array index to its position in Leaves;
	// populated once at Load time, nil for nodes that are not leaves.
	leafIndexByNode map[int32]int32
}

// Leaf holds the modal clusters attached to one leaf of one tree, as read
// from the frozen forest file.
type Leaf struct {
	Modes []Mode
}

// Walk descends the tree from the root choosing left when the feature
// value at FeatureIndex is less than Threshold, right otherwise, and
// returns the reached leaf's index into Tree.Leaves. A malformed tree
// (cyclic, or an index out of range) is a construction-time defect, not a
// runtime condition: Walk does not defend against it beyond a bounded
// number of steps equal to len(Nodes), after which it panics.
func (t *Tree) Walk(features []float32) int32 {
	node := int32(0)
	for steps := 0; steps <= len(t.Nodes); steps++ {
		n := t.Nodes[node]
		if n.IsLeaf() {
			leafIdx, ok := t.leafIndexByNode[node]
			if !ok {
				panic("forest: leaf node missing from leaf index table")
			}
			return leafIdx
		}
		val := float32(math.NaN())
		if int(n.FeatureIndex) < len(features) {
			val = features[n.FeatureIndex]
		}
		if val < n.Threshold {
			node = n.LeftChild
		} else {
			node = n.RightChild
		}
	}
	panic("forest: tree walk exceeded node count without reaching a leaf")
}

// buildLeafIndex scans Nodes in array order and assigns sequential leaf
// indices to leaf nodes, matching the implicit leaf numbering of the
// on-disk format (see format.go).
func (t *Tree) buildLeafIndex() {
	t.leafIndexByNode = make(map[int32]int32, len(t.Leaves))
	var next int32
	for i, n := range t.Nodes {
		if n.IsLeaf() {
			t.leafIndexByNode[int32(i)] = next
			next++
		}
	}
}
