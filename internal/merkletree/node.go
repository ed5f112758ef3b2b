// Package merkletree implements the fixed-height Merkle tree engine: node
// representation, wire codec, default-node precomputation, the get/set
// operations, and inclusion-proof verification. It is storage-agnostic; a
// NodeStore implementation supplies persistence.
package merkletree

import (
	"math/bits"

	"github.com/kvpair-io/kvpair-server/internal/apierr"
	"github.com/kvpair-io/kvpair-server/internal/field"
	"github.com/kvpair-io/kvpair-server/internal/poseidon"
)

// Height is the fixed tree height H from the data model (H=20).
const Height = 20

// LeafCount is L = 2^H, the number of leaves.
const LeafCount = 1 << Height

// NodeCount is N = 2^(H+1) - 1, the number of addressable node slots
// (including the root at index 0).
const NodeCount = (1 << (Height + 1)) - 1

// firstLeafIndex is the smallest index belonging to a leaf; every index
// below it addresses a non-leaf node.
const firstLeafIndex = (1 << Height) - 1

// Hash is the 32-byte little-endian wire form of a field element, used for
// every hash value the tree stores or returns.
type Hash = field.Bytes

// NodeType distinguishes a leaf slot from a non-leaf slot.
type NodeType uint8

const (
	NodeTypeLeaf    NodeType = 0
	NodeTypeNonLeaf NodeType = 1
)

func (t NodeType) String() string {
	switch t {
	case NodeTypeLeaf:
		return "Leaf"
	case NodeTypeNonLeaf:
		return "NonLeaf"
	default:
		return "Unknown"
	}
}

// ParseNodeType parses the codec's symbolic node-type name.
func ParseNodeType(s string) (NodeType, error) {
	switch s {
	case "Leaf":
		return NodeTypeLeaf, nil
	case "NonLeaf":
		return NodeTypeNonLeaf, nil
	default:
		return 0, apierr.New(apierr.InvalidEnum, "unknown node_type: "+s)
	}
}

// Node is a single slot of the tree: a leaf carries 32 bytes of data hashed
// with H_leaf; a non-leaf carries its two children's hashes hashed with
// H_node. Hash is always H_leaf(Data) or H_node(Left, Right) — invariants
// I3/I4 of the data model.
type Node struct {
	Index uint64
	Type  NodeType
	Hash  Hash

	// Leaf-only.
	Data [32]byte

	// Non-leaf-only.
	Left  Hash
	Right Hash
}

// IsLeafIndex reports whether index addresses a leaf slot (invariant I2).
func IsLeafIndex(index uint64) bool {
	return index >= firstLeafIndex && index < NodeCount
}

// ValidIndex reports whether index falls within [0, N) (invariant I1).
func ValidIndex(index uint64) bool {
	return index < NodeCount
}

// depth returns the 0-based depth of index, where the root is depth 0 and
// leaves are depth H. The tree uses the standard complete-binary-tree
// numbering (root=0, children of i are 2i+1 and 2i+2), so depth(i) is the
// position of the leading bit of i+1.
func depth(index uint64) int {
	return bits.Len64(index+1) - 1
}

// parent returns the index of index's parent; undefined for index==0 (root).
func parent(index uint64) uint64 {
	return (index - 1) / 2
}

// siblingIndex returns the index of index's sibling; undefined for index==0.
// Left children are odd (2p+1), right children are even (2p+2).
func siblingIndex(index uint64) uint64 {
	if index%2 == 1 {
		return index + 1
	}
	return index - 1
}

// isLeftChild reports whether index is the left child of its parent.
func isLeftChild(index uint64) bool {
	return index%2 == 1
}

// newLeaf builds a leaf Node, computing its hash from data.
func newLeaf(index uint64, data [32]byte) (*Node, error) {
	elem, err := field.FromBytes(data)
	if err != nil {
		return nil, err
	}
	h := poseidon.HashLeaf(elem)
	return &Node{Index: index, Type: NodeTypeLeaf, Data: data, Hash: field.ToBytes(h)}, nil
}

// newNonLeaf builds a non-leaf Node, computing its hash from its children.
func newNonLeaf(index uint64, left, right Hash) (*Node, error) {
	le, err := field.FromBytes(left)
	if err != nil {
		return nil, err
	}
	re, err := field.FromBytes(right)
	if err != nil {
		return nil, err
	}
	h := poseidon.HashNode(le, re)
	return &Node{Index: index, Type: NodeTypeNonLeaf, Left: left, Right: right, Hash: field.ToBytes(h)}, nil
}
