// Copyright 2024 RVFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vtree

import "rvfs/internal/record"

// Node is one valid version in a built tree. Nodes are owned by their Tree
// and read-only once Build returns.
type Node struct {
	id     int
	offset int64
	rec    record.Record

	parent   *Node
	children []*Node

	ancestors int
	anchor    int64
	hasAnchor bool

	x      float64
	lane   int
	radius float64
}

// ID is the node's position among valid records, in ledger order.
func (n *Node) ID() int { return n.id }

// Offset is the node's stable identity: its ledger slot times the record stride.
func (n *Node) Offset() int64 { return n.offset }

// Record returns the ledger record the node was built from.
func (n *Node) Record() record.Record { return n.rec }

// Timestamp is the version's creation time in Unix seconds.
func (n *Node) Timestamp() int64 { return n.rec.Timestamp }

// Hash is the content object digest of the version.
func (n *Node) Hash() string { return n.rec.Hash }

// Tag is the user tag, empty when none was set.
func (n *Node) Tag() string { return n.rec.Tag }

// Parent returns nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of the node's children in ledger order.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// ChildCount returns the number of direct children.
func (n *Node) ChildCount() int { return len(n.children) }

// IsRoot reports whether the node has no parent.
func (n *Node) IsRoot() bool { return n.parent == nil }

// IsHead reports whether the node is the tip of a branch.
func (n *Node) IsHead() bool { return len(n.children) == 0 }

// AncestorCount is the number of hops from the node to the root.
func (n *Node) AncestorCount() int { return n.ancestors }

// Anchor returns the offset of the LO record that anchors the node's chain,
// if one has been seen at or below it.
func (n *Node) Anchor() (int64, bool) { return n.anchor, n.hasAnchor }

// X is the unscaled horizontal position: left margin plus seconds since the root.
func (n *Node) X() float64 { return n.x }

// Lane is the branch lane the node is drawn in; 0 is the root's lane.
func (n *Node) Lane() int { return n.lane }

// Radius is the drawing radius of the node.
func (n *Node) Radius() float64 { return n.radius }
