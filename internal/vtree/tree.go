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

// Package vtree rebuilds the branching version tree of one file from its
// flat .tree ledger.
//
// Each ledger line occupies one fixed-size slot. A valid record's identity is
// its slot index times the record stride; invalid records produce no node but
// still consume a slot. A child names its parent by offset, and the builder
// compensates for the slots consumed by invalid records seen so far when
// resolving it.
package vtree

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"rvfs/internal/common"
	"rvfs/internal/record"
)

// DefaultStride is the fixed byte length of one producer ledger line.
const DefaultStride int64 = 326

// Options configures a build.
type Options struct {
	Stride     int64   // record stride; DefaultStride when zero
	LeftMargin float64 // x of the root before scaling
	Radius     float64 // node radius
}

// StructureError reports a ledger that does not describe a single rooted tree.
type StructureError struct {
	Line         int   // 1-based ledger line
	Offset       int64 // offset identity of the offending record
	ParentOffset int64
	Err          error
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("%v at line %d (offset %d, parent offset %d)", e.Err, e.Line, e.Offset, e.ParentOffset)
}

func (e *StructureError) Unwrap() error { return e.Err }

// Tree is the result of one Build. It is immutable.
type Tree struct {
	root     *Node
	current  *Node
	nodes    []*Node
	byOffset map[int64]*Node
	maxX     float64
	lanes    int
	stride   int64
}

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// Current returns the checked-out node, or nil if the head pointer matched no record.
func (t *Tree) Current() *Node { return t.current }

// Nodes returns the nodes in ledger order.
func (t *Tree) Nodes() []*Node {
	out := make([]*Node, len(t.nodes))
	copy(out, t.nodes)
	return out
}

func (t *Tree) Len() int { return len(t.nodes) }

// Lookup finds a node by its offset identity.
func (t *Tree) Lookup(offset int64) (*Node, bool) {
	n, ok := t.byOffset[offset]
	return n, ok
}

// MaxX is the largest unscaled x of any node.
func (t *Tree) MaxX() float64 { return t.maxX }

// Lanes is the number of branch lanes in use.
func (t *Tree) Lanes() int { return t.lanes }

// Stride is the record stride the tree was built with.
func (t *Tree) Stride() int64 { return t.stride }

// builder carries the state of a single pass over the ledger.
type builder struct {
	opts Options
	head int64

	counter     int64 // ledger slot of the current record
	invalid     int64 // invalid records skipped so far
	branchIndex int   // second-or-later children seen, tree-wide
	maxX        float64

	tree *Tree
}

// Build reconstructs the version tree from records in ledger order. head is
// the checked-out timestamp. Any structural violation fails the whole build.
func Build(records []record.Record, head int64, opts Options) (*Tree, error) {
	if opts.Stride <= 0 {
		opts.Stride = DefaultStride
	}
	b := &builder{
		opts: opts,
		head: head,
		tree: &Tree{
			byOffset: make(map[int64]*Node),
			stride:   opts.Stride,
		},
	}

	for i, rec := range records {
		if err := b.add(i+1, rec); err != nil {
			return nil, err
		}
	}
	if b.tree.root == nil {
		return nil, fmt.Errorf("%w: %d records, %d invalid", common.ErrNoRoot, len(records), b.invalid)
	}

	for _, n := range b.tree.nodes {
		for p := n.parent; p != nil; p = p.parent {
			n.ancestors++
		}
	}
	b.tree.maxX = b.maxX
	b.tree.lanes = b.branchIndex + 1

	log.Debugf("[VTree] Build: records=%d nodes=%d invalid=%d lanes=%d", len(records), len(b.tree.nodes), b.invalid, b.tree.lanes)
	return b.tree, nil
}

func (b *builder) add(line int, rec record.Record) error {
	defer func() { b.counter++ }()

	if !rec.Valid {
		b.invalid++
		return nil
	}

	n := &Node{
		id:     len(b.tree.nodes),
		offset: b.counter * b.opts.Stride,
		rec:    rec,
		radius: b.opts.Radius,
	}

	if rec.IsRoot() {
		if b.tree.root != nil {
			return &StructureError{Line: line, Offset: n.offset, ParentOffset: rec.ParentOffset, Err: common.ErrMultipleRoots}
		}
		b.tree.root = n
		n.x = b.opts.LeftMargin
	} else {
		parent, ok := b.resolve(rec.ParentOffset)
		if !ok {
			return &StructureError{Line: line, Offset: n.offset, ParentOffset: rec.ParentOffset, Err: common.ErrDanglingParent}
		}
		n.parent = parent
		parent.children = append(parent.children, n)
		n.x = b.opts.LeftMargin + float64(rec.Timestamp-b.tree.root.rec.Timestamp)

		if len(parent.children) > 1 {
			b.branchIndex++
			n.lane = b.branchIndex
		} else {
			n.lane = parent.lane
		}
	}

	if n.x > b.maxX {
		b.maxX = n.x
	}
	if rec.Timestamp == b.head {
		b.tree.current = n
	}
	if rec.Lopo == record.LO {
		n.anchor, n.hasAnchor = n.offset, true
		for p := n.parent; p != nil && !p.hasAnchor; p = p.parent {
			p.anchor, p.hasAnchor = n.offset, true
		}
	}

	b.tree.nodes = append(b.tree.nodes, n)
	b.tree.byOffset[n.offset] = n
	return nil
}

// resolve maps a raw parent offset to an existing node. The producer records
// parent offsets one stride past the parent's slot, shifted by every invalid
// slot written before the child.
func (b *builder) resolve(parentOffset int64) (*Node, bool) {
	target := parentOffset - b.opts.Stride*(1+b.invalid)
	if target < 0 || target%b.opts.Stride != 0 {
		return nil, false
	}
	n, ok := b.tree.byOffset[target]
	return n, ok
}
