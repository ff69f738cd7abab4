package vtree

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rvfs/internal/common"
	"rvfs/internal/record"
)

var testOpts = Options{Stride: DefaultStride, LeftMargin: 30, Radius: 6}

func parseLines(t *testing.T, lines ...string) []record.Record {
	t.Helper()
	records, err := record.ReadTree(strings.NewReader(strings.Join(lines, "\n")+"\n"), record.Options{LOFlag: "LO"})
	require.NoError(t, err)
	return records
}

// ref is the parent offset the producer writes for a parent in slot
// parentSlot when invalid records have been written before the child.
func ref(parentSlot, invalid int64) int64 {
	return (parentSlot + 1 + invalid) * DefaultStride
}

func rec(ts int64, hash string, parent int64) record.Record {
	return record.Record{Valid: true, Timestamp: ts, Hash: hash, ParentOffset: parent}
}

func TestBuildWorkedExample(t *testing.T) {
	t.Parallel()

	records := parseLines(t,
		"1 1000 1 aaa _ 0 -1",
		"1 1001 0 bbb _ 1 326",
		"0 1002 0 ccc _ 0 652",
		"1 1003 0 ddd _ 1 978",
	)
	tree, err := Build(records, 1003, testOpts)
	require.NoError(t, err)

	require.Equal(t, 3, tree.Len())
	root := tree.Root()
	assert.Equal(t, "aaa", root.Hash())
	assert.True(t, root.IsRoot())
	assert.Equal(t, int64(0), root.Offset())

	children := root.Children()
	require.Len(t, children, 1)
	bbb := children[0]
	assert.Equal(t, "bbb", bbb.Hash())
	assert.Equal(t, int64(326), bbb.Offset())

	require.Equal(t, 1, bbb.ChildCount())
	ddd := bbb.Children()[0]
	assert.Equal(t, "ddd", ddd.Hash())
	assert.Equal(t, int64(978), ddd.Offset())
	assert.Same(t, bbb, ddd.Parent())

	_, ok := tree.Lookup(652)
	assert.False(t, ok, "invalid record must not become a node")

	assert.Same(t, ddd, tree.Current())
	assert.Equal(t, []int{0, 1, 2}, []int{root.AncestorCount(), bbb.AncestorCount(), ddd.AncestorCount()})
	assert.Equal(t, []int{0, 1, 2}, []int{root.ID(), bbb.ID(), ddd.ID()})
}

func TestBuildNodeCountAndRoot(t *testing.T) {
	t.Parallel()

	records := []record.Record{
		rec(100, "r", -1),
		{Valid: false, Timestamp: 101, Hash: "x", ParentOffset: ref(0, 0)},
		rec(102, "a", ref(0, 1)),
		{Valid: false, Timestamp: 103, Hash: "y", ParentOffset: ref(2, 1)},
		rec(104, "b", ref(2, 2)),
		rec(105, "c", ref(0, 2)),
	}
	tree, err := Build(records, 0, testOpts)
	require.NoError(t, err)

	assert.Equal(t, 4, tree.Len())
	roots := 0
	for _, n := range tree.Nodes() {
		if n.IsRoot() {
			roots++
		}
	}
	assert.Equal(t, 1, roots)
	assert.Nil(t, tree.Current())

	b, ok := tree.Lookup(4 * DefaultStride)
	require.True(t, ok)
	assert.Equal(t, "a", b.Parent().Hash())
	c, ok := tree.Lookup(5 * DefaultStride)
	require.True(t, ok)
	assert.Equal(t, "r", c.Parent().Hash())
}

func TestBuildStructuralErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		records []record.Record
		want    error
		line    int
	}{
		{
			name:    "second root",
			records: []record.Record{rec(1, "a", -1), rec(2, "b", ref(0, 0)), rec(3, "c", -1)},
			want:    common.ErrMultipleRoots,
			line:    3,
		},
		{
			name:    "parent past the end",
			records: []record.Record{rec(1, "a", -1), rec(2, "b", ref(7, 0))},
			want:    common.ErrDanglingParent,
			line:    2,
		},
		{
			name:    "parent offset not on a slot boundary",
			records: []record.Record{rec(1, "a", -1), rec(2, "b", ref(0, 0)+5)},
			want:    common.ErrDanglingParent,
			line:    2,
		},
		{
			name:    "parent offset before the ledger",
			records: []record.Record{rec(1, "a", -1), rec(2, "b", 0)},
			want:    common.ErrDanglingParent,
			line:    2,
		},
		{
			name:    "self reference",
			records: []record.Record{rec(1, "a", -1), rec(2, "b", ref(1, 0))},
			want:    common.ErrDanglingParent,
			line:    2,
		},
		{
			name: "invalid record as parent",
			records: []record.Record{
				rec(1, "a", -1),
				{Valid: false, Timestamp: 2, Hash: "x", ParentOffset: ref(0, 0)},
				rec(3, "b", ref(1, 1)),
			},
			want: common.ErrDanglingParent,
			line: 3,
		},
		{
			name:    "child before root",
			records: []record.Record{rec(2, "b", ref(1, 0)), rec(1, "a", -1)},
			want:    common.ErrDanglingParent,
			line:    1,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tree, err := Build(tt.records, 0, testOpts)
			assert.Nil(t, tree, "no partial tree on failure")
			require.ErrorIs(t, err, tt.want)

			var se *StructureError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.line, se.Line)
		})
	}
}

func TestBuildNoRoot(t *testing.T) {
	t.Parallel()

	_, err := Build(nil, 0, testOpts)
	assert.ErrorIs(t, err, common.ErrNoRoot)

	_, err = Build([]record.Record{{Valid: false, ParentOffset: -1}}, 0, testOpts)
	assert.ErrorIs(t, err, common.ErrNoRoot)
}

func TestAncestorCountIsDistanceToRoot(t *testing.T) {
	t.Parallel()

	// A main chain with a side branch off every fourth slot
	records := []record.Record{rec(0, "n0", -1)}
	chain := int64(0)
	for i := int64(1); i < 40; i++ {
		if i%4 == 0 {
			records = append(records, rec(i, "side", ref(chain-1, 0)))
			continue
		}
		records = append(records, rec(i, "main", ref(chain, 0)))
		chain = i
	}
	tree, err := Build(records, 0, testOpts)
	require.NoError(t, err)

	for _, n := range tree.Nodes() {
		hops := 0
		for p := n; p != tree.Root(); p = p.Parent() {
			hops++
		}
		assert.Equal(t, hops, n.AncestorCount(), "node %d", n.ID())
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	t.Parallel()

	records := parseLines(t,
		"1 1000 LO aaa root 0 -1",
		"1 1010 PO bbb _ 3 326",
		"1 1020 LO ccc v2 1 326",
		"0 1030 PO ddd _ 0 652",
		"1 1040 PO eee _ 2 1304",
		"1 1050 LO fff _ 2 978",
	)

	shape := func(tree *Tree) []string {
		var out []string
		for _, n := range tree.Nodes() {
			parent := int64(-1)
			if n.Parent() != nil {
				parent = n.Parent().Offset()
			}
			anchor, ok := n.Anchor()
			out = append(out, fmt.Sprintf("%s,%d,%d,%d,%d,%d,%t",
				n.Hash(), n.Offset(), parent, n.Lane(), n.AncestorCount(), anchor, ok))
		}
		return out
	}

	first, err := Build(records, 1040, testOpts)
	require.NoError(t, err)
	second, err := Build(records, 1040, testOpts)
	require.NoError(t, err)
	assert.Equal(t, shape(first), shape(second))
	assert.Equal(t, first.MaxX(), second.MaxX())
	assert.Equal(t, first.Current().Offset(), second.Current().Offset())
}

func TestLopoAnchors(t *testing.T) {
	t.Parallel()

	lo := func(r record.Record) record.Record { r.Lopo = record.LO; return r }
	records := []record.Record{
		rec(0, "root", -1),
		rec(1, "n1", ref(0, 0)),
		lo(rec(2, "n2", ref(1, 0))),
		rec(3, "n3", ref(2, 0)),
		lo(rec(4, "n4", ref(3, 0))),
		rec(5, "n5", ref(4, 0)),
	}
	tree, err := Build(records, 0, testOpts)
	require.NoError(t, err)

	want := map[string]struct {
		anchor int64
		ok     bool
	}{
		"root": {2 * DefaultStride, true},
		"n1":   {2 * DefaultStride, true},
		"n2":   {2 * DefaultStride, true},
		"n3":   {4 * DefaultStride, true},
		"n4":   {4 * DefaultStride, true},
		"n5":   {0, false},
	}
	for _, n := range tree.Nodes() {
		anchor, ok := n.Anchor()
		assert.Equal(t, want[n.Hash()].ok, ok, n.Hash())
		assert.Equal(t, want[n.Hash()].anchor, anchor, n.Hash())
	}
}

func TestLaneAssignment(t *testing.T) {
	t.Parallel()

	// root -> a, b, c ; a -> d, e
	records := []record.Record{
		rec(0, "root", -1),
		rec(1, "a", ref(0, 0)),
		rec(2, "b", ref(0, 0)),
		rec(3, "d", ref(1, 0)),
		rec(4, "c", ref(0, 0)),
		rec(5, "e", ref(1, 0)),
		rec(6, "f", ref(5, 0)),
	}
	tree, err := Build(records, 0, testOpts)
	require.NoError(t, err)

	lanes := map[string]int{}
	for _, n := range tree.Nodes() {
		lanes[n.Hash()] = n.Lane()
	}
	assert.Equal(t, map[string]int{"root": 0, "a": 0, "b": 1, "d": 0, "c": 2, "e": 3, "f": 3}, lanes)
	assert.Equal(t, 4, tree.Lanes())

	// New lanes appear in ledger order, once per second-or-later child
	var allocated []int
	for _, n := range tree.Nodes() {
		if n.Parent() != nil && n.Parent().Children()[0] != n {
			allocated = append(allocated, n.Lane())
		}
	}
	assert.Equal(t, []int{1, 2, 3}, allocated)
}

func TestCoordinates(t *testing.T) {
	t.Parallel()

	records := []record.Record{
		rec(1000, "r", -1),
		rec(1012, "a", ref(0, 0)),
		rec(1005, "b", ref(0, 0)),
	}
	tree, err := Build(records, 1012, testOpts)
	require.NoError(t, err)

	nodes := tree.Nodes()
	assert.Equal(t, 30.0, nodes[0].X())
	assert.Equal(t, 42.0, nodes[1].X())
	assert.Equal(t, 35.0, nodes[2].X())
	assert.Equal(t, 42.0, tree.MaxX())
	assert.Equal(t, 6.0, nodes[1].Radius())
	assert.True(t, nodes[1].IsHead())
	assert.False(t, nodes[0].IsHead())
	assert.Equal(t, "a", tree.Current().Hash())
}

func TestDefaultStride(t *testing.T) {
	t.Parallel()

	tree, err := Build([]record.Record{rec(1, "r", -1), rec(2, "a", 326)}, 0, Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultStride, tree.Stride())
	_, ok := tree.Lookup(326)
	assert.True(t, ok)
}

func TestNodeAccessors(t *testing.T) {
	t.Parallel()

	records := parseLines(t,
		"1 1000 PO aaa _ 0 -1",
		"1 1042 PO bbb release 3 326",
	)
	tree, err := Build(records, 0, testOpts)
	require.NoError(t, err)

	root, child := tree.Nodes()[0], tree.Nodes()[1]
	assert.Equal(t, int64(1042), child.Timestamp())
	assert.Equal(t, "bbb", child.Hash())
	assert.Equal(t, "release", child.Tag())
	assert.Equal(t, "", root.Tag())
	assert.Equal(t, 1, root.ChildCount())
	assert.Equal(t, 0, child.ChildCount())
	assert.Equal(t, testOpts.Radius, child.Radius())
	assert.Equal(t, 3, child.Record().DiffLines)

	// Children returns a copy
	kids := root.Children()
	kids[0] = nil
	assert.Same(t, child, root.Children()[0])
}
