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

package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"rvfs/internal/layout"
	"rvfs/internal/timeline"
	"rvfs/internal/vtree"
)

var treeCmd = &cobra.Command{
	Use:   "tree <file>",
	Short: "Show the version tree of a tracked file",
	Long: `Rebuild and print the branching version tree of a file under the mount.

The refresh collaborator regenerates the file's ledgers first unless
--no-refresh is given. The checked-out version is marked with '*'.

Examples:
  rvfs tree ~/mountdir/notes.txt
  rvfs tree ~/mountdir/notes.txt --no-refresh
  rvfs tree ~/mountdir/notes.txt --json`,
	Args: cobra.ExactArgs(1),
	RunE: runTree,
}

var (
	treeJSON      bool
	treeNoRefresh bool
)

func init() {
	treeCmd.Flags().BoolVar(&treeJSON, "json", false, "Print the tree and its layout as JSON")
	treeCmd.Flags().BoolVar(&treeNoRefresh, "no-refresh", false, "Use the existing ledgers without running the refresh command")
	rootCmd.AddCommand(treeCmd)
}

func runTree(cmd *cobra.Command, args []string) error {
	source, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	loader := timeline.NewLoader(settings, timeline.WithRefresh(!treeNoRefresh))
	snap, err := loader.Load(cmd.Context(), source)
	if err != nil {
		return err
	}

	if treeJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(newTreeJSON(snap))
	}
	printTree(cmd.OutOrStdout(), snap)
	return nil
}

func printTree(w io.Writer, snap *timeline.Snapshot) {
	t := snap.Tree
	fmt.Fprintf(w, "%s: %d versions, %d lanes, scale %g\n", snap.Name, t.Len(), t.Lanes(), snap.Layout.Scale)

	var walk func(n *vtree.Node)
	walk = func(n *vtree.Node) {
		marker := " "
		if n == t.Current() {
			marker = "*"
		}
		anchor := "-"
		if a, ok := n.Anchor(); ok {
			anchor = fmt.Sprint(a)
		}
		line := fmt.Sprintf("%s %s[%d] %s lane=%d anchor=%s %s",
			marker, strings.Repeat("  ", n.AncestorCount()), n.Offset(), n.Hash(), n.Lane(), anchor, snap.Label(n))
		if tag := n.Tag(); tag != "" {
			line += " #" + tag
		}
		fmt.Fprintln(w, line)
		for _, c := range n.Children() {
			walk(c)
		}
	}
	walk(t.Root())
}

type nodeJSON struct {
	ID        int     `json:"id"`
	Offset    int64   `json:"offset"`
	Parent    *int64  `json:"parent,omitempty"`
	Hash      string  `json:"hash"`
	Tag       string  `json:"tag,omitempty"`
	Timestamp int64   `json:"timestamp"`
	Lopo      string  `json:"lopo"`
	DiffLines int     `json:"diff_lines"`
	Ancestors int     `json:"ancestors"`
	Lane      int     `json:"lane"`
	Anchor    *int64  `json:"anchor,omitempty"`
	X         float64 `json:"x"`
	Label     string  `json:"label"`
}

type treeJSONOutput struct {
	Name    string         `json:"name"`
	Source  string         `json:"source"`
	Head    int64          `json:"head"`
	Current *int64         `json:"current,omitempty"`
	Nodes   []nodeJSON     `json:"nodes"`
	Layout  *layout.Layout `json:"layout"`
}

func newTreeJSON(snap *timeline.Snapshot) treeJSONOutput {
	out := treeJSONOutput{
		Name:   snap.Name,
		Source: snap.SourcePath,
		Head:   snap.Head,
		Layout: snap.Layout,
	}
	if cur := snap.Tree.Current(); cur != nil {
		off := cur.Offset()
		out.Current = &off
	}
	for _, n := range snap.Tree.Nodes() {
		rec := n.Record()
		nj := nodeJSON{
			ID:        n.ID(),
			Offset:    n.Offset(),
			Hash:      n.Hash(),
			Tag:       n.Tag(),
			Timestamp: n.Timestamp(),
			Lopo:      rec.Lopo.String(),
			DiffLines: rec.DiffLines,
			Ancestors: n.AncestorCount(),
			Lane:      n.Lane(),
			X:         n.X(),
			Label:     snap.Label(n),
		}
		if p := n.Parent(); p != nil {
			off := p.Offset()
			nj.Parent = &off
		}
		if a, ok := n.Anchor(); ok {
			nj.Anchor = &a
		}
		out.Nodes = append(out.Nodes, nj)
	}
	return out
}
