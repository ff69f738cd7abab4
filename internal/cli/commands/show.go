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
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"rvfs/internal/timeline"
)

var showCmd = &cobra.Command{
	Use:   "show <file> <offset>",
	Short: "Print the content of one version",
	Long: `Materialize one version of a tracked file and print its content.

The offset is the version's position in the record ledger as shown by
'rvfs tree'.

Examples:
  rvfs show ~/mountdir/notes.txt 0
  rvfs show ~/mountdir/notes.txt 978 --no-refresh`,
	Args: cobra.ExactArgs(2),
	RunE: runShow,
}

var compareCmd = &cobra.Command{
	Use:   "compare <file> <offset> <offset>",
	Short: "Print the content of two versions one after the other",
	Long: `Materialize two versions of a tracked file and print both, each under a
header naming the version. Diffing is left to the caller.

Examples:
  rvfs compare ~/mountdir/notes.txt 0 978`,
	Args: cobra.ExactArgs(3),
	RunE: runCompare,
}

var versionNoRefresh bool

func init() {
	for _, c := range []*cobra.Command{showCmd, compareCmd} {
		c.Flags().BoolVar(&versionNoRefresh, "no-refresh", false, "Use the existing ledgers without running the refresh command")
		rootCmd.AddCommand(c)
	}
}

func loadTimeline(cmd *cobra.Command, file string) (*timeline.Loader, *timeline.Snapshot, error) {
	source, err := filepath.Abs(file)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	loader := timeline.NewLoader(settings, timeline.WithRefresh(!versionNoRefresh))
	snap, err := loader.Load(cmd.Context(), source)
	if err != nil {
		return nil, nil, err
	}
	return loader, snap, nil
}

func parseOffset(s string) (int64, error) {
	off, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid offset %q", s)
	}
	return off, nil
}

func runShow(cmd *cobra.Command, args []string) error {
	offset, err := parseOffset(args[1])
	if err != nil {
		return err
	}
	loader, _, err := loadTimeline(cmd, args[0])
	if err != nil {
		return err
	}
	content, err := loader.Show(cmd.Context(), offset)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(content)
	return err
}

func runCompare(cmd *cobra.Command, args []string) error {
	a, err := parseOffset(args[1])
	if err != nil {
		return err
	}
	b, err := parseOffset(args[2])
	if err != nil {
		return err
	}
	loader, snap, err := loadTimeline(cmd, args[0])
	if err != nil {
		return err
	}
	left, right, err := loader.Compare(cmd.Context(), a, b)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for i, part := range []struct {
		offset  int64
		content []byte
	}{{a, left}, {b, right}} {
		if i > 0 {
			fmt.Fprintln(w)
		}
		n, _ := snap.Tree.Lookup(part.offset)
		fmt.Fprintf(w, "=== [%d] %s\n", part.offset, snap.Label(n))
		if _, err := w.Write(part.content); err != nil {
			return err
		}
	}
	return nil
}
