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

	"github.com/spf13/cobra"

	"rvfs/internal/objref"
)

var refCmd = &cobra.Command{
	Use:   "ref",
	Short: "Maintain content object reference counts",
	Long: `Maintain the reference-count ledger of content objects.

Each line of the ledger is '<hexdigest> <count>'. Creating or branching a
version bumps the count of its object; reverting or deleting a version drops
it. Objects whose count reaches zero are candidates for garbage collection.

Subcommands:
  bump   Add one reference to an object
  drop   Release one reference to an object
  get    Print the count of one object
  list   Print every ledger entry
  gc     List unreferenced objects, or remove them with --sweep

Examples:
  rvfs ref bump /tmp/rvfs/objects.refs 3f2a...
  rvfs ref gc /tmp/rvfs/objects.refs --sweep`,
}

var refBumpCmd = &cobra.Command{
	Use:   "bump <ledger> <hash>",
	Short: "Add one reference to an object",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRefDelta(cmd, args, 1)
	},
}

var refDropCmd = &cobra.Command{
	Use:   "drop <ledger> <hash>",
	Short: "Release one reference to an object",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRefDelta(cmd, args, -1)
	},
}

var refGetCmd = &cobra.Command{
	Use:   "get <ledger> <hash>",
	Short: "Print the count of one object",
	Args:  cobra.ExactArgs(2),
	RunE:  runRefGet,
}

var refListCmd = &cobra.Command{
	Use:   "list <ledger>",
	Short: "Print every ledger entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runRefList,
}

var refGCCmd = &cobra.Command{
	Use:   "gc <ledger>",
	Short: "List unreferenced objects, or remove them with --sweep",
	Long: `List objects whose reference count is zero. With --sweep their entries are
removed from the ledger in one rewrite and the removed hashes are printed, so
the objects themselves can be deleted by the caller.`,
	Args: cobra.ExactArgs(1),
	RunE: runRefGC,
}

var refSweep bool

func init() {
	refGCCmd.Flags().BoolVar(&refSweep, "sweep", false, "Remove unreferenced entries from the ledger")
	refCmd.AddCommand(refBumpCmd, refDropCmd, refGetCmd, refListCmd, refGCCmd)
	rootCmd.AddCommand(refCmd)
}

func openLedger(path string) *objref.Ledger {
	return objref.Open(path, objref.WithDigestLength(settings.DigestLength))
}

func runRefDelta(cmd *cobra.Command, args []string, delta int) error {
	count, err := openLedger(args[0]).InsertOrBump(cmd.Context(), args[1], delta)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", args[1], count)
	return nil
}

func runRefGet(cmd *cobra.Command, args []string) error {
	count, err := openLedger(args[0]).Get(cmd.Context(), args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", args[1], count)
	return nil
}

func runRefList(cmd *cobra.Command, args []string) error {
	entries, err := openLedger(args[0]).Entries(cmd.Context())
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", e.Hash, e.Count)
	}
	return nil
}

func runRefGC(cmd *cobra.Command, args []string) error {
	ledger := openLedger(args[0])
	var (
		hashes []string
		err    error
	)
	if refSweep {
		hashes, err = ledger.Sweep(cmd.Context())
	} else {
		hashes, err = ledger.Unreferenced(cmd.Context())
	}
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, h := range hashes {
		fmt.Fprintln(w, h)
	}
	verb := "unreferenced"
	if refSweep {
		verb = "removed"
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d %s\n", len(hashes), verb)
	return nil
}
