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
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"rvfs/internal/collab"
	"rvfs/internal/common"
	"rvfs/internal/record"
)

var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Show where rvfs looks for a file's ledgers",
	Long: `Check whether a path is inside the versioned mount and show the mount
directory, the path relative to it and the ledger files the refresh command
writes for it.

Examples:
  rvfs info ~/mountdir/notes.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	absPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Path: %s\n", absPath)

	mountDir, relPath, err := common.SplitMountDir(absPath, settings.MountDirName)
	if err != nil {
		fmt.Fprintf(w, "Mount: not under a %q directory\n", settings.MountDirName)
		return nil
	}
	fmt.Fprintf(w, "Mount: %s\n", mountDir)
	fmt.Fprintf(w, "Relative path: %s\n", relPath)

	base := collab.NewRunner(settings).LedgerBase(absPath)
	for _, p := range []string{record.TreePath(base), record.HeadPath(base)} {
		status := "present"
		if _, err := os.Stat(p); err != nil {
			status = "missing"
		}
		fmt.Fprintf(w, "Ledger: %s (%s)\n", p, status)
	}
	return nil
}
