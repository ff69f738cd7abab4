// Package collab drives the external executables that own version content:
// the refresh command regenerates a file's .tree/.head ledgers and the
// materialize command writes the full text of one version to a known
// temporary location. Both are opaque; this package only runs them and
// waits for their output files.
package collab

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"rvfs/internal/common"
	"rvfs/internal/config"
	"rvfs/internal/record"
	"rvfs/internal/util"
)

// MaxVersions is the number of materialize output slots (switch1, switch2).
const MaxVersions = 2

// CommandError reports a collaborator that exited unsuccessfully.
type CommandError struct {
	Command  string
	Args     []string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %s %s exited with status %d", common.ErrCollaborator, e.Command, strings.Join(e.Args, " "), e.ExitCode)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *CommandError) Unwrap() error { return common.ErrCollaborator }

// Version identifies one version for the materialize command.
type Version struct {
	Offset    int64
	Anchor    int64
	HasAnchor bool
}

// Runner runs collaborators for files under a mount directory.
type Runner struct {
	TempDir            string
	MountDirName       string
	RefreshCommand     string // empty disables Refresh
	MaterializeCommand string
	Wait               time.Duration
}

// NewRunner returns a Runner configured from settings.
func NewRunner(s *config.Settings) *Runner {
	return &Runner{
		TempDir:            s.TempDir,
		MountDirName:       s.MountDirName,
		RefreshCommand:     s.RefreshCommand,
		MaterializeCommand: s.MaterializeCommand,
		Wait:               s.CollaboratorWait(),
	}
}

// LedgerBase returns the base path of the ledgers the refresh command
// writes for sourcePath.
func (r *Runner) LedgerBase(sourcePath string) string {
	return filepath.Join(r.TempDir, common.BaseName(sourcePath))
}

// OutputPath returns the materialize output file for slot (1-based).
func (r *Runner) OutputPath(slot int) string {
	return filepath.Join(r.TempDir, "switch"+strconv.Itoa(slot))
}

// Refresh regenerates the ledgers for sourcePath and waits until both files
// are present.
func (r *Runner) Refresh(ctx context.Context, sourcePath string) error {
	if r.RefreshCommand == "" {
		return nil
	}
	mountDir, _, err := common.SplitMountDir(sourcePath, r.MountDirName)
	if err != nil {
		return err
	}
	if err := r.run(ctx, mountDir, r.RefreshCommand, sourcePath); err != nil {
		return err
	}

	base := r.LedgerBase(sourcePath)
	return util.Retry(func() error {
		for _, p := range []string{record.TreePath(base), record.HeadPath(base)} {
			if _, err := os.Stat(p); err != nil {
				return err
			}
		}
		return nil
	}, util.OutputWaitOptions(ctx, r.Wait)...)
}

// Materialize writes the content of each version (at most MaxVersions) and
// returns it in order. The collaborator fills switch1 first, then switch2,
// so stale outputs are cleared before the first run.
func (r *Runner) Materialize(ctx context.Context, sourcePath string, versions ...Version) ([][]byte, error) {
	if len(versions) == 0 || len(versions) > MaxVersions {
		return nil, fmt.Errorf("materialize takes 1 to %d versions, got %d", MaxVersions, len(versions))
	}
	mountDir, relPath, err := common.SplitMountDir(sourcePath, r.MountDirName)
	if err != nil {
		return nil, err
	}

	for slot := 1; slot <= MaxVersions; slot++ {
		if err := os.Remove(r.OutputPath(slot)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: clear %s: %v", common.ErrIO, r.OutputPath(slot), err)
		}
	}

	contents := make([][]byte, 0, len(versions))
	for i, v := range versions {
		anchor := ""
		if v.HasAnchor {
			anchor = strconv.FormatInt(v.Anchor, 10)
		}
		if err := r.run(ctx, mountDir, r.MaterializeCommand, relPath, strconv.FormatInt(v.Offset, 10), anchor); err != nil {
			return nil, err
		}

		out := r.OutputPath(i + 1)
		data, err := util.RetryWithResult(func() ([]byte, error) {
			return os.ReadFile(out)
		}, util.OutputWaitOptions(ctx, r.Wait)...)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", common.ErrIO, out, err)
		}
		contents = append(contents, data)
	}
	return contents, nil
}

func (r *Runner) run(ctx context.Context, dir, command string, args ...string) error {
	log.Debugf("[Collab] run: dir=%q cmd=%s args=%q", dir, command, args)
	res, err := util.RunCommand(ctx, dir, command, args, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrCollaborator, err)
	}
	if res.ExitCode != 0 {
		return &CommandError{Command: command, Args: args, ExitCode: res.ExitCode, Output: string(res.Output)}
	}
	if len(res.Output) > 0 {
		log.Tracef("[Collab] %s output: %s", command, res.Output)
	}
	return nil
}
