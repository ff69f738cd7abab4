package util

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// waitDelay bounds how long Wait blocks on output pipes held open by
// grandchildren after the command itself was killed.
const waitDelay = time.Second

// CommandResult is the outcome of a foreground command.
type CommandResult struct {
	ExitCode int
	Output   []byte // combined stdout and stderr
}

// RunCommand runs executable with args in dir and waits for it to exit.
// A non-zero exit is reported through ExitCode, not as an error; err is
// only set when the process could not be started or was cancelled.
func RunCommand(ctx context.Context, dir, executable string, args []string, env []string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, executable, args...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay
	if env != nil {
		cmd.Env = env
	} else {
		cmd.Env = os.Environ()
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	res := CommandResult{Output: out.Bytes()}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	return res, fmt.Errorf("failed to run %s: %w", executable, err)
}
