// Copyright 2025 Joseph Cumines
//
// os/exec backed executor

package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/joeycumines/xcodebuild-mcp/internal/toolerr"
)

// shellPath is the interpreter used for UseShell commands.
const shellPath = "/bin/sh"

// OS executes commands with os/exec.
type OS struct {
	// Logger receives debug traces of every command; nil uses slog.Default().
	Logger *slog.Logger
	// Timeout bounds each command when positive. Zero means commands may run
	// indefinitely.
	Timeout time.Duration
}

// NewOS returns an executor using os/exec.
func NewOS(logger *slog.Logger) *OS {
	return &OS{Logger: logger}
}

func (e *OS) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Execute runs cmd to completion.
func (e *OS) Execute(ctx context.Context, cmd CommandSpec) (*Result, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	c, err := command(ctx, cmd)
	if err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	e.logger().Debug("executing command",
		slog.String("label", cmd.Label),
		slog.String("command", cmd.String()),
		slog.Bool("shell", cmd.UseShell),
	)

	runErr := c.Run()

	res := &Result{
		Output:   stdout.String(),
		ExitCode: -1,
	}
	if c.Process != nil {
		res.PID = c.Process.Pid
	}
	if c.ProcessState != nil {
		res.ExitCode = c.ProcessState.ExitCode()
	}

	// ErrWaitDelay after a clean exit means a detached grandchild kept the
	// output pipes open; the command itself succeeded.
	if runErr == nil || (errors.Is(runErr, exec.ErrWaitDelay) && c.ProcessState != nil && c.ProcessState.Success()) {
		res.Success = true
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, toolerr.Wrap(toolerr.KindTimeout, ctxErr, fmt.Sprintf("%s did not complete", cmd.Args[0]))
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		res.Error = stderr.String()
		return res, nil
	}

	if errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, os.ErrNotExist) {
		return nil, toolerr.DependencyMissing(
			fmt.Sprintf("Required executable not found: %s", cmd.Args[0]),
			"Make sure Xcode and the Xcode command line tools are installed (xcode-select --install).",
		)
	}

	return nil, toolerr.Wrap(toolerr.KindSystem, runErr, fmt.Sprintf("failed to run %s", cmd.Args[0]))
}

// command builds the exec.Cmd for spec, choosing direct or shell mode.
func command(ctx context.Context, spec CommandSpec) (*exec.Cmd, error) {
	if len(spec.Args) == 0 {
		return nil, toolerr.Validation("empty command")
	}

	var c *exec.Cmd
	if spec.UseShell {
		c = exec.CommandContext(ctx, shellPath, "-c", spec.String())
	} else {
		c = exec.CommandContext(ctx, spec.Args[0], spec.Args[1:]...)
	}
	c.Dir = spec.Dir
	c.Env = mergeEnv(os.Environ(), spec.Env)
	// Cancellation kills the whole process group, and a grandchild still
	// holding the output pipes cannot keep Wait blocked past waitDelay.
	killProcessGroup(c)
	c.WaitDelay = waitDelay
	return c, nil
}

// mergeEnv appends overrides to base in a stable order. Later entries win
// for os/exec, so overrides take precedence.
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(base)+len(keys))
	env = append(env, base...)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}
