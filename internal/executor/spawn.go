// Copyright 2025 Joseph Cumines
//
// Detached background processes (log capture)

package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/joeycumines/xcodebuild-mcp/internal/toolerr"
)

// Process is a handle on a running background process.
type Process interface {
	// PID returns the operating system process id.
	PID() int
	// Killed reports whether a termination signal was delivered by us.
	Killed() bool
	// ExitCode returns the exit status once the process has exited.
	ExitCode() (int, bool)
	// Signal delivers sig to the process.
	Signal(sig os.Signal) error
	// Done is closed once the process has exited.
	Done() <-chan struct{}
}

// Terminated reports whether p already stopped or was already signalled.
func Terminated(p Process) bool {
	if p.Killed() {
		return true
	}
	_, exited := p.ExitCode()
	return exited
}

// Spawner starts processes that keep running after the call returns.
type Spawner interface {
	// Spawn starts cmd with its combined output written to out.
	Spawn(ctx context.Context, cmd CommandSpec, out io.Writer) (Process, error)
}

// SpawnerFunc adapts a function to Spawner.
type SpawnerFunc func(ctx context.Context, cmd CommandSpec, out io.Writer) (Process, error)

// Spawn calls f.
func (f SpawnerFunc) Spawn(ctx context.Context, cmd CommandSpec, out io.Writer) (Process, error) {
	return f(ctx, cmd, out)
}

const waitDelay = time.Second

// OSSpawner spawns processes via os/exec. The process is not tied to ctx:
// it outlives the request that started it and is only stopped by Signal.
type OSSpawner struct{}

// Spawn starts cmd.
func (OSSpawner) Spawn(_ context.Context, cmd CommandSpec, out io.Writer) (Process, error) {
	c, err := command(context.Background(), cmd)
	if err != nil {
		return nil, err
	}
	c.Stdout = out
	c.Stderr = out

	if err := c.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, toolerr.DependencyMissing(
				fmt.Sprintf("Required executable not found: %s", cmd.Args[0]),
				"Make sure Xcode and the Xcode command line tools are installed (xcode-select --install).",
			)
		}
		return nil, toolerr.Wrap(toolerr.KindSystem, err, fmt.Sprintf("failed to start %s", cmd.Args[0]))
	}

	p := &osProcess{cmd: c, done: make(chan struct{})}
	go p.wait()
	return p, nil
}

//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type osProcess struct {
	cmd      *exec.Cmd
	done     chan struct{}
	mu       sync.Mutex
	killed   bool
	exited   bool
	exitCode int
}

func (p *osProcess) wait() {
	_ = p.cmd.Wait()
	p.mu.Lock()
	p.exited = true
	if p.cmd.ProcessState != nil {
		p.exitCode = p.cmd.ProcessState.ExitCode()
	} else {
		p.exitCode = -1
	}
	p.mu.Unlock()
	close(p.done)
}

func (p *osProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *osProcess) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

func (p *osProcess) ExitCode() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, p.exited
}

func (p *osProcess) Signal(sig os.Signal) error {
	if err := p.cmd.Process.Signal(sig); err != nil {
		return err
	}
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	return nil
}

func (p *osProcess) Done() <-chan struct{} {
	return p.done
}
