// Copyright 2025 Joseph Cumines
//
// Package executor runs external commands on behalf of plugins.
//
// Plugins never call os/exec directly. They build a CommandSpec and hand it
// to an Executor, which lets tests substitute canned results (see Func and
// Canned) without touching call sites.
package executor

import (
	"context"
	"strings"
	"sync"
)

// CommandSpec describes a single external process invocation. It is built
// per call and not modified afterwards.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type CommandSpec struct {
	// Args is the argv, Args[0] being the program.
	Args []string
	// Label is a human-readable description used in logs.
	Label string
	// UseShell runs the command through /bin/sh -c. Never inferred.
	UseShell bool
	// Env holds environment overrides layered over the current environment.
	Env map[string]string
	// Dir is the working directory (empty means inherit).
	Dir string
}

// String renders the command line, quoting arguments where a shell would need it.
func (c CommandSpec) String() string {
	quoted := make([]string, len(c.Args))
	for i, a := range c.Args {
		quoted[i] = ShellQuote(a)
	}
	return strings.Join(quoted, " ")
}

// Result is the outcome of running a CommandSpec.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type Result struct {
	// Success is true when the process exited with status 0.
	Success bool
	// Output is the captured standard output.
	Output string
	// Error is the captured standard error, set only when Success is false.
	Error string
	// ExitCode is the process exit status (-1 if unknown).
	ExitCode int
	// PID identifies the process that produced the result.
	PID int
}

// Executor runs commands to completion.
//
// Execute reports a non-zero exit through Result.Success; it returns an error
// only for environment-level failures such as a missing binary or a spawn
// failure. Callers must handle both.
type Executor interface {
	Execute(ctx context.Context, cmd CommandSpec) (*Result, error)
}

// Func adapts a plain function to the Executor interface.
type Func func(ctx context.Context, cmd CommandSpec) (*Result, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, cmd CommandSpec) (*Result, error) {
	return f(ctx, cmd)
}

// Canned returns an Executor that replays results in order, repeating the
// last one once exhausted. Useful in tests.
func Canned(results ...*Result) Func {
	var (
		mu sync.Mutex
		i  int
	)
	return func(ctx context.Context, cmd CommandSpec) (*Result, error) {
		if len(results) == 0 {
			return &Result{Success: true}, nil
		}
		mu.Lock()
		defer mu.Unlock()
		r := results[i]
		if i < len(results)-1 {
			i++
		}
		return r, nil
	}
}

// Recorder wraps an Executor and keeps every command passed through it.
type Recorder struct {
	Next Executor

	mu       sync.Mutex
	commands []CommandSpec
}

// Execute records cmd and delegates to Next, succeeding with no output if
// Next is nil.
func (r *Recorder) Execute(ctx context.Context, cmd CommandSpec) (*Result, error) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	r.mu.Unlock()
	if r.Next == nil {
		return &Result{Success: true}, nil
	}
	return r.Next.Execute(ctx, cmd)
}

// Commands returns the recorded commands in call order.
func (r *Recorder) Commands() []CommandSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CommandSpec(nil), r.commands...)
}

// ShellQuote quotes s for POSIX sh when it contains anything outside a
// conservative safe set.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			strings.ContainsRune("_-./=,:@%+", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
