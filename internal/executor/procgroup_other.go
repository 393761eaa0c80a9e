// Copyright 2025 Joseph Cumines
//
// Process group handling

//go:build !unix

package executor

import "os/exec"

// killProcessGroup is a no-op; cancellation kills only the direct child.
func killProcessGroup(*exec.Cmd) {}
