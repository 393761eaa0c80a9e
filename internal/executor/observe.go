// Copyright 2025 Joseph Cumines
//
// Execution observation middleware

package executor

import (
	"context"
	"time"
)

// Observer is notified after every command execution, successful or not.
type Observer func(cmd CommandSpec, res *Result, err error, elapsed time.Duration)

// Observe wraps next so that obs sees every execution.
func Observe(next Executor, obs Observer) Executor {
	if obs == nil {
		return next
	}
	return Func(func(ctx context.Context, cmd CommandSpec) (*Result, error) {
		start := time.Now()
		res, err := next.Execute(ctx, cmd)
		obs(cmd, res, err, time.Since(start))
		return res, err
	})
}

// Status classifies an execution for metrics and audit labels.
func Status(res *Result, err error) string {
	switch {
	case err != nil:
		return "error"
	case res == nil || !res.Success:
		return "failure"
	default:
		return "success"
	}
}
