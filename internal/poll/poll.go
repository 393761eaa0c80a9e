// Copyright 2025 Joseph Cumines
//
// Package poll provides polling helpers for conditions that cannot be waited
// on directly, such as external processes and long-running operations.
//
// Key utilities:
//   - UntilContext: Polls a condition function until success or timeout
//   - UntilOperationDone: Polls a long-running operation until it completes

package poll

import (
	"context"
	"fmt"
	"time"

	longrunningpb "cloud.google.com/go/longrunning/autogen/longrunningpb"
)

// UntilContext polls a condition function until it returns true or the context times out
func UntilContext(ctx context.Context, interval time.Duration, condition func() (bool, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			done, err := condition()
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

// UntilOperationDone polls get until the returned operation is done. An
// operation that finished with an error is reported as one.
func UntilOperationDone(ctx context.Context, interval time.Duration, get func() (*longrunningpb.Operation, error)) (*longrunningpb.Operation, error) {
	var last *longrunningpb.Operation
	err := UntilContext(ctx, interval, func() (bool, error) {
		op, err := get()
		if err != nil {
			return false, fmt.Errorf("failed to get operation: %w", err)
		}
		last = op
		return op.GetDone(), nil
	})
	if err != nil {
		return last, err
	}
	if st := last.GetError(); st != nil {
		return last, fmt.Errorf("operation failed: %s", st.GetMessage())
	}
	return last, nil
}
