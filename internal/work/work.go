// Package work provides work units: the pluggable computation a node performs
// when executed.
package work

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/leappipe/pkg/core"
)

// Func adapts a plain function to core.WorkUnit.
type Func func(ctx context.Context, node core.PipelineNode) (core.WorkResult, error)

// Process calls f.
func (f Func) Process(ctx context.Context, node core.PipelineNode) (core.WorkResult, error) {
	return f(ctx, node)
}

// ErrTimeout is wrapped by errors returned from a unit wrapped with Timeout.
var ErrTimeout = errors.New("work unit timed out")

// Timeout wraps unit so that each node must finish within d.
// A deadline hit is reported as a failure wrapping ErrTimeout; cancellation of
// the parent context is passed through unchanged. A zero d disables the limit.
func Timeout(unit core.WorkUnit, d time.Duration) core.WorkUnit {
	if d <= 0 {
		return unit
	}
	return Func(func(ctx context.Context, node core.PipelineNode) (core.WorkResult, error) {
		nodeCtx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type outcome struct {
			result core.WorkResult
			err    error
		}
		done := make(chan outcome, 1)
		go func() {
			result, err := unit.Process(nodeCtx, node)
			done <- outcome{result, err}
		}()

		select {
		case out := <-done:
			if out.err != nil && ctx.Err() == nil && errors.Is(nodeCtx.Err(), context.DeadlineExceeded) {
				return core.WorkResult{}, fmt.Errorf("%w after %s", ErrTimeout, d)
			}
			return out.result, out.err
		case <-nodeCtx.Done():
			if ctx.Err() != nil {
				return core.WorkResult{}, ctx.Err()
			}
			return core.WorkResult{}, fmt.Errorf("%w after %s", ErrTimeout, d)
		}
	})
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
