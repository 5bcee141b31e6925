package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ahmed-com/poller/id"
)

// ErrTaskTimeout is reported when a task exceeds its per-invocation deadline
var ErrTaskTimeout = errors.New("task execution timeout")

// ErrTaskPanic is reported when a task panics
var ErrTaskPanic = errors.New("task panicked")

// Result is the outcome of a single task invocation
type Result[T any] struct {
	Value     T
	Err       error
	StartTime time.Time
	Duration  time.Duration

	// Set when Err wraps ErrTaskPanic
	CorrelationID string
	Stack         []byte
}

// Run invokes fn once. A non-zero timeout bounds the context handed to fn; a
// deadline hit is reported as ErrTaskTimeout. Panics are recovered and reported
// as ErrTaskPanic with a correlation ID so the caller can log the stack.
func Run[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (res Result[T]) {
	taskCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res.StartTime = time.Now()
	defer func() {
		res.Duration = time.Since(res.StartTime)
		if r := recover(); r != nil {
			var zero T
			res.Value = zero
			res.CorrelationID = id.NewCorrelationID()
			res.Stack = debug.Stack()
			res.Err = fmt.Errorf("%w: %v (correlation_id: %s)", ErrTaskPanic, r, res.CorrelationID)
		}
	}()

	value, err := fn(taskCtx)
	if err != nil {
		if timeout > 0 && errors.Is(taskCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s: %w", ErrTaskTimeout, timeout, err)
		}
		res.Err = err
		return res
	}
	res.Value = value
	return res
}
