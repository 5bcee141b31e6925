package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRunSuccess(t *testing.T) {
	res := Run(context.Background(), 0, func(ctx context.Context) (string, error) {
		return "pong", nil
	})

	if res.Err != nil {
		t.Fatalf("Expected no error, got %v", res.Err)
	}
	if res.Value != "pong" {
		t.Errorf("Expected value 'pong', got %q", res.Value)
	}
	if res.StartTime.IsZero() {
		t.Error("StartTime should be set")
	}
	if res.Duration < 0 {
		t.Errorf("Duration should not be negative, got %v", res.Duration)
	}
}

func TestRunFailure(t *testing.T) {
	boom := errors.New("boom")
	res := Run(context.Background(), 0, func(ctx context.Context) (int, error) {
		return 42, boom
	})

	if !errors.Is(res.Err, boom) {
		t.Fatalf("Expected boom, got %v", res.Err)
	}
	if res.Value != 0 {
		t.Errorf("Value should be zero on failure, got %d", res.Value)
	}
}

func TestRunTimeout(t *testing.T) {
	res := Run(context.Background(), 20*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	if !errors.Is(res.Err, ErrTaskTimeout) {
		t.Fatalf("Expected ErrTaskTimeout, got %v", res.Err)
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("Timeout error should wrap the task's error, got %v", res.Err)
	}
}

func TestRunParentCancelIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := Run(ctx, time.Minute, func(ctx context.Context) (int, error) {
		return 0, ctx.Err()
	})

	if errors.Is(res.Err, ErrTaskTimeout) {
		t.Fatalf("Parent cancellation should not be reported as timeout: %v", res.Err)
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", res.Err)
	}
}

func TestRunRecoversPanic(t *testing.T) {
	res := Run(context.Background(), 0, func(ctx context.Context) (string, error) {
		panic("nil map write")
	})

	if !errors.Is(res.Err, ErrTaskPanic) {
		t.Fatalf("Expected ErrTaskPanic, got %v", res.Err)
	}
	if res.CorrelationID == "" {
		t.Error("CorrelationID should be set for panics")
	}
	if !strings.Contains(res.Err.Error(), res.CorrelationID) {
		t.Errorf("Error should mention correlation ID, got %v", res.Err)
	}
	if len(res.Stack) == 0 {
		t.Error("Stack should be captured for panics")
	}
}
