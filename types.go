package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ahmed-com/poller/backoff"
	"github.com/ahmed-com/poller/clock"
	"github.com/ahmed-com/poller/metrics"
	"github.com/ahmed-com/poller/window"
)

// ErrInvalidTimeRange is returned by Start when the activity window resolves to start >= end
var ErrInvalidTimeRange = window.ErrInvalidRange

// ErrInvalidOptions is returned when an option set fails validation
var ErrInvalidOptions = errors.New("invalid poller options")

// Task is the unit of work a Poller invokes on every tick
type Task[T any] func(ctx context.Context) (T, error)

// ErrorDecision is what an OnError callback asks the poller to do next
type ErrorDecision int

const (
	// Continue counts the failure against the retry budget and keeps polling
	Continue ErrorDecision = iota
	// ForceStop stops the poller immediately
	ForceStop
)

func (d ErrorDecision) String() string {
	switch d {
	case Continue:
		return "continue"
	case ForceStop:
		return "force_stop"
	default:
		return fmt.Sprintf("ErrorDecision(%d)", int(d))
	}
}

// StopReason tells OnStop why polling ended
type StopReason string

const (
	StopManual           StopReason = "manual"
	StopWindowElapsed    StopReason = "window_elapsed"
	StopForced           StopReason = "forced"
	StopRetriesExhausted StopReason = "retries_exhausted"
)

// Status is the lifecycle state of a Poller
type Status string

const (
	StatusIdle    Status = "Idle"
	StatusWaiting Status = "Waiting" // armed for the start of the activity window
	StatusRunning Status = "Running"
	StatusPaused  Status = "Paused"
	StatusStopped Status = "Stopped"
)

// Options configures a Poller. Only Interval may change after construction (SetInterval).
type Options[T any] struct {
	// Name identifies the poller in logs, metrics and IDs
	Name string

	Interval    time.Duration
	MaxRetries  int // -1 means unbounded
	Backoff     bool
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Immediate   bool

	// TimeRange bounds the activity window; nil polls without bounds
	TimeRange *window.Range

	// TaskTimeout bounds each invocation; zero means no deadline
	TaskTimeout time.Duration

	OnSuccess func(result T)
	OnError   func(err error) ErrorDecision
	OnStart   func()
	OnStop    func(reason StopReason)

	// Clock drives timers; defaults to clock.Real()
	Clock clock.Clock
	// Jitter randomizes backoff delays; defaults to backoff.DefaultJitter
	Jitter backoff.Jitter
	// Dispatch runs a tick, including the immediate first one; defaults to a new
	// goroutine per tick, so Start never runs the task inline
	Dispatch func(func())

	Logger  *zap.Logger
	Metrics metrics.MetricsCollector
}

// Validate checks the option values that would make scheduling meaningless
func (o Options[T]) Validate() error {
	if o.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidOptions, o.Interval)
	}
	if o.MaxRetries < -1 {
		return fmt.Errorf("%w: max retries must be >= -1, got %d", ErrInvalidOptions, o.MaxRetries)
	}
	if o.BackoffBase <= 0 {
		return fmt.Errorf("%w: backoff base must be positive, got %s", ErrInvalidOptions, o.BackoffBase)
	}
	if o.BackoffMax <= 0 {
		return fmt.Errorf("%w: backoff max must be positive, got %s", ErrInvalidOptions, o.BackoffMax)
	}
	if o.TaskTimeout < 0 {
		return fmt.Errorf("%w: task timeout must not be negative, got %s", ErrInvalidOptions, o.TaskTimeout)
	}
	if o.TimeRange != nil && (o.TimeRange.Start.IsZero() || o.TimeRange.End.IsZero()) {
		return fmt.Errorf("%w: time range needs both start and end", ErrInvalidOptions)
	}
	return nil
}

// withCollaborators fills in the no-op callbacks and real-time collaborators
func (o Options[T]) withCollaborators() Options[T] {
	if o.OnSuccess == nil {
		o.OnSuccess = func(T) {}
	}
	if o.OnError == nil {
		o.OnError = func(error) ErrorDecision { return Continue }
	}
	if o.OnStart == nil {
		o.OnStart = func() {}
	}
	if o.OnStop == nil {
		o.OnStop = func(StopReason) {}
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Jitter == nil {
		o.Jitter = backoff.DefaultJitter
	}
	if o.Dispatch == nil {
		o.Dispatch = func(f func()) { go f() }
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NewNoOpMetrics()
	}
	if o.Name == "" {
		o.Name = "poller"
	}
	return o
}
