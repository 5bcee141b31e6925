package poller

import (
	"time"

	"go.uber.org/zap"

	"github.com/ahmed-com/poller/window"
)

// DefaultOptions returns the baseline option set that Create merges overrides onto
func DefaultOptions[T any]() Options[T] {
	return Options[T]{
		Interval:    3 * time.Second,
		MaxRetries:  -1,
		Backoff:     true,
		BackoffBase: time.Second,
		BackoffMax:  30 * time.Second,
		Immediate:   true,
	}
}

// AppDefaults returns the convention used by the bundled daemon: poll every six
// seconds during 09:00-18:00 local time and log every outcome.
func AppDefaults[T any](logger *zap.Logger) Options[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := DefaultOptions[T]()
	opts.Interval = 6 * time.Second
	opts.TimeRange = &window.Range{Start: window.MustWallClock(9, 0), End: window.MustWallClock(18, 0)}
	opts.Logger = logger
	opts.OnSuccess = func(result T) {
		logger.Info("Poll succeeded", zap.Any("result", result))
	}
	opts.OnError = func(err error) ErrorDecision {
		logger.Warn("Poll failed", zap.Error(err))
		return Continue
	}
	return opts
}

// Override holds a partial option set. Every non-nil field replaces the
// corresponding base field; nil fields keep the base value.
type Override[T any] struct {
	Name        *string
	Interval    *time.Duration
	MaxRetries  *int
	Backoff     *bool
	BackoffBase *time.Duration
	BackoffMax  *time.Duration
	Immediate   *bool
	TaskTimeout *time.Duration

	// TimeRange replaces the base window when set; set NoTimeRange to clear it
	TimeRange   *window.Range
	NoTimeRange bool

	OnSuccess func(result T)
	OnError   func(err error) ErrorDecision
	OnStart   func()
	OnStop    func(reason StopReason)
}

// Merge applies o over base (shallow field override) and returns the result
func (o *Override[T]) Merge(base Options[T]) Options[T] {
	merged := base
	if o == nil {
		return merged
	}

	if o.Name != nil {
		merged.Name = *o.Name
	}
	if o.Interval != nil {
		merged.Interval = *o.Interval
	}
	if o.MaxRetries != nil {
		merged.MaxRetries = *o.MaxRetries
	}
	if o.Backoff != nil {
		merged.Backoff = *o.Backoff
	}
	if o.BackoffBase != nil {
		merged.BackoffBase = *o.BackoffBase
	}
	if o.BackoffMax != nil {
		merged.BackoffMax = *o.BackoffMax
	}
	if o.Immediate != nil {
		merged.Immediate = *o.Immediate
	}
	if o.TaskTimeout != nil {
		merged.TaskTimeout = *o.TaskTimeout
	}
	if o.TimeRange != nil {
		merged.TimeRange = o.TimeRange
	}
	if o.NoTimeRange {
		merged.TimeRange = nil
	}
	if o.OnSuccess != nil {
		merged.OnSuccess = o.OnSuccess
	}
	if o.OnError != nil {
		merged.OnError = o.OnError
	}
	if o.OnStart != nil {
		merged.OnStart = o.OnStart
	}
	if o.OnStop != nil {
		merged.OnStop = o.OnStop
	}
	return merged
}

// Create merges override onto DefaultOptions and constructs a Poller
func Create[T any](task Task[T], override *Override[T]) (*Poller[T], error) {
	return New(task, override.Merge(DefaultOptions[T]()))
}

// CreateFrom merges override onto base and constructs a Poller
func CreateFrom[T any](task Task[T], base Options[T], override *Override[T]) (*Poller[T], error) {
	return New(task, override.Merge(base))
}

// Ptr returns a pointer to v, for filling Override fields
func Ptr[V any](v V) *V {
	return &v
}
