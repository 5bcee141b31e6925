package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ahmed-com/poller/backoff"
	"github.com/ahmed-com/poller/clock"
	"github.com/ahmed-com/poller/executor"
	"github.com/ahmed-com/poller/id"
)

// Poller repeatedly invokes a Task on a self-rescheduling timer.
//
// A run begins with Start (or Resume) and ends with Stop, the end of the
// activity window, a ForceStop decision from OnError, or an exhausted retry
// budget. At most one timer is armed and at most one task invocation is in
// flight at any time. Every Start, Pause and Stop begins a new generation;
// timers and in-flight ticks from an older generation are inert.
type Poller[T any] struct {
	id   string
	task Task[T]
	opts Options[T]
	log  *zap.Logger

	mu         sync.Mutex
	interval   time.Duration
	timer      clock.Timer
	retryCount int
	running    bool
	abort      bool
	status     Status
	generation uint64
	windowEnd  time.Time // zero when the run is unbounded

	inFlight bool
	deferred uint64 // generation whose tick waits for the in-flight task, 0 if none
}

// New creates a Poller for task. Missing callbacks and collaborators get no-op
// or real-time defaults; the numeric options must already be valid.
func New[T any](task Task[T], opts Options[T]) (*Poller[T], error) {
	if task == nil {
		return nil, fmt.Errorf("%w: task is required", ErrInvalidOptions)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withCollaborators()

	pollerID := id.GeneratePollerID(opts.Name)
	return &Poller[T]{
		id:       pollerID,
		task:     task,
		opts:     opts,
		log:      opts.Logger.With(zap.String("poller", opts.Name), zap.String("poller_id", pollerID)),
		interval: opts.Interval,
		status:   StatusIdle,
	}, nil
}

// Start begins polling. It is a no-op while the poller is running.
//
// Without a time range the first firing is launched at once. With a time
// range both endpoints are resolved against the current time: an inverted
// window returns ErrInvalidTimeRange, an elapsed window leaves the poller
// inactive, and a future window arms a timer for its start. The run is bounded
// by the window end.
//
// An immediate first tick is handed to Options.Dispatch like every other tick,
// so with the default dispatcher it runs on its own goroutine after Start
// returns.
func (p *Poller[T]) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}

	p.abort = false
	p.retryCount = 0
	now := p.opts.Clock.Now()

	var start, end time.Time
	if p.opts.TimeRange != nil {
		var err error
		start, end, err = p.opts.TimeRange.Resolve(now)
		if err != nil {
			p.mu.Unlock()
			return fmt.Errorf("start poller %s: %w", p.opts.Name, err)
		}
	}

	p.generation++
	gen := p.generation
	p.clearTimer()
	p.windowEnd = end
	log := p.log.With(zap.String("run_id", id.GenerateRunID(p.id, now)))

	switch {
	case p.opts.TimeRange == nil || !now.Before(start) && now.Before(end):
		fire := p.launchLocked(gen)
		p.mu.Unlock()
		log.Debug("Poller started", zap.Time("window_end", end))
		p.afterLaunch(gen, fire)

	case !now.Before(end):
		p.status = StatusIdle
		p.windowEnd = time.Time{}
		p.mu.Unlock()
		log.Info("Activity window already elapsed, not polling", zap.Time("window_end", end))

	default:
		p.status = StatusWaiting
		p.arm(start.Sub(now), func() { p.launchAt(gen) })
		p.mu.Unlock()
		log.Debug("Waiting for activity window", zap.Time("window_start", start), zap.Time("window_end", end))
	}
	return nil
}

// Pause halts polling but keeps the retry count, so backoff state survives
// until the next Start.
func (p *Poller[T]) Pause() *Poller[T] {
	p.mu.Lock()
	p.running = false
	p.clearTimer()
	p.generation++
	if p.status == StatusRunning || p.status == StatusWaiting {
		p.status = StatusPaused
	}
	p.mu.Unlock()

	p.log.Debug("Poller paused")
	return p
}

// Resume is Start: the retry count is reset and the window re-resolved
func (p *Poller[T]) Resume() error {
	return p.Start()
}

// Stop ends the current run and invokes OnStop(StopManual), also when the
// poller is already stopped. A task in flight finishes and its outcome still
// reaches OnSuccess or OnError.
func (p *Poller[T]) Stop() *Poller[T] {
	p.mu.Lock()
	p.stopLocked()
	p.mu.Unlock()

	p.afterStop(StopManual)
	return p
}

// SetInterval changes the delay used for future scheduling. A timer that is
// already armed keeps its deadline. Non-positive values are ignored.
func (p *Poller[T]) SetInterval(d time.Duration) *Poller[T] {
	if d <= 0 {
		p.log.Warn("Ignoring non-positive interval", zap.Duration("interval", d))
		return p
	}
	p.mu.Lock()
	p.interval = d
	p.mu.Unlock()
	return p
}

// ID returns the deterministic identifier derived from the poller name
func (p *Poller[T]) ID() string {
	return p.id
}

func (p *Poller[T]) Name() string {
	return p.opts.Name
}

func (p *Poller[T]) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// RetryCount returns the number of consecutive failures in the current run
func (p *Poller[T]) RetryCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retryCount
}

func (p *Poller[T]) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller[T]) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// launchLocked marks the run active. It reports whether a tick must be
// dispatched now; otherwise the first tick has been armed one interval out.
func (p *Poller[T]) launchLocked(gen uint64) bool {
	if p.abort || gen != p.generation {
		return false
	}
	p.running = true
	p.status = StatusRunning
	if p.opts.Immediate {
		return true
	}
	p.scheduleLocked(gen, p.interval)
	return false
}

func (p *Poller[T]) afterLaunch(gen uint64, fire bool) {
	p.opts.OnStart()
	if fire {
		p.dispatch(gen)
	}
}

// launchAt runs when the deferred window start arrives
func (p *Poller[T]) launchAt(gen uint64) {
	p.mu.Lock()
	if gen != p.generation || p.abort {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	fire := p.launchLocked(gen)
	p.mu.Unlock()

	p.log.Debug("Activity window opened")
	p.afterLaunch(gen, fire)
}

func (p *Poller[T]) dispatch(gen uint64) {
	p.opts.Dispatch(func() { p.tick(gen) })
}

// tick is one firing: invoke the task, account for the outcome and arm the next firing
func (p *Poller[T]) tick(gen uint64) {
	p.mu.Lock()
	if !p.currentLocked(gen) {
		p.mu.Unlock()
		return
	}
	if !p.windowEnd.IsZero() && !p.opts.Clock.Now().Before(p.windowEnd) {
		p.stopLocked()
		p.mu.Unlock()
		p.afterStop(StopWindowElapsed)
		return
	}
	if p.inFlight {
		// a task from an earlier run is still executing; run after it returns
		p.deferred = gen
		p.mu.Unlock()
		return
	}
	p.inFlight = true
	p.mu.Unlock()

	res := executor.Run[T](context.Background(), p.opts.TaskTimeout, p.task)

	p.mu.Lock()
	p.inFlight = false
	if !p.currentLocked(gen) {
		next := p.deferred
		p.deferred = 0
		p.mu.Unlock()
		p.deliverSuperseded(res)
		if next != 0 {
			// off the current worker: a full pool queue would block it
			go p.dispatch(next)
		}
		return
	}
	p.mu.Unlock()

	p.opts.Metrics.ObserveTaskDuration(p.opts.Name, res.Duration)

	if res.Err == nil {
		p.opts.Metrics.IncTicks(p.opts.Name, "success")
		p.mu.Lock()
		if p.currentLocked(gen) {
			p.retryCount = 0
		}
		p.mu.Unlock()
		p.opts.OnSuccess(res.Value)
	} else if stop, reason := p.handleFailure(gen, res); stop {
		p.stopWith(gen, reason)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.currentLocked(gen) {
		return
	}
	policy := backoff.Policy{Enabled: p.opts.Backoff, Base: p.opts.BackoffBase, Max: p.opts.BackoffMax}
	p.scheduleLocked(gen, policy.Delay(p.interval, p.retryCount, p.opts.Jitter))
}

// deliverSuperseded reports the outcome of a run that was paused, stopped or
// restarted while its task was in flight. The callbacks still see it; retry
// bookkeeping and scheduling do not, and a ForceStop decision has nothing left
// to stop.
func (p *Poller[T]) deliverSuperseded(res executor.Result[T]) {
	p.log.Debug("Task of a superseded run returned", zap.Error(res.Err))
	if res.Err == nil {
		p.opts.OnSuccess(res.Value)
		return
	}
	_ = p.opts.OnError(res.Err)
}

// handleFailure routes a failed invocation through OnError and the retry budget
func (p *Poller[T]) handleFailure(gen uint64, res executor.Result[T]) (bool, StopReason) {
	p.opts.Metrics.IncTicks(p.opts.Name, "failure")
	if res.CorrelationID != "" {
		p.log.Error("Task panicked",
			zap.String("correlation_id", res.CorrelationID),
			zap.ByteString("stack", res.Stack),
		)
	}

	if p.opts.OnError(res.Err) == ForceStop {
		return true, StopForced
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.currentLocked(gen) {
		return false, ""
	}
	p.retryCount++
	p.log.Warn("Task failed", zap.Error(res.Err), zap.Int("retry_count", p.retryCount))
	if p.opts.MaxRetries >= 0 && p.retryCount > p.opts.MaxRetries {
		return true, StopRetriesExhausted
	}
	return false, ""
}

// scheduleLocked arms the next firing, or the window expiry if it comes first
func (p *Poller[T]) scheduleLocked(gen uint64, delay time.Duration) {
	if !p.windowEnd.IsZero() {
		untilEnd := p.windowEnd.Sub(p.opts.Clock.Now())
		if untilEnd <= delay {
			p.arm(max(untilEnd, 0), func() { p.expire(gen) })
			return
		}
	}
	p.opts.Metrics.ObserveDelay(p.opts.Name, delay)
	p.arm(delay, func() { p.fire(gen) })
}

func (p *Poller[T]) fire(gen uint64) {
	p.mu.Lock()
	if gen == p.generation {
		p.timer = nil
	}
	p.mu.Unlock()
	p.dispatch(gen)
}

func (p *Poller[T]) expire(gen uint64) {
	p.mu.Lock()
	if !p.currentLocked(gen) {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.stopLocked()
	p.mu.Unlock()

	p.afterStop(StopWindowElapsed)
}

// stopWith ends the run from inside a tick unless the run already changed
func (p *Poller[T]) stopWith(gen uint64, reason StopReason) {
	p.mu.Lock()
	if gen != p.generation || p.status == StatusStopped {
		p.mu.Unlock()
		return
	}
	p.stopLocked()
	p.mu.Unlock()

	p.afterStop(reason)
}

func (p *Poller[T]) stopLocked() {
	p.running = false
	p.abort = true
	p.clearTimer()
	p.generation++
	p.status = StatusStopped
	p.windowEnd = time.Time{}
}

func (p *Poller[T]) afterStop(reason StopReason) {
	p.opts.Metrics.IncStops(p.opts.Name, string(reason))
	p.log.Info("Poller stopped", zap.String("reason", string(reason)))
	p.opts.OnStop(reason)
}

func (p *Poller[T]) currentLocked(gen uint64) bool {
	return gen == p.generation && p.running && !p.abort
}

// arm replaces the pending timer
func (p *Poller[T]) arm(d time.Duration, f func()) {
	p.clearTimer()
	p.timer = p.opts.Clock.AfterFunc(d, f)
}

func (p *Poller[T]) clearTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
