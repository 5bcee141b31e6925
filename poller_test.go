package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmed-com/poller/backoff"
	"github.com/ahmed-com/poller/clock"
	"github.com/ahmed-com/poller/executor"
	"github.com/ahmed-com/poller/metrics"
	"github.com/ahmed-com/poller/window"
)

var errBoom = errors.New("boom")

// recorder scripts task outcomes and captures every callback
type recorder struct {
	mu       sync.Mutex
	clock    *clock.Fake
	outcomes []error // consumed per call; exhausted means success
	calls    []time.Time
	results  []int
	errs     []error
	starts   int
	stops    []StopReason
}

func (r *recorder) task(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, r.clock.Now())
	if len(r.outcomes) > 0 {
		err := r.outcomes[0]
		r.outcomes = r.outcomes[1:]
		if err != nil {
			return 0, err
		}
	}
	return len(r.calls), nil
}

func (r *recorder) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recorder) stopReasons() []StopReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StopReason(nil), r.stops...)
}

// testOptions returns options driven by c with synchronous dispatch and no jitter
func testOptions(c *clock.Fake, r *recorder) Options[int] {
	opts := DefaultOptions[int]()
	opts.Name = "test"
	opts.Clock = c
	opts.Dispatch = func(f func()) { f() }
	opts.Jitter = backoff.NoJitter
	opts.OnSuccess = func(v int) {
		r.mu.Lock()
		r.results = append(r.results, v)
		r.mu.Unlock()
	}
	opts.OnError = func(err error) ErrorDecision {
		r.mu.Lock()
		r.errs = append(r.errs, err)
		r.mu.Unlock()
		return Continue
	}
	opts.OnStart = func() {
		r.mu.Lock()
		r.starts++
		r.mu.Unlock()
	}
	opts.OnStop = func(reason StopReason) {
		r.mu.Lock()
		r.stops = append(r.stops, reason)
		r.mu.Unlock()
	}
	return opts
}

func newHarness(t *testing.T, now time.Time, mutate func(*Options[int])) (*Poller[int], *recorder, *clock.Fake) {
	t.Helper()
	c := clock.NewFake(now)
	r := &recorder{clock: c}
	opts := testOptions(c, r)
	if mutate != nil {
		mutate(&opts)
	}
	p, err := New(r.task, opts)
	require.NoError(t, err)
	return p, r, c
}

// advanceToNext moves the clock to the earliest armed deadline
func advanceToNext(t *testing.T, c *clock.Fake) time.Duration {
	t.Helper()
	at, ok := c.NextDeadline()
	require.True(t, ok, "expected an armed timer")
	d := at.Sub(c.Now())
	c.Set(at)
	return d
}

var t0 = time.Date(2025, 11, 7, 7, 0, 0, 0, time.UTC)

func TestNewRejectsInvalidOptions(t *testing.T) {
	task := func(context.Context) (int, error) { return 0, nil }

	tests := []struct {
		name   string
		mutate func(*Options[int])
	}{
		{"zero interval", func(o *Options[int]) { o.Interval = 0 }},
		{"negative interval", func(o *Options[int]) { o.Interval = -time.Second }},
		{"max retries below -1", func(o *Options[int]) { o.MaxRetries = -2 }},
		{"zero backoff base", func(o *Options[int]) { o.BackoffBase = 0 }},
		{"zero backoff max", func(o *Options[int]) { o.BackoffMax = 0 }},
		{"negative task timeout", func(o *Options[int]) { o.TaskTimeout = -1 }},
		{"half-open range", func(o *Options[int]) { o.TimeRange = &window.Range{Start: window.At(t0)} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions[int]()
			tt.mutate(&opts)
			_, err := New(task, opts)
			assert.True(t, errors.Is(err, ErrInvalidOptions), "got %v", err)
		})
	}

	_, err := New[int](nil, DefaultOptions[int]())
	assert.True(t, errors.Is(err, ErrInvalidOptions))
}

func TestImmediateStartFiresAtOnce(t *testing.T) {
	p, r, c := newHarness(t, t0, nil)

	require.NoError(t, p.Start())
	assert.Equal(t, 1, r.callCount())
	assert.Equal(t, 1, r.starts)
	assert.True(t, p.Running())
	assert.Equal(t, StatusRunning, p.Status())
	assert.Equal(t, 1, c.Pending())

	c.Advance(3 * time.Second)
	assert.Equal(t, 2, r.callCount())
	assert.Equal(t, []int{1, 2}, r.results)

	p.Stop()
}

func TestNonImmediateWaitsOneInterval(t *testing.T) {
	p, r, c := newHarness(t, t0, func(o *Options[int]) {
		o.Immediate = false
		o.Interval = 2 * time.Second
	})

	require.NoError(t, p.Start())
	assert.Equal(t, 0, r.callCount(), "no synchronous firing")
	assert.Equal(t, 1, r.starts)

	c.Advance(2*time.Second - time.Millisecond)
	assert.Equal(t, 0, r.callCount())

	c.Advance(time.Millisecond)
	require.Equal(t, 1, r.callCount())
	assert.Equal(t, t0.Add(2*time.Second), r.calls[0])
}

func TestStartIsIdempotentWhileRunning(t *testing.T) {
	p, r, c := newHarness(t, t0, nil)

	require.NoError(t, p.Start())
	require.NoError(t, p.Start())

	assert.Equal(t, 1, r.callCount())
	assert.Equal(t, 1, r.starts)
	assert.Equal(t, 1, c.Pending(), "at most one timer armed")
}

func TestSuccessResetsRetryCount(t *testing.T) {
	p, r, c := newHarness(t, t0, func(o *Options[int]) { o.Backoff = false })
	r.outcomes = []error{errBoom, errBoom, nil}

	require.NoError(t, p.Start())
	assert.Equal(t, 1, p.RetryCount())

	c.Advance(3 * time.Second)
	assert.Equal(t, 2, p.RetryCount())

	c.Advance(3 * time.Second)
	assert.Equal(t, 0, p.RetryCount())
	assert.Len(t, r.errs, 2)
	assert.Equal(t, []int{3}, r.results)
}

func TestRetriesExhaustedStopsExactlyOnce(t *testing.T) {
	const maxRetries = 3
	p, r, c := newHarness(t, t0, func(o *Options[int]) {
		o.MaxRetries = maxRetries
		o.Backoff = false
		o.Interval = time.Second
	})
	r.outcomes = []error{errBoom, errBoom, errBoom, errBoom, errBoom, errBoom}

	require.NoError(t, p.Start())
	for n := 1; n <= maxRetries; n++ {
		assert.True(t, p.Running(), "still running after %d failures", n)
		assert.Equal(t, n, p.RetryCount())
		c.Advance(time.Second)
	}

	assert.False(t, p.Running())
	assert.Equal(t, StatusStopped, p.Status())
	assert.Equal(t, []StopReason{StopRetriesExhausted}, r.stopReasons())
	assert.Equal(t, maxRetries+1, r.callCount())
	assert.Equal(t, 0, c.Pending())

	c.Advance(time.Minute)
	assert.Equal(t, maxRetries+1, r.callCount())
	assert.Len(t, r.stopReasons(), 1)
}

func TestMaxRetriesZeroStopsOnFirstFailure(t *testing.T) {
	p, r, _ := newHarness(t, t0, func(o *Options[int]) { o.MaxRetries = 0 })
	r.outcomes = []error{errBoom}

	require.NoError(t, p.Start())
	assert.False(t, p.Running())
	assert.Equal(t, []StopReason{StopRetriesExhausted}, r.stopReasons())
}

func TestUnboundedRetriesNeverExhaust(t *testing.T) {
	p, r, c := newHarness(t, t0, func(o *Options[int]) {
		o.Backoff = false
		o.Interval = time.Second
	})
	for i := 0; i < 100; i++ {
		r.outcomes = append(r.outcomes, errBoom)
	}

	require.NoError(t, p.Start())
	c.Advance(99 * time.Second)

	assert.Equal(t, 100, r.callCount())
	assert.Equal(t, 100, p.RetryCount())
	assert.True(t, p.Running())
	assert.Empty(t, r.stopReasons())
}

func TestBackoffDelaysAfterConsecutiveFailures(t *testing.T) {
	m := metrics.NewInMemoryMetrics()
	p, r, c := newHarness(t, t0, func(o *Options[int]) {
		o.Metrics = m
		o.Jitter = func(time.Duration) time.Duration { return 250 * time.Millisecond }
	})
	for i := 0; i < 7; i++ {
		r.outcomes = append(r.outcomes, errBoom)
	}

	require.NoError(t, p.Start())
	want := []time.Duration{
		1250 * time.Millisecond,
		2250 * time.Millisecond,
		4250 * time.Millisecond,
		8250 * time.Millisecond,
		16250 * time.Millisecond,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		got := advanceToNext(t, c)
		assert.Equal(t, w, got, "delay after failure %d", i+1)
	}

	// the eighth call succeeds and the interval applies again
	assert.Equal(t, 0, p.RetryCount())
	assert.Equal(t, append(want, 3*time.Second), m.GetDelays("test"))
	assert.Equal(t, 3*time.Second, advanceToNext(t, c))
	assert.Equal(t, int64(7), m.GetTicks("test", "failure"))
}

func TestBackoffDelaysWithRandomJitterStayInBounds(t *testing.T) {
	p, r, c := newHarness(t, t0, func(o *Options[int]) { o.Jitter = backoff.DefaultJitter })
	for i := 0; i < 6; i++ {
		r.outcomes = append(r.outcomes, errBoom)
	}

	require.NoError(t, p.Start())
	for k := 1; k <= 6; k++ {
		d := advanceToNext(t, c)
		low := time.Second << (k - 1)
		if low >= 30*time.Second {
			assert.Equal(t, 30*time.Second, d)
			continue
		}
		assert.GreaterOrEqual(t, d, low)
		assert.Less(t, d, low+time.Second)
	}
}

func TestOnErrorForceStop(t *testing.T) {
	p, r, c := newHarness(t, t0, func(o *Options[int]) {
		o.OnError = func(error) ErrorDecision { return ForceStop }
	})
	r.outcomes = []error{errBoom}

	require.NoError(t, p.Start())

	assert.False(t, p.Running())
	assert.Equal(t, 0, p.RetryCount(), "forced stop skips the retry increment")
	assert.Equal(t, []StopReason{StopForced}, r.stopReasons())
	assert.Equal(t, 0, c.Pending())
}

func TestStopCancelsScheduledTick(t *testing.T) {
	p, r, c := newHarness(t, t0, nil)

	require.NoError(t, p.Start())
	require.Equal(t, 1, c.Pending())

	p.Stop()
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, StatusStopped, p.Status())

	c.Advance(time.Hour)
	assert.Equal(t, 1, r.callCount())

	p.Stop()
	assert.Equal(t, []StopReason{StopManual, StopManual}, r.stopReasons(), "every Stop reports OnStop")
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, 1, r.callCount())
}

func TestStopFromStaleTimerIsIgnored(t *testing.T) {
	// A timer callback that raced past Stop must not fire the task.
	p, r, c := newHarness(t, t0, func(o *Options[int]) { o.Immediate = false })
	require.NoError(t, p.Start())

	gen := p.generation
	p.Stop()
	p.fire(gen)
	c.Advance(time.Hour)

	assert.Equal(t, 0, r.callCount())
}

func TestPauseKeepsRetryCountAndResumeResetsIt(t *testing.T) {
	p, r, c := newHarness(t, t0, func(o *Options[int]) {
		o.Backoff = false
		o.Interval = time.Second
	})
	r.outcomes = []error{errBoom, errBoom}

	require.NoError(t, p.Start())
	c.Advance(time.Second)
	require.Equal(t, 2, p.RetryCount())

	p.Pause()
	assert.False(t, p.Running())
	assert.Equal(t, StatusPaused, p.Status())
	assert.Equal(t, 2, p.RetryCount())
	assert.Equal(t, 0, c.Pending())

	c.Advance(time.Minute)
	assert.Equal(t, 2, r.callCount())
	assert.Empty(t, r.stopReasons(), "pause does not call OnStop")

	p.opts.Immediate = false
	require.NoError(t, p.Resume())
	assert.Equal(t, 0, p.RetryCount())
	assert.True(t, p.Running())
	assert.Equal(t, 2, r.starts)
}

func TestSetIntervalAffectsOnlyFutureTimers(t *testing.T) {
	p, r, c := newHarness(t, t0, func(o *Options[int]) { o.Interval = time.Second })

	require.NoError(t, p.Start())
	p.SetInterval(5 * time.Second)
	assert.Equal(t, 5*time.Second, p.Interval())

	assert.Equal(t, time.Second, advanceToNext(t, c), "armed timer keeps its deadline")
	assert.Equal(t, 2, r.callCount())
	assert.Equal(t, 5*time.Second, advanceToNext(t, c))

	p.SetInterval(0)
	assert.Equal(t, 5*time.Second, p.Interval(), "non-positive interval ignored")
}

func TestFutureWindowDefersLaunchAndStopsAtEnd(t *testing.T) {
	p, r, c := newHarness(t, t0, func(o *Options[int]) {
		o.Interval = time.Second
		o.TimeRange = &window.Range{Start: window.At(t0.Add(time.Second)), End: window.At(t0.Add(5 * time.Second))}
	})

	require.NoError(t, p.Start())
	assert.Equal(t, StatusWaiting, p.Status())
	assert.False(t, p.Running())
	assert.Equal(t, 0, r.starts)

	c.Advance(999 * time.Millisecond)
	assert.Equal(t, 0, r.callCount())

	c.Advance(time.Millisecond)
	assert.Equal(t, 1, r.callCount())
	assert.Equal(t, 1, r.starts)

	c.Advance(4 * time.Second)
	assert.Equal(t, []StopReason{StopWindowElapsed}, r.stopReasons())
	assert.Equal(t, StatusStopped, p.Status())

	for _, at := range r.calls {
		assert.False(t, at.Before(t0.Add(time.Second)), "call at %s before window start", at)
		assert.True(t, at.Before(t0.Add(5*time.Second)), "call at %s at or after window end", at)
	}
	assert.Equal(t, 4, r.callCount())

	c.Advance(time.Hour)
	assert.Equal(t, 4, r.callCount())
}

func TestWindowBoundsNonImmediateAndBackoff(t *testing.T) {
	p, r, c := newHarness(t, t0, func(o *Options[int]) {
		o.Immediate = false
		o.Interval = 10 * time.Second
		o.TimeRange = &window.Range{Start: window.At(t0), End: window.At(t0.Add(5 * time.Second))}
	})

	require.NoError(t, p.Start())
	c.Advance(5 * time.Second)

	assert.Equal(t, 0, r.callCount())
	assert.Equal(t, []StopReason{StopWindowElapsed}, r.stopReasons())
}

func TestInsideWindowLaunchesImmediately(t *testing.T) {
	p, r, _ := newHarness(t, t0, func(o *Options[int]) {
		o.TimeRange = &window.Range{Start: window.At(t0.Add(-time.Second)), End: window.At(t0.Add(3 * time.Second))}
	})

	require.NoError(t, p.Start())
	assert.Equal(t, 1, r.callCount())
	assert.Equal(t, StatusRunning, p.Status())
}

func TestElapsedWindowStaysInactive(t *testing.T) {
	p, r, c := newHarness(t, t0, func(o *Options[int]) {
		o.TimeRange = &window.Range{Start: window.At(t0.Add(-2 * time.Hour)), End: window.At(t0.Add(-time.Hour))}
	})

	require.NoError(t, p.Start())
	assert.False(t, p.Running())
	assert.Equal(t, StatusIdle, p.Status())
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, 0, r.callCount())
	assert.Equal(t, 0, r.starts)
}

func TestInvertedWindowIsConfigurationError(t *testing.T) {
	p, r, c := newHarness(t, t0, func(o *Options[int]) {
		rng, err := window.ParseRange("09:00", "08:00")
		require.NoError(t, err)
		o.TimeRange = rng
	})

	err := p.Start()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTimeRange))
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, 0, r.callCount())
	assert.Equal(t, 0, r.starts)
	assert.False(t, p.Running())
}

func TestResumeReevaluatesWallClockWindow(t *testing.T) {
	p, r, c := newHarness(t, t0, func(o *Options[int]) {
		o.Interval = time.Minute
		rng, err := window.ParseRange("08:00", "10:00")
		require.NoError(t, err)
		o.TimeRange = rng
	})

	require.NoError(t, p.Start())
	require.Equal(t, StatusWaiting, p.Status())

	c.Set(time.Date(2025, 11, 7, 8, 0, 0, 0, time.UTC))
	require.Equal(t, StatusRunning, p.Status())
	c.Set(time.Date(2025, 11, 7, 9, 30, 0, 0, time.UTC))
	p.Pause()
	calls := r.callCount()

	// past today's window: the next occurrence is tomorrow 08:00-10:00
	c.Set(time.Date(2025, 11, 7, 10, 30, 0, 0, time.UTC))
	require.NoError(t, p.Resume())
	assert.Equal(t, StatusWaiting, p.Status())
	assert.Equal(t, calls, r.callCount())

	at, ok := c.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 11, 8, 8, 0, 0, 0, time.UTC), at)
}

func TestPauseWhileWaitingCancelsLaunch(t *testing.T) {
	p, r, c := newHarness(t, t0, func(o *Options[int]) {
		o.TimeRange = &window.Range{Start: window.At(t0.Add(time.Second)), End: window.At(t0.Add(time.Hour))}
	})

	require.NoError(t, p.Start())
	p.Pause()
	assert.Equal(t, StatusPaused, p.Status())

	c.Advance(time.Minute)
	assert.Equal(t, 0, r.callCount())
	assert.Equal(t, 0, r.starts)
}

func TestTaskPanicIsReportedAsFailure(t *testing.T) {
	c := clock.NewFake(t0)
	r := &recorder{clock: c}
	opts := testOptions(c, r)
	p, err := New(func(context.Context) (int, error) { panic("kaboom") }, opts)
	require.NoError(t, err)

	require.NoError(t, p.Start())
	require.Len(t, r.errs, 1)
	assert.True(t, errors.Is(r.errs[0], executor.ErrTaskPanic))
	assert.Equal(t, 1, p.RetryCount())
	assert.True(t, p.Running())
}

func TestSupersededRunNeverOverlaps(t *testing.T) {
	c := clock.NewFake(t0)
	var calls, active, maxActive int32
	started := make(chan int32, 4)
	release := make(chan struct{}, 4)
	successes := make(chan int, 4)

	task := func(context.Context) (int, error) {
		n := atomic.AddInt32(&calls, 1)
		a := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if a <= m || atomic.CompareAndSwapInt32(&maxActive, m, a) {
				break
			}
		}
		started <- n
		<-release
		atomic.AddInt32(&active, -1)
		return int(n), nil
	}

	opts := DefaultOptions[int]()
	opts.Clock = c
	opts.OnSuccess = func(v int) { successes <- v }
	p, err := New(task, opts)
	require.NoError(t, err)

	require.NoError(t, p.Start())
	require.Equal(t, int32(1), <-started)

	p.Pause()
	require.NoError(t, p.Resume())
	release <- struct{}{}

	select {
	case n := <-started:
		assert.Equal(t, int32(2), n)
	case <-time.After(5 * time.Second):
		t.Fatal("resumed run never invoked the task")
	}
	release <- struct{}{}

	var got []int
	for len(got) < 2 {
		select {
		case v := <-successes:
			got = append(got, v)
		case <-time.After(5 * time.Second):
			t.Fatalf("successes = %v, want both runs reported", got)
		}
	}
	assert.Equal(t, []int{1, 2}, got, "the paused run still reports its outcome")

	p.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
	assert.Empty(t, successes)
}

func TestDefaultDispatchDoesNotRunTaskInline(t *testing.T) {
	release := make(chan struct{})
	ran := make(chan struct{})
	opts := DefaultOptions[int]()
	opts.Clock = clock.NewFake(t0)
	p, err := New(func(context.Context) (int, error) {
		<-release
		close(ran)
		return 1, nil
	}, opts)
	require.NoError(t, err)

	// Start returns while the immediate tick is still blocked in the task
	require.NoError(t, p.Start())
	assert.Equal(t, StatusRunning, p.Status())
	close(release)

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("immediate tick never ran")
	}
	p.Stop()
}

func TestStopDuringTaskStillReportsFailure(t *testing.T) {
	p, r, c := newHarness(t, t0, func(o *Options[int]) {
		onError := o.OnError
		o.OnError = func(err error) ErrorDecision {
			onError(err)
			return ForceStop
		}
	})
	task := p.task
	p.task = func(ctx context.Context) (int, error) {
		p.Stop()
		_, _ = task(ctx)
		return 0, errBoom
	}

	require.NoError(t, p.Start())

	r.mu.Lock()
	errs := append([]error(nil), r.errs...)
	r.mu.Unlock()
	assert.Equal(t, []error{errBoom}, errs)
	assert.Equal(t, 0, c.Pending(), "a stopped run arms nothing")
	assert.Equal(t, 0, p.RetryCount())
	assert.Equal(t, StatusStopped, p.Status())
	assert.Equal(t, []StopReason{StopManual}, r.stopReasons(), "ForceStop of a finished run is ignored")
}

func TestPauseDuringTaskStillReportsSuccess(t *testing.T) {
	p, r, c := newHarness(t, t0, nil)
	task := p.task
	p.task = func(ctx context.Context) (int, error) {
		p.Pause()
		return task(ctx)
	}

	require.NoError(t, p.Start())

	r.mu.Lock()
	results := append([]int(nil), r.results...)
	r.mu.Unlock()
	assert.Equal(t, []int{1}, results)
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, StatusPaused, p.Status())
	assert.Empty(t, r.stopReasons())
}

func TestDeferredTickDoesNotBlockFinishingTick(t *testing.T) {
	c := clock.NewFake(t0)
	var dispatches atomic.Int32
	unblock := make(chan struct{})
	finished := make(chan struct{}, 4)
	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	successes := make(chan int, 4)

	var taskCalls atomic.Int32
	opts := DefaultOptions[int]()
	opts.Clock = c
	opts.OnSuccess = func(v int) { successes <- v }
	// the third dispatch is the deferred hand-off; it blocks like a full pool queue
	opts.Dispatch = func(f func()) {
		if dispatches.Add(1) == 3 {
			<-unblock
		}
		go func() {
			f()
			finished <- struct{}{}
		}()
	}
	p, err := New(func(context.Context) (int, error) {
		n := taskCalls.Add(1)
		if n == 1 {
			close(firstStarted)
			<-releaseFirst
		}
		return int(n), nil
	}, opts)
	require.NoError(t, err)

	require.NoError(t, p.Start())
	<-firstStarted
	p.Pause()
	require.NoError(t, p.Resume())
	close(releaseFirst)

	for i := 0; i < 2; i++ {
		select {
		case <-finished:
		case <-time.After(5 * time.Second):
			t.Fatal("finishing tick blocked on the deferred hand-off")
		}
	}
	assert.Equal(t, 1, <-successes)

	close(unblock)
	select {
	case v := <-successes:
		assert.Equal(t, 2, v)
	case <-time.After(5 * time.Second):
		t.Fatal("deferred tick never ran")
	}
	p.Stop()
}

func TestTaskTimeoutCountsAsFailure(t *testing.T) {
	c := clock.NewFake(t0)
	r := &recorder{clock: c}
	opts := testOptions(c, r)
	opts.TaskTimeout = 10 * time.Millisecond
	p, err := New(func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}, opts)
	require.NoError(t, err)

	require.NoError(t, p.Start())
	require.Len(t, r.errs, 1)
	assert.True(t, errors.Is(r.errs[0], executor.ErrTaskTimeout))
}

func TestStopMetricsByReason(t *testing.T) {
	m := metrics.NewInMemoryMetrics()
	p, _, _ := newHarness(t, t0, func(o *Options[int]) { o.Metrics = m })

	require.NoError(t, p.Start())
	p.Stop()

	assert.Equal(t, int64(1), m.GetStops("test", string(StopManual)))
	assert.Equal(t, int64(1), m.GetTicks("test", "success"))
	assert.Len(t, m.GetTaskDurations("test"), 1)
}
