// Package manager runs a set of named pollers side by side. It shares one
// worker pool between their ticks, restarts pollers on cron schedules and
// exposes lifecycle control by name.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ahmed-com/poller"
	"github.com/ahmed-com/poller/concurrency"
	"github.com/ahmed-com/poller/metrics"
)

var (
	ErrNotFound  = errors.New("poller not found")
	ErrDuplicate = errors.New("poller already registered")
	ErrShutdown  = errors.New("manager shut down")
)

// Config controls the shared infrastructure
type Config struct {
	// MaxConcurrentTicks bounds how many tasks run at once across all pollers
	MaxConcurrentTicks int
	// Location evaluates restart schedules; defaults to time.Local
	Location *time.Location
	Metrics  metrics.MetricsCollector
	Logger   *zap.Logger
}

// Info is a point-in-time view of one poller
type Info struct {
	Name        string        `json:"name"`
	ID          string        `json:"id"`
	Status      poller.Status `json:"status"`
	Running     bool          `json:"running"`
	RetryCount  int           `json:"retry_count"`
	Interval    string        `json:"interval"`
	Held        bool          `json:"held"`
	RestartSpec string        `json:"restart_spec,omitempty"`
	NextRestart *time.Time    `json:"next_restart,omitempty"`
}

// control erases the poller's result type
type control struct {
	start      func() error
	pause      func()
	stop       func()
	status     func() poller.Status
	running    func() bool
	retryCount func() int
	interval   func() time.Duration
	id         string
}

type entry struct {
	name        string
	ctl         control
	restartSpec string
	cronID      cron.EntryID
	held        bool // paused or stopped by an operator; restarts skip it
}

// Manager is safe for concurrent use
type Manager struct {
	pool    *concurrency.WorkerPool
	cron    *cron.Cron
	metrics metrics.MetricsCollector
	log     *zap.Logger

	mu       sync.RWMutex
	pollers  map[string]*entry
	started  bool
	shutdown bool
}

// New creates a manager. Nothing runs until Start.
func New(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoOpMetrics()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	log := cfg.Logger.Named("manager")
	clog := cronLogger{log.Named("cron")}
	return &Manager{
		pool: concurrency.NewWorkerPool(cfg.MaxConcurrentTicks),
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithParser(restartParser),
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		metrics: cfg.Metrics,
		log:     log,
		pollers: make(map[string]*entry),
	}
}

var restartParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateRestartSpec reports whether spec is an acceptable restart schedule
func ValidateRestartSpec(spec string) error {
	if _, err := restartParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid restart schedule %q: %w", spec, err)
	}
	return nil
}

// Dispatch runs a tick on the shared worker pool. Assign it to
// poller.Options.Dispatch for pollers added to this manager.
func (m *Manager) Dispatch(f func()) {
	m.pool.Dispatch(f)
}

// Add registers p under its name. A non-empty restartSpec is a cron
// expression at which the poller is started again if it is not running, so a
// poller bounded by a daily window resumes the next day.
func Add[T any](m *Manager, p *poller.Poller[T], restartSpec string) error {
	e := &entry{
		name: p.Name(),
		ctl: control{
			start:      p.Start,
			pause:      func() { p.Pause() },
			stop:       func() { p.Stop() },
			status:     p.Status,
			running:    p.Running,
			retryCount: p.RetryCount,
			interval:   p.Interval,
			id:         p.ID(),
		},
		restartSpec: restartSpec,
	}
	return m.add(e)
}

func (m *Manager) add(e *entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return ErrShutdown
	}
	if _, exists := m.pollers[e.name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, e.name)
	}

	if e.restartSpec != "" {
		name := e.name
		cronID, err := m.cron.AddFunc(e.restartSpec, func() { m.restart(name) })
		if err != nil {
			return fmt.Errorf("invalid restart schedule %q for %s: %w", e.restartSpec, e.name, err)
		}
		e.cronID = cronID
	}

	m.pollers[e.name] = e
	if m.started {
		if err := e.ctl.start(); err != nil {
			m.log.Error("Failed to start poller", zap.String("poller", e.name), zap.Error(err))
		}
	}
	m.log.Info("Poller registered", zap.String("poller", e.name), zap.String("restart", e.restartSpec))
	return nil
}

// Start starts the worker pool, the restart schedules and every registered
// poller. Pollers that fail to start are reported together; the rest run.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return ErrShutdown
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.pool.Start()
	m.cron.Start()

	var errs []error
	for _, e := range m.sortedLocked() {
		if err := e.ctl.start(); err != nil {
			m.log.Error("Failed to start poller", zap.String("poller", e.name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	m.mu.Unlock()

	m.updateMetrics()
	return errors.Join(errs...)
}

// Pause pauses the named poller and holds it against scheduled restarts
func (m *Manager) Pause(name string) error {
	e, err := m.hold(name, true)
	if err != nil {
		return err
	}
	e.ctl.pause()
	m.updateMetrics()
	return nil
}

// Resume releases the hold and starts the named poller again
func (m *Manager) Resume(name string) error {
	e, err := m.hold(name, false)
	if err != nil {
		return err
	}
	err = e.ctl.start()
	m.updateMetrics()
	return err
}

// Stop stops the named poller and holds it against scheduled restarts
func (m *Manager) Stop(name string) error {
	e, err := m.hold(name, true)
	if err != nil {
		return err
	}
	e.ctl.stop()
	m.updateMetrics()
	return nil
}

func (m *Manager) hold(name string, held bool) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return nil, ErrShutdown
	}
	e, ok := m.pollers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	e.held = held
	return e, nil
}

// restart is the cron job body
func (m *Manager) restart(name string) {
	m.mu.RLock()
	e, ok := m.pollers[name]
	skip := !ok || m.shutdown || e.held
	m.mu.RUnlock()

	if skip {
		return
	}
	if status := e.ctl.status(); status == poller.StatusRunning || status == poller.StatusWaiting {
		return
	}
	if err := e.ctl.start(); err != nil {
		m.log.Error("Scheduled restart failed", zap.String("poller", name), zap.Error(err))
		return
	}
	m.log.Info("Poller restarted on schedule", zap.String("poller", name))
	m.updateMetrics()
}

// Get returns the snapshot of one poller
func (m *Manager) Get(name string) (Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.pollers[name]
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return m.infoLocked(e), nil
}

// Snapshot returns every poller sorted by name
func (m *Manager) Snapshot() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.pollers))
	for _, e := range m.sortedLocked() {
		infos = append(infos, m.infoLocked(e))
	}
	return infos
}

func (m *Manager) infoLocked(e *entry) Info {
	info := Info{
		Name:        e.name,
		ID:          e.ctl.id,
		Status:      e.ctl.status(),
		Running:     e.ctl.running(),
		RetryCount:  e.ctl.retryCount(),
		Interval:    e.ctl.interval().String(),
		Held:        e.held,
		RestartSpec: e.restartSpec,
	}
	if e.cronID != 0 {
		if next := m.cron.Entry(e.cronID).Next; !next.IsZero() {
			info.NextRestart = &next
		}
	}
	return info
}

func (m *Manager) sortedLocked() []*entry {
	entries := make([]*entry, 0, len(m.pollers))
	for _, e := range m.pollers {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	return entries
}

// updateMetrics refreshes the running and paused gauges
func (m *Manager) updateMetrics() {
	m.mu.RLock()
	running, paused := 0, 0
	for _, e := range m.pollers {
		switch e.ctl.status() {
		case poller.StatusRunning, poller.StatusWaiting:
			running++
		case poller.StatusPaused:
			paused++
		}
	}
	m.mu.RUnlock()

	m.metrics.SetPollersRunning(running)
	m.metrics.SetPollersPaused(paused)
}

// Shutdown stops the restart schedules and every poller, then drains the
// worker pool. Ticks still running when timeout elapses are abandoned.
func (m *Manager) Shutdown(timeout time.Duration) error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	entries := m.sortedLocked()
	m.mu.Unlock()

	cronCtx := m.cron.Stop()
	for _, e := range entries {
		if e.ctl.status() != poller.StatusStopped {
			e.ctl.stop()
		}
	}

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		m.pool.Stop()
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	select {
	case <-done:
		m.updateMetrics()
		m.log.Info("Manager shut down", zap.Int("pollers", len(entries)))
		return nil
	case <-ctx.Done():
		m.log.Warn("Shutdown timed out with ticks still running", zap.Int("active", m.pool.Active()))
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

// cronLogger routes robfig/cron logging through zap
type cronLogger struct {
	log *zap.Logger
}

func cronFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields = append(fields, zap.Any(key, keysAndValues[i+1]))
		}
	}
	return fields
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, cronFields(keysAndValues...)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(cronFields(keysAndValues...), zap.Error(err))...)
}
