package metrics

import (
	"sync"
	"time"
)

// MetricsCollector defines the interface for collecting poller metrics
type MetricsCollector interface {
	// Gauges - current state
	SetPollersRunning(count int)
	SetPollersPaused(count int)

	// Counters - event tracking
	IncTicks(pollerName, status string)
	IncStops(pollerName, reason string)

	// Histograms - duration tracking
	ObserveTaskDuration(pollerName string, duration time.Duration)
	ObserveDelay(pollerName string, delay time.Duration)

	// Query methods for testing and monitoring
	GetPollersRunning() int
	GetPollersPaused() int
	GetTicks(pollerName, status string) int64
	GetStops(pollerName, reason string) int64
}

// NoOpMetrics is a metrics collector that does nothing
type NoOpMetrics struct{}

func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

func (m *NoOpMetrics) SetPollersRunning(count int)                                    {}
func (m *NoOpMetrics) SetPollersPaused(count int)                                     {}
func (m *NoOpMetrics) IncTicks(pollerName, status string)                             {}
func (m *NoOpMetrics) IncStops(pollerName, reason string)                             {}
func (m *NoOpMetrics) ObserveTaskDuration(pollerName string, duration time.Duration) {}
func (m *NoOpMetrics) ObserveDelay(pollerName string, delay time.Duration)           {}
func (m *NoOpMetrics) GetPollersRunning() int                                         { return 0 }
func (m *NoOpMetrics) GetPollersPaused() int                                          { return 0 }
func (m *NoOpMetrics) GetTicks(pollerName, status string) int64                       { return 0 }
func (m *NoOpMetrics) GetStops(pollerName, reason string) int64                       { return 0 }

// InMemoryMetrics is a simple in-memory metrics collector for testing and basic monitoring
type InMemoryMetrics struct {
	mu sync.RWMutex

	pollersRunning int
	pollersPaused  int

	ticks map[string]int64 // key: "poller:status"
	stops map[string]int64 // key: "poller:reason"

	taskDurations map[string][]time.Duration
	delays        map[string][]time.Duration
}

func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		ticks:         make(map[string]int64),
		stops:         make(map[string]int64),
		taskDurations: make(map[string][]time.Duration),
		delays:        make(map[string][]time.Duration),
	}
}

// Gauges
func (m *InMemoryMetrics) SetPollersRunning(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollersRunning = count
}

func (m *InMemoryMetrics) SetPollersPaused(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollersPaused = count
}

func (m *InMemoryMetrics) GetPollersRunning() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pollersRunning
}

func (m *InMemoryMetrics) GetPollersPaused() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pollersPaused
}

// Counters
func (m *InMemoryMetrics) IncTicks(pollerName, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks[pollerName+":"+status]++
}

func (m *InMemoryMetrics) IncStops(pollerName, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops[pollerName+":"+reason]++
}

func (m *InMemoryMetrics) GetTicks(pollerName, status string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ticks[pollerName+":"+status]
}

func (m *InMemoryMetrics) GetStops(pollerName, reason string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stops[pollerName+":"+reason]
}

// Histograms
func (m *InMemoryMetrics) ObserveTaskDuration(pollerName string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taskDurations[pollerName] = append(m.taskDurations[pollerName], duration)
}

func (m *InMemoryMetrics) ObserveDelay(pollerName string, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[pollerName] = append(m.delays[pollerName], delay)
}

// GetTaskDurations returns a copy of the observed task durations for a poller
func (m *InMemoryMetrics) GetTaskDurations(pollerName string) []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyDurations(m.taskDurations[pollerName])
}

// GetDelays returns a copy of the scheduled delays for a poller
func (m *InMemoryMetrics) GetDelays(pollerName string) []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyDurations(m.delays[pollerName])
}

// Reset clears all metrics (useful for testing)
func (m *InMemoryMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollersRunning = 0
	m.pollersPaused = 0
	m.ticks = make(map[string]int64)
	m.stops = make(map[string]int64)
	m.taskDurations = make(map[string][]time.Duration)
	m.delays = make(map[string][]time.Duration)
}

func copyDurations(durations []time.Duration) []time.Duration {
	result := make([]time.Duration, len(durations))
	copy(result, durations)
	return result
}
