package concurrency

import (
	"sync"
	"sync/atomic"
)

type poolState int

const (
	poolIdle poolState = iota
	poolStarted
	poolStopped
)

// WorkerPool bounds how many poller ticks run at once. Its Dispatch method
// plugs into poller.Options.Dispatch so every managed poller shares the limit.
type WorkerPool struct {
	maxWorkers int
	taskQueue  chan func()
	wg         sync.WaitGroup
	stopCh     chan struct{}
	state      poolState
	mu         sync.Mutex
	active     atomic.Int32
	dropped    atomic.Int64
}

// NewWorkerPool creates a new worker pool with the specified max workers
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 10 // default
	}

	return &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan func(), maxWorkers*2),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the workers. A stopped pool cannot be restarted.
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != poolIdle {
		return
	}
	p.state = poolStarted

	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			p.drain()
			return
		case task := <-p.taskQueue:
			p.run(task)
		}
	}
}

// drain runs whatever was queued before Stop
func (p *WorkerPool) drain() {
	for {
		select {
		case task := <-p.taskQueue:
			p.run(task)
		default:
			return
		}
	}
}

func (p *WorkerPool) run(task func()) {
	p.active.Add(1)
	defer p.active.Add(-1)
	task()
}

// Submit queues a task, blocking while the queue is full. Before Start the
// task runs synchronously; after Stop it is dropped and Submit returns false.
func (p *WorkerPool) Submit(task func()) bool {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()

	switch state {
	case poolIdle:
		p.run(task)
		return true
	case poolStopped:
		p.dropped.Add(1)
		return false
	}

	select {
	case <-p.stopCh:
		p.dropped.Add(1)
		return false
	case p.taskQueue <- task:
		return true
	}
}

// Dispatch has the shape of poller.Options.Dispatch
func (p *WorkerPool) Dispatch(task func()) {
	p.Submit(task)
}

// Stop refuses new tasks, lets workers finish the queued ones and waits for
// them. Tasks running on a worker may still call Submit; those are dropped.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.state != poolStarted {
		p.state = poolStopped
		p.mu.Unlock()
		return
	}
	p.state = poolStopped
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
}

// QueueLength returns the current number of tasks in the queue
func (p *WorkerPool) QueueLength() int {
	return len(p.taskQueue)
}

// Active returns how many tasks are executing right now
func (p *WorkerPool) Active() int {
	return int(p.active.Load())
}

// Dropped returns how many tasks were refused after Stop
func (p *WorkerPool) Dropped() int64 {
	return p.dropped.Load()
}

// MaxWorkers returns the maximum number of workers in the pool
func (p *WorkerPool) MaxWorkers() int {
	return p.maxWorkers
}
