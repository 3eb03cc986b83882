package pool

import (
	"errors"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned when submitting to an Executor that was shut down.
var ErrClosed = errors.New("pool: executor closed")

// Executor runs submitted tasks on a fixed number of goroutines. Tasks
// carry no ordering guarantee; callers that need ordered results collect
// them through their own channels.
type Executor struct {
	workers int
	tasks   chan func()
	g       errgroup.Group

	mu     sync.RWMutex
	closed bool
}

// NewExecutor starts an Executor with the given number of workers.
// workers <= 0 selects GOMAXPROCS.
func NewExecutor(workers int) *Executor {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	e := &Executor{
		workers: workers,
		tasks:   make(chan func(), 2*workers),
	}
	e.g.SetLimit(workers)
	for i := 0; i < workers; i++ {
		e.g.Go(func() error {
			for task := range e.tasks {
				task()
			}
			return nil
		})
	}
	return e
}

// Workers returns the number of worker goroutines.
func (e *Executor) Workers() int { return e.workers }

// Submit queues task for execution, blocking while the queue is full.
func (e *Executor) Submit(task func()) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	e.tasks <- task
	return nil
}

// Shutdown stops accepting tasks and waits for queued ones to finish.
// It is safe to call more than once.
func (e *Executor) Shutdown() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.tasks)
	e.mu.Unlock()
	e.g.Wait()
}

// shared is the process-wide Executor, created on first Acquire and shut
// down when the last reference is released.
var shared struct {
	mu      sync.Mutex
	exec    *Executor
	refs    int
	workers int
}

// SetSharedWorkers sets the worker count used the next time the shared
// Executor is created. n <= 0 selects GOMAXPROCS.
func SetSharedWorkers(n int) {
	shared.mu.Lock()
	shared.workers = n
	shared.mu.Unlock()
}

// Acquire returns the shared Executor, creating it if needed. Every
// Acquire must be paired with a Release.
func Acquire() *Executor {
	shared.mu.Lock()
	defer shared.mu.Unlock()
	if shared.exec == nil {
		shared.exec = NewExecutor(shared.workers)
	}
	shared.refs++
	return shared.exec
}

// Release drops a reference taken by Acquire. The last release shuts the
// shared Executor down.
func Release() {
	shared.mu.Lock()
	if shared.refs == 0 {
		shared.mu.Unlock()
		return
	}
	shared.refs--
	var exec *Executor
	if shared.refs == 0 {
		exec = shared.exec
		shared.exec = nil
	}
	shared.mu.Unlock()
	if exec != nil {
		exec.Shutdown()
	}
}
