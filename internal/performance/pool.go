// Package performance runs independent work concurrently.
package performance

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool runs submitted tasks on a fixed number of goroutines.
type Pool struct {
	workers int
	tasks   chan func()
	mu      sync.RWMutex
	wg      sync.WaitGroup
	running atomic.Bool

	submitted atomic.Uint64
	completed atomic.Uint64
}

// NewPool creates a pool. If workers is 0, it defaults to runtime.NumCPU().
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		workers: workers,
		tasks:   make(chan func(), workers*4),
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running.Swap(true) {
		return
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
		p.completed.Add(1)
	}
}

// Submit queues a task, blocking while the queue is full. It returns false
// if the pool is not running or ctx is done first.
func (p *Pool) Submit(ctx context.Context, task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running.Load() {
		return false
	}
	select {
	case p.tasks <- task:
		p.submitted.Add(1)
		return true
	case <-ctx.Done():
		return false
	}
}

// Stop runs the queued tasks to completion and stops the workers.
// A stopped pool cannot be restarted.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running.Swap(false) {
		p.mu.Unlock()
		return
	}
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:   p.workers,
		Running:   p.running.Load(),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		QueueLen:  len(p.tasks),
	}
}

// PoolStats contains pool statistics.
type PoolStats struct {
	Workers   int
	Running   bool
	Submitted uint64
	Completed uint64
	QueueLen  int
}

// Map applies fn to every item on a pool of workers and returns the results
// in input order. The first error cancels the remaining work and is returned.
func Map[T, R any](ctx context.Context, workers int, items []T, fn func(context.Context, T) (R, error)) ([]R, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]R, len(items))
	var (
		once     sync.Once
		firstErr error
	)

	pool := NewPool(workers)
	pool.Start()
	for i, item := range items {
		i, item := i, item
		ok := pool.Submit(ctx, func() {
			if ctx.Err() != nil {
				return
			}
			r, err := fn(ctx, item)
			if err != nil {
				once.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}
			results[i] = r
		})
		if !ok {
			break
		}
	}
	pool.Stop()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
