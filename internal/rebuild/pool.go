// Package rebuild runs cache rebuilds off the request path on a fixed set of
// workers fed by a bounded queue. A full queue rejects work instead of
// blocking the caller.
package rebuild

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrPanic marks the error reported for a task that panicked.
var ErrPanic = errors.New("rebuild: task panicked")

// Task does one rebuild. ctx carries the per-task deadline.
type Task func(ctx context.Context) error

// Result describes a finished task.
type Result struct {
	Key      string
	Err      error
	Duration time.Duration
}

type Stats struct {
	Workers   int
	Pending   int
	Active    int64
	Completed int64
	Failed    int64
	Rejected  int64
}

type job struct {
	key string
	fn  Task
}

type Pool struct {
	workers  int
	timeout  time.Duration
	q        chan job
	onResult func(Result)

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	once   sync.Once

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// New starts workers goroutines reading from a queue of qlen slots.
// timeout <= 0 means tasks run without a deadline. onResult, if set, is
// called from the worker goroutine after every task.
func New(workers, qlen int, timeout time.Duration, onResult func(Result)) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = workers
	}
	p := &Pool{
		workers:  workers,
		timeout:  timeout,
		q:        make(chan job, qlen),
		onResult: onResult,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// TrySubmit queues fn under key for diagnostics. It reports false when the
// queue is full or the pool is closed; the task is then never run.
func (p *Pool) TrySubmit(key string, fn Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.rejected.Add(1)
		return false
	}
	select {
	case p.q <- job{key: key, fn: fn}:
		return true
	default:
		p.rejected.Add(1)
		return false
	}
}

// Close stops intake and waits for queued tasks to finish.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.q)
		p.mu.Unlock()
		p.wg.Wait()
	})
}

func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Pending:   len(p.q),
		Active:    p.active.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.q {
		p.run(j)
	}
}

func (p *Pool) run(j job) {
	p.active.Add(1)
	defer p.active.Add(-1)

	ctx := context.Background()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	err := p.call(ctx, j.fn)
	if err != nil {
		p.failed.Add(1)
	} else {
		p.completed.Add(1)
	}
	if p.onResult != nil {
		p.onResult(Result{Key: j.key, Err: err, Duration: time.Since(start)})
	}
}

// call keeps one panicking task from taking down its worker.
func (p *Pool) call(ctx context.Context, fn Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Mark(errors.Newf("rebuild: panic: %v", r), ErrPanic)
		}
	}()
	return fn(ctx)
}
