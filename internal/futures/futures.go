// Package futures provides the deferred-execution layer for basket reads:
// futures, a synchronous executor, a fixed-size thread pool executor, and a
// resource-bound pool whose workers each own one I/O handle for the pool's
// lifetime.
package futures

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// Task is a unit of deferred work with no resource affinity.
type Task func() (any, error)

// Executor runs tasks and hands back futures for their results. The two
// implementations are TrivialExecutor (synchronous, caller's goroutine) and
// ThreadPoolExecutor (fixed worker goroutines sharing one queue).
type Executor interface {
	// Submit schedules task and returns a Future for its outcome.
	Submit(task Task) *Future

	// Shutdown stops all workers, letting queued tasks finish first.
	// It is a no-op for executors without workers.
	Shutdown()
}

// Future is the handle to one task's eventual result. It starts pending and
// settles exactly once, either with a value or with the error the task
// returned. Reading the final state is idempotent.
type Future struct {
	task   Task
	done   chan struct{}
	settle sync.Once
	value  any
	err    error
}

// newFuture wraps a task in a pending future.
func newFuture(task Task) *Future {
	return &Future{task: task, done: make(chan struct{})}
}

// Resolved returns an already-completed future carrying value. Used by the
// TrivialExecutor and for cache hits that skip fetching entirely.
func Resolved(value any) *Future {
	f := &Future{done: make(chan struct{})}
	f.complete(value, nil)
	return f
}

// complete settles the future. Later calls are no-ops.
func (f *Future) complete(value any, err error) {
	f.settle.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// run executes the task on the calling goroutine and settles the future.
// A panic in the task is captured as an error so the worker that called
// run survives and moves on to its next task.
func (f *Future) run() {
	defer func() {
		if r := recover(); r != nil {
			f.complete(nil, fmt.Errorf("task panic: %v", r))
		}
	}()
	value, err := f.task()
	f.complete(value, err)
}

// Result blocks until the future settles or ctx is done. Once settled, it
// returns the task's value or its error, verbatim, on every call.
func (f *Future) Result(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done reports whether the future has settled without blocking.
func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// TrivialExecutor runs every task synchronously on the caller's goroutine.
// It exists so that single-threaded reads use the same code path as
// multithreaded ones.
type TrivialExecutor struct{}

// Submit runs the task immediately and returns an already-settled future.
func (TrivialExecutor) Submit(task Task) *Future {
	f := newFuture(task)
	f.run()
	return f
}

// Shutdown does nothing; there are no workers to stop.
func (TrivialExecutor) Shutdown() {}

// taskQueue is an unbounded FIFO shared by a pool's workers. After close,
// push fails but pop keeps draining queued items, so work submitted before
// shutdown still runs.
type taskQueue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	closed bool
}

func newTaskQueue[T any]() *taskQueue[T] {
	q := &taskQueue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends an item. Returns false if the queue has been closed.
func (q *taskQueue[T]) push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, item)
	q.cond.Signal()
	return true
}

// pop blocks for the next item. The second return is false only when the
// queue is closed and fully drained.
func (q *taskQueue[T]) pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	item := q.items[0]
	q.items[0] = *new(T) // release the reference while waiting for more work
	q.items = q.items[1:]
	return item, true
}

// close stops intake and wakes all waiting workers.
func (q *taskQueue[T]) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Len reports the number of queued, not-yet-started items.
func (q *taskQueue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// ThreadPoolExecutor runs tasks across a fixed set of worker goroutines
// sharing one queue. Task failures settle the task's own future and leave
// the worker running.
type ThreadPoolExecutor struct {
	queue    *taskQueue[*Future]
	wg       sync.WaitGroup
	workers  int
	shutdown sync.Once
}

// NewThreadPool starts numWorkers goroutines draining a shared task queue.
// If numWorkers <= 0, the available parallelism (runtime.NumCPU) is used.
// The caller must call Shutdown when done with the pool.
func NewThreadPool(numWorkers int) *ThreadPoolExecutor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	p := &ThreadPoolExecutor{
		queue:   newTaskQueue[*Future](),
		workers: numWorkers,
	}
	p.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go p.worker()
	}
	return p
}

func (p *ThreadPoolExecutor) worker() {
	defer p.wg.Done()
	for {
		future, ok := p.queue.pop()
		if !ok {
			return
		}
		future.run()
	}
}

// NumWorkers reports the pool size.
func (p *ThreadPoolExecutor) NumWorkers() int { return p.workers }

// QueueDepth reports the number of tasks waiting for a worker.
func (p *ThreadPoolExecutor) QueueDepth() int { return p.queue.len() }

// Submit enqueues the task and returns its future without waiting for a
// worker. If the pool has been shut down the future settles immediately
// with ErrPoolClosed.
func (p *ThreadPoolExecutor) Submit(task Task) *Future {
	f := newFuture(task)
	if !p.queue.push(f) {
		f.complete(nil, ErrPoolClosed)
	}
	return f
}

// Shutdown stops intake, lets queued tasks finish, and joins every worker
// before returning. Safe to call more than once.
func (p *ThreadPoolExecutor) Shutdown() {
	p.shutdown.Do(func() {
		p.queue.close()
		p.wg.Wait()
	})
}
