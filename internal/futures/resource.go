package futures

import (
	"errors"
	"fmt"
	"sync"
)

// ErrPoolClosed is returned when work is submitted to a pool that has been
// shut down. The pool instance cannot be reused.
var ErrPoolClosed = errors.New("pool is closed")

// ErrNoResources is returned when a resource pool is constructed without
// any resources; at least one worker is required.
var ErrNoResources = errors.New("at least one resource is required")

// Resource is an exclusively-owned I/O handle. A resource is bound to one
// pool worker for the pool's lifetime and is never touched by two
// goroutines: confinement is by construction, not by locking. Close
// releases the underlying handle.
type Resource interface {
	Close() error
}

// ResourceTask is a unit of work that needs exclusive access to an I/O
// handle. The pool passes the running worker's Resource as the argument.
type ResourceTask func(resource Resource) (any, error)

// ResourceFuture is a Future whose task receives a worker's Resource when
// it runs. It additionally supports a completion-notification callback
// (used by the assembly pipeline to wake its aggregator as soon as any one
// of several futures settles) and external failure injection (used to fail
// a future without running it, e.g. when its pool is already closed).
type ResourceFuture struct {
	Future
	rtask    ResourceTask
	mu       sync.Mutex
	notify   func()
	notified bool
}

// NewResourceFuture wraps a resource task in a pending future. Submit it
// to a ResourcePool to run it.
func NewResourceFuture(task ResourceTask) *ResourceFuture {
	return &ResourceFuture{
		Future: Future{done: make(chan struct{})},
		rtask:  task,
	}
}

// ResolvedResource returns an already-settled ResourceFuture carrying
// value. Used by synchronous sources whose bytes are available without a
// worker round trip.
func ResolvedResource(value any) *ResourceFuture {
	f := &ResourceFuture{Future: Future{done: make(chan struct{})}}
	f.complete(value, nil)
	return f
}

// SetNotify installs a callback fired exactly once, after the future
// settles for any reason. If the future has already settled, the callback
// fires immediately on the calling goroutine.
func (f *ResourceFuture) SetNotify(notify func()) {
	f.mu.Lock()
	f.notify = notify
	f.mu.Unlock()
	if f.Done() {
		f.fireNotify()
	}
}

func (f *ResourceFuture) fireNotify() {
	f.mu.Lock()
	if f.notified || f.notify == nil {
		f.mu.Unlock()
		return
	}
	f.notified = true
	notify := f.notify
	f.mu.Unlock()
	notify()
}

// Fail settles the future with err without running its task. A no-op if
// the future already settled.
func (f *ResourceFuture) Fail(err error) {
	f.complete(nil, err)
	f.fireNotify()
}

// runWith executes the task with the worker's resource and settles the
// future. Panics are captured like any other task failure.
func (f *ResourceFuture) runWith(resource Resource) {
	defer func() {
		if r := recover(); r != nil {
			f.complete(nil, fmt.Errorf("task panic: %v", r))
		}
		f.fireNotify()
	}()
	value, err := f.rtask(resource)
	f.complete(value, err)
}

// ResourcePool executes ResourceFutures across one worker goroutine per
// resource. Each worker owns its resource exclusively until Close, which
// stops intake, drains the queue, joins the workers, and only then closes
// every resource.
type ResourcePool struct {
	queue     *taskQueue[*ResourceFuture]
	wg        sync.WaitGroup
	resources []Resource

	mu     sync.Mutex
	closed bool
}

// NewResourcePool starts one worker per resource. It fails fast with
// ErrNoResources when the slice is empty. The caller must call Close to
// release the resources; the usual form is
//
//	pool, err := futures.NewResourcePool(resources)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
// which guarantees release on every exit path.
func NewResourcePool(resources []Resource) (*ResourcePool, error) {
	if len(resources) == 0 {
		return nil, ErrNoResources
	}
	p := &ResourcePool{
		queue:     newTaskQueue[*ResourceFuture](),
		resources: resources,
	}
	p.wg.Add(len(resources))
	for _, resource := range resources {
		go p.worker(resource)
	}
	return p, nil
}

func (p *ResourcePool) worker(resource Resource) {
	defer p.wg.Done()
	for {
		future, ok := p.queue.pop()
		if !ok {
			return
		}
		future.runWith(resource)
	}
}

// NumWorkers reports the number of workers, which equals the number of
// resources.
func (p *ResourcePool) NumWorkers() int { return len(p.resources) }

// QueueDepth reports the number of futures waiting for a worker.
func (p *ResourcePool) QueueDepth() int { return p.queue.len() }

// Closed reports whether Close has been called.
func (p *ResourcePool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Submit enqueues the future for execution by the next free worker and
// returns it. After Close it returns ErrPoolClosed and the future is
// failed with the same error so that anyone already waiting on it wakes.
func (p *ResourcePool) Submit(future *ResourceFuture) (*ResourceFuture, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		future.Fail(ErrPoolClosed)
		return nil, ErrPoolClosed
	}
	p.queue.push(future)
	p.mu.Unlock()
	return future, nil
}

// Close stops accepting work, waits for queued futures to run, joins all
// workers, and closes every resource. The first close error is returned
// but every resource is closed regardless. Safe to call more than once.
func (p *ResourcePool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.queue.close()
	p.wg.Wait()

	var firstErr error
	for _, resource := range p.resources {
		if err := resource.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
