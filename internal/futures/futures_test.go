package futures

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTrivialExecutorRunsSynchronously(t *testing.T) {
	var ran bool
	f := TrivialExecutor{}.Submit(func() (any, error) {
		ran = true
		return 42, nil
	})

	if !ran {
		t.Fatal("task should have run before Submit returned")
	}
	if !f.Done() {
		t.Fatal("future should already be settled")
	}

	v, err := f.Result(context.Background())
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if v.(int) != 42 {
		t.Errorf("Result = %v, want 42", v)
	}
}

func TestResolvedFuture(t *testing.T) {
	f := Resolved("hello")
	for i := 0; i < 3; i++ {
		v, err := f.Result(context.Background())
		if err != nil {
			t.Fatalf("Result failed: %v", err)
		}
		if v.(string) != "hello" {
			t.Errorf("Result = %v, want hello", v)
		}
	}
}

func TestThreadPoolRunsAllTasks(t *testing.T) {
	pool := NewThreadPool(4)
	defer pool.Shutdown()

	const n = 100
	futures := make([]*Future, n)
	for i := 0; i < n; i++ {
		i := i
		futures[i] = pool.Submit(func() (any, error) {
			return i * 2, nil
		})
	}

	for i, f := range futures {
		v, err := f.Result(context.Background())
		if err != nil {
			t.Fatalf("task %d failed: %v", i, err)
		}
		if v.(int) != i*2 {
			t.Errorf("task %d = %v, want %d", i, v, i*2)
		}
	}
}

func TestThreadPoolErrorTransport(t *testing.T) {
	pool := NewThreadPool(2)
	defer pool.Shutdown()

	boom := errors.New("boom")
	failed := pool.Submit(func() (any, error) {
		return nil, boom
	})

	// The error surfaces on the caller's goroutine, identical to the
	// error the task returned.
	if _, err := failed.Result(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Result error = %v, want %v", err, boom)
	}

	// The worker that hit the failure keeps serving the queue.
	ok := pool.Submit(func() (any, error) { return "still alive", nil })
	v, err := ok.Result(context.Background())
	if err != nil {
		t.Fatalf("follow-up task failed: %v", err)
	}
	if v.(string) != "still alive" {
		t.Errorf("follow-up task = %v", v)
	}
}

func TestThreadPoolTaskPanicIsCaptured(t *testing.T) {
	pool := NewThreadPool(1)
	defer pool.Shutdown()

	f := pool.Submit(func() (any, error) {
		panic("kaboom")
	})
	if _, err := f.Result(context.Background()); err == nil {
		t.Fatal("expected an error from a panicking task")
	}

	// Worker survived the panic.
	ok := pool.Submit(func() (any, error) { return 1, nil })
	if _, err := ok.Result(context.Background()); err != nil {
		t.Fatalf("worker did not survive panic: %v", err)
	}
}

func TestThreadPoolDefaultSize(t *testing.T) {
	pool := NewThreadPool(0)
	defer pool.Shutdown()
	if pool.NumWorkers() < 1 {
		t.Errorf("NumWorkers = %d, want >= 1", pool.NumWorkers())
	}
}

func TestThreadPoolShutdownDrainsQueue(t *testing.T) {
	pool := NewThreadPool(1)

	var count atomic.Int64
	var futures []*Future
	for i := 0; i < 20; i++ {
		futures = append(futures, pool.Submit(func() (any, error) {
			count.Add(1)
			return nil, nil
		}))
	}
	pool.Shutdown()

	if got := count.Load(); got != 20 {
		t.Errorf("ran %d tasks before shutdown returned, want 20", got)
	}
	for _, f := range futures {
		if !f.Done() {
			t.Error("future left unsettled after Shutdown")
		}
	}
}

func TestThreadPoolSubmitAfterShutdown(t *testing.T) {
	pool := NewThreadPool(1)
	pool.Shutdown()

	f := pool.Submit(func() (any, error) { return nil, nil })
	if _, err := f.Result(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Result error = %v, want ErrPoolClosed", err)
	}
}

func TestFutureResultTimeout(t *testing.T) {
	pool := NewThreadPool(1)
	defer pool.Shutdown()

	// Closed before Shutdown runs so the worker is never left blocked.
	release := make(chan struct{})
	defer close(release)

	f := pool.Submit(func() (any, error) {
		<-release
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.Result(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Result error = %v, want deadline exceeded", err)
	}
}

func TestFutureResultIsIdempotent(t *testing.T) {
	pool := NewThreadPool(2)
	defer pool.Shutdown()

	f := pool.Submit(func() (any, error) { return []int{1, 2, 3}, nil })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := f.Result(context.Background())
			if err != nil {
				t.Errorf("Result failed: %v", err)
				return
			}
			if len(v.([]int)) != 3 {
				t.Errorf("Result = %v", v)
			}
		}()
	}
	wg.Wait()
}
