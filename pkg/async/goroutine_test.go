package async

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/sunup/pkg/observability"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func loggingContext() (context.Context, *syncBuffer) {
	out := &syncBuffer{}
	logger := observability.NewLogger(observability.DebugLevel, out)
	return observability.WithLogger(context.Background(), logger), out
}

func TestSafeGoRunsTask(t *testing.T) {
	done := make(chan struct{})
	SafeGo(context.Background(), time.Second, "test task", func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SafeGo did not execute function")
	}
}

func TestSafeGoLogsErrorsAndPanics(t *testing.T) {
	ctx, out := loggingContext()

	SafeGo(ctx, time.Second, "failing task", func(ctx context.Context) error {
		return errors.New("handler exploded")
	})
	SafeGo(ctx, time.Second, "panicking task", func(ctx context.Context) error {
		panic("boom")
	})

	assert.Eventually(t, func() bool {
		s := out.String()
		return bytes.Contains([]byte(s), []byte("handler exploded")) &&
			bytes.Contains([]byte(s), []byte("Panic in background task"))
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), `"task":"panicking task"`)
}

func TestSafeGoTimeout(t *testing.T) {
	cancelled := make(chan struct{})
	SafeGo(context.Background(), 20*time.Millisecond, "slow task", func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("task context was not cancelled at the timeout")
	}
}

func TestSafeGoNoError(t *testing.T) {
	done := make(chan struct{})
	SafeGoNoError(context.Background(), time.Second, "no error", func(ctx context.Context) {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SafeGoNoError did not execute function")
	}
}

func TestWorkerPoolProcessesAllTasks(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 3, "test pool", time.Second)

	var count atomic.Int32
	for i := 0; i < 20; i++ {
		require.NoError(t, pool.Submit(func(ctx context.Context) error {
			count.Add(1)
			return nil
		}))
	}

	require.NoError(t, pool.Shutdown(5*time.Second))
	assert.Equal(t, int32(20), count.Load())

	assert.Error(t, pool.Submit(func(ctx context.Context) error { return nil }), "submit after shutdown")
}

func TestWorkerPoolCollectsErrorsAndPanics(t *testing.T) {
	ctx, _ := loggingContext()
	pool := NewWorkerPool(ctx, 2, "test pool", time.Second)

	require.NoError(t, pool.Submit(func(ctx context.Context) error { return errors.New("task failed") }))
	require.NoError(t, pool.Submit(func(ctx context.Context) error { panic("task panicked") }))
	require.NoError(t, pool.Shutdown(5*time.Second))

	var errs []string
	for len(errs) < 2 {
		select {
		case err := <-pool.Errors():
			errs = append(errs, err.Error())
		case <-time.After(time.Second):
			t.Fatalf("expected 2 errors, got %v", errs)
		}
	}
	assert.ElementsMatch(t, []string{"task failed", "panic: task panicked"}, errs)
}

func TestBatch(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	var sum atomic.Int64

	errs := Batch(context.Background(), items, 2, "sum", time.Second, func(ctx context.Context, n int) error {
		sum.Add(int64(n))
		if n%2 == 0 {
			return errors.New("even")
		}
		return nil
	})

	assert.Equal(t, int64(15), sum.Load())
	assert.Len(t, errs, 2)
}

func TestBatchRecoversPanics(t *testing.T) {
	errs := Batch(context.Background(), []string{"ok", "bad"}, 4, "tenants", time.Second, func(ctx context.Context, s string) error {
		if s == "bad" {
			panic("nil settings")
		}
		return nil
	})

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "tenants: panic: nil settings")
}

func TestBatchEmpty(t *testing.T) {
	assert.Empty(t, Batch(context.Background(), []int(nil), 2, "none", time.Second, func(context.Context, int) error {
		t.Fatal("called")
		return nil
	}))
}

func TestWorkerPoolCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewWorkerPool(ctx, 1, "cancelled", time.Second)
	cancel()

	assert.Eventually(t, func() bool {
		// Fill the queue; once the workers are gone Submit reports the pool closed.
		return errors.Is(pool.Submit(func(context.Context) error { return nil }), ErrPoolClosed)
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, pool.Shutdown(time.Second))
}
