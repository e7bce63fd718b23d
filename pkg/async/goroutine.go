package async

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/sunup/pkg/observability"
)

// ErrPoolClosed is returned by Submit once Shutdown has started
var ErrPoolClosed = errors.New("worker pool shut down")

// SafeGo runs fn on its own goroutine with a deadline of timeout. Errors and
// panics are logged with the logger carried by parentCtx; nothing propagates
// to the caller.
//
//	SafeGo(context.WithoutCancel(ctx), 5*time.Second, "stage handler", func(ctx context.Context) error {
//	    return handler(ctx, event)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	logger := observability.FromContext(parentCtx).WithField("task", taskName)
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		if err := runTask(ctx, fn); err != nil {
			var p *panicError
			if errors.As(err, &p) {
				logger.WithFields(map[string]interface{}{
					"panic": fmt.Sprint(p.value),
					"stack": p.stack,
				}).Error("Panic in background task")
				return
			}
			logger.WithError(err).Warn("Background task failed")
		}
	}()
}

// SafeGoNoError is SafeGo for tasks that cannot fail
func SafeGoNoError(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context)) {
	SafeGo(parentCtx, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

type panicError struct {
	value interface{}
	stack string
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

// runTask calls fn and turns a panic into a *panicError
func runTask(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: string(debug.Stack())}
		}
	}()
	return fn(ctx)
}

// WorkerPool runs submitted tasks on a fixed set of goroutines. Each task gets
// its own deadline. Task errors, panics included, are reported on Errors.
type WorkerPool struct {
	name    string
	timeout time.Duration
	logger  *observability.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
	tasks  chan func(context.Context) error
	errs   chan error
	wg     sync.WaitGroup
	once   sync.Once
}

// NewWorkerPool starts workers goroutines. The pool lives until Shutdown or
// until ctx is cancelled.
//
//	pool := NewWorkerPool(ctx, 4, "audit writer", 10*time.Second)
//	defer pool.Shutdown(5 * time.Second)
func NewWorkerPool(ctx context.Context, workers int, taskName string, timeout time.Duration) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &WorkerPool{
		name:    taskName,
		timeout: timeout,
		logger:  observability.FromContext(ctx).WithField("pool", taskName),
		ctx:     ctx,
		cancel:  cancel,
		tasks:   make(chan func(context.Context) error, workers*2),
		errs:    make(chan error, workers*10),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

// Submit queues fn. It blocks while the queue is full and fails with
// ErrPoolClosed after Shutdown.
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- fn:
		return nil
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// Shutdown stops accepting tasks and waits up to timeout for the queue to
// drain. Tasks still running at the timeout see their context cancelled.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	var err error
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(timeout):
			err = fmt.Errorf("worker pool %s shutdown timed out after %v", p.name, timeout)
		}
		p.cancel()
	})
	return err
}

// Errors reports task failures. Errors are dropped, with a warning, when
// nobody reads them fast enough.
func (p *WorkerPool) Errors() <-chan error {
	return p.errs
}

func (p *WorkerPool) work() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case fn, ok := <-p.tasks:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
			err := runTask(ctx, fn)
			cancel()
			if err != nil {
				p.report(err)
			}
		}
	}
}

func (p *WorkerPool) report(err error) {
	select {
	case p.errs <- err:
	default:
		p.logger.WithError(err).Warn("Error channel full, dropping error")
	}
}

// Batch calls fn for every item with at most workers calls in flight and
// returns every error. A panicking call is reported as an error.
//
//	errs := Batch(ctx, tenants, 4, "stats refresh", 10*time.Second, func(ctx context.Context, t models.Tenant) error {
//	    return refresh(ctx, t.ID)
//	})
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {
	if workers < 1 {
		workers = 1
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, item := range items {
		g.Go(func() error {
			taskCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			if err := runTask(taskCtx, func(ctx context.Context) error { return fn(ctx, item) }); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", taskName, err))
				mu.Unlock()
			}
			// gctx must stay live for the remaining items.
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
