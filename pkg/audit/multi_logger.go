package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/sunup/pkg/async"
	"github.com/platinummonkey/sunup/pkg/observability"
)

// MultiLogger fans events out to several loggers. In async mode events are
// written by a worker pool and Log never blocks on the audit store.
type MultiLogger struct {
	loggers []Logger
	pool    *async.WorkerPool
	logger  *observability.Logger

	drainTimeout time.Duration
}

// NewMultiLogger creates a synchronous multi-logger
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{
		loggers: loggers,
		logger:  observability.GetLogger(context.Background()),
	}
}

// NewAsyncMultiLogger creates a multi-logger backed by a worker pool. Write
// failures are logged and dropped.
func NewAsyncMultiLogger(ctx context.Context, workers int, timeout time.Duration, loggers ...Logger) *MultiLogger {
	m := NewMultiLogger(loggers...)
	m.logger = observability.FromContext(ctx).WithField("component", "audit")
	m.pool = async.NewWorkerPool(ctx, workers, "audit-writer", timeout)
	m.drainTimeout = timeout
	return m
}

// Log logs an audit event to all configured loggers
func (m *MultiLogger) Log(ctx context.Context, event *AuditEvent) error {
	if len(m.loggers) == 0 {
		return nil
	}

	if m.pool == nil {
		return m.logSync(ctx, event)
	}

	// The request context is usually cancelled before the pool gets to run.
	detached := context.WithoutCancel(ctx)
	err := m.pool.Submit(func(taskCtx context.Context) error {
		if err := m.logSync(detached, event); err != nil {
			m.logger.WithError(err).WithField("event_type", string(event.EventType)).Warn("Failed to write audit event")
		}
		return nil
	})
	if err != nil {
		m.logger.WithError(err).WithField("event_type", string(event.EventType)).Warn("Dropped audit event")
	}
	return nil
}

func (m *MultiLogger) logSync(ctx context.Context, event *AuditEvent) error {
	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close drains pending events and closes all loggers
func (m *MultiLogger) Close() error {
	var firstErr error
	if m.pool != nil {
		firstErr = m.pool.Shutdown(m.drainTimeout)
	}

	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close logger: %w", err)
		}
	}
	return firstErr
}
