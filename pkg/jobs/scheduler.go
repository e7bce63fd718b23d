package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/sunup/pkg/observability"
)

// Job is one unit of scheduled work
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs jobs on cron schedules
type Scheduler struct {
	cron   *cron.Cron
	logger *observability.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler that logs through logger
func NewScheduler(logger *observability.Logger) *Scheduler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	cl := cronLogger{logger: logger.WithField("component", "cron")}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl))),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add schedules job with a standard five-field spec or a descriptor such
// as "@every 1m"
func (s *Scheduler) Add(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() { s.RunNow(s.ctx, job) })
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", job.Name(), err)
	}
	s.logger.WithFields(map[string]interface{}{
		"job":      job.Name(),
		"schedule": spec,
	}).Info("Scheduled job")
	return nil
}

// RunNow runs job once in the caller's goroutine and logs the outcome.
// Panics are recovered.
func (s *Scheduler) RunNow(ctx context.Context, job Job) {
	log := s.logger.WithField("job", job.Name())
	defer observability.RecoverPanic(log, job.Name())

	start := time.Now()
	if err := job.Run(observability.WithLogger(ctx, log)); err != nil {
		log.WithError(err).Error("Job failed")
		return
	}
	log.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("Job completed")
}

// Start starts the scheduler. Jobs run until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.cancel()
		case <-s.ctx.Done():
		}
	}()
	s.cron.Start()
}

// Stop cancels running jobs and waits for them until ctx is done
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("jobs did not stop: %w", ctx.Err())
	}
}

// cronLogger adapts the structured logger to cron.Logger
type cronLogger struct {
	logger *observability.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(keysAndValues []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return out
}
