package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/sunup/pkg/async"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/observability"
)

// Handler reacts to a committed event
type Handler func(ctx context.Context, event models.PipelineEvent) error

// Dispatcher delivers committed events to handlers
type Dispatcher interface {
	Dispatch(ctx context.Context, event models.PipelineEvent)
}

type registration struct {
	name    string
	handler Handler
}

// Registry maps event types to handlers. It is built once at startup and
// passed to the components that dispatch events.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]registration
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewRegistry creates an empty registry. logger and metrics may be nil.
func NewRegistry(logger *observability.Logger, metrics *observability.Metrics) *Registry {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Registry{
		handlers: make(map[string][]registration),
		logger:   logger.WithField("component", "events"),
		metrics:  metrics,
	}
}

// Register adds a named handler for eventType
func (r *Registry) Register(eventType, name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = append(r.handlers[eventType], registration{name: name, handler: h})
}

// Handlers returns the names of the handlers registered for eventType
func (r *Registry) Handlers(eventType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers[eventType]))
	for _, reg := range r.handlers[eventType] {
		names = append(names, reg.name)
	}
	return names
}

// ProcessEvent runs every handler registered for the event's type
// concurrently and waits for them. A failing or panicking handler is logged
// and counted but never affects the others. It returns the number of
// handlers that failed.
func (r *Registry) ProcessEvent(ctx context.Context, event models.PipelineEvent) int {
	r.mu.RLock()
	regs := append([]registration(nil), r.handlers[event.EventType]...)
	r.mu.RUnlock()

	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures int
	)
	for _, reg := range regs {
		reg := reg
		g.Go(func() error {
			if err := r.invoke(ctx, reg, event); err != nil {
				mu.Lock()
				failures++
				mu.Unlock()

				r.metrics.ObserveHandlerFailure(event.EventType, reg.name)
				observability.FromContext(ctx).WithFields(map[string]interface{}{
					"component":  "events",
					"handler":    reg.name,
					"event_type": event.EventType,
					"event_id":   event.ID,
				}).WithError(err).Error("Event handler failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	return failures
}

// Dispatch processes the event synchronously
func (r *Registry) Dispatch(ctx context.Context, event models.PipelineEvent) {
	r.ProcessEvent(ctx, event)
}

func (r *Registry) invoke(ctx context.Context, reg registration, event models.PipelineEvent) (err error) {
	defer func() {
		if rerr := observability.MustRecover(recover()); rerr != nil {
			err = rerr
		}
	}()
	if err := reg.handler(ctx, event); err != nil {
		return fmt.Errorf("handler %s: %w", reg.name, err)
	}
	return nil
}

// AsyncDispatcher processes events in the background so the request that
// triggered them does not wait for handlers.
type AsyncDispatcher struct {
	registry *Registry
	timeout  time.Duration
}

// NewAsyncDispatcher wraps registry. Each event gets timeout to finish.
func NewAsyncDispatcher(registry *Registry, timeout time.Duration) *AsyncDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AsyncDispatcher{registry: registry, timeout: timeout}
}

// Dispatch hands the event to a background goroutine. The request context's
// cancellation is dropped; its values (logger, request id) are kept.
func (d *AsyncDispatcher) Dispatch(ctx context.Context, event models.PipelineEvent) {
	async.SafeGoNoError(context.WithoutCancel(ctx), d.timeout, "event:"+event.EventType, func(ctx context.Context) {
		d.registry.ProcessEvent(ctx, event)
	})
}
