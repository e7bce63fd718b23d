package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/observability"
	"github.com/platinummonkey/sunup/pkg/storage"
)

// LogPipelineChange logs each stage change with the names of the person and
// the acting user.
func LogPipelineChange(store *storage.Store, logger *observability.Logger) Handler {
	return func(ctx context.Context, event models.PipelineEvent) error {
		var person *models.Person
		var user *models.User
		err := store.View(ctx, func(tx *storage.Tx) error {
			var err error
			if person, err = tx.GetPerson(ctx, event.PersonID); err != nil {
				return err
			}
			user, err = tx.GetUser(ctx, event.UserID)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to load event subjects: %w", err)
		}

		from := "(none)"
		if event.FromStage != nil {
			from = *event.FromStage
		}

		logger.WithFields(map[string]interface{}{
			"event_id":   event.ID,
			"tenant_id":  event.TenantID,
			"person_id":  event.PersonID,
			"person":     person.FirstName + " " + person.LastName,
			"changed_by": user.FullName(),
			"from_stage": from,
			"to_stage":   event.ToStage,
		}).Info(fmt.Sprintf("Pipeline stage changed: %s -> %s", from, event.ToStage))
		return nil
	}
}

// RedisStreamPublisher appends events to a Redis stream for downstream consumers
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
	retry  *RetryPolicy
}

// NewRedisStreamPublisher creates a publisher. maxLen caps the stream length
// approximately; zero disables trimming.
func NewRedisStreamPublisher(client *redis.Client, stream string, maxLen int64) *RedisStreamPublisher {
	return &RedisStreamPublisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
		retry:  NewRetryPolicy(DefaultRetryConfig()),
	}
}

// Handle publishes one event
func (p *RedisStreamPublisher) Handle(ctx context.Context, event models.PipelineEvent) error {
	metadata := ""
	if len(event.Metadata) > 0 {
		data, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}
		metadata = string(data)
	}

	from := ""
	if event.FromStage != nil {
		from = *event.FromStage
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"event_id":    event.ID,
			"event_type":  event.EventType,
			"tenant_id":   event.TenantID,
			"person_id":   event.PersonID,
			"user_id":     event.UserID,
			"from_stage":  from,
			"to_stage":    event.ToStage,
			"occurred_at": event.Timestamp.UTC().Format(time.RFC3339Nano),
			"metadata":    metadata,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	return p.retry.Do(ctx, func(ctx context.Context) error {
		if err := p.client.XAdd(ctx, args).Err(); err != nil {
			return fmt.Errorf("failed to publish to stream %s: %w", p.stream, err)
		}
		return nil
	})
}

// MetricsHandler counts delivered events by type
func MetricsHandler(metrics *observability.Metrics) Handler {
	return func(ctx context.Context, event models.PipelineEvent) error {
		metrics.ObserveEvent(event.EventType, "delivered")
		return nil
	}
}
