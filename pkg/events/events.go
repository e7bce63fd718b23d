package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/observability"
)

// EventTypeStageChanged is recorded for every pipeline stage transition
const EventTypeStageChanged = "pipeline.stage_changed"

// Payload describes a stage change to record
type Payload struct {
	PersonID  string
	FromStage *string
	ToStage   string
	Reason    *string
}

// Writer persists event rows; *storage.Tx implements it
type Writer interface {
	InsertEvent(ctx context.Context, e *models.PipelineEvent) error
}

// Emitter records pipeline events inside the triggering transaction
type Emitter interface {
	EmitPipelineEvent(ctx context.Context, w Writer, tenantID, userID string, p Payload) (*models.PipelineEvent, error)
}

// DBEmitter writes one row per event to person_pipeline_events
type DBEmitter struct {
	metrics *observability.Metrics
}

// NewDBEmitter creates an emitter. metrics may be nil.
func NewDBEmitter(metrics *observability.Metrics) *DBEmitter {
	return &DBEmitter{metrics: metrics}
}

// EmitPipelineEvent validates the payload and inserts the event row. The
// reason, when present, is stored as {"reason": ...} metadata.
func (e *DBEmitter) EmitPipelineEvent(ctx context.Context, w Writer, tenantID, userID string, p Payload) (*models.PipelineEvent, error) {
	if strings.TrimSpace(p.PersonID) == "" {
		return nil, apperr.Validation("personId is required")
	}
	if strings.TrimSpace(p.ToStage) == "" {
		return nil, apperr.Validation("toStage is required")
	}

	event := &models.PipelineEvent{
		TenantID:  tenantID,
		PersonID:  p.PersonID,
		UserID:    userID,
		FromStage: p.FromStage,
		ToStage:   p.ToStage,
		EventType: EventTypeStageChanged,
	}
	if p.Reason != nil && *p.Reason != "" {
		event.Metadata = map[string]interface{}{"reason": *p.Reason}
	}

	if err := w.InsertEvent(ctx, event); err != nil {
		e.metrics.ObserveEvent(EventTypeStageChanged, "failed")
		return nil, fmt.Errorf("failed to record %s event: %w", EventTypeStageChanged, err)
	}

	e.metrics.ObserveEvent(EventTypeStageChanged, "recorded")
	return event, nil
}
