package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/sunup/pkg/models"
)

// InsertEvent appends one immutable pipeline event row
func (t *Tx) InsertEvent(ctx context.Context, e *models.PipelineEvent) error {
	var metadata sql.NullString
	if len(e.Metadata) > 0 {
		data, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	e.ID = uuid.NewString()
	if e.Timestamp.IsZero() {
		e.Timestamp = now()
	}

	_, err := t.q.ExecContext(ctx, `
		INSERT INTO person_pipeline_events (id, tenant_id, person_id, user_id, occurred_at, from_stage, to_stage, event_type, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.TenantID, e.PersonID, e.UserID, e.Timestamp, nullString(e.FromStage), e.ToStage, e.EventType, metadata)
	if err != nil {
		return wrapWriteErr("failed to insert pipeline event", err)
	}
	return nil
}

// ListEvents returns a person's events in a tenant, oldest first
func (t *Tx) ListEvents(ctx context.Context, tenantID, personID string) ([]models.PipelineEvent, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT id, tenant_id, person_id, user_id, occurred_at, from_stage, to_stage, event_type, metadata
		FROM person_pipeline_events
		WHERE tenant_id = $1 AND person_id = $2
		ORDER BY occurred_at, id
	`, tenantID, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline events: %w", err)
	}
	defer rows.Close()

	var events []models.PipelineEvent
	for rows.Next() {
		var (
			e              models.PipelineEvent
			from, metadata sql.NullString
		)
		err := rows.Scan(&e.ID, &e.TenantID, &e.PersonID, &e.UserID, &e.Timestamp, &from, &e.ToStage, &e.EventType, &metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pipeline event: %w", err)
		}
		e.FromStage = stringPtr(from)
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
