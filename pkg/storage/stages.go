package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/models"
)

const stageColumns = `id, name, stage_order, category, description, is_active, tenant_id, created_at`

// CreateStage inserts a pipeline stage
func (t *Tx) CreateStage(ctx context.Context, s *models.PipelineStage) error {
	s.ID = uuid.NewString()
	s.CreatedAt = now()

	_, err := t.q.ExecContext(ctx, `
		INSERT INTO pipeline_stages (id, name, stage_order, category, description, is_active, tenant_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.ID, s.Name, s.Order, string(s.Category), nullString(models.StringPtr(s.Description)), s.IsActive, s.TenantID, s.CreatedAt)
	if err != nil {
		return wrapWriteErr("failed to create pipeline stage", err)
	}
	return nil
}

// GetStage returns a stage by ID regardless of tenant
func (t *Tx) GetStage(ctx context.Context, id string) (*models.PipelineStage, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+stageColumns+` FROM pipeline_stages WHERE id = $1`, id)
	return t.oneStage(row)
}

// GetStageByName returns a tenant's stage by name, active or not
func (t *Tx) GetStageByName(ctx context.Context, tenantID, name string) (*models.PipelineStage, error) {
	row := t.q.QueryRowContext(ctx,
		`SELECT `+stageColumns+` FROM pipeline_stages WHERE tenant_id = $1 AND name = $2`, tenantID, name)
	return t.oneStage(row)
}

func (t *Tx) oneStage(row *sql.Row) (*models.PipelineStage, error) {
	s, err := scanStage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("pipeline stage")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pipeline stage: %w", err)
	}
	return s, nil
}

// ListStages returns a tenant's stages sorted by order ascending
func (t *Tx) ListStages(ctx context.Context, tenantID string, includeInactive bool) ([]models.PipelineStage, error) {
	query := `SELECT ` + stageColumns + ` FROM pipeline_stages WHERE tenant_id = $1`
	if !includeInactive {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY stage_order, name`

	rows, err := t.q.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline stages: %w", err)
	}
	defer rows.Close()

	stages := []models.PipelineStage{}
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pipeline stage: %w", err)
		}
		stages = append(stages, *s)
	}
	return stages, rows.Err()
}

// SetStageOrder changes a stage's position
func (t *Tx) SetStageOrder(ctx context.Context, id string, order int) error {
	res, err := t.q.ExecContext(ctx, `UPDATE pipeline_stages SET stage_order = $1 WHERE id = $2`, order, id)
	if err != nil {
		return fmt.Errorf("failed to update pipeline stage order: %w", err)
	}
	return expectOneRow(res, "pipeline stage")
}

// SetStageActive activates or deactivates a stage
func (t *Tx) SetStageActive(ctx context.Context, id string, active bool) error {
	res, err := t.q.ExecContext(ctx, `UPDATE pipeline_stages SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update pipeline stage: %w", err)
	}
	return expectOneRow(res, "pipeline stage")
}

func scanStage(row rowScanner) (*models.PipelineStage, error) {
	var (
		s           models.PipelineStage
		category    string
		description sql.NullString
	)
	err := row.Scan(&s.ID, &s.Name, &s.Order, &category, &description, &s.IsActive, &s.TenantID, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.Category = models.StageCategory(category)
	s.Description = description.String
	return &s, nil
}
