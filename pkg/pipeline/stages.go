package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/audit"
	"github.com/platinummonkey/sunup/pkg/config"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/observability"
	"github.com/platinummonkey/sunup/pkg/rbac"
	"github.com/platinummonkey/sunup/pkg/storage"
)

// NewStage is the input to AddPipelineStage
type NewStage struct {
	Name        string               `json:"name"`
	Order       int                  `json:"order"`
	Category    models.StageCategory `json:"category"`
	Description string               `json:"description,omitempty"`
}

// StageOrder assigns a new order to one stage
type StageOrder struct {
	StageID string `json:"stage_id"`
	Order   int    `json:"order"`
}

// GetPipelineStageOrder returns the caller's stages sorted by order
func (s *Service) GetPipelineStageOrder(ctx context.Context, includeInactive bool) ([]models.PipelineStage, error) {
	var stages []models.PipelineStage
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.ResolveCaller(ctx, tx)
		if err != nil {
			return err
		}
		stages, err = tx.ListStages(ctx, caller.TenantID, includeInactive)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stages, nil
}

// GetPipelineStageByName returns one of the caller's stages, active or not
func (s *Service) GetPipelineStageByName(ctx context.Context, name string) (*models.PipelineStage, error) {
	var stage *models.PipelineStage
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.ResolveCaller(ctx, tx)
		if err != nil {
			return err
		}
		stage, err = tx.GetStageByName(ctx, caller.TenantID, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stage, nil
}

// AddPipelineStage creates a stage in the caller's tenant. Name and order
// must be unique among the tenant's active and inactive stages.
func (s *Service) AddPipelineStage(ctx context.Context, in NewStage) (*models.PipelineStage, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("stage name is required")
	}
	if in.Order < 1 {
		return nil, apperr.Validation("stage order must be a positive integer")
	}
	if in.Category == "" {
		in.Category = models.CategorySales
	}
	if !in.Category.Valid() {
		return nil, apperr.Validation("invalid stage category %q", in.Category)
	}

	var stage *models.PipelineStage
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.RequireRole(ctx, tx, rbac.RoleSystemAdmin)
		if err != nil {
			return err
		}
		ctx := caller.Bind(ctx)

		existing, err := tx.ListStages(ctx, caller.TenantID, true)
		if err != nil {
			return err
		}
		for _, st := range existing {
			if strings.EqualFold(st.Name, name) {
				return apperr.Validation("stage %q already exists", name)
			}
			if st.Order == in.Order {
				return apperr.Validation("stage order %d is already used by %q", in.Order, st.Name)
			}
		}

		stage = &models.PipelineStage{
			Name:        name,
			Order:       in.Order,
			Category:    in.Category,
			Description: in.Description,
			IsActive:    true,
			TenantID:    caller.TenantID,
		}
		if err := tx.CreateStage(ctx, stage); err != nil {
			return err
		}

		s.auditAfterCommit(ctx, tx, audit.EventTypeDataStageCreate, stage.ID, "Pipeline stage created: "+stage.Name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stage, nil
}

// ReorderPipelineStages applies new orders to the given stages. Orders of the
// resulting stage set, inactive stages included, must be positive and unique.
func (s *Service) ReorderPipelineStages(ctx context.Context, updates []StageOrder) ([]models.PipelineStage, error) {
	if len(updates) == 0 {
		return nil, apperr.Validation("at least one stage order is required")
	}

	var result []models.PipelineStage
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.RequireRole(ctx, tx, rbac.RoleSystemAdmin)
		if err != nil {
			return err
		}
		ctx := caller.Bind(ctx)

		existing, err := tx.ListStages(ctx, caller.TenantID, true)
		if err != nil {
			return err
		}

		orders := make(map[string]int, len(existing))
		names := make(map[string]string, len(existing))
		for _, st := range existing {
			orders[st.ID] = st.Order
			names[st.ID] = st.Name
		}

		seen := make(map[string]bool, len(updates))
		for _, u := range updates {
			if seen[u.StageID] {
				return apperr.Validation("stage %s listed more than once", u.StageID)
			}
			seen[u.StageID] = true

			if _, ok := orders[u.StageID]; !ok {
				stage, err := tx.GetStage(ctx, u.StageID)
				if err != nil {
					return err
				}
				return caller.TenantScope().CheckWrite("pipeline stage", stage.TenantID)
			}
			if u.Order < 1 {
				return apperr.Validation("stage order must be a positive integer")
			}
			orders[u.StageID] = u.Order
		}

		used := make(map[int]string, len(orders))
		for id, order := range orders {
			if other, ok := used[order]; ok {
				return apperr.Validation("stages %q and %q would share order %d", other, names[id], order)
			}
			used[order] = names[id]
		}

		for _, u := range updates {
			if err := tx.SetStageOrder(ctx, u.StageID, u.Order); err != nil {
				return err
			}
		}

		result, err = tx.ListStages(ctx, caller.TenantID, true)
		if err != nil {
			return err
		}

		s.auditAfterCommit(ctx, tx, audit.EventTypeDataStageReorder, "", fmt.Sprintf("Reordered %d pipeline stages", len(updates)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeactivatePipelineStage hides a stage from the active pipeline. It fails
// with StageInUse while any person of the tenant holds the stage.
func (s *Service) DeactivatePipelineStage(ctx context.Context, stageID string) (*models.PipelineStage, error) {
	var stage *models.PipelineStage
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.RequireRole(ctx, tx, rbac.RoleSystemAdmin)
		if err != nil {
			return err
		}
		ctx := caller.Bind(ctx)

		stage, err = tx.GetStage(ctx, stageID)
		if err != nil {
			return err
		}
		if err := caller.TenantScope().CheckWrite("pipeline stage", stage.TenantID); err != nil {
			return err
		}
		if !stage.IsActive {
			return nil
		}

		occupied, err := tx.CountPeopleInStage(ctx, stage.TenantID, stage.Name)
		if err != nil {
			return err
		}
		if occupied > 0 {
			return apperr.StageInUse(stage.Name, occupied)
		}

		if err := tx.SetStageActive(ctx, stage.ID, false); err != nil {
			return err
		}
		stage.IsActive = false

		s.auditAfterCommit(ctx, tx, audit.EventTypeDataStageDeactivate, stage.ID, "Pipeline stage deactivated: "+stage.Name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stage, nil
}

// InitializeDefaultStages seeds the caller's tenant with its stage template:
// the tenant settings when they carry one, the configured defaults otherwise.
// It fails when the tenant already has stages.
func (s *Service) InitializeDefaultStages(ctx context.Context) ([]models.PipelineStage, error) {
	var stages []models.PipelineStage
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.RequireRole(ctx, tx, rbac.RoleSystemAdmin)
		if err != nil {
			return err
		}
		ctx := caller.Bind(ctx)

		stages, err = s.seed(ctx, tx, caller.TenantID)
		if err != nil {
			return err
		}

		s.auditAfterCommit(ctx, tx, audit.EventTypeDataStagesInit, caller.TenantID,
			fmt.Sprintf("Initialized %d pipeline stages", len(stages)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stages, nil
}

// SeedTenantStages seeds tenantID without a caller. It backs the admin CLI.
func (s *Service) SeedTenantStages(ctx context.Context, tenantID string) ([]models.PipelineStage, error) {
	var stages []models.PipelineStage
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		stages, err = s.seed(ctx, tx, tenantID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stages, nil
}

func (s *Service) seed(ctx context.Context, tx *storage.Tx, tenantID string) ([]models.PipelineStage, error) {
	tenant, err := tx.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	existing, err := tx.ListStages(ctx, tenantID, true)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, apperr.Validation("tenant %q already has %d pipeline stages", tenant.Name, len(existing))
	}

	templates := tenant.Settings.PipelineStages
	if len(templates) == 0 {
		templates = s.defaultStages()
	}
	if len(templates) == 0 {
		templates = config.DefaultStages()
	}
	if err := config.ValidateStages(templates); err != nil {
		return nil, apperr.Validation("%v", err)
	}

	stages := make([]models.PipelineStage, 0, len(templates))
	for _, tmpl := range templates {
		stage := &models.PipelineStage{
			Name:        tmpl.Name,
			Order:       tmpl.Order,
			Category:    tmpl.Category,
			Description: tmpl.Description,
			IsActive:    true,
			TenantID:    tenantID,
		}
		if err := tx.CreateStage(ctx, stage); err != nil {
			return nil, err
		}
		stages = append(stages, *stage)
	}
	return stages, nil
}

func (s *Service) auditAfterCommit(ctx context.Context, tx *storage.Tx, eventType audit.EventType, resourceID, message string) {
	tx.AfterCommit(func() {
		if err := audit.LogSuccess(ctx, s.audit, eventType, audit.ResourceTypePipelineStage, resourceID, message); err != nil {
			observability.FromContext(ctx).WithError(err).Warn("Failed to write audit event")
		}
	})
}
