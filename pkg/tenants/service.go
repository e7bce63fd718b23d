// Package tenants manages tenants. Tenants are created and configured by
// operators through the admin CLI; no request-facing operation writes them.
package tenants

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/audit"
	"github.com/platinummonkey/sunup/pkg/config"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/observability"
	"github.com/platinummonkey/sunup/pkg/storage"
)

// Service implements the tenant operations
type Service struct {
	store *storage.Store
	audit audit.Logger
}

// NewService creates a tenant service
func NewService(store *storage.Store, auditLog audit.Logger) *Service {
	if auditLog == nil {
		auditLog = audit.NoOpLogger()
	}
	return &Service{store: store, audit: auditLog}
}

// NewTenant is the input to CreateTenant
type NewTenant struct {
	Name     string
	Domain   string
	Settings models.TenantSettings
}

// CreateTenant creates an active tenant
func (s *Service) CreateTenant(ctx context.Context, in NewTenant) (*models.Tenant, error) {
	name := strings.Join(strings.Fields(in.Name), " ")
	if name == "" {
		return nil, apperr.Validation("tenant name is required")
	}
	if err := validateSettings(in.Settings); err != nil {
		return nil, err
	}

	var tenant *models.Tenant
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		created := &models.Tenant{
			Name:     name,
			Domain:   normalizeDomain(in.Domain),
			IsActive: true,
			Settings: in.Settings,
		}
		if err := tx.CreateTenant(ctx, created); err != nil {
			return err
		}
		tenant = created

		s.auditAfterCommit(ctx, tx, audit.EventTypeAdminTenantCreate, created.ID, "Tenant created: "+created.Name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

// GetTenant returns a tenant by id
func (s *Service) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var tenant *models.Tenant
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		var err error
		tenant, err = tx.GetTenant(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

// ListTenants returns tenants ordered by name
func (s *Service) ListTenants(ctx context.Context, activeOnly bool) ([]models.Tenant, error) {
	var tenants []models.Tenant
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		var err error
		tenants, err = tx.ListTenants(ctx, activeOnly)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tenants, nil
}

// SetTenantActive activates or deactivates a tenant. Users of a deactivated
// tenant are refused by the guard.
func (s *Service) SetTenantActive(ctx context.Context, id string, active bool) error {
	return s.store.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.SetTenantActive(ctx, id, active)
	})
}

// UpdateSettings replaces a tenant's settings after validating its stage template
func (s *Service) UpdateSettings(ctx context.Context, id string, settings models.TenantSettings) error {
	if err := validateSettings(settings); err != nil {
		return err
	}
	return s.store.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.UpdateTenantSettings(ctx, id, settings)
	})
}

// LoadSettings reads tenant settings from a YAML file
func LoadSettings(path string) (models.TenantSettings, error) {
	var settings models.TenantSettings
	data, err := os.ReadFile(path)
	if err != nil {
		return settings, fmt.Errorf("failed to read tenant settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("failed to parse tenant settings: %w", err)
	}
	return settings, nil
}

func validateSettings(settings models.TenantSettings) error {
	if len(settings.PipelineStages) == 0 {
		return nil
	}
	if err := config.ValidateStages(settings.PipelineStages); err != nil {
		return apperr.Validation("invalid pipeline stages: %v", err)
	}
	return nil
}

// normalizeDomain lowercases a domain and drops characters that cannot
// appear in a host name
func normalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '.' {
			return r
		}
		return -1
	}, domain)
}

func (s *Service) auditAfterCommit(ctx context.Context, tx *storage.Tx, eventType audit.EventType, resourceID, message string) {
	tx.AfterCommit(func() {
		if err := audit.LogSuccess(ctx, s.audit, eventType, audit.ResourceTypeTenant, resourceID, message); err != nil {
			observability.FromContext(ctx).WithError(err).Warn("Failed to write audit event")
		}
	})
}
