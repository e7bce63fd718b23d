// Package organizations manages the customer organizations people belong to.
package organizations

import (
	"context"
	"fmt"
	"strings"

	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/audit"
	"github.com/platinummonkey/sunup/pkg/auth"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/observability"
	"github.com/platinummonkey/sunup/pkg/rbac"
	"github.com/platinummonkey/sunup/pkg/storage"
	"github.com/platinummonkey/sunup/pkg/validation"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Service implements the organization operations
type Service struct {
	store      *storage.Store
	guard      *auth.Guard
	audit      audit.Logger
	validator  *validation.Validator
	normalizer *validation.Normalizer
}

// NewService creates an organization service
func NewService(store *storage.Store, guard *auth.Guard, auditLog audit.Logger) *Service {
	if auditLog == nil {
		auditLog = audit.NoOpLogger()
	}
	return &Service{
		store:      store,
		guard:      guard,
		audit:      auditLog,
		validator:  validation.NewValidator(nil),
		normalizer: validation.NewNormalizer(nil),
	}
}

// NewOrganization is the input to CreateOrganization
type NewOrganization struct {
	Name                   string                  `json:"name"`
	Type                   models.OrganizationType `json:"type"`
	BillingAddress         models.Address          `json:"billing_address"`
	TaxID                  string                  `json:"tax_id,omitempty"`
	PrimaryContactPersonID *string                 `json:"primary_contact_person_id,omitempty"`
}

// OrganizationUpdate is a partial update; nil fields are left unchanged. An
// empty TaxID or PrimaryContactPersonID clears the field.
type OrganizationUpdate struct {
	Name                   *string                  `json:"name,omitempty"`
	Type                   *models.OrganizationType `json:"type,omitempty"`
	BillingAddress         *models.Address          `json:"billing_address,omitempty"`
	TaxID                  *string                  `json:"tax_id,omitempty"`
	PrimaryContactPersonID *string                  `json:"primary_contact_person_id,omitempty"`
}

// CreateOrganization creates an organization in the caller's tenant
func (s *Service) CreateOrganization(ctx context.Context, in NewOrganization) (*models.Organization, error) {
	base := s.normalizer.Organization(models.Organization{
		Name:           in.Name,
		Type:           in.Type,
		BillingAddress: in.BillingAddress,
		TaxID:          in.TaxID,
	})
	if err := s.validator.ValidateOrganization(&base).Err(); err != nil {
		return nil, err
	}

	var org *models.Organization
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.RequirePermission(ctx, tx, rbac.ResourceOrganization, rbac.ActionCreate)
		if err != nil {
			return err
		}
		ctx := caller.Bind(ctx)

		created := base
		created.TenantID = caller.TenantID
		created.PrimaryContactPersonID = models.StringPtr(derefTrim(in.PrimaryContactPersonID))
		if err := checkContact(ctx, tx, created.TenantID, created.PrimaryContactPersonID); err != nil {
			return err
		}
		if err := tx.CreateOrganization(ctx, &created); err != nil {
			return err
		}
		org = &created

		s.auditAfterCommit(ctx, tx, audit.EventTypeDataOrgCreate, created.ID, "Organization created: "+created.Name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

// GetOrganization returns an organization of the caller's tenant. Records of
// other tenants are reported as not found.
func (s *Service) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	var org *models.Organization
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.RequirePermission(ctx, tx, rbac.ResourceOrganization, rbac.ActionRead)
		if err != nil {
			return err
		}
		org, err = tx.GetOrganization(ctx, id)
		if err != nil {
			return err
		}
		return caller.TenantScope().CheckRead("organization", org.TenantID)
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

// UpdateOrganization applies a partial update to an organization of the
// caller's tenant
func (s *Service) UpdateOrganization(ctx context.Context, id string, patch OrganizationUpdate) (*models.Organization, error) {
	var org *models.Organization
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.RequirePermission(ctx, tx, rbac.ResourceOrganization, rbac.ActionUpdate)
		if err != nil {
			return err
		}
		ctx := caller.Bind(ctx)

		current, err := tx.GetOrganization(ctx, id)
		if err != nil {
			return err
		}
		if err := caller.TenantScope().CheckWrite("organization", current.TenantID); err != nil {
			return err
		}

		updated := *current
		if patch.Name != nil {
			updated.Name = *patch.Name
		}
		if patch.Type != nil {
			updated.Type = *patch.Type
		}
		if patch.BillingAddress != nil {
			updated.BillingAddress = *patch.BillingAddress
		}
		if patch.TaxID != nil {
			updated.TaxID = *patch.TaxID
		}
		updated = s.normalizer.Organization(updated)
		if err := s.validator.ValidateOrganization(&updated).Err(); err != nil {
			return err
		}

		if patch.PrimaryContactPersonID != nil {
			updated.PrimaryContactPersonID = models.StringPtr(derefTrim(patch.PrimaryContactPersonID))
			if err := checkContact(ctx, tx, updated.TenantID, updated.PrimaryContactPersonID); err != nil {
				return err
			}
		}

		if err := tx.UpdateOrganization(ctx, &updated); err != nil {
			return err
		}
		org = &updated

		s.auditAfterCommit(ctx, tx, audit.EventTypeDataOrgUpdate, updated.ID, "Organization updated: "+updated.Name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

// DeleteOrganization removes an organization of the caller's tenant. People
// linked to it are kept and lose the link.
func (s *Service) DeleteOrganization(ctx context.Context, id string) error {
	return s.store.WithTx(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.RequirePermission(ctx, tx, rbac.ResourceOrganization, rbac.ActionDelete)
		if err != nil {
			return err
		}
		ctx := caller.Bind(ctx)

		org, err := tx.GetOrganization(ctx, id)
		if err != nil {
			return err
		}
		if err := caller.TenantScope().CheckWrite("organization", org.TenantID); err != nil {
			return err
		}

		unlinked, err := tx.DeleteOrganization(ctx, org.ID)
		if err != nil {
			return err
		}

		s.auditAfterCommit(ctx, tx, audit.EventTypeDataOrgDelete, org.ID,
			fmt.Sprintf("Organization deleted: %s (%d people unlinked)", org.Name, unlinked))
		return nil
	})
}

// ListOrganizations returns the caller's organizations ordered by name,
// optionally restricted to one type
func (s *Service) ListOrganizations(ctx context.Context, orgType models.OrganizationType, limit int) ([]models.Organization, error) {
	if orgType != "" && !orgType.Valid() {
		return nil, apperr.Validation("invalid organization type %q", orgType)
	}
	if limit <= 0 {
		limit = defaultListLimit
	} else if limit > maxListLimit {
		limit = maxListLimit
	}

	var orgs []models.Organization
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.RequirePermission(ctx, tx, rbac.ResourceOrganization, rbac.ActionRead)
		if err != nil {
			return err
		}
		orgs, err = tx.ListOrganizations(ctx, caller.TenantScope(), storage.OrganizationFilter{Type: orgType, Limit: limit})
		return err
	})
	if err != nil {
		return nil, err
	}
	if orgs == nil {
		orgs = []models.Organization{}
	}
	return orgs, nil
}

// checkContact requires personID, when set, to name a person of tenantID.
// Missing and foreign people are reported alike.
func checkContact(ctx context.Context, tx *storage.Tx, tenantID string, personID *string) error {
	if personID == nil {
		return nil
	}
	person, err := tx.GetPerson(ctx, *personID)
	if apperr.IsNotFound(err) || (err == nil && person.TenantID != tenantID) {
		return apperr.Validation("invalid primary contact person")
	}
	return err
}

func derefTrim(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func (s *Service) auditAfterCommit(ctx context.Context, tx *storage.Tx, eventType audit.EventType, orgID, message string) {
	tx.AfterCommit(func() {
		if err := audit.LogSuccess(ctx, s.audit, eventType, audit.ResourceTypeOrganization, orgID, message); err != nil {
			observability.FromContext(ctx).WithError(err).Warn("Failed to write audit event")
		}
	})
}
