package people

import (
	"context"
	"errors"
	"strings"

	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/audit"
	"github.com/platinummonkey/sunup/pkg/auth"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/observability"
	"github.com/platinummonkey/sunup/pkg/pipeline"
	"github.com/platinummonkey/sunup/pkg/rbac"
	"github.com/platinummonkey/sunup/pkg/storage"
	"github.com/platinummonkey/sunup/pkg/validation"
)

const (
	defaultListLimit   = 50
	maxListLimit       = 100
	defaultSearchLimit = 20
	maxSearchLimit     = 50
)

// NewPerson is the input to CreatePerson
type NewPerson struct {
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Email          string  `json:"email"`
	Phone          *string `json:"phone,omitempty"`
	OrganizationID *string `json:"organization_id,omitempty"`

	// Stage optionally places the person in an active stage on creation
	Stage *string `json:"stage,omitempty"`
}

// PersonUpdate patches a person; nil fields are left unchanged. Use
// pipeline.Service.MovePersonToStage to change the stage.
type PersonUpdate struct {
	FirstName      *string `json:"first_name,omitempty"`
	LastName       *string `json:"last_name,omitempty"`
	Email          *string `json:"email,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	OrganizationID *string `json:"organization_id,omitempty"`
}

// ListOptions narrows ListPersonsByTenant
type ListOptions struct {
	Stage string
	Limit int
}

// Service implements the person operations
type Service struct {
	store      *storage.Store
	guard      *auth.Guard
	pipeline   *pipeline.Service
	audit      audit.Logger
	validator  *validation.Validator
	normalizer *validation.Normalizer
}

// NewService creates a people service. stages records the initial stage
// assignment of new people. auditLog may be nil.
func NewService(store *storage.Store, guard *auth.Guard, stages *pipeline.Service, auditLog audit.Logger) *Service {
	if auditLog == nil {
		auditLog = audit.NoOpLogger()
	}
	return &Service{
		store:      store,
		guard:      guard,
		pipeline:   stages,
		audit:      auditLog,
		validator:  validation.NewValidator(nil),
		normalizer: validation.NewNormalizer(nil),
	}
}

// CreatePerson adds a person to the caller's tenant
func (s *Service) CreatePerson(ctx context.Context, in NewPerson) (*models.Person, error) {
	base := s.normalizer.Person(models.Person{
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Email:          in.Email,
		Phone:          in.Phone,
		OrganizationID: in.OrganizationID,
	})
	if err := s.validator.ValidatePerson(&base).Err(); err != nil {
		return nil, err
	}
	stage := s.normalizer.Optional(in.Stage)

	var person *models.Person
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.RequirePermission(ctx, tx, rbac.ResourcePerson, rbac.ActionCreate)
		if err != nil {
			return err
		}
		ctx := caller.Bind(ctx)

		p := base
		p.TenantID = caller.TenantID

		if err := s.checkEmailFree(ctx, tx, caller.TenantID, p.Email, ""); err != nil {
			return err
		}
		if err := s.checkOrganization(ctx, tx, caller, p.OrganizationID); err != nil {
			return err
		}

		if err := tx.CreatePerson(ctx, &p); err != nil {
			return duplicateEmail(err, p.Email)
		}
		if stage != nil {
			if err := s.pipeline.RecordAssignment(ctx, tx, caller, &p, *stage); err != nil {
				return err
			}
			p.CurrentPipelineStage = stage
		}

		person = &p
		s.auditAfterCommit(ctx, tx, audit.EventTypeDataPersonCreate, p.ID, "Person created: "+p.Email)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return person, nil
}

// UpdatePerson applies a patch to a person of the caller's tenant
func (s *Service) UpdatePerson(ctx context.Context, id string, patch PersonUpdate) (*models.Person, error) {
	var person *models.Person
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.RequirePermission(ctx, tx, rbac.ResourcePerson, rbac.ActionUpdate)
		if err != nil {
			return err
		}
		ctx := caller.Bind(ctx)

		current, err := tx.GetPerson(ctx, id)
		if err != nil {
			return err
		}
		if err := caller.TenantScope().CheckWrite("person", current.TenantID); err != nil {
			return err
		}

		updated := *current
		if patch.FirstName != nil {
			updated.FirstName = *patch.FirstName
		}
		if patch.LastName != nil {
			updated.LastName = *patch.LastName
		}
		if patch.Email != nil {
			updated.Email = *patch.Email
		}
		if patch.Phone != nil {
			updated.Phone = patch.Phone
		}
		if patch.OrganizationID != nil {
			updated.OrganizationID = patch.OrganizationID
		}
		updated = s.normalizer.Person(updated)
		if err := s.validator.ValidatePerson(&updated).Err(); err != nil {
			return err
		}

		if updated.Email != current.Email {
			if err := s.checkEmailFree(ctx, tx, current.TenantID, updated.Email, current.ID); err != nil {
				return err
			}
		}
		if patch.OrganizationID != nil {
			if err := s.checkOrganization(ctx, tx, caller, updated.OrganizationID); err != nil {
				return err
			}
		}

		if err := tx.UpdatePerson(ctx, &updated); err != nil {
			return duplicateEmail(err, updated.Email)
		}

		person = &updated
		s.auditAfterCommit(ctx, tx, audit.EventTypeDataPersonUpdate, updated.ID, "Person updated: "+updated.Email)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return person, nil
}

// DeletePerson removes a person of the caller's tenant. Pipeline history is kept.
func (s *Service) DeletePerson(ctx context.Context, id string) error {
	return s.store.WithTx(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.RequirePermission(ctx, tx, rbac.ResourcePerson, rbac.ActionDelete)
		if err != nil {
			return err
		}
		ctx := caller.Bind(ctx)

		person, err := tx.GetPerson(ctx, id)
		if err != nil {
			return err
		}
		if err := caller.TenantScope().CheckWrite("person", person.TenantID); err != nil {
			return err
		}

		if err := tx.DeletePerson(ctx, person.ID); err != nil {
			return err
		}

		s.auditAfterCommit(ctx, tx, audit.EventTypeDataPersonDelete, person.ID, "Person deleted: "+person.Email)
		return nil
	})
}

// GetPersonByID returns a person of the caller's tenant
func (s *Service) GetPersonByID(ctx context.Context, id string) (*models.Person, error) {
	var person *models.Person
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.RequirePermission(ctx, tx, rbac.ResourcePerson, rbac.ActionRead)
		if err != nil {
			return err
		}

		person, err = tx.GetPerson(ctx, id)
		if err != nil {
			return err
		}
		return caller.TenantScope().CheckRead("person", person.TenantID)
	})
	if err != nil {
		return nil, err
	}
	return person, nil
}

// ListPersonsByTenant lists the caller's people, newest first
func (s *Service) ListPersonsByTenant(ctx context.Context, opts ListOptions) ([]models.Person, error) {
	return s.list(ctx, storage.PersonFilter{
		Stage: strings.TrimSpace(opts.Stage),
		Limit: clamp(opts.Limit, defaultListLimit, maxListLimit),
	})
}

// GetPersonsByOrganization lists the caller's people linked to an organization
func (s *Service) GetPersonsByOrganization(ctx context.Context, organizationID string, limit int) ([]models.Person, error) {
	var people []models.Person
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.RequirePermission(ctx, tx, rbac.ResourcePerson, rbac.ActionRead)
		if err != nil {
			return err
		}

		org, err := tx.GetOrganization(ctx, organizationID)
		if err != nil {
			return err
		}
		if err := caller.TenantScope().CheckRead("organization", org.TenantID); err != nil {
			return err
		}

		people, err = tx.ListPeople(ctx, caller.TenantScope(), storage.PersonFilter{
			OrganizationID: org.ID,
			Limit:          clamp(limit, defaultListLimit, maxListLimit),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return nonNil(people), nil
}

// SearchPersons matches term against names and email within the caller's
// tenant. A blank term matches nothing.
func (s *Service) SearchPersons(ctx context.Context, term string, limit int) ([]models.Person, error) {
	term = strings.TrimSpace(term)

	var people []models.Person
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.RequirePermission(ctx, tx, rbac.ResourcePerson, rbac.ActionRead)
		if err != nil {
			return err
		}
		if term == "" {
			return nil
		}

		people, err = tx.SearchPeople(ctx, caller.TenantScope(), term, clamp(limit, defaultSearchLimit, maxSearchLimit))
		return err
	})
	if err != nil {
		return nil, err
	}
	return nonNil(people), nil
}

func (s *Service) list(ctx context.Context, filter storage.PersonFilter) ([]models.Person, error) {
	var people []models.Person
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.RequirePermission(ctx, tx, rbac.ResourcePerson, rbac.ActionRead)
		if err != nil {
			return err
		}
		people, err = tx.ListPeople(ctx, caller.TenantScope(), filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return nonNil(people), nil
}

// checkEmailFree fails when another person of the tenant already uses email
func (s *Service) checkEmailFree(ctx context.Context, tx *storage.Tx, tenantID, email, selfID string) error {
	existing, err := tx.FindPersonByEmail(ctx, tenantID, email)
	if apperr.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID == selfID {
		return nil
	}
	return apperr.Validation("a person with email %s already exists", email)
}

func (s *Service) checkOrganization(ctx context.Context, tx *storage.Tx, caller *auth.Caller, id *string) error {
	if id == nil {
		return nil
	}
	org, err := tx.GetOrganization(ctx, *id)
	if err != nil {
		return err
	}
	return caller.TenantScope().CheckRead("organization", org.TenantID)
}

func (s *Service) auditAfterCommit(ctx context.Context, tx *storage.Tx, eventType audit.EventType, personID, message string) {
	tx.AfterCommit(func() {
		if err := audit.LogSuccess(ctx, s.audit, eventType, audit.ResourceTypePerson, personID, message); err != nil {
			observability.FromContext(ctx).WithError(err).Warn("Failed to write audit event")
		}
	})
}

func duplicateEmail(err error, email string) error {
	if errors.Is(err, storage.ErrDuplicate) {
		return apperr.Validation("a person with email %s already exists", email)
	}
	return err
}

func clamp(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func nonNil(people []models.Person) []models.Person {
	if people == nil {
		return []models.Person{}
	}
	return people
}
