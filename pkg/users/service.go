package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/audit"
	"github.com/platinummonkey/sunup/pkg/auth"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/observability"
	"github.com/platinummonkey/sunup/pkg/rbac"
	"github.com/platinummonkey/sunup/pkg/storage"
	"github.com/platinummonkey/sunup/pkg/validation"
)

// PendingSubjectPrefix marks a user that has not signed in yet
const PendingSubjectPrefix = "pending:"

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Service implements the user and role operations
type Service struct {
	store      *storage.Store
	guard      *auth.Guard
	audit      audit.Logger
	validator  *validation.Validator
	normalizer *validation.Normalizer
}

// NewService creates a user service. auditLog may be nil.
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

// NewUser is the input to CreateUser
type NewUser struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	// TenantID defaults to the caller's tenant. Only callers with the Global
	// scope may name another tenant.
	TenantID string `json:"tenant_id,omitempty"`

	// Roles defaults to Setter. The first role is primary.
	Roles []string `json:"roles,omitempty"`
}

// UserWithRoles is a user with its role assignments
type UserWithRoles struct {
	models.User
	Roles []models.UserRole `json:"roles"`
}

// CreateUser invites a user. The user can sign in once ProvisionUser has
// bound its identity subject. Privileged roles are granted by System
// Administrators only.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (*UserWithRoles, error) {
	profile := s.normalizer.User(models.User{Email: in.Email, FirstName: in.FirstName, LastName: in.LastName})
	if err := s.validator.ValidateUser(&profile).Err(); err != nil {
		return nil, err
	}

	roles, err := parseRoles(in.Roles)
	if err != nil {
		return nil, err
	}

	var created *UserWithRoles
	err = s.store.WithTx(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.RequirePermission(ctx, tx, rbac.ResourceUser, rbac.ActionCreate)
		if err != nil {
			return err
		}
		ctx := caller.Bind(ctx)

		tenantID := in.TenantID
		if tenantID == "" {
			tenantID = caller.TenantID
		}
		if !caller.Scope.Allows(tenantID) {
			return apperr.Forbidden("Cannot create users for other tenants")
		}
		if tenantID != caller.TenantID {
			s.guard.AuditGlobalScope(ctx, tx, caller, "createUser")
		}
		for _, r := range roles {
			if r.Privileged() && !caller.IsSystemAdmin() {
				return apperr.Forbidden("only System Administrators can grant %s", r)
			}
		}

		created, err = s.insertUser(ctx, tx, tenantID, profile, roles)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// InviteUser creates a pending user in tenantID without a caller. It backs
// the admin CLI, which uses it to bootstrap the first System Administrator.
func (s *Service) InviteUser(ctx context.Context, in NewUser) (*UserWithRoles, error) {
	if in.TenantID == "" {
		return nil, apperr.Validation("tenant is required")
	}
	profile := s.normalizer.User(models.User{Email: in.Email, FirstName: in.FirstName, LastName: in.LastName})
	if err := s.validator.ValidateUser(&profile).Err(); err != nil {
		return nil, err
	}
	roles, err := parseRoles(in.Roles)
	if err != nil {
		return nil, err
	}

	var created *UserWithRoles
	err = s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		created, err = s.insertUser(ctx, tx, in.TenantID, profile, roles)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) insertUser(ctx context.Context, tx *storage.Tx, tenantID string, profile models.User, roles []rbac.Role) (*UserWithRoles, error) {
	tenant, err := tx.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.IsActive {
		return nil, apperr.Validation("tenant %q is deactivated", tenant.Name)
	}

	if _, err := tx.GetUserByEmail(ctx, profile.Email); err == nil {
		return nil, emailTaken(profile.Email)
	} else if !apperr.IsNotFound(err) {
		return nil, err
	}

	user := profile
	user.Subject = PendingSubjectPrefix + uuid.NewString()
	user.IsActive = true
	user.TenantID = tenant.ID
	if err := tx.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, emailTaken(profile.Email)
		}
		return nil, err
	}

	assigned := make([]models.UserRole, 0, len(roles))
	for i, role := range roles {
		ur := &models.UserRole{
			UserID:    user.ID,
			Role:      role,
			IsActive:  true,
			IsPrimary: i == 0,
			TenantID:  tenant.ID,
		}
		if err := tx.CreateUserRole(ctx, ur); err != nil {
			return nil, err
		}
		assigned = append(assigned, *ur)
	}

	s.auditAfterCommit(ctx, tx, audit.EventTypeAdminUserCreate, audit.ResourceTypeUser, user.ID,
		fmt.Sprintf("User %s created in tenant %s", user.Email, tenant.Name))
	return &UserWithRoles{User: user, Roles: assigned}, nil
}

// ListUsers returns the users visible to the caller: every tenant for System
// Administrators, the caller's tenant otherwise.
func (s *Service) ListUsers(ctx context.Context, limit int) ([]models.User, error) {
	var users []models.User
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.RequirePermission(ctx, tx, rbac.ResourceUser, rbac.ActionRead)
		if err != nil {
			return err
		}
		s.guard.AuditGlobalScope(ctx, tx, caller, "listUsers")

		users, err = tx.ListUsers(ctx, caller.Scope, clamp(limit, defaultListLimit, maxListLimit))
		return err
	})
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// StatusChange reports the outcome of SetUserActiveStatus
type StatusChange struct {
	UserID   string `json:"user_id"`
	IsActive bool   `json:"is_active"`
	Message  string `json:"message"`
}

// SetUserActiveStatus activates or deactivates a user. A deactivated user is
// refused by the guard on its next request.
func (s *Service) SetUserActiveStatus(ctx context.Context, userID string, active bool) (*StatusChange, error) {
	var change *StatusChange
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.RequirePermission(ctx, tx, rbac.ResourceUser, rbac.ActionUpdate)
		if err != nil {
			return err
		}
		ctx := caller.Bind(ctx)

		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if !caller.Scope.Allows(user.TenantID) {
			return apperr.Forbidden("Cannot update users from other tenants")
		}
		if user.TenantID != caller.TenantID {
			s.guard.AuditGlobalScope(ctx, tx, caller, "setUserActiveStatus")
		}
		if user.ID == caller.UserID() && !active {
			return apperr.Validation("cannot deactivate your own account")
		}

		if err := tx.SetUserActive(ctx, user.ID, active); err != nil {
			return err
		}

		verb, eventType := "deactivated", audit.EventTypeAdminUserDeactivate
		if active {
			verb, eventType = "activated", audit.EventTypeAdminUserActivate
		}
		change = &StatusChange{
			UserID:   user.ID,
			IsActive: active,
			Message:  fmt.Sprintf("User %s %s", user.Email, verb),
		}
		s.auditAfterCommit(ctx, tx, eventType, audit.ResourceTypeUser, user.ID, change.Message)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// Me describes the resolved caller
type Me struct {
	User        models.User `json:"user"`
	TenantName  string      `json:"tenant_name"`
	Roles       []rbac.Role `json:"roles"`
	PrimaryRole rbac.Role   `json:"primary_role,omitempty"`
	Permissions []string    `json:"permissions"`
	GlobalScope bool        `json:"global_scope"`
}

// CurrentUser returns the caller with its active roles and effective permissions
func (s *Service) CurrentUser(ctx context.Context) (*Me, error) {
	var me *Me
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.ResolveCallerWithRoles(ctx, tx)
		if err != nil {
			return err
		}
		me, err = describe(ctx, tx, caller)
		return err
	})
	if err != nil {
		return nil, err
	}
	return me, nil
}

// Session is the optional-auth view of the caller
type Session struct {
	Authenticated bool   `json:"authenticated"`
	Reason        string `json:"reason,omitempty"`
	Me            *Me    `json:"me,omitempty"`
}

// GetSession reports whether the request carries a provisioned identity.
// Missing or unprovisioned identities are not errors.
func (s *Service) GetSession(ctx context.Context) (*Session, error) {
	var session *Session
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		res, err := s.guard.TryResolveCaller(ctx, tx)
		if err != nil {
			return err
		}

		switch r := res.(type) {
		case auth.Authenticated:
			me, err := describe(ctx, tx, r.Caller)
			if err != nil {
				return err
			}
			session = &Session{Authenticated: true, Me: me}
		case auth.Anonymous:
			session = &Session{Reason: r.Reason.String()}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func describe(ctx context.Context, tx *storage.Tx, caller *auth.Caller) (*Me, error) {
	tenant, err := tx.GetTenant(ctx, caller.TenantID)
	if err != nil {
		return nil, err
	}

	perms := rbac.EffectivePermissions(caller.Roles)
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.String()
	}

	return &Me{
		User:        *caller.User,
		TenantName:  tenant.Name,
		Roles:       caller.Roles.Slice(),
		PrimaryRole: caller.PrimaryRole,
		Permissions: names,
		GlobalScope: caller.Scope.IsGlobal(),
	}, nil
}

func parseRoles(names []string) ([]rbac.Role, error) {
	if len(names) == 0 {
		return []rbac.Role{rbac.RoleSetter}, nil
	}
	roles := make([]rbac.Role, 0, len(names))
	seen := make(map[rbac.Role]bool, len(names))
	for _, name := range names {
		role, err := rbac.ParseRole(name)
		if err != nil {
			return nil, apperr.Validation("Invalid role: %s", name)
		}
		if seen[role] {
			continue
		}
		seen[role] = true
		roles = append(roles, role)
	}
	return roles, nil
}

func emailTaken(email string) error {
	return apperr.Validation("User with email %s already exists in the system", email)
}

func (s *Service) auditAfterCommit(ctx context.Context, tx *storage.Tx, eventType audit.EventType, resourceType audit.ResourceType, resourceID, message string) {
	tx.AfterCommit(func() {
		if err := audit.LogSuccess(ctx, s.audit, eventType, resourceType, resourceID, message); err != nil {
			observability.FromContext(ctx).WithError(err).Warn("Failed to write audit event")
		}
	})
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
