package users

import (
	"context"
	"fmt"

	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/audit"
	"github.com/platinummonkey/sunup/pkg/auth"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/rbac"
	"github.com/platinummonkey/sunup/pkg/storage"
)

// RoleOperation is the direction of UpdateUserRole
type RoleOperation string

const (
	RoleAdd    RoleOperation = "add"
	RoleRemove RoleOperation = "remove"
)

// AssignRole grants role to a user, reactivating an earlier assignment when
// one exists. With isPrimary the new role replaces the current primary; a
// user without a primary role gets the new role as primary either way.
func (s *Service) AssignRole(ctx context.Context, userID, roleName string, isPrimary bool) (*models.UserRole, error) {
	role, err := rbac.ParseRole(roleName)
	if err != nil {
		return nil, apperr.Validation("Invalid role: %s", roleName)
	}

	var assigned *models.UserRole
	err = s.store.WithTx(ctx, func(tx *storage.Tx) error {
		caller, user, err := s.adminTarget(ctx, tx, userID, "assignRole")
		if err != nil {
			return err
		}
		ctx := caller.Bind(ctx)

		existing, err := tx.FindUserRole(ctx, user.ID, role)
		if err != nil && !apperr.IsNotFound(err) {
			return err
		}
		if existing != nil && existing.IsActive {
			return apperr.Validation("Role already assigned to this user")
		}

		assigned, err = grantRole(ctx, tx, user, role, existing, isPrimary)
		if err != nil {
			return err
		}

		s.auditAfterCommit(ctx, tx, audit.EventTypeAdminRoleAssign, audit.ResourceTypeUserRole, assigned.ID,
			fmt.Sprintf("Role %s assigned to %s", role, user.Email))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assigned, nil
}

// DeactivateRole marks an assignment inactive. The last active role of a user
// cannot be deactivated.
func (s *Service) DeactivateRole(ctx context.Context, userRoleID string) error {
	return s.store.WithTx(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.RequireRole(ctx, tx, rbac.RoleSystemAdmin)
		if err != nil {
			return err
		}
		ctx := caller.Bind(ctx)

		ur, err := tx.GetUserRole(ctx, userRoleID)
		if err != nil {
			if apperr.IsNotFound(err) {
				return apperr.NotFound("user role")
			}
			return err
		}
		if err := caller.Scope.CheckRead("user role", ur.TenantID); err != nil {
			return err
		}
		user, err := s.scopedTarget(ctx, tx, caller, ur.UserID, "deactivateRole")
		if err != nil {
			return err
		}
		if !ur.IsActive {
			return nil
		}

		if err := releaseRole(ctx, tx, ur, false); err != nil {
			return err
		}

		s.auditAfterCommit(ctx, tx, audit.EventTypeAdminRoleDeactivate, audit.ResourceTypeUserRole, ur.ID,
			fmt.Sprintf("Role %s deactivated for %s", ur.Role, user.Email))
		return nil
	})
}

// SetPrimaryRole makes an active assignment of userID its primary role
func (s *Service) SetPrimaryRole(ctx context.Context, userID, userRoleID string) error {
	return s.store.WithTx(ctx, func(tx *storage.Tx) error {
		caller, user, err := s.adminTarget(ctx, tx, userID, "setPrimaryRole")
		if err != nil {
			return err
		}
		ctx := caller.Bind(ctx)

		ur, err := tx.GetUserRole(ctx, userRoleID)
		if err != nil {
			if apperr.IsNotFound(err) {
				return apperr.NotFound("user role")
			}
			return err
		}
		if ur.UserID != user.ID {
			return apperr.Validation("Role does not belong to user")
		}
		if !ur.IsActive {
			return apperr.Validation("Role is not active")
		}
		if ur.IsPrimary {
			return nil
		}

		if err := tx.ClearPrimaryRole(ctx, user.ID); err != nil {
			return err
		}
		if err := tx.UpdateUserRoleFlags(ctx, ur.ID, true, true); err != nil {
			return err
		}

		s.auditAfterCommit(ctx, tx, audit.EventTypeAdminRolePrimary, audit.ResourceTypeUserRole, ur.ID,
			fmt.Sprintf("Role %s set as primary for %s", ur.Role, user.Email))
		return nil
	})
}

// UpdateUserRole adds or removes a role by name and returns the user's
// resulting assignments. Removal deletes the assignment.
func (s *Service) UpdateUserRole(ctx context.Context, userID, roleName string, op RoleOperation) ([]models.UserRole, error) {
	role, err := rbac.ParseRole(roleName)
	if err != nil {
		return nil, apperr.Validation("Invalid role: %s", roleName)
	}
	if op != RoleAdd && op != RoleRemove {
		return nil, apperr.Validation("invalid operation %q, expected add or remove", op)
	}

	var roles []models.UserRole
	err = s.store.WithTx(ctx, func(tx *storage.Tx) error {
		caller, user, err := s.adminTarget(ctx, tx, userID, "updateUserRole")
		if err != nil {
			return err
		}
		ctx := caller.Bind(ctx)

		existing, err := tx.FindUserRole(ctx, user.ID, role)
		if err != nil && !apperr.IsNotFound(err) {
			return err
		}

		switch op {
		case RoleAdd:
			if existing != nil && existing.IsActive {
				return apperr.Validation("User already has role: %s", role)
			}
			ur, err := grantRole(ctx, tx, user, role, existing, false)
			if err != nil {
				return err
			}
			s.auditAfterCommit(ctx, tx, audit.EventTypeAdminRoleAssign, audit.ResourceTypeUserRole, ur.ID,
				fmt.Sprintf("Role %s assigned to %s", role, user.Email))

		case RoleRemove:
			if existing == nil {
				return apperr.Validation("User doesn't have role: %s", role)
			}
			if existing.IsActive {
				if err := releaseRole(ctx, tx, existing, true); err != nil {
					return err
				}
			} else if err := tx.DeleteUserRole(ctx, existing.ID); err != nil {
				return err
			}
			s.auditAfterCommit(ctx, tx, audit.EventTypeAdminRoleRemove, audit.ResourceTypeUserRole, existing.ID,
				fmt.Sprintf("Role %s removed from %s", role, user.Email))
		}

		roles, err = tx.ListUserRoles(ctx, user.ID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// ListUserRoles returns every assignment of a user, inactive ones included.
// Users may list their own roles; System Administrators may list anyone's.
func (s *Service) ListUserRoles(ctx context.Context, userID string) ([]models.UserRole, error) {
	var roles []models.UserRole
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.ResolveCallerWithRoles(ctx, tx)
		if err != nil {
			return err
		}
		if userID != caller.UserID() && !caller.IsSystemAdmin() {
			return apperr.Forbidden("can only view your own roles")
		}

		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if err := caller.Scope.CheckRead("user", user.TenantID); err != nil {
			return err
		}

		roles, err = tx.ListUserRoles(ctx, user.ID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []models.UserRole{}
	}
	return roles, nil
}

// GetMyRoles returns the caller's active assignments
func (s *Service) GetMyRoles(ctx context.Context) ([]models.UserRole, error) {
	var roles []models.UserRole
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		caller, err := s.guard.ResolveCaller(ctx, tx)
		if err != nil {
			return err
		}
		roles, err = tx.ListUserRoles(ctx, caller.UserID(), true)
		return err
	})
	if err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []models.UserRole{}
	}
	return roles, nil
}

// adminTarget requires a System Administrator caller and loads the target user
func (s *Service) adminTarget(ctx context.Context, tx *storage.Tx, userID, operation string) (*auth.Caller, *models.User, error) {
	caller, err := s.guard.RequireRole(ctx, tx, rbac.RoleSystemAdmin)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.scopedTarget(ctx, tx, caller, userID, operation)
	if err != nil {
		return nil, nil, err
	}
	return caller, user, nil
}

// scopedTarget loads a user within the caller's scope, auditing any use of
// the cross-tenant scope
func (s *Service) scopedTarget(ctx context.Context, tx *storage.Tx, caller *auth.Caller, userID, operation string) (*models.User, error) {
	user, err := tx.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := caller.Scope.CheckRead("user", user.TenantID); err != nil {
		return nil, err
	}
	if user.TenantID != caller.TenantID {
		s.guard.AuditGlobalScope(ctx, tx, caller, operation)
	}
	return user, nil
}

// grantRole activates role for user, reusing an inactive assignment when given
func grantRole(ctx context.Context, tx *storage.Tx, user *models.User, role rbac.Role, inactive *models.UserRole, primary bool) (*models.UserRole, error) {
	active, err := tx.ListUserRoles(ctx, user.ID, true)
	if err != nil {
		return nil, err
	}
	hasPrimary := false
	for _, r := range active {
		if r.IsPrimary {
			hasPrimary = true
		}
	}
	if !hasPrimary {
		primary = true
	}
	if primary && hasPrimary {
		if err := tx.ClearPrimaryRole(ctx, user.ID); err != nil {
			return nil, err
		}
	}

	if inactive != nil {
		if err := tx.UpdateUserRoleFlags(ctx, inactive.ID, true, primary); err != nil {
			return nil, err
		}
		ur := *inactive
		ur.IsActive, ur.IsPrimary = true, primary
		return &ur, nil
	}

	ur := &models.UserRole{
		UserID:    user.ID,
		Role:      role,
		IsActive:  true,
		IsPrimary: primary,
		TenantID:  user.TenantID,
	}
	if err := tx.CreateUserRole(ctx, ur); err != nil {
		return nil, err
	}
	return ur, nil
}

// releaseRole deactivates or deletes an active assignment. It refuses to
// leave the user without an active role and promotes another role when the
// released one was primary.
func releaseRole(ctx context.Context, tx *storage.Tx, ur *models.UserRole, remove bool) error {
	active, err := tx.ListUserRoles(ctx, ur.UserID, true)
	if err != nil {
		return err
	}
	var successor *models.UserRole
	for i := range active {
		if active[i].ID != ur.ID {
			successor = &active[i]
			break
		}
	}
	if successor == nil {
		return apperr.Validation("Cannot deactivate last active role")
	}

	if remove {
		err = tx.DeleteUserRole(ctx, ur.ID)
	} else {
		err = tx.UpdateUserRoleFlags(ctx, ur.ID, false, false)
	}
	if err != nil {
		return err
	}

	if ur.IsPrimary {
		return tx.UpdateUserRoleFlags(ctx, successor.ID, true, true)
	}
	return nil
}
