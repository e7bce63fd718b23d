package auth

import (
	"context"

	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/contextkeys"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/rbac"
	"github.com/platinummonkey/sunup/pkg/tenancy"
)

// Caller is the resolved principal behind a request
type Caller struct {
	User     *models.User
	TenantID string

	// Roles and PrimaryRole are populated by the role-aware resolvers only.
	Roles       rbac.RoleSet
	PrimaryRole rbac.Role

	// Scope is Global for active System Administrators, otherwise the
	// caller's tenant. Only operations that are documented as cross-tenant
	// may use it; everything else uses TenantScope.
	Scope tenancy.Scope
}

// UserID returns the id of the resolved user
func (c *Caller) UserID() string {
	return c.User.ID
}

// TenantScope returns the scope restricted to the caller's own tenant
func (c *Caller) TenantScope() tenancy.Scope {
	return tenancy.Tenant(c.TenantID)
}

// IsSystemAdmin reports whether the caller holds an active System Administrator role
func (c *Caller) IsSystemAdmin() bool {
	return c.Roles.Has(rbac.RoleSystemAdmin)
}

// Can reports whether the caller's roles grant action on resource
func (c *Caller) Can(resource rbac.Resource, action rbac.Action) bool {
	return rbac.HasPermission(c.Roles, resource, action)
}

// Bind annotates ctx with the caller's user and tenant ids for logging and auditing
func (c *Caller) Bind(ctx context.Context) context.Context {
	ctx = contextkeys.WithUserID(ctx, c.User.ID)
	return contextkeys.WithTenantID(ctx, c.TenantID)
}

// Resolution is the outcome of TryResolveCaller: either Authenticated or Anonymous.
type Resolution interface {
	isResolution()
}

// Authenticated carries the resolved caller
type Authenticated struct {
	Caller *Caller
}

// Anonymous records why no caller could be resolved
type Anonymous struct {
	Reason apperr.Kind
}

func (Authenticated) isResolution() {}
func (Anonymous) isResolution()     {}
