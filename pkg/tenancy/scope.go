package tenancy

import (
	"fmt"

	"github.com/platinummonkey/sunup/pkg/apperr"
)

// Scope is the access scope of a request: either a single tenant or, for
// System Administrators on operations documented as cross-tenant, every tenant.
// The zero value is an empty tenant scope that matches nothing.
type Scope struct {
	tenantID string
	global   bool
}

// Tenant returns a scope restricted to one tenant
func Tenant(tenantID string) Scope {
	return Scope{tenantID: tenantID}
}

// Global returns the cross-tenant scope
func Global() Scope {
	return Scope{global: true}
}

// IsGlobal reports whether the scope spans all tenants
func (s Scope) IsGlobal() bool {
	return s.global
}

// TenantID returns the tenant the scope is bound to, or "" for the global scope
func (s Scope) TenantID() string {
	return s.tenantID
}

// Allows reports whether a record owned by tenantID is visible in the scope
func (s Scope) Allows(tenantID string) bool {
	if s.global {
		return true
	}
	return s.tenantID != "" && s.tenantID == tenantID
}

// CheckRead hides records from other tenants behind a NotFound error so
// their existence does not leak.
func (s Scope) CheckRead(resource, recordTenantID string) error {
	if s.Allows(recordTenantID) {
		return nil
	}
	return apperr.NotFound(resource)
}

// CheckWrite refuses mutations of records owned by other tenants.
func (s Scope) CheckWrite(resource, recordTenantID string) error {
	if s.Allows(recordTenantID) {
		return nil
	}
	return apperr.CrossTenantAccess(resource)
}

// Filter returns a SQL predicate restricting column to the scope. argPos is
// the placeholder index to use; the returned args must be appended in order.
// The global scope yields an always-true predicate and no args.
func (s Scope) Filter(column string, argPos int) (string, []interface{}) {
	if s.global {
		return "1=1", nil
	}
	return fmt.Sprintf("%s = $%d", column, argPos), []interface{}{s.tenantID}
}

func (s Scope) String() string {
	if s.global {
		return "global"
	}
	return "tenant:" + s.tenantID
}
