// Package tenancy enforces tenant isolation through a single Scope value.
//
// The authorization guard computes one Scope per request. Tenant-only
// operations use Tenant(callerTenant); operations documented as cross-tenant
// may receive Global() when the caller is a System Administrator. Storage list
// queries build their WHERE clause from Scope.Filter, and get-by-id paths call
// CheckRead (NotFound on mismatch) or CheckWrite (CrossTenantAccess on mismatch).
package tenancy
