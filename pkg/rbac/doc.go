// Package rbac is the static permission model of the CRM.
//
// # Overview
//
// The model is pure data: a closed set of fifteen roles, fourteen resources
// and a closed action set per resource. Grants maps each role to the
// (resource, action) pairs it allows via an exhaustive switch.
//
//	ResourcePerson         create, read, update, delete, assign
//	ResourceUser           create, read, update, delete, ban, impersonate
//	ResourceCommission     create, read, approve, dispute, pay
//	...
//
// # Checking permissions
//
//	roles := rbac.NewRoleSet(rbac.RoleSetter, rbac.RoleFinance)
//	rbac.HasPermission(roles, rbac.ResourceCommission, rbac.ActionPay) // true
//
// Permissions are the literal union of the caller's role grants. Unknown
// role strings read from storage contribute nothing, so a corrupted row can
// never widen access.
//
// # Related Packages
//
//   - pkg/auth: Guard resolves a caller's RoleSet and enforces checks
package rbac
