// Package auth resolves the caller behind a request and enforces role and
// permission checks.
//
// # Identity
//
// An IdentitySource turns request credentials into a verified Identity:
// OIDCSource verifies "Authorization: Bearer" ID tokens, HeaderSource trusts a
// subject header set by an authenticating gateway. The identity middleware
// stores the result in the request context. No user records are created here;
// a subject without a provisioned user resolves to PrincipalNotFound.
//
// # Guard
//
// Guard is the gate every operation passes before touching tenant data:
//
//	err := store.WithTx(ctx, func(tx *storage.Tx) error {
//		caller, err := guard.RequirePermission(ctx, tx, rbac.ResourcePerson, rbac.ActionUpdate)
//		if err != nil {
//			return err
//		}
//		...
//	})
//
// Resolvers read through the supplied transaction. The subject to user id
// mapping is cached; the user row itself is always re-read.
//
// ResolveCallerWithRoles computes the caller's tenancy.Scope once: Global for
// active System Administrators, otherwise the caller's tenant. Operations that
// are not documented as cross-tenant use Caller.TenantScope instead.
//
// TryResolveCaller returns a Resolution, either Authenticated or Anonymous,
// for optional-auth paths.
package auth
