package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/audit"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/observability"
	"github.com/platinummonkey/sunup/pkg/rbac"
	"github.com/platinummonkey/sunup/pkg/tenancy"
)

// Reader is the subset of the storage transaction the guard needs
type Reader interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserBySubject(ctx context.Context, subject string) (*models.User, error)
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	ListUserRoles(ctx context.Context, userID string, activeOnly bool) ([]models.UserRole, error)
}

// GuardOptions configures a Guard
type GuardOptions struct {
	CacheSize int
	CacheTTL  time.Duration
	Audit     audit.Logger
	Metrics   *observability.Metrics
}

// Guard is the entry gate for every operation touching tenant data. It
// resolves the caller from the identity in the context and checks roles and
// permissions. All reads go through the caller's transaction.
type Guard struct {
	subjects *lru.LRU[string, string]
	audit    audit.Logger
	metrics  *observability.Metrics
}

// NewGuard creates a guard
func NewGuard(opts GuardOptions) *Guard {
	size := opts.CacheSize
	if size <= 0 {
		size = 10000
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	auditLog := opts.Audit
	if auditLog == nil {
		auditLog = audit.NoOpLogger()
	}

	return &Guard{
		subjects: lru.NewLRU[string, string](size, nil, ttl),
		audit:    auditLog,
		metrics:  opts.Metrics,
	}
}

// ResolveCaller maps the request identity to an active user and tenant.
func (g *Guard) ResolveCaller(ctx context.Context, r Reader) (*Caller, error) {
	ctx, span := observability.StartSpan(ctx, "auth.ResolveCaller")
	defer span.End()

	caller, err := g.resolve(ctx, r)
	if err != nil {
		observability.RecordError(span, err)
		g.metrics.ObserveAuthz("resolve", outcome(err))
		return nil, err
	}
	return caller, nil
}

// ResolveCallerWithRoles resolves the caller and loads its active roles. The
// returned Scope is Global when System Administrator is among them.
func (g *Guard) ResolveCallerWithRoles(ctx context.Context, r Reader) (*Caller, error) {
	ctx, span := observability.StartSpan(ctx, "auth.ResolveCallerWithRoles")
	defer span.End()

	caller, err := g.resolve(ctx, r)
	if err == nil {
		err = g.loadRoles(ctx, r, caller)
	}
	if err != nil {
		observability.RecordError(span, err)
		g.metrics.ObserveAuthz("resolve", outcome(err))
		return nil, err
	}
	return caller, nil
}

// RequireRole fails with Forbidden unless the caller holds at least one of allowed
func (g *Guard) RequireRole(ctx context.Context, r Reader, allowed ...rbac.Role) (*Caller, error) {
	caller, err := g.ResolveCallerWithRoles(ctx, r)
	if err != nil {
		return nil, err
	}

	if !caller.Roles.HasAny(allowed...) {
		names := make([]string, len(allowed))
		for i, role := range allowed {
			names[i] = string(role)
		}
		return nil, g.deny(ctx, caller, "requireRole", "requires one of roles: %s", strings.Join(names, ", "))
	}

	g.metrics.ObserveAuthz("requireRole", "allowed")
	return caller, nil
}

// RequirePermission fails with Forbidden unless one of the caller's roles
// grants action on resource
func (g *Guard) RequirePermission(ctx context.Context, r Reader, resource rbac.Resource, action rbac.Action) (*Caller, error) {
	caller, err := g.ResolveCallerWithRoles(ctx, r)
	if err != nil {
		return nil, err
	}

	if !caller.Can(resource, action) {
		perm := rbac.Permission{Resource: resource, Action: action}
		return nil, g.deny(ctx, caller, "requirePermission", "missing permission %s", perm.String())
	}

	g.metrics.ObserveAuthz("requirePermission", "allowed")
	return caller, nil
}

// RequirePrimaryRole fails with Forbidden unless role is the caller's active
// primary role
func (g *Guard) RequirePrimaryRole(ctx context.Context, r Reader, role rbac.Role) (*Caller, error) {
	caller, err := g.ResolveCallerWithRoles(ctx, r)
	if err != nil {
		return nil, err
	}

	if caller.PrimaryRole != role {
		return nil, g.deny(ctx, caller, "requirePrimaryRole", "primary role %s required", role)
	}

	g.metrics.ObserveAuthz("requirePrimaryRole", "allowed")
	return caller, nil
}

// TryResolveCaller is the optional-auth variant. A missing identity or an
// unprovisioned subject yields Anonymous; other failures are returned.
func (g *Guard) TryResolveCaller(ctx context.Context, r Reader) (Resolution, error) {
	caller, err := g.ResolveCallerWithRoles(ctx, r)
	if err != nil {
		if apperr.IsAuthentication(err) {
			return Anonymous{Reason: apperr.KindOf(err)}, nil
		}
		return nil, err
	}
	return Authenticated{Caller: caller}, nil
}

// Committer defers work until its transaction commits
type Committer interface {
	AfterCommit(fn func())
}

// AuditGlobalScope records that an administrator used the cross-tenant scope.
// The event is written once tx commits, so retried or rolled back
// transactions leave no record.
func (g *Guard) AuditGlobalScope(ctx context.Context, tx Committer, caller *Caller, operation string) {
	if !caller.Scope.IsGlobal() {
		return
	}
	event := audit.NewEvent(caller.Bind(ctx), audit.EventTypeAuthzGlobalScope, audit.EventStatusSuccess)
	event.Message = "Cross-tenant scope used by " + operation
	event.Metadata["operation"] = operation
	tx.AfterCommit(func() {
		if err := g.audit.Log(ctx, event); err != nil {
			observability.FromContext(ctx).WithError(err).Warn("Failed to audit global scope use")
		}
	})
}

// Forget drops a cached subject mapping, e.g. after the subject is rebound
func (g *Guard) Forget(subject string) {
	g.subjects.Remove(subject)
}

func (g *Guard) resolve(ctx context.Context, r Reader) (*Caller, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, apperr.Unauthenticated("no identity")
	}

	user, err := g.lookupUser(ctx, r, identity.Subject)
	if err != nil {
		return nil, err
	}

	if !user.IsActive {
		return nil, apperr.Forbidden("user account is deactivated")
	}

	tenant, err := r.GetTenant(ctx, user.TenantID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.Forbidden("tenant is not available")
		}
		return nil, fmt.Errorf("failed to load caller tenant: %w", err)
	}
	if !tenant.IsActive {
		return nil, apperr.Forbidden("tenant is deactivated")
	}

	return &Caller{
		User:     user,
		TenantID: user.TenantID,
		Scope:    tenancy.Tenant(user.TenantID),
	}, nil
}

// lookupUser maps subject to a user. The cache only stores the user id; the
// row is always re-read so deactivation takes effect immediately.
func (g *Guard) lookupUser(ctx context.Context, r Reader, subject string) (*models.User, error) {
	if id, ok := g.subjects.Get(subject); ok {
		user, err := r.GetUser(ctx, id)
		if err == nil && user.Subject == subject {
			g.metrics.ObserveIdentityCache(true)
			return user, nil
		}
		if err != nil && !apperr.IsNotFound(err) {
			return nil, fmt.Errorf("failed to load caller: %w", err)
		}
		g.subjects.Remove(subject)
	}
	g.metrics.ObserveIdentityCache(false)

	user, err := r.GetUserBySubject(ctx, subject)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.PrincipalNotFound()
		}
		return nil, fmt.Errorf("failed to load caller: %w", err)
	}

	g.subjects.Add(subject, user.ID)
	return user, nil
}

func (g *Guard) loadRoles(ctx context.Context, r Reader, caller *Caller) error {
	rows, err := r.ListUserRoles(ctx, caller.User.ID, true)
	if err != nil {
		return fmt.Errorf("failed to load caller roles: %w", err)
	}

	roles := make([]rbac.Role, 0, len(rows))
	for _, row := range rows {
		roles = append(roles, row.Role)
		if row.IsPrimary {
			caller.PrimaryRole = row.Role
		}
	}
	caller.Roles = rbac.NewRoleSet(roles...)

	if caller.IsSystemAdmin() {
		caller.Scope = tenancy.Global()
	}
	return nil
}

func (g *Guard) deny(ctx context.Context, caller *Caller, check, format string, args ...interface{}) error {
	err := apperr.Forbidden(format, args...)
	g.metrics.ObserveAuthz(check, "denied")

	ctx = caller.Bind(ctx)
	observability.FromContext(ctx).WithField("check", check).Info(err.Error())
	if auditErr := audit.LogDenied(ctx, g.audit, check, fmt.Sprintf(format, args...)); auditErr != nil {
		observability.FromContext(ctx).WithError(auditErr).Warn("Failed to audit access denial")
	}
	return err
}

func outcome(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindUnauthenticated:
		return "unauthenticated"
	case apperr.KindPrincipalNotFound:
		return "principal_not_found"
	case apperr.KindForbidden:
		return "denied"
	default:
		return "error"
	}
}
