package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/audit"
	"github.com/platinummonkey/sunup/pkg/auth"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/rbac"
	"github.com/platinummonkey/sunup/pkg/storage"
	"github.com/platinummonkey/sunup/pkg/storage/storagetest"
	"github.com/platinummonkey/sunup/pkg/tenancy"
)

type guardFixture struct {
	store  *storage.Store
	guard  *auth.Guard
	audit  *audit.MemoryLogger
	tenant *models.Tenant
}

func newGuardFixture(t *testing.T) *guardFixture {
	store := storagetest.NewStore(t)
	mem := audit.NewMemoryLogger()
	return &guardFixture{
		store:  store,
		guard:  auth.NewGuard(auth.GuardOptions{Audit: mem}),
		audit:  mem,
		tenant: storagetest.Tenant(t, store, "Acme Solar"),
	}
}

func as(email string) context.Context {
	return auth.WithIdentity(context.Background(), &auth.Identity{Subject: "sub-" + email})
}

func (f *guardFixture) view(t *testing.T, fn func(tx *storage.Tx) error) error {
	t.Helper()
	return f.store.View(context.Background(), fn)
}

func TestResolveCaller_NoIdentity(t *testing.T) {
	f := newGuardFixture(t)
	err := f.view(t, func(tx *storage.Tx) error {
		_, err := f.guard.ResolveCaller(context.Background(), tx)
		return err
	})
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthenticated))
	assert.Contains(t, err.Error(), "Unauthorized")
}

func TestResolveCaller_UnknownSubject(t *testing.T) {
	f := newGuardFixture(t)
	err := f.view(t, func(tx *storage.Tx) error {
		_, err := f.guard.ResolveCaller(as("ghost@example.com"), tx)
		return err
	})
	assert.True(t, apperr.IsKind(err, apperr.KindPrincipalNotFound))
	assert.Equal(t, "User not found", err.Error())
}

func TestResolveCaller_Resolves(t *testing.T) {
	f := newGuardFixture(t)
	user := storagetest.User(t, f.store, f.tenant.ID, "setter@example.com", rbac.RoleSetter)

	var caller *auth.Caller
	require.NoError(t, f.view(t, func(tx *storage.Tx) error {
		var err error
		caller, err = f.guard.ResolveCaller(as("setter@example.com"), tx)
		return err
	}))
	assert.Equal(t, user.ID, caller.UserID())
	assert.Equal(t, f.tenant.ID, caller.TenantID)
	assert.False(t, caller.Scope.IsGlobal())
	assert.Nil(t, caller.Roles)
}

func TestResolveCaller_Deactivated(t *testing.T) {
	f := newGuardFixture(t)
	ctx := context.Background()
	user := storagetest.User(t, f.store, f.tenant.ID, "setter@example.com", rbac.RoleSetter)

	resolve := func() error {
		return f.view(t, func(tx *storage.Tx) error {
			_, err := f.guard.ResolveCaller(as("setter@example.com"), tx)
			return err
		})
	}
	require.NoError(t, resolve())

	// The cached subject mapping must not hide a deactivation.
	require.NoError(t, f.store.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.SetUserActive(ctx, user.ID, false)
	}))
	err := resolve()
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	require.NoError(t, f.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.SetUserActive(ctx, user.ID, true); err != nil {
			return err
		}
		return tx.SetTenantActive(ctx, f.tenant.ID, false)
	}))
	err = resolve()
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	assert.Contains(t, err.Error(), "tenant is deactivated")
}

func TestResolveCallerWithRoles_Scope(t *testing.T) {
	f := newGuardFixture(t)
	storagetest.User(t, f.store, f.tenant.ID, "admin@example.com", rbac.RoleSystemAdmin, rbac.RoleFinance)
	storagetest.User(t, f.store, f.tenant.ID, "consultant@example.com", rbac.RoleConsultant)

	require.NoError(t, f.view(t, func(tx *storage.Tx) error {
		admin, err := f.guard.ResolveCallerWithRoles(as("admin@example.com"), tx)
		require.NoError(t, err)
		assert.True(t, admin.Scope.IsGlobal())
		assert.True(t, admin.TenantScope().Allows(f.tenant.ID))
		assert.False(t, admin.TenantScope().IsGlobal())
		assert.Equal(t, rbac.RoleSystemAdmin, admin.PrimaryRole)
		assert.True(t, admin.Roles.Has(rbac.RoleFinance))

		consultant, err := f.guard.ResolveCallerWithRoles(as("consultant@example.com"), tx)
		require.NoError(t, err)
		assert.False(t, consultant.Scope.IsGlobal())
		assert.Equal(t, f.tenant.ID, consultant.Scope.TenantID())
		return nil
	}))
}

func TestResolveCallerWithRoles_IgnoresInactiveRoles(t *testing.T) {
	f := newGuardFixture(t)
	ctx := context.Background()
	user := storagetest.User(t, f.store, f.tenant.ID, "x@example.com", rbac.RoleSetter, rbac.RoleSystemAdmin)

	require.NoError(t, f.store.WithTx(ctx, func(tx *storage.Tx) error {
		role, err := tx.FindUserRole(ctx, user.ID, rbac.RoleSystemAdmin)
		if err != nil {
			return err
		}
		return tx.UpdateUserRoleFlags(ctx, role.ID, false, false)
	}))

	require.NoError(t, f.view(t, func(tx *storage.Tx) error {
		caller, err := f.guard.ResolveCallerWithRoles(as("x@example.com"), tx)
		require.NoError(t, err)
		assert.False(t, caller.IsSystemAdmin())
		assert.False(t, caller.Scope.IsGlobal())
		return nil
	}))
}

func TestRequireRole(t *testing.T) {
	f := newGuardFixture(t)
	storagetest.User(t, f.store, f.tenant.ID, "admin@example.com", rbac.RoleSystemAdmin)
	storagetest.User(t, f.store, f.tenant.ID, "setter@example.com", rbac.RoleSetter)

	allowed := []rbac.Role{rbac.RoleFinance, rbac.RoleExecutive, rbac.RoleSystemAdmin}

	require.NoError(t, f.view(t, func(tx *storage.Tx) error {
		_, err := f.guard.RequireRole(as("admin@example.com"), tx, allowed...)
		return err
	}))

	err := f.view(t, func(tx *storage.Tx) error {
		_, err := f.guard.RequireRole(as("setter@example.com"), tx, allowed...)
		return err
	})
	require.Error(t, err)
	assert.True(t, apperr.IsForbidden(err))
	assert.Contains(t, err.Error(), "Forbidden:")

	denied := f.audit.ByType(audit.EventTypeAuthzAccessDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, "requireRole", denied[0].Metadata["check"])
	assert.Equal(t, f.tenant.ID, denied[0].TenantID)
}

func TestRequirePermission(t *testing.T) {
	f := newGuardFixture(t)
	ctx := context.Background()
	storagetest.User(t, f.store, f.tenant.ID, "setter@example.com", rbac.RoleSetter)
	storagetest.User(t, f.store, f.tenant.ID, "norole@example.com")

	tests := []struct {
		name     string
		email    string
		resource rbac.Resource
		action   rbac.Action
		allowed  bool
	}{
		{"setter updates person", "setter@example.com", rbac.ResourcePerson, rbac.ActionUpdate, true},
		{"setter cannot delete person", "setter@example.com", rbac.ResourcePerson, rbac.ActionDelete, false},
		{"setter cannot create users", "setter@example.com", rbac.ResourceUser, rbac.ActionCreate, false},
		{"undeclared action", "setter@example.com", rbac.ResourcePerson, rbac.ActionPay, false},
		{"no roles means no permissions", "norole@example.com", rbac.ResourcePerson, rbac.ActionRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.store.View(ctx, func(tx *storage.Tx) error {
				_, err := f.guard.RequirePermission(as(tt.email), tx, tt.resource, tt.action)
				return err
			})
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperr.IsForbidden(err), "expected forbidden, got %v", err)
			}
		})
	}
}

func TestRequirePrimaryRole(t *testing.T) {
	f := newGuardFixture(t)
	storagetest.User(t, f.store, f.tenant.ID, "mgr@example.com", rbac.RoleSalesManager, rbac.RoleSetter)

	require.NoError(t, f.view(t, func(tx *storage.Tx) error {
		_, err := f.guard.RequirePrimaryRole(as("mgr@example.com"), tx, rbac.RoleSalesManager)
		return err
	}))

	err := f.view(t, func(tx *storage.Tx) error {
		_, err := f.guard.RequirePrimaryRole(as("mgr@example.com"), tx, rbac.RoleSetter)
		return err
	})
	assert.True(t, apperr.IsForbidden(err))
}

func TestTryResolveCaller(t *testing.T) {
	f := newGuardFixture(t)
	storagetest.User(t, f.store, f.tenant.ID, "setter@example.com", rbac.RoleSetter)

	cases := []struct {
		name   string
		ctx    context.Context
		reason apperr.Kind
		authed bool
	}{
		{"no identity", context.Background(), apperr.KindUnauthenticated, false},
		{"unprovisioned", as("ghost@example.com"), apperr.KindPrincipalNotFound, false},
		{"provisioned", as("setter@example.com"), 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, f.view(t, func(tx *storage.Tx) error {
				res, err := f.guard.TryResolveCaller(tc.ctx, tx)
				require.NoError(t, err)
				switch r := res.(type) {
				case auth.Authenticated:
					assert.True(t, tc.authed)
					assert.True(t, r.Caller.Roles.Has(rbac.RoleSetter))
				case auth.Anonymous:
					assert.False(t, tc.authed)
					assert.Equal(t, tc.reason, r.Reason)
				default:
					t.Fatalf("unexpected resolution %T", res)
				}
				return nil
			}))
		})
	}
}

// stubReader serves users from memory and fails on demand
type stubReader struct {
	users   map[string]*models.User
	tenants map[string]*models.Tenant
	err     error
	byID    int
}

func (s *stubReader) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.byID++
	for _, u := range s.users {
		if u.ID == id {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("user")
}

func (s *stubReader) GetUserBySubject(ctx context.Context, subject string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if u, ok := s.users[subject]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, apperr.NotFound("user")
}

func (s *stubReader) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	if t, ok := s.tenants[id]; ok {
		return t, nil
	}
	return nil, apperr.NotFound("tenant")
}

func (s *stubReader) ListUserRoles(ctx context.Context, userID string, activeOnly bool) ([]models.UserRole, error) {
	return nil, nil
}

func TestTryResolveCaller_PropagatesStorageErrors(t *testing.T) {
	guard := auth.NewGuard(auth.GuardOptions{})
	boom := errors.New("connection reset")
	r := &stubReader{err: boom}

	res, err := guard.TryResolveCaller(as("a@example.com"), r)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
}

func TestResolveCaller_CacheFollowsRebind(t *testing.T) {
	guard := auth.NewGuard(auth.GuardOptions{})
	r := &stubReader{
		users: map[string]*models.User{
			"sub-a@example.com": {ID: "u1", Subject: "sub-a@example.com", IsActive: true, TenantID: "t1"},
		},
		tenants: map[string]*models.Tenant{"t1": {ID: "t1", IsActive: true}},
	}

	caller, err := guard.ResolveCaller(as("a@example.com"), r)
	require.NoError(t, err)
	assert.Equal(t, "u1", caller.UserID())

	caller, err = guard.ResolveCaller(as("a@example.com"), r)
	require.NoError(t, err)
	assert.Equal(t, "u1", caller.UserID())
	assert.Equal(t, 1, r.byID, "second lookup served from the cache")

	// The subject now belongs to a different user record.
	r.users["sub-a@example.com"] = &models.User{ID: "u2", Subject: "sub-a@example.com", IsActive: true, TenantID: "t1"}
	r.users["old"] = &models.User{ID: "u1", Subject: "pending:x", IsActive: true, TenantID: "t1"}

	caller, err = guard.ResolveCaller(as("a@example.com"), r)
	require.NoError(t, err)
	assert.Equal(t, "u2", caller.UserID())
}

type commitQueue []func()

func (q *commitQueue) AfterCommit(fn func()) { *q = append(*q, fn) }

func (q commitQueue) commit() {
	for _, fn := range q {
		fn()
	}
}

func TestAuditGlobalScope(t *testing.T) {
	mem := audit.NewMemoryLogger()
	guard := auth.NewGuard(auth.GuardOptions{Audit: mem})
	user := &models.User{ID: "admin"}

	var scoped commitQueue
	guard.AuditGlobalScope(context.Background(), &scoped, &auth.Caller{User: user, TenantID: "t1", Scope: tenancy.Tenant("t1")}, "listUsers")
	assert.Empty(t, scoped)

	var global commitQueue
	guard.AuditGlobalScope(context.Background(), &global, &auth.Caller{User: user, TenantID: "t1", Scope: tenancy.Global()}, "listUsers")
	assert.Empty(t, mem.Events(), "nothing is written before commit")

	global.commit()
	events := mem.ByType(audit.EventTypeAuthzGlobalScope)
	require.Len(t, events, 1)
	assert.Equal(t, "admin", events[0].UserID)
	assert.Equal(t, "listUsers", events[0].Metadata["operation"])
}
