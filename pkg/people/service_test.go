package people_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/audit"
	"github.com/platinummonkey/sunup/pkg/auth"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/people"
	"github.com/platinummonkey/sunup/pkg/pipeline"
	"github.com/platinummonkey/sunup/pkg/rbac"
	"github.com/platinummonkey/sunup/pkg/storage"
	"github.com/platinummonkey/sunup/pkg/storage/storagetest"
)

type fixture struct {
	store   *storage.Store
	svc     *people.Service
	audit   *audit.MemoryLogger
	tenant  *models.Tenant
	manager *models.User
	setter  *models.User
	other   *models.Tenant
	rival   *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storagetest.NewStore(t)
	mem := audit.NewMemoryLogger()
	guard := auth.NewGuard(auth.GuardOptions{Audit: mem})
	stages := pipeline.NewService(store, guard, pipeline.Options{Audit: mem})

	tenant := storagetest.Tenant(t, store, "Acme Solar")
	storagetest.Stages(t, store, tenant.ID)
	other := storagetest.Tenant(t, store, "Rival Solar")
	storagetest.Stages(t, store, other.ID)

	return &fixture{
		store:   store,
		svc:     people.NewService(store, guard, stages, mem),
		audit:   mem,
		tenant:  tenant,
		manager: storagetest.User(t, store, tenant.ID, "manager@acme.test", rbac.RoleSalesManager),
		setter:  storagetest.User(t, store, tenant.ID, "setter@acme.test", rbac.RoleSetter),
		other:   other,
		rival:   storagetest.User(t, store, other.ID, "manager@rival.test", rbac.RoleSalesManager),
	}
}

func as(user *models.User) context.Context {
	return auth.WithIdentity(context.Background(), &auth.Identity{Subject: user.Subject})
}

func (f *fixture) organization(t *testing.T, tenantID, name string) *models.Organization {
	t.Helper()
	org := &models.Organization{
		Name:           name,
		Type:           models.OrganizationResidential,
		BillingAddress: models.Address{Street: "1 Sun Way", City: "Austin", State: "TX", ZipCode: "78701", Country: "US"},
		TenantID:       tenantID,
	}
	require.NoError(t, f.store.WithTx(context.Background(), func(tx *storage.Tx) error {
		return tx.CreateOrganization(context.Background(), org)
	}))
	return org
}

func TestCreatePerson(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.CreatePerson(as(f.manager), people.NewPerson{
		FirstName: " Pat ",
		LastName:  "Lee",
		Email:     "  Pat.Lee@Example.COM ",
		Stage:     models.StringPtr("Met"),
	})
	require.NoError(t, err)
	assert.Equal(t, "pat.lee@example.com", p.Email)
	assert.Equal(t, "Pat", p.FirstName)
	assert.Equal(t, f.tenant.ID, p.TenantID)
	assert.Equal(t, "Met", p.Stage())

	var history []storage.HistoryEntry
	require.NoError(t, f.store.View(context.Background(), func(tx *storage.Tx) error {
		var err error
		history, err = tx.ListHistory(context.Background(), f.tenant.ID, p.ID, 10)
		return err
	}))
	require.Len(t, history, 1)
	assert.Nil(t, history[0].FromStage)
	assert.Equal(t, "Met", history[0].ToStage)
	require.NotNil(t, history[0].ChangeReason)
	assert.Equal(t, "Initial person creation", *history[0].ChangeReason)

	assert.Len(t, f.audit.ByType(audit.EventTypeDataPersonCreate), 1)
}

func TestCreatePerson_Rejections(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreatePerson(as(f.manager), people.NewPerson{FirstName: "Pat", LastName: "Lee", Email: "pat@example.com"})
	require.NoError(t, err)

	tests := []struct {
		name string
		ctx  context.Context
		in   people.NewPerson
		kind apperr.Kind
	}{
		{
			name: "duplicate email in tenant",
			ctx:  as(f.manager),
			in:   people.NewPerson{FirstName: "Pat", LastName: "Two", Email: "PAT@example.com"},
			kind: apperr.KindValidation,
		},
		{
			name: "bad email",
			ctx:  as(f.manager),
			in:   people.NewPerson{FirstName: "Pat", LastName: "Lee", Email: "pat-at-example"},
			kind: apperr.KindValidation,
		},
		{
			name: "inactive or unknown stage",
			ctx:  as(f.manager),
			in:   people.NewPerson{FirstName: "Sam", LastName: "Lee", Email: "sam@example.com", Stage: models.StringPtr("Closed")},
			kind: apperr.KindInvalidStage,
		},
		{
			name: "setter cannot create",
			ctx:  as(f.setter),
			in:   people.NewPerson{FirstName: "Sam", LastName: "Lee", Email: "sam@example.com"},
			kind: apperr.KindForbidden,
		},
		{
			name: "anonymous",
			ctx:  context.Background(),
			in:   people.NewPerson{FirstName: "Sam", LastName: "Lee", Email: "sam@example.com"},
			kind: apperr.KindUnauthenticated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreatePerson(tt.ctx, tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err), err.Error())
		})
	}

	// The failed stage assignment rolled back the insert.
	found, err := f.svc.SearchPersons(as(f.manager), "sam@example.com", 0)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestCreatePerson_EmailUniquePerTenantOnly(t *testing.T) {
	f := newFixture(t)
	in := people.NewPerson{FirstName: "Pat", LastName: "Lee", Email: "pat@example.com"}

	_, err := f.svc.CreatePerson(as(f.manager), in)
	require.NoError(t, err)
	_, err = f.svc.CreatePerson(as(f.rival), in)
	assert.NoError(t, err)
}

func TestTenantIsolation(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.CreatePerson(as(f.manager), people.NewPerson{FirstName: "Pat", LastName: "Lee", Email: "pat@example.com"})
	require.NoError(t, err)

	rival := as(f.rival)

	_, err = f.svc.GetPersonByID(rival, p.ID)
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.svc.UpdatePerson(rival, p.ID, people.PersonUpdate{FirstName: models.StringPtr("Hijacked")})
	assert.True(t, apperr.IsKind(err, apperr.KindCrossTenantAccess))

	err = f.svc.DeletePerson(rival, p.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindCrossTenantAccess))

	list, err := f.svc.ListPersonsByTenant(rival, people.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)

	found, err := f.svc.SearchPersons(rival, "pat", 0)
	require.NoError(t, err)
	assert.Empty(t, found)

	got, err := f.svc.GetPersonByID(as(f.setter), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pat", got.FirstName)
}

func TestUpdatePerson(t *testing.T) {
	f := newFixture(t)
	ctx := as(f.manager)
	p, err := f.svc.CreatePerson(ctx, people.NewPerson{FirstName: "Pat", LastName: "Lee", Email: "pat@example.com"})
	require.NoError(t, err)
	_, err = f.svc.CreatePerson(ctx, people.NewPerson{FirstName: "Sam", LastName: "Lee", Email: "sam@example.com"})
	require.NoError(t, err)

	org := f.organization(t, f.tenant.ID, "Lee Household")
	updated, err := f.svc.UpdatePerson(as(f.setter), p.ID, people.PersonUpdate{
		LastName:       models.StringPtr("Lee-Park"),
		Phone:          models.StringPtr("555-010-2000"),
		OrganizationID: &org.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Pat", updated.FirstName)
	assert.Equal(t, "Lee-Park", updated.LastName)
	assert.Equal(t, "555-010-2000", *updated.Phone)

	_, err = f.svc.UpdatePerson(ctx, p.ID, people.PersonUpdate{Email: models.StringPtr("SAM@example.com")})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = f.svc.UpdatePerson(ctx, p.ID, people.PersonUpdate{Email: models.StringPtr("PAT@EXAMPLE.COM")})
	assert.NoError(t, err)

	foreign := f.organization(t, f.other.ID, "Rival Customer")
	_, err = f.svc.UpdatePerson(ctx, p.ID, people.PersonUpdate{OrganizationID: &foreign.ID})
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.svc.UpdatePerson(ctx, "missing", people.PersonUpdate{})
	assert.True(t, apperr.IsNotFound(err))
}

func TestDeletePerson(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.CreatePerson(as(f.manager), people.NewPerson{FirstName: "Pat", LastName: "Lee", Email: "pat@example.com"})
	require.NoError(t, err)

	err = f.svc.DeletePerson(as(f.setter), p.ID)
	assert.True(t, apperr.IsForbidden(err))

	require.NoError(t, f.svc.DeletePerson(as(f.manager), p.ID))

	_, err = f.svc.GetPersonByID(as(f.manager), p.ID)
	assert.True(t, apperr.IsNotFound(err))
	assert.Len(t, f.audit.ByType(audit.EventTypeDataPersonDelete), 1)
}

func TestListPersonsByTenant(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 105; i++ {
		stage := "Lead"
		if i%5 == 0 {
			stage = "Set"
		}
		storagetest.Person(t, f.store, f.tenant.ID, fmt.Sprintf("p%03d@example.com", i), stage)
	}
	ctx := as(f.setter)

	def, err := f.svc.ListPersonsByTenant(ctx, people.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, def, 50)

	capped, err := f.svc.ListPersonsByTenant(ctx, people.ListOptions{Limit: 500})
	require.NoError(t, err)
	assert.Len(t, capped, 100)

	set, err := f.svc.ListPersonsByTenant(ctx, people.ListOptions{Stage: "Set", Limit: 100})
	require.NoError(t, err)
	assert.Len(t, set, 21)
	for _, p := range set {
		assert.Equal(t, "Set", p.Stage())
	}
}

func TestSearchPersons(t *testing.T) {
	f := newFixture(t)
	ctx := as(f.manager)
	for _, in := range []people.NewPerson{
		{FirstName: "Maria", LastName: "Garcia", Email: "maria@example.com"},
		{FirstName: "Mario", LastName: "Rossi", Email: "mrossi@example.com"},
		{FirstName: "Ann", LastName: "Smith", Email: "ann_smith@example.com"},
	} {
		_, err := f.svc.CreatePerson(ctx, in)
		require.NoError(t, err)
	}

	found, err := f.svc.SearchPersons(ctx, "MARI", 0)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = f.svc.SearchPersons(ctx, "ann_", 0)
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = f.svc.SearchPersons(ctx, "   ", 0)
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = f.svc.SearchPersons(ctx, "example.com", 1)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestGetPersonsByOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := as(f.manager)
	org := f.organization(t, f.tenant.ID, "Lee Household")

	_, err := f.svc.CreatePerson(ctx, people.NewPerson{FirstName: "Pat", LastName: "Lee", Email: "pat@example.com", OrganizationID: &org.ID})
	require.NoError(t, err)
	_, err = f.svc.CreatePerson(ctx, people.NewPerson{FirstName: "Sam", LastName: "Other", Email: "sam@example.com"})
	require.NoError(t, err)

	members, err := f.svc.GetPersonsByOrganization(ctx, org.ID, 0)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "pat@example.com", members[0].Email)

	_, err = f.svc.GetPersonsByOrganization(as(f.rival), org.ID, 0)
	assert.True(t, apperr.IsNotFound(err))
}
