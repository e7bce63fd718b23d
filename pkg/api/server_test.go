package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/sunup/pkg/api"
	"github.com/platinummonkey/sunup/pkg/audit"
	"github.com/platinummonkey/sunup/pkg/auth"
	"github.com/platinummonkey/sunup/pkg/httputil"
	"github.com/platinummonkey/sunup/pkg/middleware"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/organizations"
	"github.com/platinummonkey/sunup/pkg/people"
	"github.com/platinummonkey/sunup/pkg/pipeline"
	"github.com/platinummonkey/sunup/pkg/rbac"
	"github.com/platinummonkey/sunup/pkg/storage/storagetest"
	"github.com/platinummonkey/sunup/pkg/users"
)

const subjectHeader = "X-Sunup-Subject"

type fixture struct {
	handler http.Handler
	tenant  *models.Tenant
	admin   *models.User
	manager *models.User
	setter  *models.User
	rival   *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storagetest.NewStore(t)
	mem := audit.NewMemoryLogger()
	guard := auth.NewGuard(auth.GuardOptions{Audit: mem})
	stages := pipeline.NewService(store, guard, pipeline.Options{Audit: mem})

	server := api.NewServer(api.Services{
		People:        people.NewService(store, guard, stages, mem),
		Pipeline:      stages,
		Users:         users.NewService(store, guard, mem),
		Organizations: organizations.NewService(store, guard, mem),
	})

	tenant := storagetest.Tenant(t, store, "Acme Solar")
	storagetest.Stages(t, store, tenant.ID)
	other := storagetest.Tenant(t, store, "Rival Solar")
	storagetest.Stages(t, store, other.ID)

	return &fixture{
		handler: middleware.IdentityMiddleware(auth.NewHeaderSource(subjectHeader))(server),
		tenant:  tenant,
		admin:   storagetest.User(t, store, tenant.ID, "admin@acme.test", rbac.RoleSystemAdmin),
		manager: storagetest.User(t, store, tenant.ID, "manager@acme.test", rbac.RoleSalesManager),
		setter:  storagetest.User(t, store, tenant.ID, "setter@acme.test", rbac.RoleSetter),
		rival:   storagetest.User(t, store, other.ID, "manager@rival.test", rbac.RoleSalesManager),
	}
}

// do sends a request as user (anonymous when nil) and decodes the response
// body into out when out is non-nil
func (f *fixture) do(t *testing.T, user *models.User, method, path string, body interface{}, out interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, api.Prefix+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set(subjectHeader, user.Subject)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var resp httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestSession(t *testing.T) {
	f := newFixture(t)

	var session users.Session
	rec := f.do(t, nil, http.MethodGet, "/session", nil, &session)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, session.Authenticated)
	assert.Nil(t, session.Me)

	unknown := &models.User{Subject: "sub-nobody"}
	rec = f.do(t, unknown, http.MethodGet, "/session", nil, &session)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, session.Authenticated)
	assert.NotEmpty(t, session.Reason)

	rec = f.do(t, f.manager, http.MethodGet, "/session", nil, &session)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, session.Authenticated)
	assert.Equal(t, f.manager.ID, session.Me.User.ID)
	assert.Equal(t, "Acme Solar", session.Me.TenantName)
}

func TestMe(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, nil, http.MethodGet, "/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", errorOf(t, rec).Kind)

	var me users.Me
	rec = f.do(t, f.setter, http.MethodGet, "/me", nil, &me)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, rbac.RoleSetter, me.PrimaryRole)
	assert.Contains(t, me.Permissions, "person:read")

	var roles struct {
		Items []models.UserRole `json:"items"`
		Count int               `json:"count"`
	}
	rec = f.do(t, f.setter, http.MethodGet, "/me/roles", nil, &roles)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, roles.Count)
}

func TestPersonLifecycle(t *testing.T) {
	f := newFixture(t)

	var person models.Person
	rec := f.do(t, f.manager, http.MethodPost, "/people", map[string]interface{}{
		"first_name": "Pat",
		"last_name":  "Lee",
		"email":      "pat@example.com",
		"stage":      "Lead",
	}, &person)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotEmpty(t, person.ID)
	assert.Equal(t, f.tenant.ID, person.TenantID)

	rec = f.do(t, f.setter, http.MethodGet, "/people/"+person.ID, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, f.rival, http.MethodGet, "/people/"+person.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "other tenants see nothing")

	var transition pipeline.Transition
	rec = f.do(t, f.setter, http.MethodPost, "/people/"+person.ID+"/stage", api.MoveRequest{ToStage: "Set"}, &transition)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, transition.FromStage)
	assert.Equal(t, "Lead", *transition.FromStage)
	assert.Equal(t, "Set", transition.ToStage)

	rec = f.do(t, f.setter, http.MethodPost, "/people/"+person.ID+"/stage", api.MoveRequest{ToStage: "QMet"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := errorOf(t, rec)
	assert.Equal(t, "stage_skipped", resp.Kind)
	assert.Equal(t, []string{"Met"}, resp.Details)

	rec = f.do(t, f.setter, http.MethodPost, "/people/"+person.ID+"/stage", api.MoveRequest{ToStage: "Nowhere"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_stage", errorOf(t, rec).Kind)

	var history struct {
		Count int `json:"count"`
	}
	rec = f.do(t, f.setter, http.MethodGet, "/people/"+person.ID+"/history", nil, &history)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, history.Count)

	var updated models.Person
	rec = f.do(t, f.setter, http.MethodPatch, "/people/"+person.ID, map[string]string{"phone": "512-555-0100"}, &updated)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, updated.Phone)

	rec = f.do(t, f.rival, http.MethodPatch, "/people/"+person.ID, map[string]string{"phone": "1"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "cross_tenant_access", errorOf(t, rec).Kind)

	rec = f.do(t, f.setter, http.MethodDelete, "/people/"+person.ID, nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, f.manager, http.MethodDelete, "/people/"+person.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, f.manager, http.MethodGet, "/people/"+person.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAndSearchPeople(t *testing.T) {
	f := newFixture(t)

	for _, email := range []string{"ann@example.com", "bob@example.com"} {
		rec := f.do(t, f.manager, http.MethodPost, "/people", map[string]interface{}{
			"first_name": "Test",
			"last_name":  email,
			"email":      email,
			"stage":      "Lead",
		}, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	var resp struct {
		Items []models.Person `json:"items"`
		Count int             `json:"count"`
	}
	rec := f.do(t, f.manager, http.MethodGet, "/people?stage=Lead", nil, &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, resp.Count)

	rec = f.do(t, f.manager, http.MethodGet, "/people/search?q=ann", nil, &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "ann@example.com", resp.Items[0].Email)

	rec = f.do(t, f.rival, http.MethodGet, "/people", nil, &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Items)

	rec = f.do(t, f.manager, http.MethodGet, "/people?limit=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrganizations(t *testing.T) {
	f := newFixture(t)

	var org models.Organization
	rec := f.do(t, f.manager, http.MethodPost, "/organizations", map[string]interface{}{
		"name": "Sunny Homes",
		"type": "Residential",
		"billing_address": map[string]string{
			"street": "1 Sun Way", "city": "Austin", "state": "TX", "zip_code": "78701", "country": "US",
		},
	}, &org)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, f.manager, http.MethodPost, "/people", map[string]interface{}{
		"first_name":      "Org",
		"last_name":       "Member",
		"email":           "member@sunny.test",
		"organization_id": org.ID,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var members struct {
		Count int `json:"count"`
	}
	rec = f.do(t, f.manager, http.MethodGet, "/organizations/"+org.ID+"/people", nil, &members)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, members.Count)

	rec = f.do(t, f.manager, http.MethodGet, "/organizations/"+org.ID, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, f.rival, http.MethodGet, "/organizations/"+org.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, f.manager, http.MethodPost, "/organizations", map[string]interface{}{"name": ""}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", errorOf(t, rec).Kind)

	var updated models.Organization
	rec = f.do(t, f.manager, http.MethodPatch, "/organizations/"+org.ID, map[string]interface{}{"type": "Commercial"}, &updated)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.OrganizationCommercial, updated.Type)

	var commercial struct {
		Count int `json:"count"`
	}
	rec = f.do(t, f.manager, http.MethodGet, "/organizations?type=Commercial", nil, &commercial)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, commercial.Count)

	rec = f.do(t, f.rival, http.MethodDelete, "/organizations/"+org.ID, nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, f.manager, http.MethodDelete, "/organizations/"+org.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, f.manager, http.MethodGet, "/organizations/"+org.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPipelineStages(t *testing.T) {
	f := newFixture(t)

	var stages struct {
		Items []models.PipelineStage `json:"items"`
		Count int                    `json:"count"`
	}
	rec := f.do(t, f.setter, http.MethodGet, "/pipeline/stages", nil, &stages)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotZero(t, stages.Count)
	assert.Equal(t, "Lead", stages.Items[0].Name)

	rec = f.do(t, f.setter, http.MethodGet, "/pipeline/stages/by-name/Set", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	newStage := pipeline.NewStage{Name: "Referral", Order: 100, Category: models.CategorySales}
	rec = f.do(t, f.manager, http.MethodPost, "/pipeline/stages", newStage, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var created models.PipelineStage
	rec = f.do(t, f.admin, http.MethodPost, "/pipeline/stages", newStage, &created)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, f.admin, http.MethodPut, "/pipeline/stages/order", []pipeline.StageOrder{{StageID: created.ID, Order: 101}}, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var deactivated models.PipelineStage
	rec = f.do(t, f.admin, http.MethodPost, "/pipeline/stages/"+created.ID+"/deactivate", nil, &deactivated)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, deactivated.IsActive)

	rec = f.do(t, f.admin, http.MethodPost, "/pipeline/stages/initialize", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "tenant already has stages")

	var stats pipeline.Statistics
	rec = f.do(t, f.setter, http.MethodGet, "/pipeline/statistics", nil, &stats)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, stats.Total)
}

func TestUserRoles(t *testing.T) {
	f := newFixture(t)

	var role models.UserRole
	rec := f.do(t, f.admin, http.MethodPost, "/users/"+f.setter.ID+"/roles", api.AssignRoleRequest{Role: "Consultant"}, &role)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, rbac.RoleConsultant, role.Role)

	rec = f.do(t, f.admin, http.MethodPut, "/users/"+f.setter.ID+"/primary-role", api.PrimaryRoleRequest{UserRoleID: role.ID}, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	var roles struct {
		Items []models.UserRole `json:"items"`
	}
	rec = f.do(t, f.setter, http.MethodGet, "/users/"+f.setter.ID+"/roles", nil, &roles)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, roles.Items, 2)

	rec = f.do(t, f.setter, http.MethodGet, "/users/"+f.manager.ID+"/roles", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, f.admin, http.MethodPatch, "/users/"+f.setter.ID+"/roles", api.UpdateRoleRequest{Role: "Setter", Operation: users.RoleRemove}, &roles)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, roles.Items, 1)

	rec = f.do(t, f.admin, http.MethodPost, "/user-roles/"+role.ID+"/deactivate", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "last active role stays")

	rec = f.do(t, f.admin, http.MethodPost, "/users/"+f.setter.ID+"/roles", api.AssignRoleRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsers(t *testing.T) {
	f := newFixture(t)

	var created users.UserWithRoles
	rec := f.do(t, f.admin, http.MethodPost, "/users", users.NewUser{
		Email:     "new@acme.test",
		FirstName: "New",
		LastName:  "Hire",
	}, &created)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, created.Roles, 1)
	assert.Equal(t, rbac.RoleSetter, created.Roles[0].Role)

	var list struct {
		Count int `json:"count"`
	}
	rec = f.do(t, f.admin, http.MethodGet, "/users", nil, &list)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, list.Count, "system administrators list every tenant")

	rec = f.do(t, f.setter, http.MethodGet, "/users", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, f.admin, http.MethodPut, "/users/"+f.setter.ID+"/status", map[string]bool{"is_active": false}, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, f.setter, http.MethodGet, "/me", nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "deactivated users are refused")

	rec = f.do(t, f.admin, http.MethodPut, "/users/"+f.setter.ID+"/status", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouting(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, f.manager, http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, f.manager, http.MethodPut, "/people", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = f.do(t, f.manager, http.MethodPost, "/people", map[string]string{"unexpected": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
