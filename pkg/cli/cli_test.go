package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/sunup/pkg/audit"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/storage"
	"github.com/platinummonkey/sunup/pkg/storage/storagetest"
	"github.com/platinummonkey/sunup/pkg/users"
)

func newTestEnv(t *testing.T) *Env {
	t.Helper()
	env, err := NewEnv(storagetest.NewDB(t), storage.DriverSQLite, nil)
	require.NoError(t, err)
	return env
}

// run executes one sunup-admin invocation against env and returns its stdout
func run(t *testing.T, env *Env, args ...string) (string, error) {
	t.Helper()
	app := NewApp(
		WithOpener(func(context.Context, string) (*Env, error) { return env, nil }),
		WithLogOutput(io.Discard),
	)
	root := app.NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNewRootCommand(t *testing.T) {
	root := NewApp().NewRootCommand()
	assert.Equal(t, "sunup-admin", root.Name())

	expected := []string{
		"migrate",
		"create-tenant",
		"list-tenants",
		"init-stages",
		"invite-user",
		"provision-user",
		"sync-profile",
		"audit",
	}
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, name := range expected {
		assert.Contains(t, names, name)
	}

	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestMigrate(t *testing.T) {
	env := newTestEnv(t)
	_, err := run(t, env, "migrate")
	require.NoError(t, err)
}

func TestCreateTenant(t *testing.T) {
	env := newTestEnv(t)

	settings := filepath.Join(t.TempDir(), "tenant.yaml")
	require.NoError(t, os.WriteFile(settings, []byte(`
pipeline_stages:
  - name: Lead
    order: 1
    category: sales
  - name: Sale
    order: 2
    category: sales
`), 0o600))

	out, err := run(t, env, "create-tenant", "--name", "  Fresh   Solar ", "--domain", "Fresh.Test",
		"--settings", settings, "--seed-stages")
	require.NoError(t, err)

	var tenant models.Tenant
	require.NoError(t, json.Unmarshal([]byte(out), &tenant))
	assert.Equal(t, "Fresh Solar", tenant.Name)
	assert.True(t, tenant.IsActive)
	require.NotEmpty(t, tenant.ID)

	var stages []models.PipelineStage
	require.NoError(t, env.Store.View(context.Background(), func(tx *storage.Tx) error {
		var err error
		stages, err = tx.ListStages(context.Background(), tenant.ID, false)
		return err
	}))
	require.Len(t, stages, 2)
	assert.Equal(t, "Lead", stages[0].Name)
	assert.Equal(t, "Sale", stages[1].Name)

	out, err = run(t, env, "list-tenants")
	require.NoError(t, err)
	assert.Contains(t, out, "Fresh Solar")
	assert.Contains(t, out, tenant.ID)

	// A second seed is refused.
	_, err = run(t, env, "init-stages", tenant.ID)
	require.Error(t, err)
}

func TestCreateTenant_Validation(t *testing.T) {
	env := newTestEnv(t)

	_, err := run(t, env, "create-tenant", "--name", "")
	require.Error(t, err)

	_, err = run(t, env, "create-tenant", "--name", "Acme", "--settings", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestInitStages_Defaults(t *testing.T) {
	env := newTestEnv(t)
	tenant := storagetest.Tenant(t, env.Store, "Acme Solar")

	out, err := run(t, env, "init-stages", tenant.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Lead")
	assert.Contains(t, out, "Sale")
}

func TestBootstrapAdministrator(t *testing.T) {
	env := newTestEnv(t)
	tenant := storagetest.Tenant(t, env.Store, "Acme Solar")

	out, err := run(t, env, "invite-user",
		"--tenant-id", tenant.ID,
		"--email", "Ops@Acme.test",
		"--first-name", "ada",
		"--last-name", "ops",
		"--roles", "System Administrator, Sales Manager",
	)
	require.NoError(t, err)

	var invited users.UserWithRoles
	require.NoError(t, json.Unmarshal([]byte(out), &invited))
	assert.Equal(t, "ops@acme.test", invited.Email)
	require.Len(t, invited.Roles, 2)
	assert.True(t, strings.HasPrefix(invited.Subject, users.PendingSubjectPrefix))

	out, err = run(t, env, "provision-user", "ops@acme.test", "idp|ops")
	require.NoError(t, err)
	var provisioned models.User
	require.NoError(t, json.Unmarshal([]byte(out), &provisioned))
	assert.Equal(t, "idp|ops", provisioned.Subject)
	assert.Equal(t, invited.ID, provisioned.ID)

	out, err = run(t, env, "sync-profile", "idp|ops", "--given-name", "Adaline")
	require.NoError(t, err)
	var synced models.User
	require.NoError(t, json.Unmarshal([]byte(out), &synced))
	assert.Equal(t, "Adaline", synced.FirstName)
	assert.Equal(t, invited.LastName, synced.LastName)

	_, err = run(t, env, "provision-user", "nobody@acme.test", "idp|nobody")
	require.Error(t, err)

	_, err = run(t, env, "provision-user", "ops@acme.test")
	require.Error(t, err, "subject argument is required")
}

func TestInviteUser_UnknownRole(t *testing.T) {
	env := newTestEnv(t)
	tenant := storagetest.Tenant(t, env.Store, "Acme Solar")

	_, err := run(t, env, "invite-user", "--tenant-id", tenant.ID, "--email", "x@acme.test",
		"--first-name", "X", "--last-name", "Y", "--roles", "Astronaut")
	require.Error(t, err)
}

func TestAuditList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, ev := range []*audit.AuditEvent{
		{EventType: audit.EventTypeAdminTenantCreate, Status: audit.EventStatusSuccess, TenantID: "t1", Message: "one"},
		{EventType: audit.EventTypeAuthzAccessDenied, Status: audit.EventStatusDenied, TenantID: "t1", Message: "two"},
		{EventType: audit.EventTypeAdminTenantCreate, Status: audit.EventStatusSuccess, TenantID: "t2", Message: "three"},
	} {
		ev.Timestamp = time.Now().UTC()
		require.NoError(t, env.Audit.Log(ctx, ev))
	}

	out, err := run(t, env, "audit", "list", "--for-tenant", "t1", "--format", "ndjson")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 2)

	out, err = run(t, env, "audit", "list", "--event-type", string(audit.EventTypeAdminTenantCreate), "--format", "json")
	require.NoError(t, err)
	var events []audit.AuditEvent
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	assert.Len(t, events, 2)

	_, err = run(t, env, "audit", "list", "--format", "xml")
	require.Error(t, err)

	_, err = run(t, env, "audit", "list", "--since", "yesterday")
	require.Error(t, err)
}

func TestAuditPrune(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.Audit.Log(ctx, &audit.AuditEvent{
		EventType: audit.EventTypeAdminTenantCreate,
		Status:    audit.EventStatusSuccess,
		Timestamp: time.Now().UTC().AddDate(0, 0, -400),
	}))
	require.NoError(t, env.Audit.Log(ctx, &audit.AuditEvent{
		EventType: audit.EventTypeAdminTenantCreate,
		Status:    audit.EventStatusSuccess,
		Timestamp: time.Now().UTC(),
	}))

	_, err := run(t, env, "audit", "prune", "--retention-days", "365")
	require.NoError(t, err)

	remaining, err := env.Audit.Search(ctx, audit.SearchFilter{})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	_, err = run(t, env, "audit", "prune", "--retention-days", "0")
	require.Error(t, err)
}

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseSince("24h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), got)

	got, err = parseSince("2026-02-01T00:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = parseSince("-1h", now)
	require.Error(t, err)
	_, err = parseSince("soon", now)
	require.Error(t, err)
}

func TestSplitRoles(t *testing.T) {
	assert.Nil(t, splitRoles(""))
	assert.Equal(t, []string{"System Administrator", "Setter"}, splitRoles(" System Administrator ,, Setter"))
}
