// Package storagetest provides an in-memory SQLite store and fixtures for
// package tests.
package storagetest

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/sunup/pkg/config"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/observability"
	"github.com/platinummonkey/sunup/pkg/rbac"
	"github.com/platinummonkey/sunup/pkg/storage"
)

// NewDB opens a migrated in-memory SQLite database that is closed when the
// test ends.
func NewDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open(storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, storage.Migrate(context.Background(), db, observability.NopLogger()))
	return db
}

// NewStore returns a Store over NewDB
func NewStore(t testing.TB) *storage.Store {
	t.Helper()
	return storage.New(NewDB(t), storage.Options{Driver: storage.DriverSQLite})
}

// Tenant creates an active tenant
func Tenant(t testing.TB, store *storage.Store, name string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{Name: name, IsActive: true}
	require.NoError(t, store.WithTx(context.Background(), func(tx *storage.Tx) error {
		return tx.CreateTenant(context.Background(), tenant)
	}))
	return tenant
}

// User creates an active user in tenantID with the given active roles. The
// first role is primary. The subject is "sub-<email>".
func User(t testing.TB, store *storage.Store, tenantID, email string, roles ...rbac.Role) *models.User {
	t.Helper()
	ctx := context.Background()
	user := &models.User{
		Subject:   "sub-" + email,
		Email:     email,
		FirstName: "Test",
		LastName:  email,
		IsActive:  true,
		TenantID:  tenantID,
	}
	require.NoError(t, store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		for i, role := range roles {
			ur := &models.UserRole{
				UserID:    user.ID,
				Role:      role,
				IsActive:  true,
				IsPrimary: i == 0,
				TenantID:  tenantID,
			}
			if err := tx.CreateUserRole(ctx, ur); err != nil {
				return err
			}
		}
		return nil
	}))
	return user
}

// Stages creates the default pipeline for tenantID and returns it in order
func Stages(t testing.TB, store *storage.Store, tenantID string) []models.PipelineStage {
	t.Helper()
	ctx := context.Background()
	var stages []models.PipelineStage
	require.NoError(t, store.WithTx(ctx, func(tx *storage.Tx) error {
		for _, tmpl := range config.DefaultStages() {
			s := &models.PipelineStage{
				Name:        tmpl.Name,
				Order:       tmpl.Order,
				Category:    tmpl.Category,
				Description: tmpl.Description,
				IsActive:    true,
				TenantID:    tenantID,
			}
			if err := tx.CreateStage(ctx, s); err != nil {
				return err
			}
			stages = append(stages, *s)
		}
		return nil
	}))
	return stages
}

// Person creates a person in tenantID, optionally placed at stage
func Person(t testing.TB, store *storage.Store, tenantID, email, stage string) *models.Person {
	t.Helper()
	ctx := context.Background()
	p := &models.Person{
		FirstName:            "Pat",
		LastName:             fmt.Sprintf("Person-%s", email),
		Email:                email,
		CurrentPipelineStage: models.StringPtr(stage),
		TenantID:             tenantID,
	}
	require.NoError(t, store.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.CreatePerson(ctx, p)
	}))
	return p
}
