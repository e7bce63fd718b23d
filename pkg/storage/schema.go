package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/sunup/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns all schema migrations in order. The SQL is restricted to
// the subset PostgreSQL and SQLite share.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create tenants and users",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenants (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					domain TEXT,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					settings TEXT NOT NULL DEFAULT '{}',
					created_at TIMESTAMP NOT NULL
				);

				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					subject TEXT NOT NULL UNIQUE,
					email TEXT NOT NULL UNIQUE,
					first_name TEXT NOT NULL,
					last_name TEXT NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					tenant_id TEXT NOT NULL REFERENCES tenants(id),
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_users_tenant ON users(tenant_id);
			`,
		},
		{
			Version:     2,
			Description: "Create user roles",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_roles (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role TEXT NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					is_primary BOOLEAN NOT NULL DEFAULT FALSE,
					tenant_id TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL,
					UNIQUE(user_id, role)
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_user_roles_primary ON user_roles(user_id) WHERE is_primary;
				CREATE INDEX IF NOT EXISTS idx_user_roles_tenant_role ON user_roles(tenant_id, role);
			`,
		},
		{
			Version:     3,
			Description: "Create organizations and people",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					type TEXT NOT NULL,
					street TEXT NOT NULL,
					city TEXT NOT NULL,
					state TEXT NOT NULL,
					zip_code TEXT NOT NULL,
					country TEXT NOT NULL,
					tax_id TEXT,
					tenant_id TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_organizations_tenant ON organizations(tenant_id);

				CREATE TABLE IF NOT EXISTS people (
					id TEXT PRIMARY KEY,
					first_name TEXT NOT NULL,
					last_name TEXT NOT NULL,
					email TEXT NOT NULL,
					phone TEXT,
					organization_id TEXT,
					current_pipeline_stage TEXT,
					tenant_id TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL,
					UNIQUE(tenant_id, email)
				);

				CREATE INDEX IF NOT EXISTS idx_people_tenant_stage ON people(tenant_id, current_pipeline_stage);
				CREATE INDEX IF NOT EXISTS idx_people_tenant_org ON people(tenant_id, organization_id);
			`,
		},
		{
			Version:     4,
			Description: "Create pipeline stages, history and events",
			SQL: `
				CREATE TABLE IF NOT EXISTS pipeline_stages (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					stage_order INTEGER NOT NULL,
					category TEXT NOT NULL,
					description TEXT,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					tenant_id TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL,
					UNIQUE(tenant_id, name)
				);

				CREATE INDEX IF NOT EXISTS idx_pipeline_stages_tenant_order ON pipeline_stages(tenant_id, stage_order);

				CREATE TABLE IF NOT EXISTS pipeline_history (
					id TEXT PRIMARY KEY,
					person_id TEXT NOT NULL,
					from_stage TEXT,
					to_stage TEXT NOT NULL,
					changed_by_user_id TEXT NOT NULL,
					change_reason TEXT,
					changed_at TIMESTAMP NOT NULL,
					tenant_id TEXT NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_pipeline_history_person ON pipeline_history(person_id, changed_at);
				CREATE INDEX IF NOT EXISTS idx_pipeline_history_tenant ON pipeline_history(tenant_id);

				CREATE TABLE IF NOT EXISTS person_pipeline_events (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL,
					person_id TEXT NOT NULL,
					user_id TEXT NOT NULL,
					occurred_at TIMESTAMP NOT NULL,
					from_stage TEXT,
					to_stage TEXT NOT NULL,
					event_type TEXT NOT NULL,
					metadata TEXT
				);

				CREATE INDEX IF NOT EXISTS idx_person_pipeline_events_person ON person_pipeline_events(person_id);
				CREATE INDEX IF NOT EXISTS idx_person_pipeline_events_tenant ON person_pipeline_events(tenant_id, occurred_at);
			`,
		},
		{
			Version:     5,
			Description: "Create audit log",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_logs (
					id TEXT PRIMARY KEY,
					occurred_at TIMESTAMP NOT NULL,
					event_type TEXT NOT NULL,
					status TEXT NOT NULL,
					user_id TEXT,
					tenant_id TEXT,
					resource_type TEXT,
					resource_id TEXT,
					request_id TEXT,
					ip_address TEXT,
					message TEXT,
					error_message TEXT,
					metadata TEXT
				);

				CREATE INDEX IF NOT EXISTS idx_audit_logs_occurred_at ON audit_logs(occurred_at);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_tenant ON audit_logs(tenant_id, occurred_at);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_user ON audit_logs(user_id);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id);
			`,
		},
		{
			Version:     6,
			Description: "Add organization contacts",
			SQL: `
				ALTER TABLE organizations ADD COLUMN primary_contact_person_id TEXT;
				ALTER TABLE organizations ADD COLUMN updated_at TIMESTAMP;
				UPDATE organizations SET updated_at = created_at;

				CREATE INDEX IF NOT EXISTS idx_organizations_tenant_type ON organizations(tenant_id, type);
			`,
		},
	}
}

// Migrate applies every pending migration, each in its own transaction
func Migrate(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	if logger == nil {
		logger = observability.NopLogger()
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range Migrations() {
		if applied[migration.Version] {
			continue
		}

		log := logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		})
		log.Info("Running migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES ($1, $2, $3)",
			migration.Version, migration.Description, now(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		log.Info("Migration completed")
	}

	return nil
}

func appliedMigrations(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// PendingMigrations returns the versions of the migrations not yet applied
func PendingMigrations(ctx context.Context, db *sql.DB) ([]int, error) {
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return nil, err
	}
	var pending []int
	for _, m := range Migrations() {
		if !applied[m.Version] {
			pending = append(pending, m.Version)
		}
	}
	return pending, nil
}
