package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/models"
)

const tenantColumns = `id, name, domain, is_active, settings, created_at`

// CreateTenant inserts a tenant, assigning its ID and creation time
func (t *Tx) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	settings, err := json.Marshal(tenant.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal tenant settings: %w", err)
	}

	tenant.ID = uuid.NewString()
	tenant.CreatedAt = now()

	_, err = t.q.ExecContext(ctx, `
		INSERT INTO tenants (id, name, domain, is_active, settings, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, tenant.ID, tenant.Name, nullString(models.StringPtr(tenant.Domain)), tenant.IsActive, string(settings), tenant.CreatedAt)
	if err != nil {
		return wrapWriteErr("failed to create tenant", err)
	}
	return nil
}

// GetTenant returns a tenant by ID
func (t *Tx) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	tenant, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("tenant")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

// ListTenants returns every tenant ordered by name
func (t *Tx) ListTenants(ctx context.Context, activeOnly bool) ([]models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY name`

	rows, err := t.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, *tenant)
	}
	return tenants, rows.Err()
}

// SetTenantActive activates or deactivates a tenant
func (t *Tx) SetTenantActive(ctx context.Context, id string, active bool) error {
	res, err := t.q.ExecContext(ctx, `UPDATE tenants SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	return expectOneRow(res, "tenant")
}

// UpdateTenantSettings replaces a tenant's settings blob
func (t *Tx) UpdateTenantSettings(ctx context.Context, id string, settings models.TenantSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal tenant settings: %w", err)
	}
	res, err := t.q.ExecContext(ctx, `UPDATE tenants SET settings = $1 WHERE id = $2`, string(data), id)
	if err != nil {
		return fmt.Errorf("failed to update tenant settings: %w", err)
	}
	return expectOneRow(res, "tenant")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTenant(row rowScanner) (*models.Tenant, error) {
	var (
		tenant   models.Tenant
		domain   sql.NullString
		settings string
	)
	if err := row.Scan(&tenant.ID, &tenant.Name, &domain, &tenant.IsActive, &settings, &tenant.CreatedAt); err != nil {
		return nil, err
	}
	tenant.Domain = domain.String
	if settings != "" {
		if err := json.Unmarshal([]byte(settings), &tenant.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tenant settings: %w", err)
		}
	}
	return &tenant, nil
}

func expectOneRow(res sql.Result, resource string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return apperr.NotFound(resource)
	}
	return nil
}
