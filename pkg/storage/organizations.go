package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/sunup/pkg/apperr"
	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/tenancy"
)

const organizationColumns = `id, name, type, street, city, state, zip_code, country, tax_id,
	primary_contact_person_id, tenant_id, created_at, updated_at`

// OrganizationFilter narrows ListOrganizations
type OrganizationFilter struct {
	Type  models.OrganizationType
	Limit int
}

// CreateOrganization inserts an organization
func (t *Tx) CreateOrganization(ctx context.Context, org *models.Organization) error {
	org.ID = uuid.NewString()
	org.CreatedAt = now()
	org.UpdatedAt = org.CreatedAt

	a := org.BillingAddress
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO organizations (id, name, type, street, city, state, zip_code, country, tax_id,
			primary_contact_person_id, tenant_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, org.ID, org.Name, string(org.Type), a.Street, a.City, a.State, a.ZipCode, a.Country,
		nullString(models.StringPtr(org.TaxID)), nullString(org.PrimaryContactPersonID),
		org.TenantID, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		return wrapWriteErr("failed to create organization", err)
	}
	return nil
}

// UpdateOrganization overwrites the mutable fields of an organization
func (t *Tx) UpdateOrganization(ctx context.Context, org *models.Organization) error {
	org.UpdatedAt = now()

	a := org.BillingAddress
	res, err := t.q.ExecContext(ctx, `
		UPDATE organizations
		SET name = $1, type = $2, street = $3, city = $4, state = $5, zip_code = $6, country = $7,
			tax_id = $8, primary_contact_person_id = $9, updated_at = $10
		WHERE id = $11
	`, org.Name, string(org.Type), a.Street, a.City, a.State, a.ZipCode, a.Country,
		nullString(models.StringPtr(org.TaxID)), nullString(org.PrimaryContactPersonID), org.UpdatedAt, org.ID)
	if err != nil {
		return wrapWriteErr("failed to update organization", err)
	}
	return expectOneRow(res, "organization")
}

// DeleteOrganization hard-deletes an organization and unlinks its people.
// It returns the number of people that were unlinked.
func (t *Tx) DeleteOrganization(ctx context.Context, id string) (int, error) {
	res, err := t.q.ExecContext(ctx,
		`UPDATE people SET organization_id = NULL, updated_at = $1 WHERE organization_id = $2`, now(), id)
	if err != nil {
		return 0, fmt.Errorf("failed to unlink people: %w", err)
	}
	unlinked, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to unlink people: %w", err)
	}

	res, err = t.q.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete organization: %w", err)
	}
	return int(unlinked), expectOneRow(res, "organization")
}

// GetOrganization returns an organization by ID regardless of tenant
func (t *Tx) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE id = $1`, id)
	org, err := scanOrganization(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("organization")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// ListOrganizations returns organizations visible in scope ordered by name
func (t *Tx) ListOrganizations(ctx context.Context, scope tenancy.Scope, filter OrganizationFilter) ([]models.Organization, error) {
	where, args := scope.Filter("tenant_id", 1)
	conds := []string{where}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	args = append(args, filter.Limit)
	query := fmt.Sprintf(`SELECT %s FROM organizations WHERE %s ORDER BY name, id LIMIT $%d`,
		organizationColumns, strings.Join(conds, " AND "), len(args))

	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []models.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, *org)
	}
	return orgs, rows.Err()
}

func scanOrganization(row rowScanner) (*models.Organization, error) {
	var (
		org       models.Organization
		orgType   string
		taxID     sql.NullString
		contactID sql.NullString
		updatedAt sql.NullTime
	)
	a := &org.BillingAddress
	err := row.Scan(&org.ID, &org.Name, &orgType, &a.Street, &a.City, &a.State, &a.ZipCode, &a.Country,
		&taxID, &contactID, &org.TenantID, &org.CreatedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	org.Type = models.OrganizationType(orgType)
	org.TaxID = taxID.String
	if contactID.Valid {
		org.PrimaryContactPersonID = &contactID.String
	}
	org.UpdatedAt = org.CreatedAt
	if updatedAt.Valid {
		org.UpdatedAt = updatedAt.Time
	}
	return &org, nil
}
