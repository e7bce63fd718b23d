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

const personColumns = `id, first_name, last_name, email, phone, organization_id, current_pipeline_stage, tenant_id, created_at, updated_at`

// PersonFilter narrows ListPeople
type PersonFilter struct {
	Stage          string
	OrganizationID string
	Limit          int
}

// CreatePerson inserts a person
func (t *Tx) CreatePerson(ctx context.Context, p *models.Person) error {
	p.ID = uuid.NewString()
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt

	_, err := t.q.ExecContext(ctx, `
		INSERT INTO people (id, first_name, last_name, email, phone, organization_id, current_pipeline_stage, tenant_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.FirstName, p.LastName, p.Email, nullString(p.Phone), nullString(p.OrganizationID),
		nullString(p.CurrentPipelineStage), p.TenantID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return wrapWriteErr("failed to create person", err)
	}
	return nil
}

// GetPerson returns a person by ID regardless of tenant; callers apply the scope.
func (t *Tx) GetPerson(ctx context.Context, id string) (*models.Person, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+personColumns+` FROM people WHERE id = $1`, id)
	p, err := scanPerson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("person")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	return p, nil
}

// FindPersonByEmail looks up a person by email within a tenant
func (t *Tx) FindPersonByEmail(ctx context.Context, tenantID, email string) (*models.Person, error) {
	row := t.q.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM people WHERE tenant_id = $1 AND email = $2`, tenantID, email)
	p, err := scanPerson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("person")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	return p, nil
}

// UpdatePerson writes every mutable field of p
func (t *Tx) UpdatePerson(ctx context.Context, p *models.Person) error {
	p.UpdatedAt = now()
	res, err := t.q.ExecContext(ctx, `
		UPDATE people
		SET first_name = $1, last_name = $2, email = $3, phone = $4, organization_id = $5, updated_at = $6
		WHERE id = $7
	`, p.FirstName, p.LastName, p.Email, nullString(p.Phone), nullString(p.OrganizationID), p.UpdatedAt, p.ID)
	if err != nil {
		return wrapWriteErr("failed to update person", err)
	}
	return expectOneRow(res, "person")
}

// SetPersonStage updates a person's current pipeline stage
func (t *Tx) SetPersonStage(ctx context.Context, id string, stage string) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE people SET current_pipeline_stage = $1, updated_at = $2 WHERE id = $3`, stage, now(), id)
	if err != nil {
		return fmt.Errorf("failed to update person stage: %w", err)
	}
	return expectOneRow(res, "person")
}

// DeletePerson hard-deletes a person. Pipeline history is retained; any
// organization naming the person as primary contact loses the reference.
func (t *Tx) DeletePerson(ctx context.Context, id string) error {
	if _, err := t.q.ExecContext(ctx,
		`UPDATE organizations SET primary_contact_person_id = NULL WHERE primary_contact_person_id = $1`, id); err != nil {
		return fmt.Errorf("failed to clear organization contact: %w", err)
	}
	res, err := t.q.ExecContext(ctx, `DELETE FROM people WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete person: %w", err)
	}
	return expectOneRow(res, "person")
}

// ListPeople returns people visible in scope, newest first
func (t *Tx) ListPeople(ctx context.Context, scope tenancy.Scope, filter PersonFilter) ([]models.Person, error) {
	where, args := scope.Filter("tenant_id", 1)
	conds := []string{where}
	if filter.Stage != "" {
		args = append(args, filter.Stage)
		conds = append(conds, fmt.Sprintf("current_pipeline_stage = $%d", len(args)))
	}
	if filter.OrganizationID != "" {
		args = append(args, filter.OrganizationID)
		conds = append(conds, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	args = append(args, filter.Limit)

	query := fmt.Sprintf(`SELECT %s FROM people WHERE %s ORDER BY created_at DESC, id LIMIT $%d`,
		personColumns, strings.Join(conds, " AND "), len(args))
	return t.queryPeople(ctx, query, args...)
}

// SearchPeople matches term case-insensitively against first name, last name
// and email.
func (t *Tx) SearchPeople(ctx context.Context, scope tenancy.Scope, term string, limit int) ([]models.Person, error) {
	where, args := scope.Filter("tenant_id", 1)
	args = append(args, "%"+escapeLike(strings.ToLower(term))+"%")
	pos := len(args)
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT %s FROM people
		WHERE %s AND (
			LOWER(first_name) LIKE $%d ESCAPE '\' OR
			LOWER(last_name) LIKE $%d ESCAPE '\' OR
			LOWER(email) LIKE $%d ESCAPE '\'
		)
		ORDER BY last_name, first_name, id
		LIMIT $%d
	`, personColumns, where, pos, pos, pos, len(args))
	return t.queryPeople(ctx, query, args...)
}

// CountPeopleInStage counts people in a tenant currently holding stage
func (t *Tx) CountPeopleInStage(ctx context.Context, tenantID, stage string) (int, error) {
	var n int
	err := t.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM people WHERE tenant_id = $1 AND current_pipeline_stage = $2`, tenantID, stage).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count people in stage: %w", err)
	}
	return n, nil
}

// CountPeopleByStage returns the number of people per stage name in a tenant.
// Unassigned people are counted under "".
func (t *Tx) CountPeopleByStage(ctx context.Context, tenantID string) (map[string]int, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT COALESCE(current_pipeline_stage, ''), COUNT(*)
		FROM people WHERE tenant_id = $1
		GROUP BY COALESCE(current_pipeline_stage, '')
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count people by stage: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			stage string
			n     int
		)
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, fmt.Errorf("failed to scan stage count: %w", err)
		}
		counts[stage] = n
	}
	return counts, rows.Err()
}

func (t *Tx) queryPeople(ctx context.Context, query string, args ...interface{}) ([]models.Person, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query people: %w", err)
	}
	defer rows.Close()

	people := []models.Person{}
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		people = append(people, *p)
	}
	return people, rows.Err()
}

func scanPerson(row rowScanner) (*models.Person, error) {
	var (
		p                   models.Person
		phone, org, current sql.NullString
	)
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &phone, &org, &current,
		&p.TenantID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Phone = stringPtr(phone)
	p.OrganizationID = stringPtr(org)
	p.CurrentPipelineStage = stringPtr(current)
	return &p, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
